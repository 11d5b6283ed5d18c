// Command listing-sniper is the process entry point: it loads configuration
// and credentials, wires the trade exchanges, the trigger exchanges, the
// fan-out coordinator, the Telegram chat-log and chat-bot, and the memory
// watchdog, then runs until interrupted (grounded on the teacher's
// cmd/rsi-bot/main.go lifecycle: build, start in a goroutine, wait on a
// signal, cancel, give cleanup a grace window).
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"listing-sniper/internal/caller"
	"listing-sniper/internal/chatbot"
	"listing-sniper/internal/chatlog"
	"listing-sniper/internal/coinmeta"
	"listing-sniper/internal/common"
	"listing-sniper/internal/config"
	"listing-sniper/internal/coordinator"
	"listing-sniper/internal/credentials"
	"listing-sniper/internal/memwatch"
	"listing-sniper/internal/trade"
	"listing-sniper/internal/trade/binance"
	"listing-sniper/internal/trade/bittrex"
	"listing-sniper/internal/trade/huobi"
	"listing-sniper/internal/trigger"
	"listing-sniper/internal/trigger/bithumb"
	"listing-sniper/internal/trigger/coinbase"
	"listing-sniper/internal/trigger/coinbasepro"
	"listing-sniper/internal/trigger/telegram"
	"listing-sniper/internal/trigger/twitterstream"
	"listing-sniper/internal/trigger/upbit"
)

const (
	credentialsPath  = "credentials.yaml"
	phoneNumbersPath = "phone_numbers.yaml"
)

func main() {
	log.Println("starting")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	creds, err := credentials.Load(credentialsPath)
	if err != nil {
		log.Fatalf("credentials: %v", err)
	}

	var phoneCaller *caller.Caller
	if cfg.TwilioAccountSID != "" {
		phoneCaller, err = caller.Load(phoneNumbersPath, cfg.TwilioFromNumber, cfg.TwilioAccountSID, cfg.TwilioAuthKey)
		if err != nil {
			log.Fatalf("caller: %v", err)
		}
	}

	coinMeta := coinmeta.New(cfg.CoinMetaAPIKey)

	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatalf("telegram bot: %v", err)
	}

	chatLog := chatlog.New(bot, cfg.LogChannelID)

	tradeMgr := buildTradeManager(cfg, creds, phoneCaller, chatLog)
	triggerMgr, telegramBuffers := buildTriggerManager(cfg, coinMeta, chatLog, tradeMgr)

	authorized := make(map[int64]bool, len(cfg.AuthorizedUsersTelegram))
	for _, id := range cfg.AuthorizedUsersTelegram {
		authorized[id] = true
	}
	blackList := toSet(cfg.SymbolsBlackList)
	whiteList := toSet(cfg.SymbolsWhiteList)

	chatBot := chatbot.New(chatbot.Config{
		Bot:              bot,
		AuthorizedUsers:  authorized,
		ListenChannelID:  cfg.ListenChannelID,
		BalanceLimitBTC:  cfg.BalanceShowLimitBTC(),
		BlackList:        blackList,
		WhiteList:        whiteList,
		TradeMgr:         tradeMgr,
		TriggerMgr:       triggerMgr,
		FakeBuffer:       telegramBuffers["fake"],
		BTCChannelBuffer: telegramBuffers["btc"],
		KRWChannelBuffer: telegramBuffers["krw"],
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go chatLog.Run(ctx)
	go memwatch.New("_mem_reports", time.Duration(cfg.MemCheckIntervalSeconds)*time.Second).Run(ctx)

	if err := tradeMgr.Init(ctx); err != nil {
		log.Fatalf("trade manager init: %v", err)
	}
	if err := triggerMgr.Init(ctx); err != nil {
		log.Fatalf("trigger manager init: %v", err)
	}

	tradeMgr.Run(ctx)
	triggerMgr.Run(ctx)
	go chatBot.Run(ctx)

	coordinator.AnnounceStartup(cfg, tradeMgr, triggerMgr, chatLog)

	log.Println("running, press Ctrl+C to stop")
	<-sigCh
	log.Println("shutting down")
	cancel()
	time.Sleep(2 * time.Second)
	log.Println("stopped")
}

func buildTradeManager(cfg *config.Config, creds []common.Credential, phoneCaller *caller.Caller, chatLog *chatlog.Queue) *trade.Manager {
	var exchanges []trade.TradeExchange
	exchanges = append(exchanges, binance.New(
		[]string{"BTC", "ETH", "USDT", "BNB"},
		filterByExchange(creds, "binance"),
		cfg.LimitOrderMarkup,
		time.Duration(cfg.OrderCancelDelay)*time.Second,
		chatLog,
	))
	exchanges = append(exchanges, bittrex.New(
		[]string{"BTC", "ETH"},
		filterByExchange(creds, "bittrex"),
		cfg.LimitOrderMarkup,
		time.Duration(cfg.OrderCancelDelay)*time.Second,
		chatLog,
	))
	exchanges = append(exchanges, huobi.New(
		[]string{"BTC", "ETH"},
		filterByExchange(creds, "huobi"),
		cfg.LimitOrderMarkup,
		time.Duration(cfg.OrderCancelDelay)*time.Second,
		chatLog,
	))

	return trade.NewManager(exchanges, phoneCaller, cfg.Debug)
}

func buildTriggerManager(cfg *config.Config, coinMeta *coinmeta.Lookup, chatLog *chatlog.Queue, tradeMgr *trade.Manager) (*trigger.Manager, map[string]*telegram.Buffer) {
	buyAmounts75 := map[string]int{"BTC": 75, "ETH": 75, "USDT": 75, "BNB": 75}
	buyAmounts75NoBNB := map[string]int{"BTC": 75, "ETH": 75, "USDT": 75}
	buyAmounts70 := map[string]int{"BTC": 70, "ETH": 70, "USDT": 70, "BNB": 70}

	var exchanges []*trigger.Exchange

	exchanges = append(exchanges, trigger.New(trigger.Options{
		Name:       "coinbase",
		BuyAmounts: buyAmounts75,
		Parts:      []trigger.Part{coinbase.NewWalletsPart(cfg.PriceChangeLimitPercent)},
		Debug:      cfg.Debug,
		DisableBuy: cfg.DisableBuy,
		CoinMeta:   coinMeta,
		ChatLog:    chatLog,
		TradeMgr:   tradeMgr,
	}))

	var coinbaseProGenParts []trigger.GeneratorPart
	if cfg.TwitterEnabled {
		coinbaseProGenParts = append(coinbaseProGenParts, twitterstream.NewPart(nil, cfg.PriceChangeLimitPercent))
	}
	exchanges = append(exchanges, trigger.New(trigger.Options{
		Name:       "coinbase_pro",
		BuyAmounts: buyAmounts75,
		Parts: []trigger.Part{
			coinbasepro.NewPairsPart(cfg.PriceChangeLimitPercent),
			coinbasepro.NewMediumPart(cfg.PriceChangeLimitPercent),
		},
		GenParts:   coinbaseProGenParts,
		Debug:      cfg.Debug,
		DisableBuy: cfg.DisableBuy,
		CoinMeta:   coinMeta,
		ChatLog:    chatLog,
		TradeMgr:   tradeMgr,
	}))

	exchanges = append(exchanges, trigger.New(trigger.Options{
		Name:       "upbit",
		BuyAmounts: buyAmounts75,
		Parts: []trigger.Part{
			upbit.NewKRWPart(cfg.UpbitKRWPriceChangeLimit),
			upbit.NewBTCPart(cfg.UpbitBTCPriceChangeLimit),
		},
		Debug:      cfg.Debug,
		DisableBuy: cfg.DisableBuy,
		CoinMeta:   coinMeta,
		ChatLog:    chatLog,
		TradeMgr:   tradeMgr,
	}))

	exchanges = append(exchanges, trigger.New(trigger.Options{
		Name:       "bithumb",
		BuyAmounts: buyAmounts75NoBNB,
		Parts: []trigger.Part{
			bithumb.NewWalletsPart(cfg.PriceChangeLimitPercent),
			bithumb.NewWalletsJSONPart(cfg.PriceChangeLimitPercent),
			bithumb.NewPairCoinsPart(cfg.PriceChangeLimitPercent),
			bithumb.NewAnnouncementsPart(cfg.PriceChangeLimitPercent),
		},
		Debug:      cfg.Debug,
		DisableBuy: cfg.DisableBuy,
		CoinMeta:   coinMeta,
		ChatLog:    chatLog,
		TradeMgr:   tradeMgr,
	}))

	fakeBuffer := telegram.NewBuffer()
	btcBuffer := telegram.NewBuffer()
	krwBuffer := telegram.NewBuffer()
	exchanges = append(exchanges, trigger.New(trigger.Options{
		Name:       "telegram",
		BuyAmounts: buyAmounts70,
		Parts: []trigger.Part{
			telegram.NewPart(fakeBuffer, common.SourceTelegram, map[common.TriggerAction]bool{common.ActionBuy: true, common.ActionCall: true}, cfg.PriceChangeLimitPercent, 15*time.Second),
			telegram.NewPart(btcBuffer, common.SourceTgChnlUpbitBTC, map[common.TriggerAction]bool{common.ActionBuy: true, common.ActionCall: true}, cfg.UpbitBTCPriceChangeLimit, 15*time.Second),
			telegram.NewPart(krwBuffer, common.SourceTgChnlUpbitKRW, map[common.TriggerAction]bool{common.ActionBuy: true, common.ActionCall: true}, cfg.UpbitKRWPriceChangeLimit, 15*time.Second),
		},
		Debug:      cfg.Debug,
		DisableBuy: cfg.DisableBuy,
		CoinMeta:   coinMeta,
		ChatLog:    chatLog,
		TradeMgr:   tradeMgr,
	}))

	return trigger.NewManager(exchanges), map[string]*telegram.Buffer{
		"fake": fakeBuffer,
		"btc":  btcBuffer,
		"krw":  krwBuffer,
	}
}

func filterByExchange(creds []common.Credential, exchangeName string) []common.Credential {
	var out []common.Credential
	for _, c := range creds {
		if c.ExchangeName == exchangeName {
			out = append(out, c)
		}
	}
	return out
}

func toSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, i := range items {
		out[i] = true
	}
	return out
}
