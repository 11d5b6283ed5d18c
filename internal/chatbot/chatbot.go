// Package chatbot is the Telegram command surface: /balances, /cancel,
// /delete_coin, /fake_coin, and channel-post ingestion for the Upbit
// watch channel (§4.11, grounded on original_source/tgbot).
package chatbot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"listing-sniper/internal/common"
	"listing-sniper/internal/corelog"
	"listing-sniper/internal/trade"
	"listing-sniper/internal/trigger"
	"listing-sniper/internal/trigger/telegram"
)

// Config wires the bot to the running Core.
type Config struct {
	Bot             *tgbotapi.BotAPI
	AuthorizedUsers map[int64]bool
	ListenChannelID int64
	BalanceLimitBTC decimal.Decimal
	BlackList       map[string]bool
	WhiteList       map[string]bool

	TradeMgr   *trade.Manager
	TriggerMgr *trigger.Manager

	// FakeBuffer and the two channel buffers are the telegram trigger
	// exchange's buffers, fed directly by /fake_coin and channel posts.
	FakeBuffer       *telegram.Buffer
	BTCChannelBuffer *telegram.Buffer
	KRWChannelBuffer *telegram.Buffer
}

// Bot is the running command surface.
type Bot struct {
	cfg Config
	log *corelog.Logger
}

// New builds a Bot.
func New(cfg Config) *Bot {
	return &Bot{cfg: cfg, log: corelog.New("chatbot")}
}

// Run polls for updates until ctx is canceled (§4.11: aiogram's
// start_polling equivalent).
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.cfg.Bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.cfg.Bot.StopReceivingUpdates()
			return
		case update := <-updates:
			b.dispatch(ctx, update)
		}
	}
}

func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	if update.ChannelPost != nil {
		b.handleChannelPost(ctx, update.ChannelPost)
		return
	}
	if update.Message == nil {
		return
	}
	if !b.authorized(update.Message) {
		b.log.Infof("rejected message from unauthorized user")
		return
	}

	switch {
	case update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	default:
		b.reply(update.Message, "Unknown command, please check /help")
	}
}

func (b *Bot) authorized(msg *tgbotapi.Message) bool {
	if msg.From == nil {
		return false
	}
	return b.cfg.AuthorizedUsers[msg.From.ID]
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "help":
		b.reply(msg, "Commands: /balances /cancel /delete_coin <exchange> <coin> /fake_coin <coin>")
	case "balances":
		b.cmdBalances(msg)
	case "cancel":
		b.cmdCancel(ctx, msg)
	case "delete_coin", "dc":
		b.cmdDeleteCoin(msg)
	case "fake_coin", "fk":
		b.cmdFakeCoin(msg)
	default:
		b.reply(msg, "Unknown command, please check /help")
	}
}

// cmdBalances implements §4.11's balance report: group by owner, then by
// exchange, filtering assets whose BTC-equivalent cost is below the
// configured threshold.
func (b *Bot) cmdBalances(msg *tgbotapi.Message) {
	type ownerExchange struct {
		owner    string
		exchange trade.TradeExchange
		account  trade.Account
	}

	var rows []ownerExchange
	for _, ex := range b.cfg.TradeMgr.Exchanges() {
		for _, acc := range ex.Accounts() {
			rows = append(rows, ownerExchange{owner: acc.Owner(), exchange: ex, account: acc})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].owner < rows[j].owner })

	var sb strings.Builder
	fmt.Fprintf(&sb, "Assets that cost less than ₿%s are ignored.\n\n", b.cfg.BalanceLimitBTC.String())

	i := 0
	for i < len(rows) {
		owner := rows[i].owner
		sb.WriteString("<b>" + owner + "</b>\n")
		for i < len(rows) && rows[i].owner == owner {
			r := rows[i]
			sb.WriteString("\t" + r.exchange.Name() + "\n")
			hasBalance := false
			balances := r.account.Balances()
			assets := make([]string, 0, len(balances))
			for asset := range balances {
				assets = append(assets, asset)
			}
			sort.Strings(assets)
			for _, asset := range assets {
				bal := balances[asset]
				if !b.costAboveLimit(asset, bal.Total(), r.exchange) {
					continue
				}
				hasBalance = true
				line := fmt.Sprintf("\t\t%s = %s", asset, bal.Free.String())
				if !bal.Free.Equal(bal.Total()) {
					line += "/" + bal.Total().String()
				}
				sb.WriteString("<code>" + line + "</code>\n")
			}
			if !hasBalance {
				sb.WriteString("\t\tno significant balances\n")
			}
			i++
		}
		sb.WriteString("\n")
	}

	b.reply(msg, sb.String())
}

func (b *Bot) costAboveLimit(asset string, total decimal.Decimal, ex trade.TradeExchange) bool {
	if total.IsZero() {
		return false
	}
	if asset == "BTC" {
		return total.GreaterThanOrEqual(b.cfg.BalanceLimitBTC)
	}

	price, ok := b.priceInBTC(asset, ex)
	if !ok {
		return true // unknown price: never filter it out
	}
	return total.Mul(price).GreaterThanOrEqual(b.cfg.BalanceLimitBTC)
}

func (b *Bot) priceInBTC(asset string, ex trade.TradeExchange) (decimal.Decimal, bool) {
	var pair string
	isUSD := strings.Contains(asset, "USD")
	if isUSD {
		pair = ex.MakePair("BTC", asset)
	} else {
		pair = ex.MakePair(asset, "BTC")
	}

	ticker, ok := ex.Ticker(pair)
	if !ok {
		return decimal.Zero, false
	}
	if isUSD {
		return decimal.NewFromInt(1).Div(ticker.Price), true
	}
	return ticker.Price, true
}

// cmdCancel fans out GetOpenOrdersID+CancelOrder across every account,
// reporting canceled/total per account (§4.11).
func (b *Bot) cmdCancel(ctx context.Context, msg *tgbotapi.Message) {
	type target struct {
		owner    string
		exchange trade.TradeExchange
		account  trade.Account
	}
	var targets []target
	for _, ex := range b.cfg.TradeMgr.Exchanges() {
		for _, acc := range ex.Accounts() {
			targets = append(targets, target{owner: acc.Owner(), exchange: ex, account: acc})
		}
	}

	wg := conc.NewWaitGroup()
	for _, t := range targets {
		t := t
		wg.Go(func() {
			orders, err := t.account.GetOpenOrdersID(ctx)
			if err != nil {
				b.log.Errorf("fetching open orders for %s@%s: %v", t.owner, t.exchange.Name(), err)
				return
			}
			canceled := 0
			for _, o := range orders {
				if err := t.account.CancelOrder(ctx, o); err != nil {
					b.log.Errorf("canceling %s on %s@%s: %v", o.OrderID, t.owner, t.exchange.Name(), err)
					continue
				}
				canceled++
			}
			b.replyAsync(msg, fmt.Sprintf("%s@%s: canceled %d/%d orders", t.owner, t.exchange.Name(), canceled, len(orders)))
		})
	}
	wg.Wait()
	b.reply(msg, "cancel finished")
}

func (b *Bot) cmdDeleteCoin(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		b.reply(msg, "Invalid arguments!")
		return
	}
	exchangeName, coin := args[0], args[1]
	if err := b.cfg.TriggerMgr.DeleteCoin(exchangeName, coin); err != nil {
		b.reply(msg, fmt.Sprintf("Unable to drop coin %q from exchange %q", coin, exchangeName))
		return
	}
	b.reply(msg, fmt.Sprintf("Coin %q successfully dropped from exchange %q.", coin, exchangeName))
}

func (b *Bot) cmdFakeCoin(msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 || b.cfg.FakeBuffer == nil {
		return
	}
	code := strings.ToUpper(args[0])
	b.cfg.FakeBuffer.Push(common.Symbol{Code: code, Source: common.SourceTelegram, URL: "http://fake.telegram.url"})
	b.reply(msg, fmt.Sprintf("Added %s to the fake trigger.", code))
}

var (
	reSymbolBracket = regexp.MustCompile(`\(.*?([A-Z0-9]{2,}).*?\)`)
	reDashBTC       = regexp.MustCompile(`BTC-([A-Z0-9]+)`)
	reSlashBTC      = regexp.MustCompile(`([A-Z0-9]+)/BTC`)
	reDashKRW       = regexp.MustCompile(`KRW-([A-Z0-9]+)`)
	reSlashKRW      = regexp.MustCompile(`([A-Z0-9]+)/KRW`)
)

var keywordPhrases = []string{"이벤트", "원화"}

// handleChannelPost implements §4.11's three regex families over the watch
// channel: endpoint-style BTC pairs, endpoint-style KRW pairs, and a
// keyword+bracket fallback for KRW listings.
func (b *Bot) handleChannelPost(ctx context.Context, post *tgbotapi.Message) {
	if post.Chat.ID != b.cfg.ListenChannelID {
		return
	}
	text := post.Text

	btc := whitelistFilter(extractEndpointSymbols(text, "Upbit Endpoint #", reSlashBTC, reDashBTC), b.cfg.WhiteList)
	krw := blacklistFilter(
		union(extractEndpointSymbols(text, "Upbit Endpoint #", reSlashKRW, reDashKRW), extractKeywordSymbols(text)),
		b.cfg.BlackList,
	)

	if len(btc) == 0 && len(krw) == 0 {
		b.log.Infof("no symbols found in channel message")
		return
	}

	b.pushSymbols(b.cfg.BTCChannelBuffer, common.SourceTgChnlUpbitBTC, btc)
	b.pushSymbols(b.cfg.KRWChannelBuffer, common.SourceTgChnlUpbitKRW, krw)
}

func (b *Bot) pushSymbols(buf *telegram.Buffer, src common.CoinSource, codes map[string]bool) {
	if buf == nil {
		return
	}
	for code := range codes {
		buf.Push(common.Symbol{Code: code, Source: src, URL: "http://from.jayden.channel"})
	}
}

func extractEndpointSymbols(text, marker string, patterns ...*regexp.Regexp) map[string]bool {
	if !strings.Contains(text, marker) {
		return nil
	}
	out := make(map[string]bool)
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			out[m[1]] = true
		}
	}
	return out
}

func extractKeywordSymbols(text string) map[string]bool {
	found := false
	for _, kw := range keywordPhrases {
		if strings.Contains(text, kw) {
			found = true
			break
		}
	}
	if !found {
		return nil
	}
	out := make(map[string]bool)
	for _, m := range reSymbolBracket.FindAllStringSubmatch(text, -1) {
		out[m[1]] = true
	}
	return out
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for k := range a {
		out[k] = true
	}
	for k := range b {
		out[k] = true
	}
	return out
}

func blacklistFilter(symbols map[string]bool, blacklist map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range symbols {
		if !blacklist[k] {
			out[k] = true
		}
	}
	return out
}

func whitelistFilter(symbols map[string]bool, whitelist map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for k := range symbols {
		if whitelist[k] {
			out[k] = true
		}
	}
	return out
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	reply := tgbotapi.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = tgbotapi.ModeHTML
	reply.ReplyToMessageID = msg.MessageID
	if _, err := b.cfg.Bot.Send(reply); err != nil {
		b.log.Errorf("sending reply: %v", err)
	}
}

// replyAsync is reply without a ReplyToMessageID binding, used from
// goroutines racing on cmdCancel's per-account results.
func (b *Bot) replyAsync(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ParseMode = tgbotapi.ModeHTML
	if _, err := b.cfg.Bot.Send(out); err != nil {
		b.log.Errorf("sending message: %v", err)
	}
}
