// Package trigger is the Trigger Pipeline: pluggable Parts grouped under
// Exchanges, each producing a stream of observed symbols; novel ones are
// diffed, alerted, and routed to the trade execution layer (§4.6-§4.9).
package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"listing-sniper/internal/chatlog"
	"listing-sniper/internal/coinmeta"
	"listing-sniper/internal/common"
	"listing-sniper/internal/corelog"
	"listing-sniper/internal/httpclient"
	"listing-sniper/internal/trade"
)

// PartError is raised when a vendor response doesn't have the expected
// shape (§4.6, §7.3).
type PartError struct {
	URL      string
	Response string
}

func (e *PartError) Error() string {
	return fmt.Sprintf("trigger part error for %s: %s", e.URL, e.Response)
}

// streamRestartDelay bounds how fast a generator part's Run is re-invoked
// after it returns, so a stub or immediately-failing backend (e.g. no
// stream source configured) doesn't spin the CPU (§4.7).
const streamRestartDelay = 5 * time.Second

// Part is a periodic poller: source, delay, triggerActions, priceChangeLimit,
// and a Get() that performs one fetch (§4.6, §9).
type Part interface {
	Source() common.CoinSource
	Actions() map[common.TriggerAction]bool
	PriceChangeLimit() int
	Delay() time.Duration
	Get(ctx context.Context) (map[string]common.Symbol, error)
}

// GeneratorPart is a long-lived producer yielding symbol sets; the
// implementation follows filters/regexes appropriate to its source and
// calls yield on each observation. Reconnection is the caller's
// responsibility, not the part's (§4.7).
type GeneratorPart interface {
	Source() common.CoinSource
	Actions() map[common.TriggerAction]bool
	PriceChangeLimit() int
	Run(ctx context.Context, yield func(map[string]common.Symbol)) error
}

// Exchange owns a set of parts and the known/call novelty sets for one
// trigger source (§3, §4.8).
type Exchange struct {
	name       string
	buyAmounts map[string]int
	parts      []Part
	genParts   []GeneratorPart

	mu         sync.Mutex
	knownCoins map[string]bool
	callCoins  map[string]bool

	debug       bool
	disableBuy  bool
	coinMeta    *coinmeta.Lookup
	chatLog     *chatlog.Queue
	tradeMgr    *trade.Manager
	log         *corelog.Logger
}

// Options configures a new Exchange.
type Options struct {
	Name       string
	BuyAmounts map[string]int
	Parts      []Part
	GenParts   []GeneratorPart
	Debug      bool
	DisableBuy bool
	CoinMeta   *coinmeta.Lookup
	ChatLog    *chatlog.Queue
	TradeMgr   *trade.Manager
}

// New builds an Exchange.
func New(opts Options) *Exchange {
	return &Exchange{
		name:       opts.Name,
		buyAmounts: opts.BuyAmounts,
		parts:      opts.Parts,
		genParts:   opts.GenParts,
		knownCoins: make(map[string]bool),
		callCoins:  make(map[string]bool),
		debug:      opts.Debug,
		disableBuy: opts.DisableBuy,
		coinMeta:   opts.CoinMeta,
		chatLog:    opts.ChatLog,
		tradeMgr:   opts.TradeMgr,
		log:        corelog.New("trigger." + opts.Name),
	}
}

// Name satisfies trade.PriceSource.
func (e *Exchange) Name() string { return e.name }

// BuyAmountPercent satisfies trade.PriceSource.
func (e *Exchange) BuyAmountPercent(quoteAsset string) int { return e.buyAmounts[quoteAsset] }

// BuyAmounts returns the exchange's quoteAsset->percent map, for the startup
// announcement.
func (e *Exchange) BuyAmounts() map[string]int { return e.buyAmounts }

// PartSources returns the CoinSource of every poller part owned by this
// exchange, for the startup announcement.
func (e *Exchange) PartSources() []common.CoinSource {
	out := make([]common.CoinSource, 0, len(e.parts)+len(e.genParts))
	for _, p := range e.parts {
		out = append(out, p.Source())
	}
	for _, g := range e.genParts {
		out = append(out, g.Source())
	}
	return out
}

// DeleteCoin drops a symbol from knownCoins, reintroducing its novelty
// (chat-bot /delete_coin, §4.11).
func (e *Exchange) DeleteCoin(code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.knownCoins, code)
}

// Init calls every poller part's Get() once to seed knownCoins/callCoins,
// dropping (not retrying) any part that errors at startup (§4.8).
func (e *Exchange) Init(ctx context.Context) error {
	var surviving []Part
	for _, p := range e.parts {
		coins, err := p.Get(ctx)
		if err != nil {
			e.log.Errorf("startup seed failed for part %s, dropping: %v", p.Source(), err)
			continue
		}
		target := e.targetSet(p.Actions())
		e.mu.Lock()
		for code := range coins {
			if !common.IsExcluded(code) {
				target[code] = true
			}
		}
		e.mu.Unlock()
		surviving = append(surviving, p)
	}
	e.parts = surviving
	return nil
}

// Run schedules every remaining part's check loop and every generator
// part's stream consumer.
func (e *Exchange) Run(ctx context.Context) {
	for _, p := range e.parts {
		go e.pollLoop(ctx, p)
	}
	for _, g := range e.genParts {
		go e.streamLoop(ctx, g)
	}
}

func (e *Exchange) pollLoop(ctx context.Context, p Part) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Delay()):
		}

		coins, err := p.Get(ctx)
		switch err := err.(type) {
		case nil:
			e.processCoins(ctx, p.Source(), p.Actions(), p.PriceChangeLimit(), coins)
		case *httpclient.TooManyRequests:
			sleepTime := 600 * time.Second
			if err.RetryAfter > 0 {
				sleepTime = time.Duration(err.RetryAfter+60) * time.Second
			}
			e.log.Infof("rate limited on %s part, sleeping %s", p.Source(), sleepTime)
			select {
			case <-ctx.Done():
				return
			case <-time.After(sleepTime):
			}
		case *PartError:
			e.log.Errorf("part error: %v", err)
		default:
			e.log.Errorf("unknown error from part %s: %v", p.Source(), err)
		}
	}
}

func (e *Exchange) streamLoop(ctx context.Context, g GeneratorPart) {
	for {
		if ctx.Err() != nil {
			return
		}
		err := g.Run(ctx, func(coins map[string]common.Symbol) {
			e.processCoins(ctx, g.Source(), g.Actions(), g.PriceChangeLimit(), coins)
		})
		if err != nil {
			e.log.Errorf("generator stream %s closed: %v", g.Source(), err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(streamRestartDelay):
		}
	}
}

func (e *Exchange) targetSet(actions map[common.TriggerAction]bool) map[string]bool {
	if isCallOnly(actions) {
		return e.callCoins
	}
	return e.knownCoins
}

func isCallOnly(actions map[common.TriggerAction]bool) bool {
	return len(actions) == 1 && actions[common.ActionCall]
}

// processCoins implements §4.8's novelty diff and dispatch.
func (e *Exchange) processCoins(ctx context.Context, source common.CoinSource, actions map[common.TriggerAction]bool, priceChangeLimit int, coins map[string]common.Symbol) {
	e.mu.Lock()
	target := e.targetSet(actions)
	var newCoins []common.Symbol
	for code, sym := range coins {
		if target[code] || common.IsExcluded(code) {
			continue
		}
		target[code] = true
		newCoins = append(newCoins, sym)
	}
	e.mu.Unlock()

	if len(newCoins) == 0 {
		return
	}

	for _, coin := range newCoins {
		e.announce(ctx, coin)
	}

	if !e.debug && actions[common.ActionCall] {
		go e.tradeMgr.CallAll(ctx)
	}

	if !e.disableBuy && actions[common.ActionBuy] {
		for _, coin := range newCoins {
			e.tradeMgr.ProcessCoin(ctx, e, coin.Code, priceChangeLimit)
		}
	}
}

func (e *Exchange) announce(ctx context.Context, coin common.Symbol) {
	line := fmt.Sprintf("[%s] new coin: %s (%s)", e.name, coin.Code, coin.Source)
	if e.coinMeta != nil {
		if info, ok := e.coinMeta.Get(ctx, coin.Code); ok {
			line = fmt.Sprintf("[%s] new coin: %s — %s (%s)", e.name, coin.Code, info.Name, info.URL)
		}
	}
	if e.chatLog != nil {
		e.chatLog.Enqueue(line)
	}
}
