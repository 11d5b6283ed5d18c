// Package twitterstream is the generator-part contract for Twitter filter
// streams (§4.7, §9 supplemented feature). There's no realistic way to
// exercise a live filter stream in tests, so Run returns errNotStarted
// unless a Source backend is injected; the phrase/regex filtering that
// decides which tweets become symbols is exposed standalone so it can be
// tested without a live stream.
package twitterstream

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"listing-sniper/internal/common"
)

var errNotStarted = errors.New("twitterstream: no stream backend configured")

// requiredPhrase and excludedPhrase mirror the original filter's sanity
// check: a listing tweet says the market is open, and isn't about USDC.
const (
	requiredPhrase = "market is open"
	excludedPhrase = "usdc"
)

var tickerPattern = regexp.MustCompile(`\$([A-Z0-9]{2,10})\b`)

// Tweet is the minimal shape this part reads from a stream backend.
type Tweet struct {
	Text string
}

// Source is a live tweet feed; production wiring supplies one backed by the
// Twitter filtered-stream API and the four OAuth1 credentials from config.
type Source interface {
	Next(ctx context.Context) (Tweet, error)
}

// Part is the Coinbase Pro / Bittrex Twitter generator part.
type Part struct {
	source           Source
	priceChangeLimit int
}

// NewPart builds a Part. source may be nil, in which case Run immediately
// returns errNotStarted — the documented stub behavior for
// TWITTER_ENABLED=true with no backend wired (§9 supplemented feature 4).
func NewPart(source Source, priceChangeLimit int) *Part {
	return &Part{source: source, priceChangeLimit: priceChangeLimit}
}

func (p *Part) Source() common.CoinSource { return common.SourceTwitter }
func (p *Part) Actions() map[common.TriggerAction]bool {
	return map[common.TriggerAction]bool{common.ActionBuy: true, common.ActionCall: true}
}
func (p *Part) PriceChangeLimit() int { return p.priceChangeLimit }

// Run reads tweets forever, yielding a symbol set per matching tweet; the
// caller supervises reconnection (§4.7: "streams do not auto-reconnect
// inside the part").
func (p *Part) Run(ctx context.Context, yield func(map[string]common.Symbol)) error {
	if p.source == nil {
		return errNotStarted
	}
	for {
		tweet, err := p.source.Next(ctx)
		if err != nil {
			return err
		}
		if syms := ExtractSymbols(tweet.Text); len(syms) > 0 {
			yield(syms)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Millisecond) // yield to scheduler between reads
	}
}

// ExtractSymbols applies the required/excluded phrase test then the ticker
// regex, returning a Symbol set (possibly empty).
func ExtractSymbols(text string) map[string]common.Symbol {
	lower := strings.ToLower(text)
	if !strings.Contains(lower, requiredPhrase) || strings.Contains(lower, excludedPhrase) {
		return nil
	}

	out := make(map[string]common.Symbol)
	for _, m := range tickerPattern.FindAllStringSubmatch(text, -1) {
		code := m[1]
		out[code] = common.Symbol{Code: code, Source: common.SourceTwitter}
	}
	return out
}
