// Package upbit provides Upbit's KRW and BTC market-list pollers, each with
// its own configurable price-change ceiling (UPBIT_KRW_PRICE_CHANGE_LIMIT,
// UPBIT_BTC_PRICE_CHANGE_LIMIT).
package upbit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"listing-sniper/internal/common"
	"listing-sniper/internal/httpclient"
	"listing-sniper/internal/trigger"
)

const (
	marketsURL   = "https://api.upbit.com/v1/market/all"
	defaultDelay = 90 * time.Second
)

type marketEntry struct {
	Market string `json:"market"`
}

// MarketsPart polls /v1/market/all and splits KRW and BTC quoted markets.
// The BTC-quoted part is call-only (original_source
// exchanges/trigger/upbit/part.py's ApiPairsBTCOnlyPart): a novel BTC
// market alerts phones but never dispatches a buy, since the KRW part is
// the buy signal of record for a given coin's Upbit listing.
type MarketsPart struct {
	client           *httpclient.Client
	quotePrefix      string
	source           common.CoinSource
	priceChangeLimit int
	delay            time.Duration
	callOnly         bool
}

// NewKRWPart builds the KRW-market poller.
func NewKRWPart(priceChangeLimit int) *MarketsPart {
	return &MarketsPart{
		client: httpclient.New(), quotePrefix: "KRW-", source: common.SourceAPIPair,
		priceChangeLimit: priceChangeLimit, delay: defaultDelay,
	}
}

// NewBTCPart builds the BTC-market poller.
func NewBTCPart(priceChangeLimit int) *MarketsPart {
	return &MarketsPart{
		client: httpclient.New(), quotePrefix: "BTC-", source: common.SourceAPIPair,
		priceChangeLimit: priceChangeLimit, delay: defaultDelay, callOnly: true,
	}
}

func (p *MarketsPart) Source() common.CoinSource { return p.source }
func (p *MarketsPart) Actions() map[common.TriggerAction]bool {
	if p.callOnly {
		return map[common.TriggerAction]bool{common.ActionCall: true}
	}
	return map[common.TriggerAction]bool{common.ActionBuy: true, common.ActionCall: true}
}
func (p *MarketsPart) PriceChangeLimit() int { return p.priceChangeLimit }
func (p *MarketsPart) Delay() time.Duration  { return p.delay }

func (p *MarketsPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	data, err := p.client.Get(ctx, marketsURL, httpclient.OutputJSON, nil)
	if err != nil {
		return nil, err
	}

	var entries []marketEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &trigger.PartError{URL: marketsURL, Response: err.Error()}
	}

	out := make(map[string]common.Symbol)
	for _, e := range entries {
		if !strings.HasPrefix(e.Market, p.quotePrefix) {
			continue
		}
		code := strings.TrimPrefix(e.Market, p.quotePrefix)
		out[code] = common.Symbol{Code: code, Source: p.source}
	}
	return out, nil
}
