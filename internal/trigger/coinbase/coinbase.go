// Package coinbase provides the API_WALLET poller: Coinbase's supported
// currencies list, the simplest novelty feed in the pipeline.
package coinbase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"listing-sniper/internal/common"
	"listing-sniper/internal/httpclient"
	"listing-sniper/internal/trigger"
)

const (
	currenciesURL = "https://api.exchange.coinbase.com/currencies"
	defaultDelay  = 5 * time.Minute
)

// WalletsPart polls Coinbase's currency list for newly-supported assets.
type WalletsPart struct {
	client           *httpclient.Client
	priceChangeLimit int
	delay            time.Duration
}

// NewWalletsPart builds the wallet-list poller.
func NewWalletsPart(priceChangeLimit int) *WalletsPart {
	return &WalletsPart{
		client:           httpclient.New(),
		priceChangeLimit: priceChangeLimit,
		delay:            defaultDelay,
	}
}

func (p *WalletsPart) Source() common.CoinSource { return common.SourceAPIWallet }

func (p *WalletsPart) Actions() map[common.TriggerAction]bool {
	return map[common.TriggerAction]bool{common.ActionBuy: true}
}

func (p *WalletsPart) PriceChangeLimit() int  { return p.priceChangeLimit }
func (p *WalletsPart) Delay() time.Duration   { return p.delay }

type currencyEntry struct {
	ID string `json:"id"`
}

// Get fetches the currency list and returns every code as a Symbol.
func (p *WalletsPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	data, err := p.client.Get(ctx, currenciesURL, httpclient.OutputJSON, nil)
	if err != nil {
		return nil, err
	}

	var entries []currencyEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &trigger.PartError{URL: currenciesURL, Response: fmt.Sprintf("%s: %v", string(truncate(data)), err)}
	}

	out := make(map[string]common.Symbol, len(entries))
	for _, e := range entries {
		out[e.ID] = common.Symbol{Code: e.ID, Source: common.SourceAPIWallet}
	}
	return out, nil
}

func truncate(b []byte) []byte {
	const max = 200
	if len(b) > max {
		return b[:max]
	}
	return b
}
