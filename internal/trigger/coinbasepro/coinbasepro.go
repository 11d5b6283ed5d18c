// Package coinbasepro provides the API_PAIR poller (Coinbase Pro/Advanced
// Trade product list) and the Medium-blog feed poller whose body begins
// with a non-JSON prefix that must be trimmed before parsing (§4.6).
package coinbasepro

import (
	"context"
	"fmt"
	"time"

	"github.com/bitly/go-simplejson"

	"listing-sniper/internal/common"
	"listing-sniper/internal/httpclient"
	"listing-sniper/internal/trigger"
	"listing-sniper/internal/trigger/announce"
)

const (
	productsURL  = "https://api.exchange.coinbase.com/products"
	mediumFeedURL = "https://medium.com/coinbase-blog/feed"
	defaultDelay = 2 * time.Minute
)

// PairsPart polls the product list for newly-listed base currencies.
type PairsPart struct {
	client           *httpclient.Client
	priceChangeLimit int
	delay            time.Duration
}

// NewPairsPart builds the pair-list poller.
func NewPairsPart(priceChangeLimit int) *PairsPart {
	return &PairsPart{client: httpclient.New(), priceChangeLimit: priceChangeLimit, delay: defaultDelay}
}

func (p *PairsPart) Source() common.CoinSource { return common.SourceAPIPair }
func (p *PairsPart) Actions() map[common.TriggerAction]bool {
	return map[common.TriggerAction]bool{common.ActionBuy: true}
}
func (p *PairsPart) PriceChangeLimit() int { return p.priceChangeLimit }
func (p *PairsPart) Delay() time.Duration  { return p.delay }

func (p *PairsPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	data, err := p.client.Get(ctx, productsURL, httpclient.OutputJSON, nil)
	if err != nil {
		return nil, err
	}

	js, err := simplejson.NewJson(data)
	if err != nil {
		return nil, &trigger.PartError{URL: productsURL, Response: err.Error()}
	}
	arr, err := js.Array()
	if err != nil {
		return nil, &trigger.PartError{URL: productsURL, Response: "expected a JSON array"}
	}

	out := make(map[string]common.Symbol, len(arr))
	for i := range arr {
		base, err := js.GetIndex(i).Get("base_currency").String()
		if err != nil || base == "" {
			continue
		}
		out[base] = common.Symbol{Code: base, Source: common.SourceAPIPair}
	}
	return out, nil
}

// MediumPart scrapes the Coinbase blog's Medium RSS-as-JSON feed, whose
// body is prefixed with non-JSON junk before the actual object — the
// textbook go-simplejson use case (§4.1, §4.6).
type MediumPart struct {
	client           *httpclient.Client
	priceChangeLimit int
	delay            time.Duration
}

// NewMediumPart builds the Medium-feed poller.
func NewMediumPart(priceChangeLimit int) *MediumPart {
	return &MediumPart{client: httpclient.New(), priceChangeLimit: priceChangeLimit, delay: 10 * time.Minute}
}

func (p *MediumPart) Source() common.CoinSource { return common.SourceSite }
func (p *MediumPart) Actions() map[common.TriggerAction]bool {
	return map[common.TriggerAction]bool{common.ActionBuy: true, common.ActionCall: true}
}
func (p *MediumPart) PriceChangeLimit() int { return p.priceChangeLimit }
func (p *MediumPart) Delay() time.Duration  { return p.delay }

func (p *MediumPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	raw, err := p.client.Get(ctx, mediumFeedURL, httpclient.OutputRaw, nil)
	if err != nil {
		return nil, err
	}

	stripped := httpclient.StripLeadingJunk(raw)
	js, err := simplejson.NewJson(stripped)
	if err != nil {
		return nil, &trigger.PartError{URL: mediumFeedURL, Response: fmt.Sprintf("not JSON after stripping prefix: %v", err)}
	}

	items := js.Get("items").MustArray()
	out := make(map[string]common.Symbol)
	for i := range items {
		title, err := js.Get("items").GetIndex(i).Get("title").String()
		if err != nil {
			continue
		}
		if !announce.HasListingKeyword(title) {
			continue
		}
		code, ok := announce.ExtractTicker(title)
		if !ok {
			continue
		}
		out[code] = common.Symbol{Code: code, Source: common.SourceSite}
	}
	return out, nil
}
