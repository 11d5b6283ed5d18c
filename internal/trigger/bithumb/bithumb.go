// Package bithumb supplements the distilled spec with a call-only trigger
// exchange: every part here has triggerActions == {call}, feeding phones
// without ever buying (original_source exchanges/trigger/bithumb/*.py).
package bithumb

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"listing-sniper/internal/common"
	"listing-sniper/internal/httpclient"
	"listing-sniper/internal/trigger"
	"listing-sniper/internal/trigger/announce"
)

const (
	walletsURL       = "https://api.bithumb.com/public/assetsstatus/ALL"
	marketSiseURL    = "https://www.bithumb.com/resources/csv/market_sise.json"
	pairCoinsURL     = "https://api.bithumb.com/public/ticker/ALL_KRW"
	announcementsURL = "https://cafe.bithumb.com/boards/43/contents"
	defaultDelay     = 3 * time.Minute

	// articleTitleIndex is the DataTables column holding the post title in
	// each announcements row (original_source's ARTICLE_TITLE = 2).
	articleTitleIndex = 2
)

// sharedLimiter gates every part in this package against Bithumb's public
// API ceiling (135 requests/minute), since all four parts poll the same IP.
var sharedLimiter = httpclient.NewRateLimiter(120, time.Minute)

// callOnlyActions is shared by every part in this package.
func callOnlyActions() map[common.TriggerAction]bool {
	return map[common.TriggerAction]bool{common.ActionCall: true}
}

// WalletsPart polls Bithumb's asset-status endpoint for new listed assets.
type WalletsPart struct {
	client           *httpclient.Client
	priceChangeLimit int
	delay            time.Duration
}

// NewWalletsPart builds the wallet-status poller.
func NewWalletsPart(priceChangeLimit int) *WalletsPart {
	return &WalletsPart{client: httpclient.New().WithRateLimiter(sharedLimiter), priceChangeLimit: priceChangeLimit, delay: defaultDelay}
}

func (p *WalletsPart) Source() common.CoinSource                  { return common.SourceAPIWallet }
func (p *WalletsPart) Actions() map[common.TriggerAction]bool     { return callOnlyActions() }
func (p *WalletsPart) PriceChangeLimit() int                      { return p.priceChangeLimit }
func (p *WalletsPart) Delay() time.Duration                       { return p.delay }

type assetStatusResponse struct {
	Data map[string]struct {
		DepositStatus    int `json:"deposit_status"`
		WithdrawalStatus int `json:"withdrawal_status"`
	} `json:"data"`
}

func (p *WalletsPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	data, err := p.client.Get(ctx, walletsURL, httpclient.OutputJSON, nil)
	if err != nil {
		return nil, err
	}
	var resp assetStatusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &trigger.PartError{URL: walletsURL, Response: err.Error()}
	}
	out := make(map[string]common.Symbol, len(resp.Data))
	for code := range resp.Data {
		out[code] = common.Symbol{Code: code, Source: common.SourceAPIWallet}
	}
	return out, nil
}

// WalletsJSONPart polls Bithumb's unofficial market_sise.json feed, a
// second and differently-shaped source of newly-listed assets alongside
// WalletsPart (original_source's ApiWalletsJSONPart).
type WalletsJSONPart struct {
	client           *httpclient.Client
	priceChangeLimit int
	delay            time.Duration
}

// NewWalletsJSONPart builds the market_sise.json poller.
func NewWalletsJSONPart(priceChangeLimit int) *WalletsJSONPart {
	return &WalletsJSONPart{client: httpclient.New().WithRateLimiter(sharedLimiter), priceChangeLimit: priceChangeLimit, delay: defaultDelay}
}

func (p *WalletsJSONPart) Source() common.CoinSource              { return common.SourceAPIUnofficial }
func (p *WalletsJSONPart) Actions() map[common.TriggerAction]bool { return callOnlyActions() }
func (p *WalletsJSONPart) PriceChangeLimit() int                  { return p.priceChangeLimit }
func (p *WalletsJSONPart) Delay() time.Duration                   { return p.delay }

type marketSiseEntry struct {
	Symbol string `json:"symbol"`
}

func (p *WalletsJSONPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	data, err := p.client.Get(ctx, marketSiseURL, httpclient.OutputJSON, nil)
	if err != nil {
		return nil, err
	}
	var entries []marketSiseEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &trigger.PartError{URL: marketSiseURL, Response: err.Error()}
	}
	out := make(map[string]common.Symbol, len(entries))
	for _, e := range entries {
		if e.Symbol == "" {
			continue
		}
		out[e.Symbol] = common.Symbol{Code: e.Symbol, Source: common.SourceAPIUnofficial}
	}
	return out, nil
}

// PairCoinsPart polls the KRW ticker listing for newly-traded pairs.
type PairCoinsPart struct {
	client           *httpclient.Client
	priceChangeLimit int
	delay            time.Duration
}

// NewPairCoinsPart builds the KRW ticker poller.
func NewPairCoinsPart(priceChangeLimit int) *PairCoinsPart {
	return &PairCoinsPart{client: httpclient.New().WithRateLimiter(sharedLimiter), priceChangeLimit: priceChangeLimit, delay: defaultDelay}
}

func (p *PairCoinsPart) Source() common.CoinSource              { return common.SourceAPIPair }
func (p *PairCoinsPart) Actions() map[common.TriggerAction]bool { return callOnlyActions() }
func (p *PairCoinsPart) PriceChangeLimit() int                  { return p.priceChangeLimit }
func (p *PairCoinsPart) Delay() time.Duration                   { return p.delay }

type tickerAllResponse struct {
	Data map[string]json.RawMessage `json:"data"`
}

func (p *PairCoinsPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	data, err := p.client.Get(ctx, pairCoinsURL, httpclient.OutputJSON, nil)
	if err != nil {
		return nil, err
	}
	var resp tickerAllResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &trigger.PartError{URL: pairCoinsURL, Response: err.Error()}
	}
	out := make(map[string]common.Symbol, len(resp.Data))
	for code := range resp.Data {
		if code == "date" {
			continue
		}
		out[code] = common.Symbol{Code: code, Source: common.SourceAPIPair}
	}
	return out, nil
}

// AnnouncementsPart scrapes the exchange notice board for listing posts
// using the shared announce regex/keyword helper.
type AnnouncementsPart struct {
	client           *httpclient.Client
	priceChangeLimit int
	delay            time.Duration
}

// NewAnnouncementsPart builds the announcement-board poller.
func NewAnnouncementsPart(priceChangeLimit int) *AnnouncementsPart {
	return &AnnouncementsPart{client: httpclient.New().WithRateLimiter(sharedLimiter), priceChangeLimit: priceChangeLimit, delay: defaultDelay}
}

func (p *AnnouncementsPart) Source() common.CoinSource              { return common.SourceSite }
func (p *AnnouncementsPart) Actions() map[common.TriggerAction]bool { return callOnlyActions() }
func (p *AnnouncementsPart) PriceChangeLimit() int                  { return p.priceChangeLimit }
func (p *AnnouncementsPart) Delay() time.Duration                   { return p.delay }

// noticesResponse mirrors the DataTables server-side-processing shape the
// real endpoint returns: each row is a positional array of cell values, not
// an object (original_source's AnnouncementsAPIPart indexes row[2] for the
// title).
type noticesResponse struct {
	Data [][]json.RawMessage `json:"data"`
}

// announcementsForm builds the DataTables POST body the board endpoint
// requires, per original_source's AnnouncementsAPIPart.get post_form_data.
func announcementsForm() url.Values {
	form := url.Values{}
	form.Set("draw", "1")
	for i := 0; i < 5; i++ {
		idx := strconv.Itoa(i)
		form.Set("columns["+idx+"][data]", idx)
		form.Set("columns["+idx+"][name]", "")
		form.Set("columns["+idx+"][searchable]", "true")
		form.Set("columns["+idx+"][orderable]", "false")
		form.Set("columns["+idx+"][search][value]", "")
		form.Set("columns["+idx+"][search][regex]", "false")
	}
	form.Set("start", "0")
	form.Set("length", "15")
	form.Set("search[value]", "")
	form.Set("search[regex]", "false")
	return form
}

func (p *AnnouncementsPart) Get(ctx context.Context) (map[string]common.Symbol, error) {
	data, err := p.client.Post(ctx, announcementsURL, httpclient.OutputJSON, nil, announcementsForm())
	if err != nil {
		return nil, err
	}
	var resp noticesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &trigger.PartError{URL: announcementsURL, Response: err.Error()}
	}

	out := make(map[string]common.Symbol)
	for _, row := range resp.Data {
		if len(row) <= articleTitleIndex {
			continue
		}
		var title string
		if err := json.Unmarshal(row[articleTitleIndex], &title); err != nil {
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
