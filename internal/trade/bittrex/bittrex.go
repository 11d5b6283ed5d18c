// Package bittrex implements the Bittrex flavor of trade.TradeExchange and
// trade.Account over plain REST + websocket, since no Go SDK for Bittrex
// exists in the dependency pack.
package bittrex

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"listing-sniper/internal/common"
	"listing-sniper/internal/corelog"
	"listing-sniper/internal/httpclient"
	"listing-sniper/internal/trade"
)

const (
	name          = "bittrex"
	apiBase       = "https://api.bittrex.com/v3"
	summaryWSURL  = "wss://socket-v3.bittrex.com/signalr"
	pricePlaces   = 6
)

// Exchange is Bittrex's TradeExchange.
type Exchange struct {
	buySymbols    []string
	credentials   []common.Credential
	accounts      []*Account
	markupPercent int
	cancelDelay   time.Duration

	mu      sync.RWMutex
	tickers map[string]common.Ticker

	client *httpclient.Client
	log    *corelog.Logger
}

// New builds a Bittrex Exchange. notifier, if non-nil, mirrors every
// account's order-result and account-init-warning logs to the chat log
// (§7 item 4).
func New(buySymbols []string, credentials []common.Credential, markupPercent int, cancelDelay time.Duration, notifier corelog.Notifier) *Exchange {
	return &Exchange{
		buySymbols:    buySymbols,
		credentials:   credentials,
		markupPercent: markupPercent,
		cancelDelay:   cancelDelay,
		tickers:       make(map[string]common.Ticker),
		client:        httpclient.New(),
		log:           corelog.New("bittrex").WithNotifier(notifier),
	}
}

func (e *Exchange) Name() string         { return name }
func (e *Exchange) BuySymbols() []string { return e.buySymbols }

// MakePair builds Bittrex's <quote>-<base> pair string, e.g. BTC-ETH.
func (e *Exchange) MakePair(base, quote string) string { return quote + "-" + base }

func (e *Exchange) Accounts() []trade.Account {
	out := make([]trade.Account, len(e.accounts))
	for i, a := range e.accounts {
		out[i] = a
	}
	return out
}

func (e *Exchange) Ticker(pair string) (common.Ticker, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tickers[pair]
	return t, ok
}

type marketSummary struct {
	Symbol        string `json:"symbol"`
	High          string `json:"high"`
	Low           string `json:"low"`
	PercentChange string `json:"percentChange"`
}

type tickerEntry struct {
	Symbol  string `json:"symbol"`
	AskRate string `json:"askRate"`
}

// Init performs the fixed accounts -> tickers order (trade.TradeExchange
// doc): each credential gets one try at account init, with failures
// dropped from the active list rather than retried (§7 item 5;
// original_source exchanges/trade/base/exchange.py's init_accounts), then
// seeds the ticker store from the REST market-summaries + tickers
// endpoints using v3's own percentChange field (§4.2).
func (e *Exchange) Init(ctx context.Context) error {
	e.initAccounts(ctx)

	summaryData, err := e.client.Get(ctx, apiBase+"/markets/summaries", httpclient.OutputJSON, nil)
	if err != nil {
		return fmt.Errorf("bittrex: market summaries: %w", err)
	}
	var summaries []marketSummary
	if err := json.Unmarshal(summaryData, &summaries); err != nil {
		return fmt.Errorf("bittrex: decode summaries: %w", err)
	}

	tickerData, err := e.client.Get(ctx, apiBase+"/markets/tickers", httpclient.OutputJSON, nil)
	if err != nil {
		return fmt.Errorf("bittrex: tickers: %w", err)
	}
	var tickers []tickerEntry
	if err := json.Unmarshal(tickerData, &tickers); err != nil {
		return fmt.Errorf("bittrex: decode tickers: %w", err)
	}
	askBySymbol := make(map[string]decimal.Decimal, len(tickers))
	for _, t := range tickers {
		ask, _ := decimal.NewFromString(t.AskRate)
		askBySymbol[t.Symbol] = ask
	}

	e.mu.Lock()
	for _, s := range summaries {
		ask := askBySymbol[s.Symbol]
		e.tickers[s.Symbol] = common.Ticker{
			PriceChangePct: computePriceChangePct(s.PercentChange),
			Price:          ask,
		}
	}
	e.mu.Unlock()

	return nil
}

// initAccounts attempts each credential's balance fetch exactly once; a
// failing account is dropped with a chat warning instead of entering the
// active list, so one bad credential never blocks the others from trading.
func (e *Exchange) initAccounts(ctx context.Context) {
	for _, c := range e.credentials {
		acct := newAccount(c, e)
		if err := acct.initBalance(ctx); err != nil {
			e.log.Notify("unable to init %s account %s: %v", name, c.Owner, err)
			continue
		}
		e.accounts = append(e.accounts, acct)
	}
}

// computePriceChangePct parses v3's own percentChange field directly,
// rounded to two decimals; zero if unparsable (§4.2; the prior ask/low
// ratio was wrong — percentChange is Bittrex's actual ask-vs-prior-day
// figure, per original_source exchanges/trade/bittrex/exchange.py).
func computePriceChangePct(raw string) decimal.Decimal {
	pct, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return pct.Round(2)
}

// Run starts the summary-delta WS reader.
func (e *Exchange) Run(ctx context.Context) {
	go e.tickerLoop(ctx)
	for _, a := range e.accounts {
		go a.Run(ctx)
	}
}

func (e *Exchange) tickerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := e.readSummaryStream(ctx); err != nil {
			e.log.Errorf("summary stream closed: %v", err)
		}
	}
}

func (e *Exchange) readSummaryStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, summaryWSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var deltas []marketSummary
		if err := json.Unmarshal(data, &deltas); err != nil {
			continue
		}
		e.processTickerUpdate(deltas)
	}
}

func (e *Exchange) processTickerUpdate(deltas []marketSummary) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, d := range deltas {
		high, _ := decimal.NewFromString(d.High)
		e.tickers[d.Symbol] = common.Ticker{
			PriceChangePct: computePriceChangePct(d.PercentChange),
			Price:          high,
		}
	}
}

// Buy fans buyPair out across every quote asset (§4.5).
func (e *Exchange) Buy(ctx context.Context, trig trade.PriceSource, baseSymbol string, priceChangeLimit int) {
	wg := conc.NewWaitGroup()
	for _, quote := range e.buySymbols {
		quote := quote
		wg.Go(func() { e.buyPair(ctx, trig, e.MakePair(baseSymbol, quote), quote, priceChangeLimit) })
	}
	go wg.Wait()
}

func (e *Exchange) buyPair(ctx context.Context, trig trade.PriceSource, pair, quoteAsset string, priceChangeLimit int) {
	ticker, ok := e.Ticker(pair)
	if !ok {
		e.log.Infof("pair not found: %s", pair)
		return
	}
	if ticker.PriceChangePct.GreaterThan(decimal.NewFromInt(int64(priceChangeLimit))) {
		e.log.Infof("skip %s: price change %s exceeds limit %d", pair, ticker.PriceChangePct, priceChangeLimit)
		return
	}

	wg := conc.NewWaitGroup()
	for _, a := range e.accounts {
		a := a
		wg.Go(func() { a.buy(ctx, trig, pair, quoteAsset, ticker) })
	}
	go wg.Wait()
}

// Account is a Bittrex authenticated session.
type Account struct {
	cred   common.Credential
	parent *Exchange
	client *httpclient.Client

	mu       sync.RWMutex
	balances map[string]common.Balance

	log *corelog.Logger
}

func newAccount(cred common.Credential, parent *Exchange) *Account {
	return &Account{
		cred:     cred,
		parent:   parent,
		client:   httpclient.New(),
		balances: make(map[string]common.Balance),
		log:      corelog.New(fmt.Sprintf("bittrex.%s", cred.Owner)).WithNotifier(parent.log.Notifier()),
	}
}

func (a *Account) Owner() string { return a.cred.Owner }

func (a *Account) Balances() map[string]common.Balance {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make(map[string]common.Balance, len(a.balances))
	for k, v := range a.balances {
		out[k] = v
	}
	return out
}

type balanceEntry struct {
	CurrencySymbol string `json:"currencySymbol"`
	Available      string `json:"available"`
	Total          string `json:"total"`
}

// authHeaders signs a v3 request per Bittrex's documented scheme: timestamp
// + full URI + method + content hash, HMAC-SHA512'd with the API secret.
func (a *Account) authHeaders(method, path, body string) map[string]string {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	contentHash := sha512Hex([]byte(body))
	uri := apiBase + path

	preSign := timestamp + uri + method + contentHash
	signature := hmacSHA512Hex(a.cred.APISecret, preSign)

	return map[string]string{
		"Api-Key":          a.cred.APIKey,
		"Api-Timestamp":    timestamp,
		"Api-Content-Hash": contentHash,
		"Api-Signature":    signature,
	}
}

func sha512Hex(data []byte) string {
	sum := sha512.Sum512(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA512Hex(secret, message string) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// Run is the account's supervisor task. Balance init happens once, in
// Exchange.initAccounts; Run only owns the account WS session, reconnecting
// on any error (§4.4).
func (a *Account) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := a.runSession(ctx); err != nil {
			a.log.Errorf("account session closed: %v", err)
		}
	}
}

func (a *Account) initBalance(ctx context.Context) error {
	data, err := a.client.Get(ctx, apiBase+"/balances", httpclient.OutputJSON, a.authHeaders("GET", "/balances", ""))
	if err != nil {
		return err
	}
	var balances []balanceEntry
	if err := json.Unmarshal(data, &balances); err != nil {
		return fmt.Errorf("bittrex: decode balances: %w", err)
	}
	a.mu.Lock()
	for _, b := range balances {
		free, _ := decimal.NewFromString(b.Available)
		total, _ := decimal.NewFromString(b.Total)
		a.balances[b.CurrencySymbol] = common.Balance{Free: free, Locked: total.Sub(free)}
	}
	a.mu.Unlock()
	return nil
}

// runSession dials the same public summary WS endpoint the ticker reader
// uses and applies every frame that decodes as a list of balance entries;
// it sends no authentication handshake. It returns on the first read error,
// and Run reconnects.
func (a *Account) runSession(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, summaryWSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		a.processAccountUpdate(data)
	}
}

func (a *Account) processAccountUpdate(data []byte) {
	var entries []balanceEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return
	}
	for _, b := range entries {
		free, _ := decimal.NewFromString(b.Available)
		total, _ := decimal.NewFromString(b.Total)
		a.processBalanceUpdate(b.CurrencySymbol, common.Balance{Free: free, Locked: total.Sub(free)})
	}
}

func (a *Account) processBalanceUpdate(asset string, updated common.Balance) {
	a.mu.Lock()
	old, existed := a.balances[asset]
	changed := !existed || !old.Equal(updated)
	a.balances[asset] = updated
	a.mu.Unlock()

	if changed {
		a.log.Infof("balance %s: %s -> %s", asset, old.Free, updated.Free)
	}
}

func (a *Account) buy(ctx context.Context, trig trade.PriceSource, pair, quoteAsset string, ticker common.Ticker) {
	free := a.Balances()[quoteAsset].Free
	pct := trig.BuyAmountPercent(quoteAsset)

	quote := trade.ComputeBuyQuote(free, pct, ticker, a.parent.markupPercent, 1<<30, pricePlaces)
	if quote.Skip {
		a.log.Infof("skip buy %s: %s", pair, quote.SkipReason)
		return
	}

	orderID, err := a.CreateBuyOrder(ctx, pair, quote.Quantity, quote.PurchasePrice)
	if err != nil {
		a.log.Notify("buy failed for %s: %v", pair, err)
		return
	}
	a.log.Notify("bought %s, order %s", pair, orderID)

	time.AfterFunc(a.parent.cancelDelay, func() {
		if err := a.CancelOrder(ctx, trade.OpenOrder{OrderID: orderID}); err != nil {
			a.log.Notify("cancel failed for %s (%s): %v", pair, orderID, err)
			return
		}
		a.log.Notify("canceled %s (%s)", pair, orderID)
	})
}

type orderResponse struct {
	ID string `json:"id"`
}

func (a *Account) CreateBuyOrder(ctx context.Context, pair string, quantity int64, price decimal.Decimal) (string, error) {
	form := url.Values{
		"marketSymbol": {pair},
		"direction":    {"BUY"},
		"type":         {"LIMIT"},
		"quantity":     {strconv.FormatInt(quantity, 10)},
		"limit":        {price.String()},
		"timeInForce":  {"GOOD_TIL_CANCELLED"},
		"clientOrderId": {uuid.NewString()},
	}
	data, err := a.client.Post(ctx, apiBase+"/orders", httpclient.OutputJSON, a.authHeaders("POST", "/orders", form.Encode()), form)
	if err != nil {
		return "", err
	}
	var resp orderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("bittrex: decode order response: %w", err)
	}
	return resp.ID, nil
}

// CancelOrder cancels by order id; Bittrex's v3 API doesn't need the pair.
func (a *Account) CancelOrder(ctx context.Context, order trade.OpenOrder) error {
	_, err := a.client.Post(ctx, apiBase+"/orders/"+order.OrderID, httpclient.OutputJSON, a.authHeaders("DELETE", "/orders/"+order.OrderID, ""), nil)
	return err
}

// GetOpenOrdersID returns open order ids; Bittrex doesn't require a pair on
// cancel so Pair is left empty.
func (a *Account) GetOpenOrdersID(ctx context.Context) ([]trade.OpenOrder, error) {
	data, err := a.client.Get(ctx, apiBase+"/orders/open", httpclient.OutputJSON, a.authHeaders("GET", "/orders/open", ""))
	if err != nil {
		return nil, err
	}
	var orders []orderResponse
	if err := json.Unmarshal(data, &orders); err != nil {
		return nil, fmt.Errorf("bittrex: decode open orders: %w", err)
	}
	out := make([]trade.OpenOrder, len(orders))
	for i, o := range orders {
		out[i] = trade.OpenOrder{OrderID: o.ID}
	}
	return out, nil
}
