// Package huobi implements the Huobi flavor of trade.TradeExchange and
// trade.Account: gzip-compressed websocket frames, ping/pong keepalive, and
// the only price-filter store in the system (§4.3).
package huobi

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
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
	name               = "huobi"
	apiBase            = "https://api.huobi.pro"
	apiHost            = "api.huobi.pro"
	marketWSURL        = "wss://api.huobi.pro/ws"
	accountWSURL       = "wss://api.huobi.pro/ws/v1"
	priceFilterRefresh = time.Hour
)

// Exchange is Huobi's TradeExchange.
type Exchange struct {
	buySymbols    []string
	credentials   []common.Credential
	accounts      []*Account
	markupPercent int
	cancelDelay   time.Duration

	mu           sync.RWMutex
	tickers      map[string]common.Ticker
	priceFilters map[string]common.PriceFilter

	client *httpclient.Client
	log    *corelog.Logger
}

// New builds a Huobi Exchange. notifier, if non-nil, mirrors every account's
// order-result and account-init-warning logs to the chat log (§7 item 4).
func New(buySymbols []string, credentials []common.Credential, markupPercent int, cancelDelay time.Duration, notifier corelog.Notifier) *Exchange {
	return &Exchange{
		buySymbols:    buySymbols,
		credentials:   credentials,
		markupPercent: markupPercent,
		cancelDelay:   cancelDelay,
		tickers:       make(map[string]common.Ticker),
		priceFilters:  make(map[string]common.PriceFilter),
		client:        httpclient.New(),
		log:           corelog.New("huobi").WithNotifier(notifier),
	}
}

func (e *Exchange) Name() string         { return name }
func (e *Exchange) BuySymbols() []string { return e.buySymbols }

// MakePair builds Huobi's upper-cased <base><quote> pair string.
func (e *Exchange) MakePair(base, quote string) string { return strings.ToUpper(base + quote) }

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
	t, ok := e.tickers[strings.ToLower(pair)]
	return t, ok
}

func (e *Exchange) PriceFilter(pair string) (common.PriceFilter, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.priceFilters[strings.ToLower(pair)]
	return f, ok
}

type tickerEntry struct {
	Symbol string  `json:"symbol"`
	Open   float64 `json:"open"`
	Close  float64 `json:"close"`
}

type tickerSnapshot struct {
	Data []tickerEntry `json:"data"`
}

// Init performs the fixed accounts -> tickers -> price-filters order
// (trade.TradeExchange doc): each credential gets one try at account init,
// with failures dropped from the active list rather than retried (§7 item
// 5; original_source exchanges/trade/base/exchange.py's init_accounts).
func (e *Exchange) Init(ctx context.Context) error {
	e.initAccounts(ctx)

	tickerData, err := e.client.Get(ctx, apiBase+"/market/tickers", httpclient.OutputJSON, nil)
	if err != nil {
		return fmt.Errorf("huobi: market tickers: %w", err)
	}
	var snap tickerSnapshot
	if err := json.Unmarshal(tickerData, &snap); err != nil {
		return fmt.Errorf("huobi: decode tickers: %w", err)
	}

	e.mu.Lock()
	for _, t := range snap.Data {
		e.tickers[t.Symbol] = common.Ticker{
			PriceChangePct: computePriceChangePct(t.Close, t.Open),
			Price:          decimal.NewFromFloat(t.Close),
		}
	}
	e.mu.Unlock()

	return e.refreshPriceFilters(ctx)
}

func computePriceChangePct(closePrice, openPrice float64) decimal.Decimal {
	if closePrice == 0 || openPrice == 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(closePrice).Div(decimal.NewFromFloat(openPrice)).
		Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Round(2)
}

type symbolEntry struct {
	Symbol          string `json:"symbol"`
	PricePrecision  int    `json:"price-precision"`
	AmountPrecision int    `json:"amount-precision"`
}

type symbolsResponse struct {
	Data []symbolEntry `json:"data"`
}

func (e *Exchange) refreshPriceFilters(ctx context.Context) error {
	data, err := e.client.Get(ctx, apiBase+"/v1/common/symbols", httpclient.OutputJSON, nil)
	if err != nil {
		return fmt.Errorf("huobi: common symbols: %w", err)
	}
	var resp symbolsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("huobi: decode symbols: %w", err)
	}

	e.mu.Lock()
	for _, s := range resp.Data {
		e.priceFilters[s.Symbol] = common.PriceFilter{
			PricePrecision:  s.PricePrecision,
			AmountPrecision: s.AmountPrecision,
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

// Run starts the ticker WS reader and the hourly price-filter refresh
// loop.
func (e *Exchange) Run(ctx context.Context) {
	go e.tickerLoop(ctx)
	go e.priceFiltersUpdateTask(ctx)
	for _, a := range e.accounts {
		go a.Run(ctx)
	}
}

func (e *Exchange) priceFiltersUpdateTask(ctx context.Context) {
	ticker := time.NewTicker(priceFilterRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.refreshPriceFilters(ctx); err != nil {
				e.log.Errorf("price filter refresh: %v", err)
			}
		}
	}
}

func (e *Exchange) tickerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := e.readTickerStream(ctx); err != nil {
			e.log.Errorf("ticker stream closed: %v", err)
		}
	}
}

type wsFrame struct {
	Ping int64           `json:"ping"`
	Ch   string          `json:"ch"`
	Tick json.RawMessage `json:"tick"`
}

func (e *Exchange) readTickerStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, marketWSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"sub": "market.overview", "id": "tickers"}); err != nil {
		return err
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		data, err := gunzip(raw)
		if err != nil {
			continue
		}

		var frame wsFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		if frame.Ping != 0 {
			_ = conn.WriteJSON(map[string]int64{"pong": frame.Ping})
			continue
		}
		var tick tickerEntry
		if len(frame.Tick) > 0 && json.Unmarshal(frame.Tick, &tick) == nil && tick.Symbol != "" {
			e.processTickerUpdate(tick)
		}
	}
}

func gunzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (e *Exchange) processTickerUpdate(t tickerEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickers[t.Symbol] = common.Ticker{
		PriceChangePct: computePriceChangePct(t.Close, t.Open),
		Price:          decimal.NewFromFloat(t.Close),
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

	filter, hasFilter := e.PriceFilter(pair)
	pricePlaces := int32(6)
	if hasFilter {
		pricePlaces = int32(filter.PricePrecision)
	}

	wg := conc.NewWaitGroup()
	for _, a := range e.accounts {
		a := a
		wg.Go(func() { a.buy(ctx, trig, pair, quoteAsset, ticker, pricePlaces) })
	}
	go wg.Wait()
}

// Account is a Huobi authenticated session.
type Account struct {
	cred      common.Credential
	parent    *Exchange
	client    *httpclient.Client
	accountID int64

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
		log:      corelog.New(fmt.Sprintf("huobi.%s", cred.Owner)).WithNotifier(parent.log.Notifier()),
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
	Currency string `json:"currency"`
	Type     string `json:"type"`
	Balance  string `json:"balance"`
}

type balanceListResponse struct {
	Data struct {
		List []balanceEntry `json:"list"`
	} `json:"data"`
}

// Run is the account's supervisor task. Balance init happens once, in
// Exchange.initAccounts; Run only owns the account WS session, reconnecting
// (with a fresh auth+subscribe handshake) on any error (§4.4).
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

// sign builds Huobi's v2 REST/WS signing parameters and appends a
// Signature computed over METHOD\nHOST\nPATH\nsorted-query-params, per
// aiohuobi/client.py's _sign. extra carries any additional business params
// that should be part of the signed query (e.g. account-id on GET requests).
func (a *Account) sign(method, path string, extra url.Values) url.Values {
	params := url.Values{
		"AccessKeyId":      {a.cred.APIKey},
		"SignatureMethod":  {"HmacSHA256"},
		"SignatureVersion": {"2"},
		"Timestamp":        {time.Now().UTC().Format("2006-01-02T15:04:05")},
	}
	for k, vs := range extra {
		for _, v := range vs {
			params.Add(k, v)
		}
	}

	payload := strings.Join([]string{method, apiHost, path, params.Encode()}, "\n")
	mac := hmac.New(sha256.New, []byte(a.cred.APISecret))
	mac.Write([]byte(payload))
	params.Set("Signature", base64.StdEncoding.EncodeToString(mac.Sum(nil)))
	return params
}

// signedURL returns apiBase+path with the signed query string attached.
func (a *Account) signedURL(method, path string, extra url.Values) string {
	return apiBase + path + "?" + a.sign(method, path, extra).Encode()
}

type accountsResponse struct {
	Data []struct {
		ID int64 `json:"id"`
	} `json:"data"`
}

// fetchAccountID resolves the spot account id needed by every balance/order
// call, per aiohuobi/client.py's accounts() (account.py caches account_id
// on first balance init and reuses it thereafter).
func (a *Account) fetchAccountID(ctx context.Context) (int64, error) {
	data, err := a.client.Get(ctx, a.signedURL("GET", "/v1/account/accounts", nil), httpclient.OutputJSON, nil)
	if err != nil {
		return 0, err
	}
	var resp accountsResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return 0, fmt.Errorf("huobi: decode accounts: %w", err)
	}
	if len(resp.Data) == 0 {
		return 0, fmt.Errorf("huobi: no accounts returned")
	}
	return resp.Data[0].ID, nil
}

func (a *Account) initBalance(ctx context.Context) error {
	accountID, err := a.fetchAccountID(ctx)
	if err != nil {
		return fmt.Errorf("fetch account id: %w", err)
	}
	a.accountID = accountID

	path := fmt.Sprintf("/v1/account/accounts/%d/balance", accountID)
	data, err := a.client.Get(ctx, a.signedURL("GET", path, nil), httpclient.OutputJSON, nil)
	if err != nil {
		return err
	}
	var resp balanceListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("huobi: decode balance: %w", err)
	}
	a.mu.Lock()
	for _, b := range resp.Data.List {
		amount, _ := decimal.NewFromString(b.Balance)
		cur := strings.ToUpper(b.Currency)
		bal := a.balances[cur]
		if b.Type == "trade" {
			bal.Free = amount
		} else {
			bal.Locked = amount
		}
		a.balances[cur] = bal
	}
	a.mu.Unlock()
	return nil
}

// runSession opens the authenticated account WS channel, performs the
// required op:"auth" handshake and op:"sub" subscriptions, then dispatches
// frames forever. The Huobi balance frame replaces the whole per-currency
// entry on update (§9 ambiguous behavior note: treated here as "replace
// balance map per update").
func (a *Account) runSession(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, accountWSURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := a.authWS(conn); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := conn.WriteJSON(map[string]string{"op": "sub", "topic": "accounts"}); err != nil {
		return fmt.Errorf("subscribe accounts: %w", err)
	}
	if err := conn.WriteJSON(map[string]string{"op": "sub", "topic": "orders.*"}); err != nil {
		return fmt.Errorf("subscribe orders: %w", err)
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		data, err := gunzip(raw)
		if err != nil {
			data = raw
		}
		a.processAccountUpdate(conn, data)
	}
}

// authWS sends the op:"auth" handshake frame the account WS requires before
// any subscription is accepted, per account.py's auth_ws/generate_signature.
func (a *Account) authWS(conn *websocket.Conn) error {
	params := a.sign("GET", "/ws/v1", nil)

	frame := map[string]string{
		"AccessKeyId":      params.Get("AccessKeyId"),
		"SignatureMethod":  params.Get("SignatureMethod"),
		"SignatureVersion": params.Get("SignatureVersion"),
		"Timestamp":        params.Get("Timestamp"),
		"Signature":        params.Get("Signature"),
		"op":               "auth",
	}
	if err := conn.WriteJSON(frame); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return nil
}

type wsAccountFrame struct {
	Op    string          `json:"op"`
	Topic string          `json:"topic"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
}

func (a *Account) processAccountUpdate(conn *websocket.Conn, data []byte) {
	var frame wsAccountFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		a.log.Errorf("decode account update: %v", err)
		return
	}

	switch frame.Op {
	case "ping":
		_ = conn.WriteJSON(map[string]any{"op": "pong", "ts": frame.TS})
		return
	case "sub":
		a.log.Infof("subscribed to %s", frame.Topic)
		return
	}

	switch {
	case frame.Topic == "accounts":
		a.processBalanceFrame(frame.Data)
	case strings.HasPrefix(frame.Topic, "orders"):
		a.processOrderFrame(frame.Data)
	}
}

type wsBalanceData struct {
	List []struct {
		AccountID int64  `json:"account-id"`
		Currency  string `json:"currency"`
		Type      string `json:"type"`
		Balance   string `json:"balance"`
	} `json:"list"`
}

func (a *Account) processBalanceFrame(raw json.RawMessage) {
	var payload wsBalanceData
	if err := json.Unmarshal(raw, &payload); err != nil {
		a.log.Errorf("decode balance frame: %v", err)
		return
	}
	grouped := make(map[string]common.Balance)
	for _, e := range payload.List {
		if e.AccountID != a.accountID {
			continue
		}
		amount, _ := decimal.NewFromString(e.Balance)
		cur := strings.ToUpper(e.Currency)
		bal := grouped[cur]
		if e.Type == "trade" {
			bal.Free = amount
		} else {
			bal.Locked = amount
		}
		grouped[cur] = bal
	}
	for cur, bal := range grouped {
		a.processBalanceUpdate(cur, bal)
	}
}

type wsOrderData struct {
	OrderState string `json:"order-state"`
	Symbol     string `json:"symbol"`
}

func (a *Account) processOrderFrame(raw json.RawMessage) {
	var ev wsOrderData
	if err := json.Unmarshal(raw, &ev); err != nil {
		a.log.Errorf("decode order frame: %v", err)
		return
	}
	a.log.Infof("order report: %s %s", ev.Symbol, ev.OrderState)
	if ev.OrderState == "filled" {
		a.log.Notify("order filled: %s", ev.Symbol)
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

func (a *Account) buy(ctx context.Context, trig trade.PriceSource, pair, quoteAsset string, ticker common.Ticker, pricePlaces int32) {
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

type placeOrderResponse struct {
	Data string `json:"data"`
}

func (a *Account) CreateBuyOrder(ctx context.Context, pair string, quantity int64, price decimal.Decimal) (string, error) {
	body := map[string]string{
		"account-id":      strconv.FormatInt(a.accountID, 10),
		"amount":          strconv.FormatInt(quantity, 10),
		"price":           price.String(),
		"symbol":          strings.ToLower(pair),
		"type":            "buy-limit",
		"source":          "api",
		"client-order-id": uuid.NewString(),
	}
	data, err := a.client.PostJSON(ctx, a.signedURL("POST", "/v1/order/orders/place", nil), httpclient.OutputJSON, nil, body)
	if err != nil {
		return "", err
	}
	var resp placeOrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", fmt.Errorf("huobi: decode order response: %w", err)
	}
	return resp.Data, nil
}

func (a *Account) CancelOrder(ctx context.Context, order trade.OpenOrder) error {
	path := fmt.Sprintf("/v1/order/orders/%s/submitcancel", order.OrderID)
	_, err := a.client.PostJSON(ctx, a.signedURL("POST", path, nil), httpclient.OutputJSON, nil, nil)
	return err
}

type openOrdersResponse struct {
	Data []struct {
		ID     int64  `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"data"`
}

func (a *Account) GetOpenOrdersID(ctx context.Context) ([]trade.OpenOrder, error) {
	extra := url.Values{"account-id": {strconv.FormatInt(a.accountID, 10)}}
	data, err := a.client.Get(ctx, a.signedURL("GET", "/v1/order/openOrders", extra), httpclient.OutputJSON, nil)
	if err != nil {
		return nil, err
	}
	var resp openOrdersResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("huobi: decode open orders: %w", err)
	}
	out := make([]trade.OpenOrder, len(resp.Data))
	for i, o := range resp.Data {
		out[i] = trade.OpenOrder{OrderID: strconv.FormatInt(o.ID, 10), Pair: o.Symbol}
	}
	return out, nil
}
