// Package binance implements the Binance flavor of trade.TradeExchange and
// trade.Account: REST via the go-binance SDK, ticker and user-data streams
// over a hand-rolled gorilla/websocket reader, listen-key keep-alive every
// five minutes.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	binancesdk "github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc"

	"listing-sniper/internal/common"
	"listing-sniper/internal/corelog"
	"listing-sniper/internal/trade"
)

const (
	name             = "binance"
	tickerStreamURL  = "wss://stream.binance.com:9443/ws/!ticker@arr"
	listenKeyRefresh = 5 * time.Minute
	pricePlaces      = 6
)

// Exchange is Binance's TradeExchange.
type Exchange struct {
	buySymbols    []string
	credentials   []common.Credential
	accounts      []*Account
	markupPercent int
	cancelDelay   time.Duration

	mu      sync.RWMutex
	tickers map[string]common.Ticker

	log *corelog.Logger
}

// New builds a Binance Exchange for the given accounts' credentials. markup
// and cancelDelay come from the process configuration (LIMIT_ORDER_MARKUP,
// ORDER_CANCEL_DELAY). notifier, if non-nil, mirrors every account's
// order-result and account-init-warning logs to the chat log (§7 item 4).
func New(buySymbols []string, credentials []common.Credential, markupPercent int, cancelDelay time.Duration, notifier corelog.Notifier) *Exchange {
	return &Exchange{
		buySymbols:    buySymbols,
		credentials:   credentials,
		markupPercent: markupPercent,
		cancelDelay:   cancelDelay,
		tickers:       make(map[string]common.Ticker),
		log:           corelog.New("binance").WithNotifier(notifier),
	}
}

func (e *Exchange) Name() string          { return name }
func (e *Exchange) BuySymbols() []string  { return e.buySymbols }

// MakePair builds Binance's <base><quote> pair string, e.g. ETHBTC.
func (e *Exchange) MakePair(base, quote string) string { return base + quote }

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

// Init performs the fixed accounts -> tickers order (§2 control flow:
// sessions -> accounts -> tickers -> price filters -> ticker WS; Binance has
// no price-filter store). Each credential gets one try at account init, with
// failures dropped from the active list rather than retried (§7 item 5;
// original_source exchanges/trade/base/exchange.py's init_accounts).
func (e *Exchange) Init(ctx context.Context) error {
	e.initAccounts(ctx)

	client := binancesdk.NewClient("", "")
	stats, err := client.NewListPriceChangeStatsService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: initial ticker snapshot: %w", err)
	}

	e.mu.Lock()
	for _, s := range stats {
		pct, _ := decimal.NewFromString(s.PriceChangePercent)
		price, _ := decimal.NewFromString(s.AskPrice)
		e.tickers[s.Symbol] = common.Ticker{PriceChangePct: pct, Price: price}
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

// Run starts the ticker WS reader and every account's supervisor in their
// own goroutines and returns. The ticker reader reconnects immediately on any
// error (no backoff, §3 lifecycles) until ctx is canceled.
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
		if err := e.readTickerStream(ctx); err != nil {
			e.log.Errorf("ticker stream closed: %v", err)
		}
	}
}

type tickerArrEntry struct {
	Symbol             string `json:"s"`
	PriceChangePercent string `json:"P"`
	AskPrice           string `json:"a"`
}

func (e *Exchange) readTickerStream(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, tickerStreamURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var arr []tickerArrEntry
		if err := json.Unmarshal(data, &arr); err != nil {
			continue
		}
		e.processTickerUpdate(arr)
	}
}

// processTickerUpdate is the WS stream's single writer into the ticker
// store (§4.2).
func (e *Exchange) processTickerUpdate(updates []tickerArrEntry) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, u := range updates {
		pct, _ := decimal.NewFromString(u.PriceChangePercent)
		price, _ := decimal.NewFromString(u.AskPrice)
		e.tickers[u.Symbol] = common.Ticker{PriceChangePct: pct, Price: price}
	}
}

// Buy fans buyPair out across every quote asset Binance supports (§4.5).
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

// Account is a Binance authenticated session.
type Account struct {
	cred   common.Credential
	parent *Exchange
	client *binancesdk.Client

	mu       sync.RWMutex
	balances map[string]common.Balance

	listenKey string

	log   *corelog.Logger
	debug bool
}

func newAccount(cred common.Credential, parent *Exchange) *Account {
	return &Account{
		cred:     cred,
		parent:   parent,
		client:   binancesdk.NewClient(cred.APIKey, cred.APISecret),
		balances: make(map[string]common.Balance),
		log:      corelog.New(fmt.Sprintf("binance.%s", cred.Owner)).WithNotifier(parent.log.Notifier()),
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

// Run is the account's supervisor: listen key + keepalive -> account WS ->
// process forever -> on error, reconnect from scratch (§4.4). Balance init
// happens once, in Exchange.initAccounts, not here.
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
	acct, err := a.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return err
	}
	a.mu.Lock()
	for _, b := range acct.Balances {
		free, _ := decimal.NewFromString(b.Free)
		locked, _ := decimal.NewFromString(b.Locked)
		a.balances[b.Asset] = common.Balance{Free: free, Locked: locked}
	}
	a.mu.Unlock()
	return nil
}

func (a *Account) runSession(ctx context.Context) error {
	listenKey, err := a.client.NewStartUserStreamService().Do(ctx)
	if err != nil {
		return fmt.Errorf("start user stream: %w", err)
	}
	a.listenKey = listenKey

	keepaliveCtx, cancelKeepalive := context.WithCancel(ctx)
	defer cancelKeepalive()
	go a.keepAliveLoop(keepaliveCtx, listenKey)

	url := fmt.Sprintf("wss://stream.binance.com:9443/ws/%s", listenKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
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

func (a *Account) keepAliveLoop(ctx context.Context, listenKey string) {
	ticker := time.NewTicker(listenKeyRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.client.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx); err != nil {
				a.log.Errorf("listen key keepalive: %v", err)
			}
		}
	}
}

type balanceUpdateEvent struct {
	EventType string `json:"e"`
	Balances  []struct {
		Asset  string `json:"a"`
		Free   string `json:"f"`
		Locked string `json:"l"`
	} `json:"B"`
}

type orderUpdateEvent struct {
	EventType     string `json:"e"`
	Symbol        string `json:"s"`
	OrderStatus   string `json:"X"`
	OrderID       int64  `json:"i"`
}

// processAccountUpdate dispatches a raw user-data frame to the balance or
// order decoder (§4.4 message dispatch).
func (a *Account) processAccountUpdate(data []byte) {
	var probe struct {
		EventType string `json:"e"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		a.log.Errorf("decode account update: %v", err)
		return
	}

	switch probe.EventType {
	case "outboundAccountPosition":
		var ev balanceUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			a.log.Errorf("decode balance update: %v", err)
			return
		}
		for _, b := range ev.Balances {
			free, _ := decimal.NewFromString(b.Free)
			locked, _ := decimal.NewFromString(b.Locked)
			a.processBalanceUpdate(b.Asset, common.Balance{Free: free, Locked: locked})
		}
	case "executionReport":
		var ev orderUpdateEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			a.log.Errorf("decode order update: %v", err)
			return
		}
		a.processOrderUpdate(ev)
	}
}

// processBalanceUpdate writes only if different and logs the old->new
// transition (§4.4).
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

func (a *Account) processOrderUpdate(ev orderUpdateEvent) {
	a.log.Infof("order %d %s %s", ev.OrderID, ev.Symbol, ev.OrderStatus)
	if ev.OrderStatus == "FILLED" {
		a.log.Notify("order filled: %s (id %d)", ev.Symbol, ev.OrderID)
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
		if err := a.CancelOrder(ctx, trade.OpenOrder{OrderID: orderID, Pair: pair}); err != nil {
			a.log.Notify("cancel failed for %s (%s): %v", pair, orderID, err)
			return
		}
		a.log.Notify("canceled %s (%s)", pair, orderID)
	})
}

// CreateBuyOrder submits a limit-buy for the already-computed quantity and
// price (§4.4 step 5).
func (a *Account) CreateBuyOrder(ctx context.Context, pair string, quantity int64, price decimal.Decimal) (string, error) {
	clientOrderID := uuid.NewString()

	order, err := a.client.NewCreateOrderService().
		Symbol(pair).
		Side(binancesdk.SideTypeBuy).
		Type(binancesdk.OrderTypeLimit).
		TimeInForce(binancesdk.TimeInForceTypeGTC).
		Quantity(strconv.FormatInt(quantity, 10)).
		Price(price.String()).
		NewClientOrderID(clientOrderID).
		Do(ctx)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(order.OrderID, 10), nil
}

// CancelOrder cancels an open order by id (Binance needs the pair, §4.4
// open-orders contract).
func (a *Account) CancelOrder(ctx context.Context, order trade.OpenOrder) error {
	orderID, err := strconv.ParseInt(order.OrderID, 10, 64)
	if err != nil {
		return fmt.Errorf("binance: invalid order id %q: %w", order.OrderID, err)
	}
	_, err = a.client.NewCancelOrderService().Symbol(order.Pair).OrderID(orderID).Do(ctx)
	return err
}

// GetOpenOrdersID returns every open order id, paired with its symbol since
// cancel requires it on Binance.
func (a *Account) GetOpenOrdersID(ctx context.Context) ([]trade.OpenOrder, error) {
	orders, err := a.client.NewListOpenOrdersService().Do(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]trade.OpenOrder, len(orders))
	for i, o := range orders {
		out[i] = trade.OpenOrder{OrderID: strconv.FormatInt(o.OrderID, 10), Pair: o.Symbol}
	}
	return out, nil
}
