// Package trade holds the Account/TradeExchange interfaces (the Go mapping
// of the original abstract base classes, §9) and the shared limit-buy math
// every exchange connector uses.
package trade

import (
	"context"

	"github.com/shopspring/decimal"

	"listing-sniper/internal/common"
)

// OpenOrder is one entry from an exchange's open-orders query; Pair is only
// populated for exchanges that require it on cancel.
type OpenOrder struct {
	OrderID string
	Pair    string
}

// Account is one authenticated session against a TradeExchange (§9).
type Account interface {
	Owner() string
	Balances() map[string]common.Balance
	CreateBuyOrder(ctx context.Context, pair string, quantity int64, price decimal.Decimal) (orderID string, err error)
	CancelOrder(ctx context.Context, order OpenOrder) error
	GetOpenOrdersID(ctx context.Context) ([]OpenOrder, error)
	// Run is the account's supervisor task: pre-WS prep, open the account
	// WS, process messages forever, reconnecting (with prep re-run) on any
	// error (§4.4). The balance is seeded once by the exchange's Init before
	// Run is started, not by Run.
	Run(ctx context.Context)
}

// PriceSource is the subset of a trigger exchange a TradeExchange needs to
// compute a buy amount; satisfied structurally by trigger.Exchange so this
// package never imports the trigger package.
type PriceSource interface {
	Name() string
	BuyAmountPercent(quoteAsset string) int
}

// TradeExchange is a venue where orders are actually placed (§9).
type TradeExchange interface {
	Name() string
	BuySymbols() []string
	MakePair(base, quote string) string
	Accounts() []Account
	Ticker(pair string) (common.Ticker, bool)

	// Init performs the fixed initialization order: accounts, tickers,
	// price filters (§2 control-flow).
	Init(ctx context.Context) error
	// Run starts the ticker-WS supervisor and, where applicable, the
	// price-filter refresh loop; it returns once both are scheduled.
	Run(ctx context.Context)

	// Buy fans out buyPair across every quote asset this exchange supports
	// (§4.5).
	Buy(ctx context.Context, trig PriceSource, baseSymbol string, priceChangeLimit int)
}

// BuyQuote is the result of the shared buy-sizing computation (§4.4 step 1-4).
type BuyQuote struct {
	Quantity      int64
	PurchasePrice decimal.Decimal
	Skip          bool
	SkipReason    string
}

// ComputeBuyQuote implements the fixed §4.4 sizing steps:
//  1. pct <- trig.BuyAmountPercent(quoteAsset); free <- balance.Free
//  2. quoteAmount <- free * pct/100
//  3. dirtyQty <- quoteAmount/price; qty <- floor(dirtyQty)
//  4. purchasePrice <- price*(100+markup)/100, rounded to pricePlaces
func ComputeBuyQuote(free decimal.Decimal, pct int, ticker common.Ticker, markupPercent int, priceChangeLimit int, pricePlaces int32) BuyQuote {
	if ticker.PriceChangePct.GreaterThan(decimal.NewFromInt(int64(priceChangeLimit))) {
		return BuyQuote{Skip: true, SkipReason: "price change limit exceeded"}
	}

	quoteAmount := free.Mul(decimal.NewFromInt(int64(pct))).Div(decimal.NewFromInt(100))
	if ticker.Price.IsZero() {
		return BuyQuote{Skip: true, SkipReason: "zero ticker price"}
	}
	dirtyQty := quoteAmount.Div(ticker.Price)
	qty := dirtyQty.Floor()

	markup := decimal.NewFromInt(100 + int64(markupPercent)).Div(decimal.NewFromInt(100))
	purchasePrice := ticker.Price.Mul(markup).Round(pricePlaces)

	return BuyQuote{
		Quantity:      qty.IntPart(),
		PurchasePrice: purchasePrice,
	}
}
