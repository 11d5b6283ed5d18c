// Package common holds the value types shared across the trigger pipeline,
// the trade execution layer, and the fan-out coordinator.
package common

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

// CoinSource enumerates where a Symbol observation came from.
type CoinSource string

const (
	SourceAPIWallet       CoinSource = "API_WALLET"
	SourceAPIPair         CoinSource = "API_PAIR"
	SourceAPIUnofficial   CoinSource = "API_UNOFFICIAL"
	SourceSite            CoinSource = "SITE"
	SourceJS              CoinSource = "JS"
	SourceTwitter         CoinSource = "TWITTER"
	SourceTelegram        CoinSource = "TELEGRAM"
	SourceTgChnlUpbitKRW  CoinSource = "TG_CHNL_UPBIT_KRW"
	SourceTgChnlUpbitBTC  CoinSource = "TG_CHNL_UPBIT_BTC"
)

// Symbol is a single observed trading symbol. Two Symbols are equal iff
// their Code is equal.
type Symbol struct {
	Code   string
	Source CoinSource
	URL    string
}

// Equal compares symbols by code only, per spec.
func (s Symbol) Equal(o Symbol) bool { return s.Code == o.Code }

// Credential identifies one authenticated session against a trade exchange.
type Credential struct {
	Owner        string
	ExchangeName string
	APIKey       string
	APISecret    string
	Enabled      bool
}

// Key is the uniqueness tuple: (exchangeName, apiKey, apiSecret).
func (c Credential) Key() string {
	return fmt.Sprintf("%s|%s|%s", c.ExchangeName, c.APIKey, c.APISecret)
}

// Balance is a fixed-point asset balance. Total is free+locked, not stored.
type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Total returns Free+Locked.
func (b Balance) Total() decimal.Decimal { return b.Free.Add(b.Locked) }

// Equal reports whether two balances hold the same free/locked amounts.
func (b Balance) Equal(o Balance) bool {
	return b.Free.Equal(o.Free) && b.Locked.Equal(o.Locked)
}

// Ticker is the latest observed price plus 24h change percentage for one pair.
type Ticker struct {
	PriceChangePct decimal.Decimal
	Price          decimal.Decimal
}

// PriceFilter quantizes order price/amount for a pair (Huobi only).
type PriceFilter struct {
	PricePrecision  int
	AmountPrecision int
}

// ExcludedCoins is the static coin-exclusion set (§3 global invariants).
var ExcludedCoins = map[string]bool{
	"BTC": true, "ETH": true, "KRW": true, "PAX": true, "DAI": true,
	"BCHABC": true, "BCHSV": true, "PST": true, "BTT": true, "CELR": true,
}

// ExcludedRegex matches any symbol that is effectively a USD stablecoin.
var ExcludedRegex = regexp.MustCompile(`\w?USD\w?`)

// IsExcluded reports whether a coin code is excluded from novelty tracking.
func IsExcluded(code string) bool {
	return ExcludedCoins[code] || ExcludedRegex.MatchString(code)
}

// TriggerAction is one of the two things a novel symbol can cause.
type TriggerAction string

const (
	ActionBuy  TriggerAction = "buy"
	ActionCall TriggerAction = "call"
)
