// Package config loads process configuration from a .env file plus the
// environment, the way the teacher's pkg/config loads a YAML strategy file:
// sensible defaults, viper binding, unmarshal into a typed struct.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

var errMissingTwitterCreds = errors.New("config: TWITTER_ENABLED=true requires all four Twitter OAuth values")

// Config is the full §6 environment-variable surface.
type Config struct {
	Debug bool `mapstructure:"debug"`

	TwitterEnabled        bool   `mapstructure:"twitter_enabled"`
	TwitterConsumerKey    string `mapstructure:"twitter_consumer_key"`
	TwitterConsumerSecret string `mapstructure:"twitter_consumer_secret"`
	TwitterAccessToken    string `mapstructure:"twitter_access_token"`
	TwitterAccessSecret   string `mapstructure:"twitter_access_secret"`

	BotToken                 string  `mapstructure:"bot_token"`
	AuthorizedUsersTelegram  []int64 `mapstructure:"-"`
	LogChannelID             int64   `mapstructure:"log_channel_id"`
	BalanceShowLimitBTCRaw   string  `mapstructure:"balance_show_limit_btc"`
	PriceChangeLimitPercent  int     `mapstructure:"price_change_limit_in_percent"`

	TwilioFromNumber string `mapstructure:"twilio_from_number"`
	TwilioAccountSID string `mapstructure:"twilio_account_sid"`
	TwilioAuthKey    string `mapstructure:"twilio_auth_key"`

	LimitOrderMarkup int  `mapstructure:"limit_order_markup"`
	DisableBuy       bool `mapstructure:"disable_buy"`
	OrderCancelDelay int  `mapstructure:"order_cancel_delay"`

	ListenChannelID int64    `mapstructure:"listen_channel_id"`
	SymbolsBlackList []string `mapstructure:"-"`
	SymbolsWhiteList []string `mapstructure:"-"`

	UpbitKRWPriceChangeLimit int `mapstructure:"upbit_krw_price_change_limit"`
	UpbitBTCPriceChangeLimit int `mapstructure:"upbit_btc_price_change_limit"`

	// CoinMetaAPIKey is optional: an empty key just means every alert shows
	// the raw code instead of a resolved name/URL (internal/coinmeta).
	CoinMetaAPIKey string `mapstructure:"coinmarketcap_api_key"`

	// MemCheckIntervalSeconds drives the memory-usage watchdog (§9
	// supplemented feature; original_source settings.MEM_CHECK_INTERVAL).
	MemCheckIntervalSeconds int `mapstructure:"mem_check_interval_seconds"`
}

// BalanceShowLimitBTC parses the configured floor as a decimal.
func (c Config) BalanceShowLimitBTC() decimal.Decimal {
	d, err := decimal.NewFromString(c.BalanceShowLimitBTCRaw)
	if err != nil {
		return decimal.NewFromFloat(0.005)
	}
	return d
}

// Load reads .env (if present), binds every environment variable with its
// default, and returns the populated Config. Missing required Twitter
// credentials when TWITTER_ENABLED=true is a configuration error (§7.6).
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("config: no .env file found, using process environment")
	}

	v := viper.New()
	v.AutomaticEnv()

	defaults := map[string]any{
		"debug":                          false,
		"twitter_enabled":                false,
		"twitter_consumer_key":           "",
		"twitter_consumer_secret":        "",
		"twitter_access_token":           "",
		"twitter_access_secret":          "",
		"bot_token":                      "",
		"authorized_users_telegram_ids":  "",
		"log_channel_id":                 0,
		"balance_show_limit_btc":         "0.005",
		"price_change_limit_in_percent":  25,
		"twilio_from_number":             "",
		"twilio_account_sid":             "",
		"twilio_auth_key":                "",
		"limit_order_markup":             15,
		"disable_buy":                    false,
		"order_cancel_delay":             15,
		"listen_channel_id":              0,
		"symbols_black_list":             "",
		"symbols_white_list":             "",
		"upbit_krw_price_change_limit":   25,
		"upbit_btc_price_change_limit":   25,
		"coinmarketcap_api_key":          "",
		"mem_check_interval_seconds":     3600,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
		_ = v.BindEnv(k, strings.ToUpper(k))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.AuthorizedUsersTelegram = parseInt64List(v.GetString("authorized_users_telegram_ids"))
	cfg.SymbolsBlackList = parseList(v.GetString("symbols_black_list"))
	cfg.SymbolsWhiteList = parseList(v.GetString("symbols_white_list"))
	cfg.BalanceShowLimitBTCRaw = v.GetString("balance_show_limit_btc")

	if cfg.TwitterEnabled {
		if cfg.TwitterConsumerKey == "" || cfg.TwitterConsumerSecret == "" ||
			cfg.TwitterAccessToken == "" || cfg.TwitterAccessSecret == "" {
			return nil, errMissingTwitterCreds
		}
	}

	return &cfg, nil
}

func parseList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64List(raw string) []int64 {
	strs := parseList(raw)
	out := make([]int64, 0, len(strs))
	for _, s := range strs {
		var n int64
		if _, err := fmt.Sscan(s, &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}
