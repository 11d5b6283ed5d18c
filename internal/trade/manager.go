package trade

import (
	"context"

	"github.com/sourcegraph/conc"

	"listing-sniper/internal/caller"
	"listing-sniper/internal/corelog"
)

// Manager is the fan-out coordinator (§4.9): it owns every TradeExchange and
// the telephony caller, and routes a novel coin to every trade exchange
// other than the one that discovered it.
type Manager struct {
	exchanges map[string]TradeExchange
	caller    *caller.Caller
	debug     bool
	log       *corelog.Logger
}

// NewManager builds a Manager over the given exchanges.
func NewManager(exchanges []TradeExchange, c *caller.Caller, debug bool) *Manager {
	m := &Manager{
		exchanges: make(map[string]TradeExchange, len(exchanges)),
		caller:    c,
		debug:     debug,
		log:       corelog.New("trade-manager"),
	}
	for _, e := range exchanges {
		m.exchanges[e.Name()] = e
	}
	return m
}

// Init initializes every owned trade exchange in turn; a single exchange's
// failure is fatal (configuration error, §7.6) since it means its
// credentials or venue are unreachable at boot.
func (m *Manager) Init(ctx context.Context) error {
	for _, e := range m.exchanges {
		if err := e.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run starts every exchange's ticker/price-filter supervisors.
func (m *Manager) Run(ctx context.Context) {
	for _, e := range m.exchanges {
		e.Run(ctx)
	}
}

// ProcessCoin routes coin to every trade exchange whose name differs from
// trig's (§4.9, invariant: never dispatches to trig.Name()).
func (m *Manager) ProcessCoin(ctx context.Context, trig PriceSource, coin string, priceChangeLimit int) {
	var targets []TradeExchange
	for name, e := range m.exchanges {
		if name == trig.Name() {
			continue
		}
		targets = append(targets, e)
	}

	if len(targets) == 0 {
		m.log.Infof("nothing to buy for %s (only %s knows this coin)", coin, trig.Name())
		return
	}
	if m.debug {
		m.log.Infof("debug mode: would buy %s on %d exchanges", coin, len(targets))
		return
	}

	wg := conc.NewWaitGroup()
	for _, e := range targets {
		e := e
		wg.Go(func() { e.Buy(ctx, trig, coin, priceChangeLimit) })
	}
	go wg.Wait()
}

// CallAll fans phone calls out across every configured account, non-blocking.
func (m *Manager) CallAll(ctx context.Context) {
	if m.caller == nil {
		return
	}
	go m.caller.CallAll(ctx)
}

// Exchange returns the named trade exchange, if owned.
func (m *Manager) Exchange(name string) (TradeExchange, bool) {
	e, ok := m.exchanges[name]
	return e, ok
}

// CallerAccountNames lists every enabled phone account name, for the
// startup announcement; empty if no caller is configured.
func (m *Manager) CallerAccountNames() []string {
	if m.caller == nil {
		return nil
	}
	return m.caller.AccountNames()
}

// Exchanges returns every owned trade exchange, for commands that need to
// walk all accounts (/balances, /cancel).
func (m *Manager) Exchanges() []TradeExchange {
	out := make([]TradeExchange, 0, len(m.exchanges))
	for _, e := range m.exchanges {
		out = append(out, e)
	}
	return out
}
