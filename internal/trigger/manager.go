package trigger

import (
	"context"
	"fmt"

	"listing-sniper/internal/corelog"
)

// Manager owns every trigger exchange and schedules their part check loops.
type Manager struct {
	exchanges map[string]*Exchange
	log       *corelog.Logger
}

// NewManager builds a Manager over the given exchanges.
func NewManager(exchanges []*Exchange) *Manager {
	m := &Manager{
		exchanges: make(map[string]*Exchange, len(exchanges)),
		log:       corelog.New("trigger-manager"),
	}
	for _, e := range exchanges {
		m.exchanges[e.Name()] = e
	}
	return m
}

// Init seeds every exchange's novelty sets.
func (m *Manager) Init(ctx context.Context) error {
	for _, e := range m.exchanges {
		if err := e.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Run schedules every exchange's part check loops.
func (m *Manager) Run(ctx context.Context) {
	for _, e := range m.exchanges {
		e.Run(ctx)
	}
}

// DeleteCoin drops a symbol from the named exchange's knownCoins
// (chat-bot /delete_coin, §4.11).
func (m *Manager) DeleteCoin(exchangeName, code string) error {
	e, ok := m.exchanges[exchangeName]
	if !ok {
		return fmt.Errorf("trigger-manager: unknown exchange %q", exchangeName)
	}
	e.DeleteCoin(code)
	return nil
}

// Exchange returns the named trigger exchange, if owned.
func (m *Manager) Exchange(name string) (*Exchange, bool) {
	e, ok := m.exchanges[name]
	return e, ok
}

// Exchanges returns every owned trigger exchange, for the startup
// announcement.
func (m *Manager) Exchanges() []*Exchange {
	out := make([]*Exchange, 0, len(m.exchanges))
	for _, e := range m.exchanges {
		out = append(out, e)
	}
	return out
}
