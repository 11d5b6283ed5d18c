// Package telegram holds the buffer-backed trigger parts fed by the
// chat-bot's channel-post handler and /fake_coin command: each part's Get()
// swaps its buffer with an empty one and returns the old contents (§4.11,
// §9 "dynamic symbol buffers").
package telegram

import (
	"context"
	"sync"
	"time"

	"listing-sniper/internal/common"
)

// Buffer is a single-writer-per-swap set of pending symbols.
type Buffer struct {
	mu    sync.Mutex
	coins map[string]common.Symbol
}

// NewBuffer builds an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{coins: make(map[string]common.Symbol)}
}

// Push adds a symbol to the buffer (called from the chat-bot's channel-post
// handler or the /fake_coin command).
func (b *Buffer) Push(sym common.Symbol) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coins[sym.Code] = sym
}

// swap returns the current contents and replaces them with an empty map.
func (b *Buffer) swap() map[string]common.Symbol {
	b.mu.Lock()
	defer b.mu.Unlock()
	old := b.coins
	b.coins = make(map[string]common.Symbol)
	return old
}

// Part is a poll-shaped wrapper over a Buffer: Get() never actually makes a
// network call, just drains the buffer.
type Part struct {
	buffer           *Buffer
	source           common.CoinSource
	actions          map[common.TriggerAction]bool
	priceChangeLimit int
	delay            time.Duration
}

// NewPart builds a Part over buffer, polled every delay.
func NewPart(buffer *Buffer, source common.CoinSource, actions map[common.TriggerAction]bool, priceChangeLimit int, delay time.Duration) *Part {
	return &Part{buffer: buffer, source: source, actions: actions, priceChangeLimit: priceChangeLimit, delay: delay}
}

func (p *Part) Source() common.CoinSource              { return p.source }
func (p *Part) Actions() map[common.TriggerAction]bool { return p.actions }
func (p *Part) PriceChangeLimit() int                  { return p.priceChangeLimit }
func (p *Part) Delay() time.Duration                   { return p.delay }

// Get drains the buffer; it never errors, since there's no network call.
func (p *Part) Get(ctx context.Context) (map[string]common.Symbol, error) {
	return p.buffer.swap(), nil
}
