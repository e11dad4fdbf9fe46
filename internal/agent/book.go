// Package agent owns the live trading loop: the in-memory position book,
// the per-tick exit monitor, and the open path consuming the graduation
// feed.
package agent

import (
	"sync"

	"sniperd/internal/types"
)

// Book is the in-memory index of positions the monitor works on. The
// store remains the durable source of truth; the book is rebuilt from it
// at startup.
type Book struct {
	mu   sync.RWMutex
	byID map[string]*types.Position
}

func NewBook() *Book {
	return &Book{byID: make(map[string]*types.Position)}
}

// Load installs positions restored from the store.
func (b *Book) Load(positions []*types.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range positions {
		if p == nil || p.ID == "" {
			continue
		}
		b.byID[p.ID] = p
	}
}

func (b *Book) Add(p *types.Position) {
	if p == nil || p.ID == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.byID[p.ID] = p
}

func (b *Book) Remove(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.byID, id)
}

func (b *Book) Get(id string) (*types.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.byID[id]
	return p, ok
}

// Open returns every position still in the open state.
func (b *Book) Open() []*types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.Position, 0, len(b.byID))
	for _, p := range b.byID {
		if p.CurrentStatus() == types.StatusOpen {
			out = append(out, p)
		}
	}
	return out
}

// All returns every tracked position, open or terminal.
func (b *Book) All() []*types.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*types.Position, 0, len(b.byID))
	for _, p := range b.byID {
		out = append(out, p)
	}
	return out
}

// HasOpenMint reports whether an open position already holds the mint.
// The open path uses it to refuse duplicate entries.
func (b *Book) HasOpenMint(mint string) bool {
	mint = types.NormalizeMint(mint)
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, p := range b.byID {
		if p.Mint == mint && p.CurrentStatus() == types.StatusOpen {
			return true
		}
	}
	return false
}
