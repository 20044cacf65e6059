package memory

import (
	"context"
	"sync"

	"pumpportal-archiver/internal/domain"
	"pumpportal-archiver/internal/storage"
)

// Gateway is an in-memory implementation of storage.Gateway, used by unit
// tests and the --use-memory mode.
type Gateway struct {
	mu     sync.RWMutex
	tokens map[string]*domain.Token
	txs    []*domain.Transaction
}

// NewGateway creates a new in-memory gateway.
func NewGateway() *Gateway {
	return &Gateway{
		tokens: make(map[string]*domain.Token),
	}
}

// Compile-time interface check.
var _ storage.Gateway = (*Gateway)(nil)

// FlushBatch stores both buffers atomically under one lock. Token rows are
// insert-if-absent; transaction rows are appended in order.
func (g *Gateway) FlushBatch(_ context.Context, tokens []*domain.Token, txs []*domain.Transaction) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, t := range tokens {
		if t == nil || t.Mint == "" {
			return storage.ErrInvalidInput
		}
		if _, exists := g.tokens[t.Mint]; exists {
			continue
		}
		tokenCopy := *t
		g.tokens[t.Mint] = &tokenCopy
	}

	for _, r := range txs {
		if r == nil || r.Mint == "" {
			return storage.ErrInvalidInput
		}
		txCopy := *r
		g.txs = append(g.txs, &txCopy)
	}
	return nil
}

// LoadMints returns all known mint values.
func (g *Gateway) LoadMints(_ context.Context) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	mints := make([]string, 0, len(g.tokens))
	for mint := range g.tokens {
		mints = append(mints, mint)
	}
	return mints, nil
}

// StorageSize approximates size as the total number of stored rows.
func (g *Gateway) StorageSize(_ context.Context) (int64, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return int64(len(g.tokens) + len(g.txs)), nil
}

// Token returns the stored token for a mint, or nil.
func (g *Gateway) Token(mint string) *domain.Token {
	g.mu.RLock()
	defer g.mu.RUnlock()

	t, exists := g.tokens[mint]
	if !exists {
		return nil
	}
	tokenCopy := *t
	return &tokenCopy
}

// Transactions returns a snapshot of stored transactions in insertion order.
func (g *Gateway) Transactions() []*domain.Transaction {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*domain.Transaction, len(g.txs))
	for i, r := range g.txs {
		txCopy := *r
		out[i] = &txCopy
	}
	return out
}
