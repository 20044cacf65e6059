package storage

import (
	"context"

	"pumpportal-archiver/internal/domain"
)

// Gateway owns the durable schema and performs atomic batched writes.
// It is the single storage dependency of the batcher, registry seed,
// and stats reporter.
type Gateway interface {
	// FlushBatch writes both buffers inside one transaction, all-or-nothing.
	// Token rows use insert-if-absent semantics (first creation event wins
	// per mint); transaction rows are pure appends. An error means nothing
	// from the batch was committed and the caller may retry with the same
	// content.
	FlushBatch(ctx context.Context, tokens []*domain.Token, txs []*domain.Transaction) error

	// LoadMints returns all distinct mint values from the tokens table,
	// used to seed the subscription registry at startup.
	LoadMints(ctx context.Context) ([]string, error)

	// StorageSize returns the current size of the durable store in bytes.
	StorageSize(ctx context.Context) (int64, error)
}

// TransactionArchive is an optional analytics sink that mirrors flushed
// transaction rows. Append failures must not affect the durable path.
type TransactionArchive interface {
	AppendTransactions(ctx context.Context, txs []*domain.Transaction) error
}
