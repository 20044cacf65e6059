// Package batcher decouples ingestion rate from storage write rate. Accepted
// events sit in memory until a size or time threshold flushes them through
// the storage gateway in one atomic transaction.
package batcher

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"pumpportal-archiver/internal/domain"
	"pumpportal-archiver/internal/observability"
	"pumpportal-archiver/internal/stats"
	"pumpportal-archiver/internal/storage"
)

// Batcher buffers token and transaction rows and flushes them through the
// gateway when the batch size is reached or the flush timer elapses,
// whichever comes first. A batch is never cleared until the gateway reports
// success, so a crash loses at most one unflushed batch.
type Batcher struct {
	gateway       storage.Gateway
	archive       storage.TransactionArchive // optional analytics mirror
	counters      *stats.Counters
	batchSize     int
	flushInterval time.Duration
	retryAttempts int
	retryDelay    time.Duration
	logger        *log.Logger

	mu     sync.Mutex
	tokens []*domain.Token
	txs    []*domain.Transaction

	// kick signals the run loop that the size threshold was reached.
	kick chan struct{}
}

// Options contains configuration for creating a Batcher.
type Options struct {
	Gateway       storage.Gateway
	Archive       storage.TransactionArchive // may be nil
	Counters      *stats.Counters
	BatchSize     int           // default 50
	FlushInterval time.Duration // default 5s
	RetryAttempts int           // default 5
	RetryDelay    time.Duration // default 2s
	Logger        *log.Logger
}

// New creates a new Batcher.
func New(opts Options) *Batcher {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	flushInterval := opts.FlushInterval
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	retryAttempts := opts.RetryAttempts
	if retryAttempts <= 0 {
		retryAttempts = 5
	}

	retryDelay := opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Batcher{
		gateway:       opts.Gateway,
		archive:       opts.Archive,
		counters:      opts.Counters,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		retryAttempts: retryAttempts,
		retryDelay:    retryDelay,
		logger:        logger,
		kick:          make(chan struct{}, 1),
	}
}

// Add buffers one classified event: the transaction row always, the token
// row only for creation events (token is nil otherwise). When the pending
// transaction count reaches the batch size, the run loop is signalled.
func (b *Batcher) Add(token *domain.Token, tx *domain.Transaction) {
	b.mu.Lock()
	if token != nil {
		b.tokens = append(b.tokens, token)
	}
	if tx != nil {
		b.txs = append(b.txs, tx)
	}
	full := len(b.txs) >= b.batchSize
	observability.UpdateBufferSizes(len(b.tokens), len(b.txs))
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Pending returns the current buffered row counts.
func (b *Batcher) Pending() (tokens, txs int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tokens), len(b.txs)
}

// Run flushes on the size signal and on the periodic timer until the context
// is cancelled, then performs one final flush of any non-empty buffer. A
// flush that keeps failing past the retry budget is returned as a fatal
// error: stopping is preferred over silently dropping accepted events.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return b.finalFlush()
		case <-ticker.C:
			err = b.flushWithRetry(ctx)
		case <-b.kick:
			err = b.flushWithRetry(ctx)
		}
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			// Cancellation interrupted the flush; storage may be fine, so
			// the buffer still gets its final flush.
			return b.finalFlush()
		}
		return err
	}
}

// finalFlush drains any remaining buffer on a detached context, so rows
// accepted before shutdown survive the run context's cancellation.
func (b *Batcher) finalFlush() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.flushWithRetry(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}
	return nil
}

// flushWithRetry retries the same batch content until success or until the
// retry budget is exhausted.
func (b *Batcher) flushWithRetry(ctx context.Context) error {
	var lastErr error

	for attempt := 1; attempt <= b.retryAttempts; attempt++ {
		err := b.flushOnce(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if b.counters != nil {
			b.counters.FlushFailures.Add(1)
		}
		b.logger.Printf("flush attempt %d/%d failed: %v", attempt, b.retryAttempts, err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("flush aborted: %w", lastErr)
		case <-time.After(b.retryDelay):
		}
	}

	return fmt.Errorf("flush failed after %d attempts: %w", b.retryAttempts, lastErr)
}

// flushOnce flushes the current buffer snapshot in one gateway transaction.
// The buffer is drained only after the gateway reports success; rows appended
// while the write was in flight stay queued for the next flush.
func (b *Batcher) flushOnce(ctx context.Context) error {
	b.mu.Lock()
	tokens := b.tokens
	txs := b.txs
	b.mu.Unlock()

	if len(tokens) == 0 && len(txs) == 0 {
		return nil
	}

	start := time.Now()
	if err := b.gateway.FlushBatch(ctx, tokens, txs); err != nil {
		observability.RecordFlush("error", time.Since(start).Seconds())
		return err
	}
	observability.RecordFlush("ok", time.Since(start).Seconds())

	b.mu.Lock()
	b.tokens = b.tokens[len(tokens):]
	b.txs = b.txs[len(txs):]
	observability.UpdateBufferSizes(len(b.tokens), len(b.txs))
	b.mu.Unlock()

	if b.counters != nil {
		b.counters.Flushes.Add(1)
	}

	if b.archive != nil && len(txs) > 0 {
		// Best effort: the mirror never blocks the durable path.
		if err := b.archive.AppendTransactions(ctx, txs); err != nil {
			b.logger.Printf("archive append failed: %v", err)
		}
	}

	return nil
}
