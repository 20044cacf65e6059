package batcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpportal-archiver/internal/domain"
	"pumpportal-archiver/internal/stats"
	"pumpportal-archiver/internal/storage/memory"
)

// flakyGateway fails a configured number of FlushBatch calls before
// delegating to an in-memory gateway.
type flakyGateway struct {
	mu       sync.Mutex
	failures int
	inner    *memory.Gateway
}

func (g *flakyGateway) FlushBatch(ctx context.Context, tokens []*domain.Token, txs []*domain.Transaction) error {
	g.mu.Lock()
	fail := g.failures > 0
	if fail {
		g.failures--
	}
	g.mu.Unlock()

	if fail {
		return errors.New("storage unavailable")
	}
	return g.inner.FlushBatch(ctx, tokens, txs)
}

func (g *flakyGateway) LoadMints(ctx context.Context) ([]string, error) {
	return g.inner.LoadMints(ctx)
}

func (g *flakyGateway) StorageSize(ctx context.Context) (int64, error) {
	return g.inner.StorageSize(ctx)
}

// stalledGateway blocks the first FlushBatch until its context is cancelled
// and delegates every later call.
type stalledGateway struct {
	inner   *memory.Gateway
	started chan struct{}
	once    sync.Once
}

func (g *stalledGateway) FlushBatch(ctx context.Context, tokens []*domain.Token, txs []*domain.Transaction) error {
	var first bool
	g.once.Do(func() { first = true })
	if first {
		close(g.started)
		<-ctx.Done()
		return ctx.Err()
	}
	return g.inner.FlushBatch(ctx, tokens, txs)
}

func (g *stalledGateway) LoadMints(ctx context.Context) ([]string, error) {
	return g.inner.LoadMints(ctx)
}

func (g *stalledGateway) StorageSize(ctx context.Context) (int64, error) {
	return g.inner.StorageSize(ctx)
}

func buyTx(mint string, ts int64) *domain.Transaction {
	return &domain.Transaction{Mint: mint, Timestamp: ts, TxType: domain.TxTypeBuy, TokenAmount: 1, SolAmount: 0.1}
}

func TestBatcher_SizeTriggerFlush(t *testing.T) {
	gw := memory.NewGateway()
	b := New(Options{
		Gateway:       gw,
		Counters:      &stats.Counters{},
		BatchSize:     2,
		FlushInterval: time.Minute, // timer must not be the trigger here
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Add(nil, buyTx("mint-1", 1))
	b.Add(nil, buyTx("mint-1", 2))

	require.Eventually(t, func() bool {
		return len(gw.Transactions()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestBatcher_TimerFlush(t *testing.T) {
	gw := memory.NewGateway()
	b := New(Options{
		Gateway:       gw,
		Counters:      &stats.Counters{},
		BatchSize:     100, // size must not be the trigger here
		FlushInterval: 30 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Add(nil, buyTx("mint-1", 1))

	require.Eventually(t, func() bool {
		return len(gw.Transactions()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestBatcher_RetriesSameBatchUntilSuccess(t *testing.T) {
	gw := &flakyGateway{failures: 2, inner: memory.NewGateway()}
	counters := &stats.Counters{}
	b := New(Options{
		Gateway:       gw,
		Counters:      counters,
		BatchSize:     2,
		FlushInterval: time.Minute,
		RetryAttempts: 5,
		RetryDelay:    10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Add(nil, buyTx("mint-1", 1))
	b.Add(nil, buyTx("mint-1", 2))

	// The failed attempts must not commit any partial subset; the whole
	// batch lands exactly once on the third attempt.
	require.Eventually(t, func() bool {
		return len(gw.inner.Transactions()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, uint64(2), counters.FlushFailures.Load())
	assert.Equal(t, uint64(1), counters.Flushes.Load())

	cancel()
	require.NoError(t, <-done)
}

func TestBatcher_FatalAfterRetryExhaustion(t *testing.T) {
	gw := &flakyGateway{failures: 1 << 30, inner: memory.NewGateway()}
	b := New(Options{
		Gateway:       gw,
		Counters:      &stats.Counters{},
		BatchSize:     1,
		FlushInterval: time.Minute,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Add(nil, buyTx("mint-1", 1))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Empty(t, gw.inner.Transactions())
	case <-time.After(2 * time.Second):
		t.Fatal("expected fatal error after retry exhaustion")
	}
}

func TestBatcher_CancelDuringFlushStillDrains(t *testing.T) {
	gw := &stalledGateway{inner: memory.NewGateway(), started: make(chan struct{})}
	b := New(Options{
		Gateway:       gw,
		Counters:      &stats.Counters{},
		BatchSize:     1,
		FlushInterval: time.Minute,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	b.Add(nil, buyTx("mint-1", 1))

	select {
	case <-gw.started:
	case <-time.After(2 * time.Second):
		t.Fatal("flush never started")
	}

	// Cancelling while the write is in flight aborts that attempt, but it
	// is not a storage failure: the final flush must still land the row.
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("batcher did not stop")
	}
	assert.Len(t, gw.inner.Transactions(), 1)
}

func TestBatcher_FinalFlushOnShutdown(t *testing.T) {
	gw := memory.NewGateway()
	b := New(Options{
		Gateway:       gw,
		Counters:      &stats.Counters{},
		BatchSize:     100,
		FlushInterval: time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	token := &domain.Token{Mint: "mint-1", Timestamp: 1}
	b.Add(token, &domain.Transaction{Mint: "mint-1", Timestamp: 1, TxType: domain.TxTypeCreate})

	cancel()
	require.NoError(t, <-done)

	assert.NotNil(t, gw.Token("mint-1"))
	assert.Len(t, gw.Transactions(), 1)
}

func TestBatcher_EndToEndScenario(t *testing.T) {
	// creation(X, liquidity=5), buy(X, 10 tokens, 1 SOL),
	// sell(X, 4 tokens, 0.5 SOL), batch size 2: after two flush cycles the
	// token table has one row and the transaction table three, in arrival
	// order.
	gw := memory.NewGateway()
	b := New(Options{
		Gateway:       gw,
		Counters:      &stats.Counters{},
		BatchSize:     2,
		FlushInterval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	const mintX = "mint-x"
	b.Add(
		&domain.Token{Mint: mintX, Timestamp: 1, InitialSolLiquidity: 5},
		&domain.Transaction{Mint: mintX, Timestamp: 1, TxType: domain.TxTypeCreate},
	)
	b.Add(nil, &domain.Transaction{Mint: mintX, Timestamp: 2, TxType: domain.TxTypeBuy, TokenAmount: 10, SolAmount: 1})
	b.Add(nil, &domain.Transaction{Mint: mintX, Timestamp: 3, TxType: domain.TxTypeSell, TokenAmount: 4, SolAmount: 0.5})

	require.Eventually(t, func() bool {
		return len(gw.Transactions()) == 3
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	token := gw.Token(mintX)
	require.NotNil(t, token)
	assert.InDelta(t, 5.0, token.InitialSolLiquidity, 0.0001)

	txs := gw.Transactions()
	require.Len(t, txs, 3)
	assert.Equal(t, domain.TxTypeCreate, txs[0].TxType)
	assert.Equal(t, domain.TxTypeBuy, txs[1].TxType)
	assert.Equal(t, domain.TxTypeSell, txs[2].TxType)
}
