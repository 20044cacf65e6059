package stats

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pumpportal-archiver/internal/domain"
	"pumpportal-archiver/internal/registry"
	"pumpportal-archiver/internal/storage/memory"
)

// brokenSizeGateway wraps the memory gateway with a failing size query.
type brokenSizeGateway struct {
	*memory.Gateway
}

func (g *brokenSizeGateway) StorageSize(context.Context) (int64, error) {
	return 0, errors.New("relation size query failed")
}

func TestReporter_Sample(t *testing.T) {
	gw := memory.NewGateway()
	require.NoError(t, gw.FlushBatch(context.Background(),
		[]*domain.Token{{Mint: "mint-1", Timestamp: 1}},
		[]*domain.Transaction{{Mint: "mint-1", Timestamp: 1, TxType: domain.TxTypeCreate}},
	))

	reg := registry.New()
	reg.Add("mint-1")

	counters := &Counters{}
	counters.Processed.Add(7)
	counters.Created.Add(2)
	counters.Rejected.Add(3)
	counters.Reconnects.Add(1)

	r := NewReporter(ReporterOptions{
		Registry: reg,
		Counters: counters,
		Gateway:  gw,
		Logger:   log.New(io.Discard, "", 0),
	})

	snap := r.Sample(context.Background())
	assert.Equal(t, 1, snap.Subscribed)
	assert.Equal(t, uint64(7), snap.Processed)
	assert.Equal(t, uint64(2), snap.Created)
	assert.Equal(t, uint64(3), snap.Rejected)
	assert.Equal(t, uint64(1), snap.Reconnects)
	assert.Equal(t, int64(2), snap.StorageBytes) // memory gateway counts rows
}

func TestReporter_SampleStorageSizeUnavailable(t *testing.T) {
	r := NewReporter(ReporterOptions{
		Registry: registry.New(),
		Counters: &Counters{},
		Gateway:  &brokenSizeGateway{memory.NewGateway()},
		Logger:   log.New(io.Discard, "", 0),
	})

	snap := r.Sample(context.Background())
	assert.Equal(t, int64(-1), snap.StorageBytes)
}

func TestFormatStorage(t *testing.T) {
	assert.Equal(t, "unavailable", formatStorage(-1))
	assert.Equal(t, "0.00MB", formatStorage(0))
	assert.Equal(t, "1.00MB", formatStorage(1024*1024))
	assert.Equal(t, "2.50MB", formatStorage(2*1024*1024+512*1024))
}
