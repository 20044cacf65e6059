// Package stats holds the shared ingestion counters and the periodic
// reporter that samples them.
package stats

import (
	"context"
	"fmt"
	"log"
	"time"

	"pumpportal-archiver/internal/observability"
	"pumpportal-archiver/internal/registry"
	"pumpportal-archiver/internal/storage"
)

// Snapshot is one sampled view of the pipeline's progress.
type Snapshot struct {
	Subscribed   int
	Processed    uint64
	Created      uint64
	Rejected     uint64
	Reconnects   uint64
	StorageBytes int64 // -1 when the size query failed
}

// Reporter periodically samples the shared counters and storage size and
// emits a snapshot. Read-only; a failed storage size read is reported as
// unavailable, never fatal.
type Reporter struct {
	registry *registry.Registry
	counters *Counters
	gateway  storage.Gateway
	interval time.Duration
	logger   *log.Logger
}

// ReporterOptions contains configuration for creating a Reporter.
type ReporterOptions struct {
	Registry *registry.Registry
	Counters *Counters
	Gateway  storage.Gateway
	Interval time.Duration
	Logger   *log.Logger
}

// NewReporter creates a new stats reporter.
func NewReporter(opts ReporterOptions) *Reporter {
	interval := opts.Interval
	if interval == 0 {
		interval = 10 * time.Second
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Reporter{
		registry: opts.Registry,
		counters: opts.Counters,
		gateway:  opts.Gateway,
		interval: interval,
		logger:   logger,
	}
}

// Run emits a snapshot every interval until the context is cancelled.
func (r *Reporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := r.Sample(ctx)
			r.logger.Printf("stats: subscribed=%d processed=%d created=%d rejected=%d reconnects=%d storage=%s",
				snap.Subscribed, snap.Processed, snap.Created, snap.Rejected,
				snap.Reconnects, formatStorage(snap.StorageBytes))
		}
	}
}

// Sample reads all counters and the storage size once.
func (r *Reporter) Sample(ctx context.Context) Snapshot {
	snap := Snapshot{
		Subscribed: r.registry.Size(),
		Processed:  r.counters.Processed.Load(),
		Created:    r.counters.Created.Load(),
		Rejected:   r.counters.Rejected.Load(),
		Reconnects: r.counters.Reconnects.Load(),
	}

	size, err := r.gateway.StorageSize(ctx)
	if err != nil {
		snap.StorageBytes = -1
	} else {
		snap.StorageBytes = size
	}

	observability.UpdateSubscribedMints(snap.Subscribed)
	observability.UpdateStorageBytes(snap.StorageBytes)

	return snap
}

func formatStorage(bytes int64) string {
	if bytes < 0 {
		return "unavailable"
	}
	return fmt.Sprintf("%.2fMB", float64(bytes)/(1024*1024))
}
