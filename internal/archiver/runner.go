// Package archiver wires the stream supervisor, classifier, registry, and
// batcher into the ingestion pipeline and owns the shutdown sequence.
package archiver

import (
	"context"
	"errors"
	"log"
	"time"

	"pumpportal-archiver/internal/batcher"
	"pumpportal-archiver/internal/classify"
	"pumpportal-archiver/internal/observability"
	"pumpportal-archiver/internal/registry"
	"pumpportal-archiver/internal/stats"
	"pumpportal-archiver/internal/stream"
)

// nowFunc returns the current Unix timestamp in seconds. Injectable for
// tests.
type nowFunc func() int64

// Runner consumes frames from the supervisor, classifies them, maintains
// the subscription registry, and feeds the write batcher.
type Runner struct {
	registry *registry.Registry
	batcher  *batcher.Batcher
	reporter *stats.Reporter
	counters *stats.Counters
	logger   *log.Logger
	now      nowFunc

	// supervisor is set after construction because the supervisor needs
	// the runner as its frame handler.
	supervisor *stream.Supervisor
}

// Options contains configuration for creating a Runner.
type Options struct {
	Registry *registry.Registry
	Batcher  *batcher.Batcher
	Reporter *stats.Reporter
	Counters *stats.Counters
	Logger   *log.Logger
	Now      func() int64 // nil for wall clock
}

// NewRunner creates a new Runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	now := opts.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}

	return &Runner{
		registry: opts.Registry,
		batcher:  opts.Batcher,
		reporter: opts.Reporter,
		counters: opts.Counters,
		logger:   logger,
		now:      now,
	}
}

// SetSupervisor attaches the connection supervisor. Must be called before
// Run.
func (r *Runner) SetSupervisor(s *stream.Supervisor) {
	r.supervisor = s
}

// Compile-time interface check.
var _ stream.FrameHandler = (*Runner)(nil)

// HandleFrame classifies one inbound frame, updates counters and the
// registry, and buffers accepted events. A creation event registers its mint
// immediately, before the token row is flushed, so a resubscription is never
// missed due to batching delay. Rejections are counted and dropped.
func (r *Runner) HandleFrame(raw []byte) []string {
	ev, err := classify.Classify(raw, r.now())
	if err != nil {
		r.counters.Rejected.Add(1)
		observability.RecordFrameRejected(rejectReason(err))
		return nil
	}

	var newMints []string
	if ev.IsCreation() {
		r.counters.Created.Add(1)
		observability.RecordTokenCreated()
		if r.registry.Add(ev.Token.Mint) {
			newMints = append(newMints, ev.Token.Mint)
		}
	} else {
		r.counters.Processed.Add(1)
		observability.RecordEventProcessed()
	}

	r.batcher.Add(ev.Token, ev.Tx)
	return newMints
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, classify.ErrUnknownType):
		return "unknown-type"
	case errors.Is(err, classify.ErrInvalidField):
		return "invalid-field"
	default:
		return "other"
	}
}

// Run starts the supervisor, batcher, and stats reporter and blocks until
// shutdown or an unrecoverable storage failure.
//
// On shutdown the sequence is: the supervisor stops accepting frames and
// closes the connection, then the batcher performs one final flush of any
// non-empty buffer. HandleFrame runs synchronously inside the receive loop,
// so every accepted frame reaches the batcher before the final flush.
//
// A fatal batcher error (storage cannot make progress) stops the supervisor
// and is returned to the caller; stopping beats silently dropping data.
func (r *Runner) Run(ctx context.Context) error {
	if r.supervisor == nil {
		return errors.New("no supervisor attached")
	}

	supCtx, cancelSup := context.WithCancel(ctx)
	defer cancelSup()

	// The batcher outlives the supervisor so the final flush can drain the
	// buffer after intake has stopped.
	batchCtx, cancelBatch := context.WithCancel(context.Background())
	defer cancelBatch()

	if r.reporter != nil {
		go r.reporter.Run(supCtx)
	}

	batchErr := make(chan error, 1)
	go func() {
		batchErr <- r.batcher.Run(batchCtx)
	}()

	supDone := make(chan struct{})
	go func() {
		r.supervisor.Run(supCtx)
		close(supDone)
	}()

	select {
	case err := <-batchErr:
		cancelSup()
		<-supDone
		if err == nil {
			err = errors.New("batcher stopped unexpectedly")
		}
		return err
	case <-supDone:
		cancelBatch()
		if err := <-batchErr; err != nil {
			return err
		}
		r.logger.Println("pipeline drained")
		return nil
	}
}
