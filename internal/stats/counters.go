package stats

import "sync/atomic"

// Counters holds the shared ingestion counters. One instance is constructed
// at startup and injected into every component that increments or samples it;
// nothing reads counters through ambient globals.
//
// Processed and Created are incremented at classification time, not at flush
// time, so stats reflect ingestion progress even when writes lag.
type Counters struct {
	Processed     atomic.Uint64 // buy/sell events classified
	Created       atomic.Uint64 // creation events classified
	Rejected      atomic.Uint64 // malformed or invalid frames dropped
	Reconnects    atomic.Uint64 // completed reconnect cycles
	Flushes       atomic.Uint64 // successful batch flushes
	FlushFailures atomic.Uint64 // failed flush attempts (retried)
}
