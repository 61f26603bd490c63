// Package audit persists permission decisions to the access_audit table.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alecgard/teamhub/internal/authz"
)

// Record is one persisted permission decision.
type Record struct {
	UserID    string    `json:"user_id,omitempty"`
	Predicate string    `json:"predicate"`
	Action    string    `json:"action"`
	TeamID    string    `json:"team_id,omitempty"`
	Allowed   bool      `json:"allowed"`
	CreatedAt time.Time `json:"created_at"`
}

// BatchInserter is the interface used by Collector to persist records.
type BatchInserter interface {
	BatchInsert(ctx context.Context, recs []Record) error
}

// FlushFunc is told the size and outcome of every flush.
type FlushFunc func(count int, err error)

// Collector buffers decisions in memory and periodically flushes them to the
// store in batches. It is safe for concurrent use.
type Collector struct {
	store         BatchInserter
	buffer        []Record
	mu            sync.Mutex
	batchSize     int
	flushInterval time.Duration
	recordGrants  bool
	onFlush       FlushFunc
	done          chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a Collector that flushes when the buffer reaches
// batchSize or every flushInterval, whichever comes first. Denials are
// always kept; grants only when recordGrants is set.
func NewCollector(store BatchInserter, batchSize int, flushInterval time.Duration, recordGrants bool) *Collector {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &Collector{
		store:         store,
		buffer:        make([]Record, 0, batchSize),
		batchSize:     batchSize,
		flushInterval: flushInterval,
		recordGrants:  recordGrants,
		done:          make(chan struct{}),
	}
}

// OnFlush registers fn to observe flushes.
func (c *Collector) OnFlush(fn FlushFunc) {
	c.onFlush = fn
}

// Start flushes buffered records on a timer. It blocks until Stop is called
// or the context is cancelled, flushing once more before returning.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.flush()
		case <-ctx.Done():
			c.flush()
			return
		case <-c.done:
			c.flush()
			return
		}
	}
}

// Observe adapts the collector to an authz decision observer.
func (c *Collector) Observe(_ context.Context, d authz.Decision) {
	if d.Allowed && !c.recordGrants {
		return
	}
	c.Record(Record{
		UserID:    d.UserID,
		Predicate: d.Predicate,
		Action:    d.Action,
		TeamID:    d.TeamID,
		Allowed:   d.Allowed,
		CreatedAt: time.Now().UTC(),
	})
}

// Record adds rec to the buffer, flushing when the batch is full.
func (c *Collector) Record(rec Record) {
	c.mu.Lock()
	c.buffer = append(c.buffer, rec)
	shouldFlush := len(c.buffer) >= c.batchSize
	c.mu.Unlock()

	if shouldFlush {
		c.flush()
	}
}

func (c *Collector) flush() {
	c.mu.Lock()
	if len(c.buffer) == 0 {
		c.mu.Unlock()
		return
	}
	batch := c.buffer
	c.buffer = make([]Record, 0, c.batchSize)
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := c.store.BatchInsert(ctx, batch)
	if err != nil {
		slog.Error("failed to flush access audit records", "count", len(batch), "error", err)
	}
	if c.onFlush != nil {
		c.onFlush(len(batch), err)
	}
}

// Stop signals Start to exit after a final flush.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}
