package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alecgard/teamhub/internal/authz"
)

// mockStore records all batches that were inserted.
type mockStore struct {
	mu       sync.Mutex
	batches  [][]Record
	insertFn func(ctx context.Context, recs []Record) error
}

func (m *mockStore) BatchInsert(ctx context.Context, recs []Record) error {
	if m.insertFn != nil {
		return m.insertFn(ctx, recs)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]Record, len(recs))
	copy(cp, recs)
	m.batches = append(m.batches, cp)
	return nil
}

func (m *mockStore) totalInserted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func denial(action string) Record {
	return Record{UserID: "u1", Predicate: "IsProjectAdmin", Action: action, CreatedAt: time.Now()}
}

func TestCollector_RecordAddsToBuffer(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour, false)

	c.Record(denial("team.update"))
	c.Record(denial("team.delete"))

	c.mu.Lock()
	bufLen := len(c.buffer)
	c.mu.Unlock()

	if bufLen != 2 {
		t.Fatalf("expected buffer length 2, got %d", bufLen)
	}
	if ms.totalInserted() != 0 {
		t.Fatalf("expected 0 inserted before flush, got %d", ms.totalInserted())
	}
}

func TestCollector_FlushOnBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		records   int
		wantFlush int
	}{
		{"exact batch size triggers flush", 3, 3, 3},
		{"under batch size does not flush", 5, 3, 0},
		{"double batch size triggers two flushes", 2, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockStore{}
			c := NewCollector(ms, tt.batchSize, time.Hour, false)
			for i := 0; i < tt.records; i++ {
				c.Record(denial("board.create"))
			}
			if got := ms.totalInserted(); got != tt.wantFlush {
				t.Errorf("expected %d flushed records, got %d", tt.wantFlush, got)
			}
		})
	}
}

func TestCollector_ObserveFiltersGrants(t *testing.T) {
	tests := []struct {
		name         string
		recordGrants bool
		want         int
	}{
		{"denials only", false, 1},
		{"grants too", true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms := &mockStore{}
			c := NewCollector(ms, 1, time.Hour, tt.recordGrants)
			ctx := context.Background()

			c.Observe(ctx, authz.Decision{UserID: "u1", Predicate: "IsProjectAdmin", Action: "team.delete", TeamID: "t1"})
			c.Observe(ctx, authz.Decision{UserID: "u1", Predicate: "IsAnyUser", Action: "team.list", Allowed: true})

			if got := ms.totalInserted(); got != tt.want {
				t.Fatalf("expected %d records, got %d", tt.want, got)
			}
			first := ms.batches[0][0]
			if first.Allowed || first.TeamID != "t1" || first.Action != "team.delete" {
				t.Errorf("unexpected first record: %+v", first)
			}
		})
	}
}

func TestCollector_StopDoesFinalFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	c.Record(denial("task.create"))
	c.Record(denial("task.update"))
	c.Record(denial("task.delete"))

	c.Stop()
	c.Stop()
	<-done

	if got := ms.totalInserted(); got != 3 {
		t.Fatalf("expected 3 records after Stop, got %d", got)
	}
}

func TestCollector_TimerFlush(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 100, 50*time.Millisecond, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.Start(ctx)
	c.Record(denial("team.update"))

	time.Sleep(200 * time.Millisecond)

	if got := ms.totalInserted(); got != 1 {
		t.Fatalf("expected 1 record after timer flush, got %d", got)
	}
	c.Stop()
}

func TestCollector_ConcurrentRecords(t *testing.T) {
	ms := &mockStore{}
	c := NewCollector(ms, 10, time.Hour, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.Start(ctx)
		close(done)
	}()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(denial("board.update"))
		}()
	}
	wg.Wait()

	c.Stop()
	<-done

	if got := ms.totalInserted(); got != 50 {
		t.Fatalf("expected 50 records, got %d", got)
	}
}

func TestCollector_OnFlushReportsErrors(t *testing.T) {
	storeErr := errors.New("insert failed")
	ms := &mockStore{insertFn: func(context.Context, []Record) error { return storeErr }}
	c := NewCollector(ms, 2, time.Hour, false)

	var gotCount int
	var gotErr error
	c.OnFlush(func(count int, err error) {
		gotCount, gotErr = count, err
	})

	c.Record(denial("a"))
	c.Record(denial("b"))

	if gotCount != 2 || !errors.Is(gotErr, storeErr) {
		t.Fatalf("expected flush of 2 with error, got %d %v", gotCount, gotErr)
	}
}

func TestBatchInsertQuery(t *testing.T) {
	recs := []Record{
		{UserID: "u1", Predicate: "IsAdmin", Action: "role.elevate", Allowed: false},
		{Predicate: "IsAnyUser", Action: "team.list", TeamID: "t1", Allowed: true},
	}
	query, args := batchInsertQuery(recs)

	if !strings.Contains(query, "($1, $2, $3, $4, $5, $6), ($7, $8, $9, $10, $11, $12)") {
		t.Errorf("unexpected placeholders in %q", query)
	}
	if len(args) != 12 {
		t.Fatalf("expected 12 args, got %d", len(args))
	}
	if args[3] != nil {
		t.Errorf("expected nil team id for empty TeamID, got %v", args[3])
	}
	if args[6] != nil {
		t.Errorf("expected nil user id for anonymous record, got %v", args[6])
	}
	if args[9] != "t1" {
		t.Errorf("expected team id t1, got %v", args[9])
	}
}
