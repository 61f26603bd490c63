package main

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alecgard/teamhub/internal/audit"
	"github.com/alecgard/teamhub/internal/authz"
)

type recordingStore struct {
	mu   sync.Mutex
	recs []audit.Record
}

func (s *recordingStore) BatchInsert(_ context.Context, recs []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, recs...)
	return nil
}

func (s *recordingStore) records() []audit.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Record(nil), s.recs...)
}

func TestServeUntilDoneFlushesDecisionsMadeWhileDraining(t *testing.T) {
	store := &recordingStore{}
	collector := audit.NewCollector(store, 100, time.Hour, false)

	entered := make(chan struct{})
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		time.Sleep(200 * time.Millisecond)
		collector.Observe(r.Context(), authz.Decision{UserID: "u1", Predicate: "IsAdmin", Action: "route.admin"})
		w.WriteHeader(http.StatusForbidden)
	})}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- serveUntilDone(ctx, srv, ln, collector, cron.New(), 5*time.Second)
	}()

	statusc := make(chan int, 1)
	go func() {
		resp, err := http.Get("http://" + ln.Addr().String() + "/api/v1/admin/users")
		if err != nil {
			statusc <- 0
			return
		}
		resp.Body.Close()
		statusc <- resp.StatusCode
	}()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("request never reached the server")
	}
	cancel()

	require.NoError(t, <-errc)
	assert.Equal(t, http.StatusForbidden, <-statusc)

	recs := store.records()
	require.Len(t, recs, 1)
	assert.Equal(t, "route.admin", recs[0].Action)
	assert.False(t, recs[0].Allowed)
}
