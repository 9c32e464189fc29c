package netx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talentflow/offlinecache/internal/logging"
)

func TestProbe_Transitions(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !healthy.Load() {
			// Hijack and drop the connection to simulate a dead network.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, time.Minute, logging.NewNopLogger())
	assert.False(t, c.Online(), "unknown state starts as offline")

	var transitions []bool
	c.Subscribe(func(online bool) { transitions = append(transitions, online) })

	ctx := context.Background()
	c.probe(ctx)
	assert.True(t, c.Online())

	c.probe(ctx)
	assert.True(t, c.Online())
	assert.Equal(t, []bool{true}, transitions, "steady state publishes nothing")

	healthy.Store(false)
	c.probe(ctx)
	assert.False(t, c.Online())
	assert.Equal(t, []bool{true, false}, transitions)

	healthy.Store(true)
	c.probe(ctx)
	assert.True(t, c.Online())
	assert.Equal(t, []bool{true, false, true}, transitions)
}

func TestProbe_ErrorResponseStillCountsAsOnline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewChecker(srv.URL, time.Minute, logging.NewNopLogger())
	c.probe(context.Background())
	assert.True(t, c.Online(), "any response proves the network path works")
}

func TestProbe_UnreachableEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // nothing listens anymore

	c := NewChecker(srv.URL, time.Minute, logging.NewNopLogger())
	c.probe(context.Background())
	assert.False(t, c.Online())
}
