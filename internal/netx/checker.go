// Package netx tracks device connectivity. The engine never probes the
// network itself; it consumes the monitor's state and transition events.
package netx

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talentflow/offlinecache/internal/logging"
)

// Monitor reports whether the device is currently online.
type Monitor interface {
	Online() bool
}

// Checker probes an HTTP endpoint on an interval and publishes
// online/offline transitions to subscribers.
type Checker struct {
	endpoint string
	interval time.Duration
	client   *http.Client
	log      logging.Logger

	online atomic.Bool

	mu   sync.Mutex
	subs []func(online bool)
}

func NewChecker(endpoint string, interval time.Duration, log logging.Logger) *Checker {
	return &Checker{
		endpoint: endpoint,
		interval: interval,
		client:   &http.Client{Timeout: 2 * time.Second},
		log:      log,
	}
}

// Online reports the last observed connectivity state.
func (c *Checker) Online() bool {
	return c.online.Load()
}

// Subscribe registers fn for connectivity transitions. fn runs on the
// checker's goroutine and must not block.
func (c *Checker) Subscribe(fn func(online bool)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// Run probes until ctx is done. The first probe happens immediately so the
// engine starts with a real state instead of the zero value.
func (c *Checker) Run(ctx context.Context) {
	c.probe(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.probe(ctx)
		}
	}
}

func (c *Checker) probe(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.endpoint, nil)
	if err != nil {
		return
	}

	online := false
	if resp, err := c.client.Do(req); err == nil {
		resp.Body.Close()
		// Any response at all means the network path works.
		online = true
	}

	previous := c.online.Swap(online)
	if previous == online {
		return
	}

	if online {
		c.log.Info(ctx, "connectivity regained")
	} else {
		c.log.Warn(ctx, "connectivity lost")
	}

	c.mu.Lock()
	subs := make([]func(bool), len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()

	for _, fn := range subs {
		fn(online)
	}
}
