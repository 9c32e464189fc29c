package syncer

import (
	"context"
	"time"
)

// TransitionMonitor is a connectivity monitor that also publishes
// online/offline transitions (netx.Checker implements it).
type TransitionMonitor interface {
	Online() bool
	Subscribe(fn func(online bool))
}

// Run drives the engine until ctx is done: it recovers orphaned items,
// syncs whenever connectivity returns, and on a timer while online. This
// loop is the sole automatic trigger; callers may still invoke
// ProcessBatch directly on user action.
func (e *Engine) Run(ctx context.Context) error {
	if _, err := e.RecoverOrphans(ctx); err != nil {
		return err
	}

	trigger := make(chan struct{}, 1)
	if tm, ok := e.monitor.(TransitionMonitor); ok {
		tm.Subscribe(func(online bool) {
			if online {
				select {
				case trigger <- struct{}{}:
				default:
				}
			}
		})
	}

	var tick <-chan time.Time
	if e.syncInterval > 0 {
		ticker := time.NewTicker(e.syncInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-trigger:
		case <-tick:
		}

		result, err := e.ProcessBatch(ctx)
		if err != nil {
			e.log.Error(ctx, "sync pass failed", "error", err)
			continue
		}
		if result.Processed+result.Failed+result.Conflicts > 0 {
			e.log.Info(ctx, "sync pass finished",
				"processed", result.Processed,
				"failed", result.Failed,
				"conflicts", result.Conflicts)
		}
	}
}
