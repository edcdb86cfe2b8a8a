package safe

import (
	"context"
	"time"

	"mdzgate/logger"
)

// Go starts a new goroutine that recovers from panic,
// so that panics don't crash the entire program.
func Go(name string, f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("[safe.Go] %s panic recovered: %v", name, r)
			}
		}()
		f()
	}()
}

// GoRestart runs f in a supervised goroutine and restarts it if it
// panics or returns early, with capped exponential backoff. It stops
// for good once ctx is cancelled. Used for long-lived tasks whose
// silent death would disable a subsystem (e.g. the liveness sweeper).
func GoRestart(ctx context.Context, name string, f func(ctx context.Context)) {
	go func() {
		backoff := time.Second
		for {
			ran := runOnce(name, ctx, f)
			if ctx.Err() != nil {
				return
			}
			if ran {
				backoff = time.Second
			}
			logger.Warnf("[safe.GoRestart] %s exited, restarting in %v", name, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
}

func runOnce(name string, ctx context.Context, f func(ctx context.Context)) (completed bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[safe.GoRestart] %s panic recovered: %v", name, r)
			completed = false
		}
	}()
	start := time.Now()
	f(ctx)
	// Treat anything that lived for a while as a clean run for backoff purposes.
	return time.Since(start) > time.Minute
}
