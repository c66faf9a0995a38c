package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Graceful coordinates background workers with OS termination signals: the
// process waits for every registered worker, bounded by a timeout.
type Graceful struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	timeout time.Duration
}

func NewGraceful(ctx context.Context, cancel context.CancelFunc) *Graceful {
	return &Graceful{ctx: ctx, cancel: cancel, timeout: time.Minute}
}

func (g *Graceful) SetGracefulTimeout(d time.Duration) {
	if d > 0 {
		g.timeout = d
	}
}

// Add registers n workers that must call Done before shutdown completes.
func (g *Graceful) Add(n int) { g.wg.Add(n) }

func (g *Graceful) Done() { g.wg.Done() }

// ListenCancelAndAwait blocks until the context is cancelled or a
// termination signal arrives, then waits for workers up to the timeout.
func (g *Graceful) ListenCancelAndAwait() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("[shutdown] termination signal received")
		g.cancel()
	case <-g.ctx.Done():
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(g.timeout):
		return fmt.Errorf("graceful shutdown timed out after %s", g.timeout)
	}
}
