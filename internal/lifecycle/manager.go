// Package lifecycle coordinates the process's long-running jobs: each run job
// gets a goroutine sharing one cancellable context, and shutdown jobs execute
// in registration order once every run job has returned.
package lifecycle

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
)

type job struct {
	name string
	fn   func(context.Context) error
}

type Manager struct {
	mu        sync.Mutex
	runs      []job
	shutdowns []job
}

func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) AddRun(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.runs = append(m.runs, job{name: name, fn: fn})
	m.mu.Unlock()
}

func (m *Manager) AddShutdown(name string, fn func(context.Context) error) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.shutdowns = append(m.shutdowns, job{name: name, fn: fn})
	m.mu.Unlock()
}

// StartAndWait runs until the parent context is done, a listed signal
// arrives, or any run job fails. The first failure cancels the remaining run
// jobs; shutdown jobs always execute.
func (m *Manager) StartAndWait(parent context.Context, sig ...os.Signal) error {
	ctx := parent
	if len(sig) > 0 {
		var stop context.CancelFunc
		ctx, stop = signal.NotifyContext(parent, sig...)
		defer stop()
	}
	runCtx, cancelRuns := context.WithCancel(ctx)
	defer cancelRuns()

	m.mu.Lock()
	runs := append([]job(nil), m.runs...)
	shutdowns := append([]job(nil), m.shutdowns...)
	m.mu.Unlock()

	errCh := make(chan error, len(runs))
	var wg sync.WaitGroup
	for _, j := range runs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			if err := j.fn(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- err
				cancelRuns()
			}
		}(j)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		cancelRuns()
	case runErr = <-errCh:
		cancelRuns()
	case <-done:
	}
	<-done

	var shutdownErr error
	for _, j := range shutdowns {
		if err := j.fn(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
			shutdownErr = errors.Join(shutdownErr, err)
		}
	}
	return errors.Join(runErr, shutdownErr)
}
