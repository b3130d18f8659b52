// Package shutdown provides phased graceful shutdown with named hooks,
// grounded on the teacher's internal/infrastructure/shutdown package.
package shutdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Phase represents a shutdown phase.
type Phase string

const (
	PhasePreShutdown           Phase = "pre_shutdown"
	PhaseStopAcceptingRequests Phase = "stop_accepting_requests"
	PhaseDrainConnections      Phase = "drain_connections"
	PhaseCleanup               Phase = "cleanup"
	PhasePostShutdown          Phase = "post_shutdown"
)

// Hook runs during a specific shutdown phase.
type Hook func(ctx context.Context) error

// Manager executes registered hooks in phase order, each phase bounded by
// its own timeout.
type Manager struct {
	logger *zap.Logger
	phases map[Phase][]Hook
	mu     sync.RWMutex
}

// NewManager creates a shutdown Manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{logger: logger, phases: make(map[Phase][]Hook)}
}

// RegisterHook registers a named hook for phase.
func (m *Manager) RegisterHook(phase Phase, name string, hook Hook) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wrapped := func(ctx context.Context) error {
		m.logger.Info("executing shutdown hook", zap.String("phase", string(phase)), zap.String("hook", name))
		start := time.Now()
		err := hook(ctx)
		duration := time.Since(start)
		if err != nil {
			m.logger.Error("shutdown hook failed", zap.String("phase", string(phase)), zap.String("hook", name), zap.Duration("duration", duration), zap.Error(err))
			return fmt.Errorf("hook %s failed: %w", name, err)
		}
		m.logger.Info("shutdown hook completed", zap.String("phase", string(phase)), zap.String("hook", name), zap.Duration("duration", duration))
		return nil
	}

	m.phases[phase] = append(m.phases[phase], wrapped)
}

// Shutdown runs every phase in order, continuing past a failed phase so
// later cleanup still gets a chance to run.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("starting graceful shutdown")
	start := time.Now()

	phasesWithTimeouts := []struct {
		phase   Phase
		timeout time.Duration
	}{
		{PhasePreShutdown, 2 * time.Second},
		{PhaseStopAcceptingRequests, 5 * time.Second},
		{PhaseDrainConnections, 10 * time.Second},
		{PhaseCleanup, 5 * time.Second},
		{PhasePostShutdown, 2 * time.Second},
	}

	var shutdownErrors []error
	for _, pt := range phasesWithTimeouts {
		if err := m.executePhase(ctx, pt.phase, pt.timeout); err != nil {
			m.logger.Error("shutdown phase failed", zap.String("phase", string(pt.phase)), zap.Error(err))
			shutdownErrors = append(shutdownErrors, err)
		}
	}

	m.logger.Info("graceful shutdown completed", zap.Duration("total_duration", time.Since(start)), zap.Int("error_count", len(shutdownErrors)))
	if len(shutdownErrors) > 0 {
		return fmt.Errorf("shutdown completed with %d errors", len(shutdownErrors))
	}
	return nil
}

func (m *Manager) executePhase(parentCtx context.Context, phase Phase, timeout time.Duration) error {
	m.mu.RLock()
	hooks := m.phases[phase]
	m.mu.RUnlock()

	if len(hooks) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(parentCtx, timeout)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, len(hooks))
	for _, hook := range hooks {
		wg.Add(1)
		go func(h Hook) {
			defer wg.Done()
			if err := h(ctx); err != nil {
				errChan <- err
			}
		}(hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		close(errChan)
		var failed int
		for range errChan {
			failed++
		}
		if failed > 0 {
			return fmt.Errorf("phase %s: %d hooks failed", phase, failed)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("phase %s timed out after %s", phase, timeout)
	}
}
