package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"porter/internal/config"
	"porter/internal/copying"
	"porter/internal/discovery"
	"porter/internal/logging"
	"porter/internal/notifications"
	"porter/internal/promoting"
	"porter/internal/records"
	"porter/internal/stage"
	"porter/internal/transforming"
	"porter/internal/verification"
)

// Dispatcher hands a claimed unit of work to a worker invocation. The
// default dispatcher runs the stage handler on a tracked goroutine;
// alternate implementations exist for tests.
type Dispatcher interface {
	Dispatch(ctx context.Context, def stage.Definition, work *stage.Work) error
}

// Manager runs one ticker per pipeline stage. Each tick scans the project
// registry for eligible work, applies the single-flight rule, claims one
// batch per project with a conditional update, and dispatches the stage
// worker without awaiting it.
type Manager struct {
	cfg      *config.Config
	store    *records.Store
	logger   *slog.Logger
	handlers map[string]stage.Handler
	defs     []stage.Definition

	dispatcher    Dispatcher
	notifier      notifications.Service
	tickInterval  time.Duration
	errorInterval time.Duration
	claimTimeout  time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers sync.WaitGroup
}

// NewManager constructs a scheduler with the default stage handlers.
func NewManager(cfg *config.Config, store *records.Store, logger *slog.Logger) *Manager {
	notifier := notifications.NewService(cfg)
	handlers := map[string]stage.Handler{
		"discovery":    discovery.New(cfg, store, logger),
		"transforming": transforming.New(cfg, store, logger),
		"copying":      copying.New(cfg, store, logger),
		"promoting":    promoting.New(cfg, store, logger),
		"verification": verification.New(cfg, store, logger, notifier),
	}
	m := NewManagerWithHandlers(cfg, store, logger, handlers)
	m.notifier = notifier
	return m
}

// NewManagerWithHandlers allows injecting stage handlers (used in tests).
func NewManagerWithHandlers(cfg *config.Config, store *records.Store, logger *slog.Logger, handlers map[string]stage.Handler) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		cfg:           cfg,
		store:         store,
		logger:        logger.With(logging.String(logging.FieldComponent, "scheduler")),
		handlers:      handlers,
		defs:          stage.Definitions(),
		notifier:      notifications.NewService(cfg),
		tickInterval:  time.Duration(cfg.Pipeline.TickInterval) * time.Second,
		errorInterval: time.Duration(cfg.Pipeline.ErrorRetryInterval) * time.Second,
		claimTimeout:  time.Duration(cfg.Pipeline.ClaimTimeoutMinutes) * time.Minute,
	}
	workers := cfg.Pipeline.DispatchWorkers
	if workers <= 0 {
		workers = 1
	}
	m.dispatcher = &goroutineDispatcher{m: m, slots: make(chan struct{}, workers)}
	return m
}

// SetDispatcher replaces the dispatch mechanism. Must be called before
// Start.
func (m *Manager) SetDispatcher(d Dispatcher) {
	if d != nil {
		m.dispatcher = d
	}
}

// SetNotifier replaces the notification channel. Must be called before
// Start.
func (m *Manager) SetNotifier(n notifications.Service) {
	if n != nil {
		m.notifier = n
	}
}

// Start launches the per-stage tickers and, when a claim timeout is
// configured, the stale-claim reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("scheduler already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	for _, def := range m.defs {
		m.wg.Add(1)
		go m.runStage(runCtx, def)
	}
	if m.claimTimeout > 0 {
		m.wg.Add(1)
		go m.runReclaimer(runCtx)
	}
	return nil
}

// Stop cancels the tickers and waits for stage loops and in-flight workers
// to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.workers.Wait()
}

// Health reports readiness of every registered stage handler.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	health := make([]stage.Health, 0, len(m.defs))
	for _, def := range m.defs {
		handler, ok := m.handlers[def.Name]
		if !ok {
			health = append(health, stage.Unhealthy(def.Name, "no handler registered"))
			continue
		}
		health = append(health, handler.HealthCheck(ctx))
	}
	return health
}

func (m *Manager) runStage(ctx context.Context, def stage.Definition) {
	defer m.wg.Done()
	logger := m.logger.With(logging.String(logging.FieldStage, def.Name))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		wait := m.tickInterval
		if err := m.Tick(ctx, def); err != nil && ctx.Err() == nil {
			logger.Error("stage tick failed",
				logging.String(logging.FieldEventType, "tick-failed"),
				logging.Error(err))
			// Failed ticks re-run on the shorter error interval so a
			// transient store problem does not stall the stage for a
			// full tick period.
			wait = m.errorInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (m *Manager) runReclaimer(ctx context.Context) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.tickInterval):
		}
		cutoff := time.Now().Add(-m.claimTimeout)
		reclaimed, err := m.store.ReclaimStaleClaims(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("stale claim reclaim failed",
					logging.String(logging.FieldEventType, "reclaim-failed"),
					logging.Error(err))
			}
			continue
		}
		if reclaimed > 0 {
			m.logger.Warn("reclaimed stale batch claims",
				logging.String(logging.FieldEventType, "claims-reclaimed"),
				logging.Int64("count", reclaimed))
		}
		projects, err := m.store.ReclaimStaleVerifying(ctx, cutoff)
		if err != nil {
			if ctx.Err() == nil {
				m.logger.Warn("stale verification reclaim failed",
					logging.String(logging.FieldEventType, "reclaim-failed"),
					logging.Error(err))
			}
			continue
		}
		if projects > 0 {
			m.logger.Warn("reclaimed stale verification claims",
				logging.String(logging.FieldEventType, "claims-reclaimed"),
				logging.Int64("count", projects))
		}
	}
}
