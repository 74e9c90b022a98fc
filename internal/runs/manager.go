// Package runs tracks concurrently executing backtest runs. Each run owns a
// private engine invocation and cancellation flag; the manager only shares
// immutable snapshots outward.
package runs

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/quantfold/ruleback/internal/engine"
	"github.com/quantfold/ruleback/internal/series"
	"github.com/quantfold/ruleback/internal/strategy"
)

// Status is a run's lifecycle state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Run is the manager's record of one backtest.
type Run struct {
	ID       string
	Strategy string
	Status   Status
	Started  time.Time
	Finished time.Time
	Result   *engine.Result
	Err      error

	cancel *engine.CancelFlag
}

// Snapshot is the immutable external view of a run.
type Snapshot struct {
	ID       string         `json:"id"`
	Strategy string         `json:"strategy"`
	Status   Status         `json:"status"`
	Started  time.Time      `json:"started"`
	Finished time.Time      `json:"finished,omitempty"`
	Error    string         `json:"error,omitempty"`
	Result   *engine.Result `json:"-"`
}

// Manager launches and tracks runs.
type Manager struct {
	engine *engine.Engine
	log    zerolog.Logger

	// OnComplete, when set before any Start, observes each run that
	// finished successfully. It is called outside the manager lock.
	OnComplete func(Run)

	mu   sync.RWMutex
	runs map[string]*Run

	started   prometheus.Counter
	completed prometheus.Counter
	failed    *prometheus.CounterVec
	duration  prometheus.Histogram
}

// NewManager builds a manager and registers its metrics.
func NewManager(eng *engine.Engine, reg prometheus.Registerer, logger zerolog.Logger) *Manager {
	m := &Manager{
		engine: eng,
		log:    logger,
		runs:   make(map[string]*Run),
		started: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruleback_runs_started_total",
			Help: "Backtest runs launched.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruleback_runs_completed_total",
			Help: "Backtest runs finished successfully.",
		}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleback_runs_failed_total",
			Help: "Backtest runs that ended in a failure, by kind.",
		}, []string{"kind"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ruleback_run_duration_seconds",
			Help:    "Wall-clock duration of backtest runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.started, m.completed, m.failed, m.duration)
	}
	return m
}

// Start launches a run in its own goroutine and returns its id immediately.
func (m *Manager) Start(def *strategy.Definition, data map[string]*series.Table, opts engine.RunOptions) string {
	id := uuid.NewString()
	flag := &engine.CancelFlag{}
	opts.Cancel = flag

	run := &Run{
		ID:       id,
		Strategy: def.Name,
		Status:   StatusRunning,
		Started:  time.Now().UTC(),
		cancel:   flag,
	}
	m.mu.Lock()
	m.runs[id] = run
	m.mu.Unlock()
	m.started.Inc()

	go m.execute(run, def, data, opts)
	return id
}

func (m *Manager) execute(run *Run, def *strategy.Definition, data map[string]*series.Table, opts engine.RunOptions) {
	result, err := m.engine.Run(def, data, opts)
	finished := time.Now().UTC()
	m.duration.Observe(finished.Sub(run.Started).Seconds())

	m.mu.Lock()
	run.Finished = finished
	switch {
	case err == nil:
		run.Status = StatusCompleted
		run.Result = result
		m.completed.Inc()
	default:
		run.Err = err
		run.Status = StatusFailed
		kind := failureKind(err)
		if kind == "cancelled" {
			run.Status = StatusCancelled
		}
		m.failed.WithLabelValues(kind).Inc()
		m.log.Warn().Str("run_id", run.ID).Str("kind", kind).Err(err).Msg("run did not complete")
	}
	done := *run
	m.mu.Unlock()

	if err == nil && m.OnComplete != nil {
		m.OnComplete(done)
	}
}

// Cancel requests cancellation of a running run. The status is captured
// under the read lock; execute mutates it under the write lock.
func (m *Manager) Cancel(id string) bool {
	m.mu.RLock()
	run, ok := m.runs[id]
	running := ok && run.Status == StatusRunning
	m.mu.RUnlock()
	if !running {
		return false
	}
	// cancel is set once at Start and never reassigned, so the flag itself
	// is safe to poke outside the lock.
	run.cancel.Cancel()
	return true
}

// Get returns a snapshot of one run.
func (m *Manager) Get(id string) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Snapshot{}, false
	}
	return snapshot(run), true
}

// List returns snapshots of every known run.
func (m *Manager) List() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.runs))
	for _, run := range m.runs {
		out = append(out, snapshot(run))
	}
	return out
}

func snapshot(run *Run) Snapshot {
	s := Snapshot{
		ID:       run.ID,
		Strategy: run.Strategy,
		Status:   run.Status,
		Started:  run.Started,
		Finished: run.Finished,
		Result:   run.Result,
	}
	if run.Err != nil {
		s.Error = run.Err.Error()
	}
	return s
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, engine.ErrSignalExplosion):
		return "explosion"
	case errors.Is(err, engine.ErrCancelled):
		return "cancelled"
	default:
		return "error"
	}
}
