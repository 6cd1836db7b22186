// Package scheduler drives the fetch pipeline on a recurring cadence. A
// single goroutine polls registered jobs once per tick and runs due jobs
// strictly in sequence, so no job ever overlaps another.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"polygon_data_monitor/config"
	"polygon_data_monitor/services/fetcher"
)

// State is the lifecycle of the monitor loop.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Job is one scheduled unit of work with its own cadence.
type Job struct {
	name       string
	next       time.Time
	reschedule func(now time.Time) time.Time
	run        func(ctx context.Context)
}

// JobStatus is the read-only view of a job exposed by the operational API.
type JobStatus struct {
	Name    string    `json:"name"`
	NextRun time.Time `json:"next_run"`
}

// Monitor owns the scheduling loop and the process lifecycle around it.
// It never bypasses the pipeline's audit/retry discipline: all data work
// goes through the Fetcher.
type Monitor struct {
	cfg     *config.Config
	fetcher *fetcher.Fetcher
	log     *logrus.Logger

	// tick interval of the due-check loop; shortened in tests
	interval time.Duration

	mu   sync.Mutex
	jobs []*Job

	state    atomic.Int32
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMonitor builds the monitor with its standard job set registered.
func NewMonitor(cfg *config.Config, f *fetcher.Fetcher, log *logrus.Logger) *Monitor {
	m := &Monitor{
		cfg:      cfg,
		fetcher:  f,
		log:      log,
		interval: time.Minute,
		stop:     make(chan struct{}),
	}
	m.state.Store(int32(StateIdle))
	m.registerJobs(time.Now())
	return m
}

// State returns the current lifecycle state.
func (m *Monitor) State() State {
	return State(m.state.Load())
}

// Jobs returns the registered jobs and their next-due times.
func (m *Monitor) Jobs() []JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make([]JobStatus, 0, len(m.jobs))
	for _, j := range m.jobs {
		statuses = append(statuses, JobStatus{Name: j.name, NextRun: j.next})
	}
	return statuses
}

// Run executes the monitoring loop until Shutdown is called or ctx is
// cancelled. Shutdown is observed only at tick boundaries: jobs already
// started in the current tick always finish first.
func (m *Monitor) Run(ctx context.Context) error {
	m.state.Store(int32(StateRunning))
	m.log.WithField("tickers", len(m.cfg.DefaultTickers)).Info("Starting data monitor")

	m.bootstrap(ctx)
	m.healthCheck(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return m.finish()
		case <-ctx.Done():
			return m.finish()
		case now := <-ticker.C:
			m.runDue(ctx, now)
		}
	}
}

// Shutdown requests a cooperative stop. It returns immediately; the loop
// transitions to Stopped once the current tick's work is done.
func (m *Monitor) Shutdown() {
	m.stopOnce.Do(func() {
		m.state.Store(int32(StateShuttingDown))
		close(m.stop)
	})
}

func (m *Monitor) finish() error {
	m.state.Store(int32(StateStopped))
	m.log.Info("Data monitor stopped")
	return nil
}

// bootstrap runs the one-time initial setup when the ticker table is
// empty, keeping a fresh deployment self-seeding.
func (m *Monitor) bootstrap(ctx context.Context) {
	count, err := m.fetcher.TickerCount()
	if err != nil {
		m.log.Errorf("Failed to check ticker table: %v", err)
		return
	}
	if count > 0 {
		m.log.Infof("Found %d existing tickers, skipping initial setup", count)
		return
	}

	m.log.Info("No tickers found, running initial setup")
	if err := m.fetcher.RunInitialSetup(ctx); err != nil {
		m.log.Errorf("Initial setup failed: %v", err)
	}
}

// runDue executes every job whose due time has passed, synchronously and
// in registration order. A slow job delays the next due-check but never
// runs concurrently with another job.
func (m *Monitor) runDue(ctx context.Context, now time.Time) {
	for _, j := range m.jobs {
		m.mu.Lock()
		due := !now.Before(j.next)
		m.mu.Unlock()
		if !due {
			continue
		}

		m.log.WithField("job", j.name).Debug("Running scheduled job")
		j.run(ctx)

		m.mu.Lock()
		j.next = j.reschedule(time.Now())
		m.mu.Unlock()
	}
}

// stopping reports whether a shutdown was requested. Batch jobs check it
// between tickers so a long batch does not delay shutdown by the whole
// ticker list.
func (m *Monitor) stopping() bool {
	select {
	case <-m.stop:
		return true
	default:
		return false
	}
}

// nextDailyAt returns the next occurrence of hour:min after now.
func nextDailyAt(now time.Time, hour, min int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next
}

// nextWeeklyAt returns the next occurrence of weekday at hour:min after now.
func nextWeeklyAt(now time.Time, weekday time.Weekday, hour, min int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, now.Location())
	next = next.AddDate(0, 0, (int(weekday)-int(now.Weekday())+7)%7)
	if !next.After(now) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}
