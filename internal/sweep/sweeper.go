// Package sweep runs the periodic retention passes that expire trash,
// temporary content, and abandoned upload staging files.
package sweep

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/filebay/filebay/internal/metrics"
	"github.com/filebay/filebay/internal/vault"
)

// Default schedule: each sweep runs hourly against its own retention.
const (
	DefaultTrashInterval    = time.Hour
	DefaultTrashRetention   = 30 * 24 * time.Hour
	DefaultContentInterval  = time.Hour
	DefaultContentRetention = 72 * time.Hour
	DefaultStagingInterval  = time.Hour
	DefaultStagingRetention = 6 * time.Hour
)

// Config holds the intervals and retentions for the three sweeps. Zero
// values fall back to the defaults.
type Config struct {
	TrashInterval    time.Duration
	TrashRetention   time.Duration
	ContentInterval  time.Duration
	ContentRetention time.Duration
	StagingInterval  time.Duration
	StagingRetention time.Duration
}

// Sweeper schedules the three retention passes on independent timers.
// Passes share no state beyond the store's filesystem; a failing pass is
// logged and the schedule keeps running.
type Sweeper struct {
	store *vault.Store
	cfg   Config
	m     *metrics.StoreMetrics
	cron  *cron.Cron
}

// New creates a sweeper over the given store. The metrics handle may be
// nil, in which case passes only log.
func New(store *vault.Store, cfg Config, m *metrics.StoreMetrics) *Sweeper {
	if cfg.TrashInterval <= 0 {
		cfg.TrashInterval = DefaultTrashInterval
	}
	if cfg.TrashRetention <= 0 {
		cfg.TrashRetention = DefaultTrashRetention
	}
	if cfg.ContentInterval <= 0 {
		cfg.ContentInterval = DefaultContentInterval
	}
	if cfg.ContentRetention <= 0 {
		cfg.ContentRetention = DefaultContentRetention
	}
	if cfg.StagingInterval <= 0 {
		cfg.StagingInterval = DefaultStagingInterval
	}
	if cfg.StagingRetention <= 0 {
		cfg.StagingRetention = DefaultStagingRetention
	}
	return &Sweeper{
		store: store,
		cfg:   cfg,
		m:     m,
		cron:  cron.New(),
	}
}

// Start registers the three sweep jobs and launches the scheduler. Each
// sweep also runs once right away so a long interval cannot delay the
// first pass after a restart.
func (s *Sweeper) Start() error {
	jobs := []struct {
		name     string
		interval time.Duration
		run      func()
	}{
		{"trash", s.cfg.TrashInterval, s.SweepTrash},
		{"content", s.cfg.ContentInterval, s.SweepContent},
		{"staging", s.cfg.StagingInterval, s.SweepStaging},
	}
	// The immediate catch-up pass goes through the same recover chain as
	// the scheduled ones, so a panicking first pass cannot take the
	// process down.
	chain := cron.NewChain(cron.Recover(cronLogger{}))
	for _, job := range jobs {
		spec := fmt.Sprintf("@every %s", job.interval)
		wrapped := chain.Then(cron.FuncJob(job.run))
		if _, err := s.cron.AddJob(spec, wrapped); err != nil {
			return fmt.Errorf("register %s sweep: %w", job.name, err)
		}
		go wrapped.Run()
	}
	s.cron.Start()

	log.Info().
		Dur("trash_interval", s.cfg.TrashInterval).
		Dur("content_interval", s.cfg.ContentInterval).
		Dur("staging_interval", s.cfg.StagingInterval).
		Msg("retention sweeper started")
	return nil
}

// Stop halts the scheduler and waits for any in-flight pass to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info().Msg("retention sweeper stopped")
}

// RunNow executes all three passes immediately and reports how many
// items each removed. Used by the control socket's sweep command.
func (s *Sweeper) RunNow() map[string]int {
	return map[string]int{
		"trash":   s.sweepTrash(),
		"content": s.sweepContent(),
		"staging": s.sweepStaging(),
	}
}

// SweepTrash purges trash entries older than the trash retention in both
// namespaces.
func (s *Sweeper) SweepTrash() { s.sweepTrash() }

// SweepContent expires stale temporary-namespace files directly, without
// the trash detour, then prunes emptied directories.
func (s *Sweeper) SweepContent() { s.sweepContent() }

// SweepStaging removes upload staging files abandoned longer than the
// staging retention in both namespaces.
func (s *Sweeper) SweepStaging() { s.sweepStaging() }

func (s *Sweeper) sweepTrash() int {
	cutoff := time.Now().Add(-s.cfg.TrashRetention)
	total := 0
	for _, ns := range vault.Namespaces {
		n, err := s.store.CleanupTrash(ns, cutoff)
		total += n
		if err != nil {
			log.Error().Err(err).Str("namespace", ns.String()).Msg("trash sweep failed")
		}
		if s.m != nil {
			if entries, lerr := s.store.ListTrash(ns); lerr == nil {
				s.m.TrashEntries.WithLabelValues(ns.String()).Set(float64(len(entries)))
			}
		}
	}
	s.recordPass("trash", total)
	return total
}

func (s *Sweeper) sweepContent() int {
	cutoff := time.Now().Add(-s.cfg.ContentRetention)
	n, err := s.store.CleanupExpiredContent(vault.Temporary, cutoff)
	if err != nil {
		log.Error().Err(err).Msg("content sweep failed")
	}
	s.recordPass("content", n)
	return n
}

func (s *Sweeper) sweepStaging() int {
	cutoff := time.Now().Add(-s.cfg.StagingRetention)
	total := 0
	for _, ns := range vault.Namespaces {
		n, err := s.store.CleanupStaging(ns, cutoff)
		total += n
		if err != nil {
			log.Error().Err(err).Str("namespace", ns.String()).Msg("staging sweep failed")
		}
	}
	s.recordPass("staging", total)
	return total
}

func (s *Sweeper) recordPass(kind string, removed int) {
	if s.m == nil {
		return
	}
	s.m.SweepRuns.WithLabelValues(kind).Inc()
	s.m.SweepRemovals.WithLabelValues(kind).Add(float64(removed))
	s.m.SweepLastRun.WithLabelValues(kind).SetToCurrentTime()
}

// cronLogger adapts zerolog to the cron logger interface so recovered
// panics land in the main log stream.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
