package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/ledger/internal/domain/ledger"
	"go.uber.org/zap"
)

// ErrInvalidConfig wraps every DailyRunConfig validation failure
var ErrInvalidConfig = errors.New("invalid daily run schedule")

// RunFunc performs one reconciliation evaluated at asOf
type RunFunc func(ctx context.Context, asOf time.Time) error

// DailyRunConfig holds configuration for the daily reconciliation trigger
type DailyRunConfig struct {
	// Hour and Minute are the local time of the daily run in Location
	Hour     int
	Minute   int
	Location *time.Location
	// CheckInterval is how often the clock is checked
	CheckInterval time.Duration
	// RunTimeout bounds one attempt
	RunTimeout time.Duration
	// RetryAttempts is the number of retries after a failed attempt
	RetryAttempts int
	RetryDelay    time.Duration
}

// DefaultDailyRunConfig returns the default configuration: 02:00 UTC,
// three retries five minutes apart
func DefaultDailyRunConfig() DailyRunConfig {
	return DailyRunConfig{
		Hour:          2,
		Minute:        0,
		Location:      time.UTC,
		CheckInterval: time.Minute,
		RunTimeout:    30 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    5 * time.Minute,
	}
}

// Validate checks the configuration
func (c DailyRunConfig) Validate() error {
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("%w: hour must be 0-23, got %d", ErrInvalidConfig, c.Hour)
	}
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("%w: minute must be 0-59, got %d", ErrInvalidConfig, c.Minute)
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: check interval must be positive", ErrInvalidConfig)
	}
	if c.RetryAttempts < 0 {
		return fmt.Errorf("%w: retry attempts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// DailyRunScheduler triggers one reconciliation per calendar day. The run
// is evaluated at the local calendar date of the trigger.
type DailyRunScheduler struct {
	config DailyRunConfig
	run    RunFunc
	logger *zap.Logger
	now    func() time.Time

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
	lastRunAt   *time.Time
	lastErr     error
}

// NewDailyRunScheduler creates a new scheduler
func NewDailyRunScheduler(config DailyRunConfig, run RunFunc, logger *zap.Logger) (*DailyRunScheduler, error) {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DailyRunScheduler{
		config: config,
		run:    run,
		logger: logger,
		now:    time.Now,
	}, nil
}

// Start starts the scheduler loop
func (s *DailyRunScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)

	s.logger.Info("Daily reconciliation scheduler started",
		zap.Int("hour", s.config.Hour),
		zap.Int("minute", s.config.Minute),
		zap.String("timezone", s.config.Location.String()),
		zap.Time("next_run_at", s.NextRunAt()),
	)
	return nil
}

// Stop stops the loop and waits for an in-flight run to observe cancellation
func (s *DailyRunScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Daily reconciliation scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Daily reconciliation scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *DailyRunScheduler) runLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger runs once when the local clock has reached the
// configured time on a date not yet run
func (s *DailyRunScheduler) checkAndTrigger(ctx context.Context) bool {
	now := s.now().In(s.config.Location)
	today := now.Format(ledger.DateLayout)

	s.mu.Lock()
	if s.lastRunDate == today {
		s.mu.Unlock()
		return false
	}
	due := time.Date(now.Year(), now.Month(), now.Day(), s.config.Hour, s.config.Minute, 0, 0, s.config.Location)
	if now.Before(due) {
		s.mu.Unlock()
		return false
	}
	s.lastRunDate = today
	s.mu.Unlock()

	s.logger.Info("Triggering scheduled reconciliation", zap.String("as_of", today))
	s.execute(ctx, ledger.Truncate(now, s.config.Location))
	return true
}

// execute runs with retries. A run rejected because another one holds the
// lock is not retried: that run covers the day.
func (s *DailyRunScheduler) execute(ctx context.Context, asOf time.Time) {
	var err error
	for attempt := 0; attempt <= s.config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				s.finish(ctx.Err())
				return
			case <-time.After(s.config.RetryDelay):
			}
		}

		err = s.attempt(ctx, asOf)
		if err == nil || errors.Is(err, ledger.ErrRunInProgress) || ctx.Err() != nil {
			break
		}
		s.logger.Warn("Scheduled reconciliation failed",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", s.config.RetryAttempts+1),
			zap.Error(err),
		)
	}

	switch {
	case err == nil:
		s.logger.Info("Scheduled reconciliation completed", zap.Time("as_of", asOf))
	case errors.Is(err, ledger.ErrRunInProgress):
		s.logger.Info("Scheduled reconciliation skipped, another run is in progress")
	default:
		s.logger.Error("Scheduled reconciliation gave up", zap.Error(err))
	}
	s.finish(err)
}

func (s *DailyRunScheduler) attempt(ctx context.Context, asOf time.Time) error {
	if s.config.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RunTimeout)
		defer cancel()
	}
	return s.run(ctx, asOf)
}

func (s *DailyRunScheduler) finish(err error) {
	now := s.now()
	s.mu.Lock()
	s.lastRunAt = &now
	s.lastErr = err
	s.mu.Unlock()
}

// NextRunAt returns the slot of the next scheduled run. Until today's run
// has happened this is today's slot, which is in the past when the run is
// due at the next check.
func (s *DailyRunScheduler) NextRunAt() time.Time {
	now := s.now().In(s.config.Location)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.config.Hour, s.config.Minute, 0, 0, s.config.Location)

	s.mu.Lock()
	ranToday := s.lastRunDate == now.Format(ledger.DateLayout)
	s.mu.Unlock()

	if ranToday {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Status describes the scheduler state
type Status struct {
	Running   bool       `json:"running"`
	Hour      int        `json:"hour"`
	Minute    int        `json:"minute"`
	Timezone  string     `json:"timezone"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	NextRunAt time.Time  `json:"next_run_at"`
}

// Status returns the current state of the scheduler
func (s *DailyRunScheduler) Status() Status {
	next := s.NextRunAt()

	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Running:   s.isRunning,
		Hour:      s.config.Hour,
		Minute:    s.config.Minute,
		Timezone:  s.config.Location.String(),
		LastRunAt: s.lastRunAt,
		NextRunAt: next,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}
