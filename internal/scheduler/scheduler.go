// Package scheduler runs the periodic notification sweep.
//
// Each sweep walks every known user and asks the service to create the
// silence nudge, the weekly-reflection-ready notice and the due outcome
// prompt. The service decides whether anything is due; the scheduler only
// drives the clock.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/metrics"
)

const instrumentationName = "github.com/fyrsmithlabs/contextlog/internal/scheduler"

// Defaults.
const (
	DefaultInterval     = 15 * time.Minute
	DefaultSweepTimeout = 5 * time.Minute
	DefaultUserRate     = 50
)

// ErrAlreadyRunning is returned by Start on a running scheduler.
var ErrAlreadyRunning = errors.New("scheduler is already running")

// Sweeper is the part of the journal service a sweep needs.
type Sweeper interface {
	UserIDs(ctx context.Context) ([]string, error)
	NotifySilence(ctx context.Context, userID string) (bool, error)
	NotifyWeeklyReflection(ctx context.Context, userID string) (bool, error)
	PromptDueOutcome(ctx context.Context, userID string) (*journal.OutcomeCheck, error)
}

// Result summarizes one sweep.
type Result struct {
	Users          int
	SilenceNudges  int
	WeeklyReady    int
	OutcomePrompts int
	Failed         int
	Duration       time.Duration
}

// Scheduler runs Sweep on a fixed interval until stopped.
type Scheduler struct {
	sweeper      Sweeper
	logger       *zap.Logger
	tracer       trace.Tracer
	interval     time.Duration
	sweepTimeout time.Duration
	limiter      *rate.Limiter

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the time between sweeps.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithSweepTimeout bounds a single sweep.
func WithSweepTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.sweepTimeout = d }
}

// WithUserRate caps how many users are processed per second. Zero or less
// disables the cap.
func WithUserRate(perSecond float64) Option {
	return func(s *Scheduler) {
		if perSecond <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Scheduler) { s.tracer = t }
}

// New creates a stopped scheduler.
func New(sweeper Sweeper, logger *zap.Logger, opts ...Option) (*Scheduler, error) {
	if sweeper == nil {
		return nil, fmt.Errorf("sweeper cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	s := &Scheduler{
		sweeper:      sweeper,
		logger:       logger,
		tracer:       otel.Tracer(instrumentationName),
		interval:     DefaultInterval,
		sweepTimeout: DefaultSweepTimeout,
		limiter:      rate.NewLimiter(rate.Limit(DefaultUserRate), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", s.interval)
	}
	return s, nil
}

// Start launches the sweep loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.running = true

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	go s.run(s.stopCh, s.doneCh)
	return nil
}

// Stop signals the loop and waits for an in-flight sweep to finish. It is
// a no-op on a stopped scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped")
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeSweep(stop)
		case <-stop:
			return
		}
	}
}

// safeSweep runs one sweep, cancelled early by stop.
func (s *Scheduler) safeSweep(stop <-chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweep panicked, continuing scheduler",
				zap.Any("panic", r),
				zap.Stack("stack"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout)
	defer cancel()
	go func() {
		select {
		case <-stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.Error("sweep failed", zap.Error(err))
	}
}

// Sweep processes every known user once. A failure for one user is logged
// and counted; it does not stop the sweep. The returned error is non-nil
// only when the user list cannot be loaded or ctx ends.
func (s *Scheduler) Sweep(ctx context.Context) (Result, error) {
	ctx, span := s.tracer.Start(ctx, "scheduler.sweep")
	defer span.End()

	start := time.Now()
	var res Result
	err := s.sweep(ctx, &res)
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int("users", res.Users),
		attribute.Int("silence_nudges", res.SilenceNudges),
		attribute.Int("weekly_ready", res.WeeklyReady),
		attribute.Int("outcome_prompts", res.OutcomePrompts),
		attribute.Int("failed", res.Failed),
	)
	metrics.RecordSweepResult(err == nil && res.Failed == 0, res.Duration.Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}

	s.logger.Info("sweep completed",
		zap.Int("users", res.Users),
		zap.Int("silence_nudges", res.SilenceNudges),
		zap.Int("weekly_ready", res.WeeklyReady),
		zap.Int("outcome_prompts", res.OutcomePrompts),
		zap.Int("failed", res.Failed),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func (s *Scheduler) sweep(ctx context.Context, res *Result) error {
	users, err := s.sweeper.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing users: %w", err)
	}
	for _, userID := range users {
		if err := s.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("sweep interrupted: %w", err)
		}
		res.Users++
		if err := s.sweepUser(ctx, userID, res); err != nil {
			res.Failed++
			s.logger.Warn("sweep failed for user",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}
	return nil
}

func (s *Scheduler) sweepUser(ctx context.Context, userID string, res *Result) error {
	var errs []error

	created, err := s.sweeper.NotifySilence(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("silence nudge: %w", err))
	} else if created {
		res.SilenceNudges++
	}

	created, err = s.sweeper.NotifyWeeklyReflection(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("weekly reflection: %w", err))
	} else if created {
		res.WeeklyReady++
	}

	check, err := s.sweeper.PromptDueOutcome(ctx, userID)
	if err != nil {
		errs = append(errs, fmt.Errorf("outcome prompt: %w", err))
	} else if check != nil {
		res.OutcomePrompts++
	}

	return errors.Join(errs...)
}
