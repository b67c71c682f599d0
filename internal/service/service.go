// Package service orchestrates the journal analyzers over the store.
//
// Each HTTP handler, scheduler job and workflow activity calls exactly one
// Service method. The service loads what an analyzer needs, runs it, persists
// derived records and publishes events. Analyzers themselves stay pure.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextlog/internal/deadzone"
	"github.com/fyrsmithlabs/contextlog/internal/events"
	"github.com/fyrsmithlabs/contextlog/internal/journal"
	"github.com/fyrsmithlabs/contextlog/internal/logging"
	"github.com/fyrsmithlabs/contextlog/internal/memoryloop"
	"github.com/fyrsmithlabs/contextlog/internal/notify"
	"github.com/fyrsmithlabs/contextlog/internal/perspective"
	"github.com/fyrsmithlabs/contextlog/internal/pick"
	"github.com/fyrsmithlabs/contextlog/internal/reflection"
	"github.com/fyrsmithlabs/contextlog/internal/store"
	"github.com/fyrsmithlabs/contextlog/internal/timewindow"
)

const instrumentationName = "github.com/fyrsmithlabs/contextlog/internal/service"

// ErrInvalid is returned when a request fails validation.
var ErrInvalid = errors.New("invalid request")

// List limits applied by the read endpoints.
const (
	notificationLimit = 20
	historyLimit      = 12
	reflectionReuse   = 7 // days
)

// Store is the persistence the service needs. *store.Store implements it.
type Store interface {
	CreateReceipt(ctx context.Context, r journal.Receipt) error
	GetReceipt(ctx context.Context, userID, id string) (journal.Receipt, error)
	UpdateReceipt(ctx context.Context, r journal.Receipt) error
	DeleteReceipt(ctx context.Context, userID, id string) error
	ListReceipts(ctx context.Context, userID string, f store.EntryFilter) ([]journal.Receipt, error)

	CreateMoment(ctx context.Context, m journal.Moment) error
	GetMoment(ctx context.Context, userID, id string) (journal.Moment, error)
	UpdateMoment(ctx context.Context, m journal.Moment) error
	DeleteMoment(ctx context.Context, userID, id string) error
	ListMoments(ctx context.Context, userID string, f store.EntryFilter) ([]journal.Moment, error)

	InsertCards(ctx context.Context, cards []journal.PerspectiveCard) ([]journal.PerspectiveCard, error)
	ListCards(ctx context.Context, userID string, includeDismissed bool) ([]journal.PerspectiveCard, error)
	DismissCard(ctx context.Context, userID, id string, at time.Time) error

	CreateOutcomeCheck(ctx context.Context, c journal.OutcomeCheck) error
	GetOutcomeCheck(ctx context.Context, userID, id string) (journal.OutcomeCheck, error)
	GetOutcomeCheckByReceipt(ctx context.Context, userID, receiptID string) (journal.OutcomeCheck, error)
	UpdateOutcomeCheck(ctx context.Context, c journal.OutcomeCheck) error
	ListOutcomeChecks(ctx context.Context, userID string) ([]journal.OutcomeCheck, error)

	InsertInsight(ctx context.Context, ev journal.InsightEvent) (bool, error)
	ListInsights(ctx context.Context, userID string) ([]journal.InsightEvent, error)
	MarkInsightSurfaced(ctx context.Context, userID, id string, at time.Time) error
	DismissInsight(ctx context.Context, userID, id string) error

	CreateNotification(ctx context.Context, n journal.Notification) error
	ListNotifications(ctx context.Context, userID string, f store.NotificationFilter) ([]journal.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id string, at time.Time) error
	DismissNotification(ctx context.Context, userID, id string, at time.Time) error

	SaveReflection(ctx context.Context, r journal.SavedReflection) error
	LatestReflectionSince(ctx context.Context, userID string, since time.Time) (journal.SavedReflection, error)
	ListReflections(ctx context.Context, userID string, limit int) ([]journal.SavedReflection, error)

	GetProfile(ctx context.Context, userID string) (journal.Profile, error)
	UpsertProfile(ctx context.Context, p journal.Profile) error

	UserIDs(ctx context.Context) ([]string, error)
}

// Service is the journal application service.
type Service struct {
	store     Store
	clock     timewindow.Clock
	picker    pick.Picker
	publisher events.Publisher
	logger    *zap.Logger
	tracer    trace.Tracer
	newID     func() string

	deadZoneWindow int

	deadzone   *deadzone.Analyzer
	cards      *perspective.Generator
	reflection *reflection.Engine
	memoryLoop *memoryloop.Engine
	notifier   *notify.Manager
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the clock used for every time-relative rule.
func WithClock(c timewindow.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithPicker sets the selector used for message pools.
func WithPicker(p pick.Picker) Option {
	return func(s *Service) { s.picker = p }
}

// WithPublisher sets the event publisher. Defaults to events.Nop.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithTracer sets the tracer. Defaults to the global provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithIDFunc sets the id generator for every record the service creates.
func WithIDFunc(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// WithDeadZoneWindow overrides the dead-zone lookback in days.
func WithDeadZoneWindow(days int) Option {
	return func(s *Service) { s.deadZoneWindow = days }
}

// New creates a Service over st.
func New(st Store, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	s := &Service{
		store:          st,
		clock:          timewindow.SystemClock{},
		picker:         pick.NewRandom(uint64(time.Now().UnixNano())),
		publisher:      events.Nop{},
		logger:         zap.NewNop(),
		tracer:         otel.Tracer(instrumentationName),
		newID:          func() string { return uuid.New().String() },
		deadZoneWindow: deadzone.DefaultWindowDays,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.deadzone = deadzone.NewAnalyzer(s.clock)
	s.cards = perspective.NewGenerator(s.clock, perspective.WithIDFunc(s.newID))
	s.reflection = reflection.NewEngine(s.clock, s.picker)
	s.memoryLoop = memoryloop.NewEngine(s.clock, memoryloop.WithIDFunc(s.newID))
	s.notifier = notify.NewManager(s.clock, notify.WithIDFunc(s.newID))
	return s, nil
}

// Now returns the service clock's current time.
func (s *Service) Now() time.Time {
	return s.clock.Now()
}

// UserIDs lists every user with entries or a profile.
func (s *Service) UserIDs(ctx context.Context) ([]string, error) {
	return s.store.UserIDs(ctx)
}

// entries loads the user's full history.
func (s *Service) entries(ctx context.Context, userID string) ([]journal.Receipt, []journal.Moment, error) {
	receipts, err := s.store.ListReceipts(ctx, userID, store.EntryFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("listing receipts: %w", err)
	}
	moments, err := s.store.ListMoments(ctx, userID, store.EntryFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("listing moments: %w", err)
	}
	return receipts, moments, nil
}

// profile loads the user's profile, falling back to defaults when none was
// saved.
func (s *Service) profile(ctx context.Context, userID string) (journal.Profile, error) {
	p, err := s.store.GetProfile(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return journal.NewProfile(userID), nil
	}
	if err != nil {
		return journal.Profile{}, fmt.Errorf("loading profile: %w", err)
	}
	return p, nil
}

// publish sends an event. Failures are logged, never returned.
func (s *Service) publish(ctx context.Context, eventType, userID string, data any) {
	e := events.New(eventType, userID, s.clock.Now(), data)
	if err := s.publisher.Publish(ctx, e); err != nil {
		fields := append(logging.ContextFields(ctx),
			zap.String("type", eventType),
			zap.String("user_id", userID),
			zap.Error(err))
		s.logger.Warn("failed to publish event", fields...)
	}
}

// fail marks span as failed and returns err unchanged.
func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func requireUser(userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalid)
	}
	return nil
}
