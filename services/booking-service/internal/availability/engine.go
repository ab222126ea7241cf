package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrStoreUnavailable wraps every data-store failure seen by the engine.
// Availability queries recover from it; IsAvailable surfaces it.
var ErrStoreUnavailable = errors.New("data store unavailable")

var errStoreUnconfigured = fmt.Errorf("%w: not configured", ErrStoreUnavailable)

// Directory answers the staff, weekly schedule and time-off questions.
// GetStaff returns model.ErrNotFound for an unknown id.
type Directory interface {
	GetStaff(ctx context.Context, staffID string) (model.Staff, error)
	GetWeeklySchedule(ctx context.Context, staffID string, weekday time.Weekday) (model.WeeklySchedule, bool, error)
	HasTimeOff(ctx context.Context, staffID string, day time.Time) (bool, error)
}

// Catalog knows the stored duration of a service with its add-ons. ok is
// false when the service or one of the add-ons has no stored duration.
type Catalog interface {
	ServiceDuration(ctx context.Context, serviceName string, addonNames []string) (minutes int, ok bool, err error)
}

type Result struct {
	StaffID         string
	Date            time.Time
	DurationMinutes int
	Slots           []Slot
	// Degraded is set when the occupied-set came from the Deterministic
	// source instead of the store.
	Degraded bool
}

// Engine computes bookable start times. It keeps no state between calls and
// is safe for concurrent use.
type Engine struct {
	cfg       Config
	directory Directory
	live      OccupancySource
	fallback  OccupancySource
	catalog   Catalog
	logger    *slog.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithCatalog(c Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// NewEngine wires the engine. directory and live may be nil when no store is
// configured; every query is then answered from fallback.
func NewEngine(cfg Config, directory Directory, live, fallback OccupancySource, logger *slog.Logger, opts ...Option) *Engine {
	cfg = cfg.withDefaults()
	if fallback == nil {
		fallback = NewDeterministic(nil, cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:       cfg,
		directory: directory,
		live:      live,
		fallback:  fallback,
		logger:    logger,
		now:       time.Now,
		tracer:    otel.Tracer("github.com/md-rashed-zaman/salonbook/availability"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Config() Config { return e.cfg }

// Availability returns the valid start times for a service of durationMinutes
// with staffID on date (YYYY-MM-DD). Only invalid input produces an error;
// store trouble is answered from the Deterministic source.
func (e *Engine) Availability(ctx context.Context, staffID, date string, durationMinutes int) (Result, error) {
	return e.compute(ctx, staffID, date, durationMinutes, true)
}

// IsAvailable reports whether start is currently a valid start time. It reads
// the store only and returns ErrStoreUnavailable instead of degrading, since
// a write must not be admitted against synthetic data.
func (e *Engine) IsAvailable(ctx context.Context, staffID, date string, start Slot, durationMinutes int) (bool, error) {
	res, err := e.compute(ctx, staffID, date, durationMinutes, false)
	if err != nil {
		return false, err
	}
	for _, s := range res.Slots {
		if s == start {
			return true, nil
		}
	}
	return false, nil
}

// RequestedDuration resolves how long a requested service lasts: an explicit
// value first, then the catalog, then the name-based estimate.
func (e *Engine) RequestedDuration(ctx context.Context, explicit int, serviceName string, addonNames []string) (int, error) {
	if explicit > 0 {
		return explicit, nil
	}
	if explicit < 0 {
		return 0, fmt.Errorf("%w: duration must be positive (got %d)", ErrInvalidInput, explicit)
	}
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		return 0, fmt.Errorf("%w: duration_minutes or service_name is required", ErrInvalidInput)
	}

	if e.catalog != nil {
		readCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
		minutes, ok, err := e.catalog.ServiceDuration(readCtx, serviceName, addonNames)
		cancel()
		switch {
		case err != nil:
			e.logger.Warn("service duration lookup failed; estimating", "service", serviceName, "err", err)
		case ok && minutes > 0:
			return minutes, nil
		}
	}
	if e.cfg.DisableEstimator {
		return 0, fmt.Errorf("%w: unknown service %q", ErrInvalidInput, serviceName)
	}
	return EstimateDuration(serviceName, addonNames), nil
}

type window struct {
	openHour  int
	closeHour int
}

func (e *Engine) defaultWindow() window {
	return window{openHour: e.cfg.DefaultOpenHour, closeHour: e.cfg.DefaultCloseHour}
}

func (e *Engine) compute(ctx context.Context, staffID, date string, durationMinutes int, allowDegraded bool) (Result, error) {
	staffID = strings.TrimSpace(staffID)
	if staffID == "" {
		return Result{}, fmt.Errorf("%w: staff id is required", ErrInvalidInput)
	}
	if durationMinutes <= 0 {
		return Result{}, fmt.Errorf("%w: duration must be positive (got %d)", ErrInvalidInput, durationMinutes)
	}
	day, err := ParseDate(date, e.cfg.Location)
	if err != nil {
		return Result{}, err
	}

	ctx, span := e.tracer.Start(ctx, "availability.compute", trace.WithAttributes(
		attribute.String("staff.id", staffID),
		attribute.String("availability.date", FormatDate(day)),
		attribute.Int("availability.duration_minutes", durationMinutes),
	))
	defer span.End()

	res := Result{StaffID: staffID, Date: day, DurationMinutes: durationMinutes, Slots: []Slot{}}

	win, open, err := e.resolveWindow(ctx, staffID, day)
	if err != nil {
		if !allowDegraded {
			span.RecordError(err)
			return Result{}, err
		}
		e.degrade(ctx, staffID, day, "directory", err)
		res.Degraded = true
		win, open = e.defaultWindow(), true
	}
	if !open {
		span.SetAttributes(attribute.Bool("availability.open", false))
		return res, nil
	}

	lattice := GenerateLattice(win.openHour, win.closeHour, e.cfg.Granularity)
	if now := e.now().In(e.cfg.Location); sameDay(now, day) {
		lattice = after(lattice, now)
	}
	if len(lattice) == 0 {
		return res, nil
	}

	occupied, degraded, err := e.occupancy(ctx, staffID, day, res.Degraded, allowDegraded)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	res.Degraded = degraded
	res.Slots = FilterContiguous(lattice, occupied, durationMinutes, e.cfg.Granularity)

	span.SetAttributes(
		attribute.Bool("availability.degraded", res.Degraded),
		attribute.Int("availability.slots", len(res.Slots)),
	)
	return res, nil
}

// resolveWindow applies, in order: unknown or inactive staff, time off, the
// weekday schedule row, the default window. open is false when the day has
// no availability at all.
func (e *Engine) resolveWindow(ctx context.Context, staffID string, day time.Time) (window, bool, error) {
	if e.directory == nil {
		return window{}, false, errStoreUnconfigured
	}
	readCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	staff, err := e.directory.GetStaff(readCtx, staffID)
	if errors.Is(err, model.ErrNotFound) {
		return window{}, false, nil
	}
	if err != nil {
		return window{}, false, fmt.Errorf("%w: staff lookup: %w", ErrStoreUnavailable, err)
	}
	if !staff.Active {
		return window{}, false, nil
	}

	off, err := e.directory.HasTimeOff(readCtx, staffID, day)
	if err != nil {
		return window{}, false, fmt.Errorf("%w: time-off lookup: %w", ErrStoreUnavailable, err)
	}
	if off {
		return window{}, false, nil
	}

	sched, ok, err := e.directory.GetWeeklySchedule(readCtx, staffID, day.Weekday())
	if err != nil {
		return window{}, false, fmt.Errorf("%w: schedule lookup: %w", ErrStoreUnavailable, err)
	}
	if !ok {
		return e.defaultWindow(), true, nil
	}
	if !sched.Available {
		return window{}, false, nil
	}
	openAt, err := ParseSlot(sched.Open)
	if err != nil {
		return window{}, false, fmt.Errorf("%w: %s schedule: %w", ErrStoreUnavailable, day.Weekday(), err)
	}
	closeAt, err := ParseSlot(sched.Close)
	if err != nil {
		return window{}, false, fmt.Errorf("%w: %s schedule: %w", ErrStoreUnavailable, day.Weekday(), err)
	}
	return window{openHour: openAt.Hour(), closeHour: closeAt.Hour()}, true, nil
}

func (e *Engine) occupancy(ctx context.Context, staffID string, day time.Time, degraded, allowDegraded bool) (OccupancySet, bool, error) {
	if !degraded {
		if e.live == nil {
			if !allowDegraded {
				return nil, false, errStoreUnconfigured
			}
			e.degrade(ctx, staffID, day, "bookings", errStoreUnconfigured)
		} else {
			readCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
			occupied, err := e.live.Occupancy(readCtx, staffID, day)
			cancel()
			if err == nil {
				return occupied, false, nil
			}
			err = fmt.Errorf("%w: bookings lookup: %w", ErrStoreUnavailable, err)
			if !allowDegraded {
				return nil, false, err
			}
			e.degrade(ctx, staffID, day, "bookings", err)
		}
	}
	occupied, err := e.fallback.Occupancy(ctx, staffID, day)
	if err != nil {
		return nil, true, err
	}
	return occupied, true, nil
}

func (e *Engine) degrade(ctx context.Context, staffID string, day time.Time, stage string, err error) {
	level := slog.LevelWarn
	if errors.Is(err, errStoreUnconfigured) {
		level = slog.LevelDebug
	}
	e.logger.Log(ctx, level, "availability degraded to synthetic occupancy",
		"staff_id", staffID,
		"date", FormatDate(day),
		"stage", stage,
		"err", err,
	)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
