package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

// BookingStore is implemented by *storage.BookingRepository.
type BookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, bookingID string, statusCode int, response []byte) error
	Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error)
	Cancel(ctx context.Context, tx pgx.Tx, bookingID, reason string) (time.Time, error)
	ListByStaffDay(ctx context.Context, staffID string, day time.Time) ([]model.Booking, error)
}

// EventWriter is implemented by *outbox.Repository.
type EventWriter interface {
	Insert(ctx context.Context, tx pgx.Tx, evt outbox.Event) error
}

type BookingHandler struct {
	engine *availability.Engine
	store  BookingStore
	events EventWriter
	logger *slog.Logger
}

// NewBookingHandler serves availability from engine. store and events may be
// nil when no database is configured; writes then answer 503.
func NewBookingHandler(engine *availability.Engine, store BookingStore, events EventWriter, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		engine: engine,
		store:  store,
		events: events,
		logger: logger,
	}
}

type slotsResponse struct {
	StaffID         string   `json:"staff_id"`
	Date            string   `json:"date"`
	DurationMinutes int      `json:"duration_minutes"`
	Slots           []string `json:"slots"`
}

type createBookingRequest struct {
	StaffID         string   `json:"staff_id"`
	Date            string   `json:"date"`
	StartTime       string   `json:"start_time"`
	ServiceName     string   `json:"service_name"`
	Addons          []string `json:"addons"`
	DurationMinutes int      `json:"duration_minutes"`
	CustomerName    string   `json:"customer_name"`
	CustomerEmail   string   `json:"customer_email"`
	CustomerPhone   string   `json:"customer_phone"`
}

type createBookingResponse struct {
	BookingID string `json:"booking_id"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type cancelBookingResponse struct {
	BookingID   string `json:"booking_id"`
	Status      string `json:"status"`
	CancelledAt string `json:"cancelled_at"`
}

type listBookingItem struct {
	BookingID       string   `json:"booking_id"`
	StaffID         string   `json:"staff_id"`
	Date            string   `json:"date"`
	StartTime       string   `json:"start_time"`
	ServiceName     string   `json:"service_name"`
	Addons          []string `json:"addons"`
	DurationMinutes int      `json:"duration_minutes,omitempty"`
	Status          string   `json:"status"`
	CancelledAt     string   `json:"cancelled_at,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// Slots answers GET /api/v1/public/slots. Store trouble never fails the
// request; the engine falls back to synthetic occupancy.
func (h *BookingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	staffID := strings.TrimSpace(q.Get("staff_id"))
	date := strings.TrimSpace(q.Get("date"))
	if staffID == "" || date == "" {
		http.Error(w, "staff_id and date are required", http.StatusBadRequest)
		return
	}
	explicit := 0
	if raw := strings.TrimSpace(q.Get("duration_minutes")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		explicit = n
	}

	ctx := r.Context()
	duration, err := h.engine.RequestedDuration(ctx, explicit, q.Get("service_name"), splitList(q.Get("addons")))
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	res, err := h.engine.Availability(ctx, staffID, date, duration)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, slotsResponse{
		StaffID:         res.StaffID,
		Date:            availability.FormatDate(res.Date),
		DurationMinutes: res.DurationMinutes,
		Slots:           availability.Strings(res.Slots),
	})
}

// Create answers POST /api/v1/public/book. The start must be available
// according to the live store. Concurrent requests that overlap are settled
// by the bookings_no_overlap exclusion constraint, reported as 409.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.Date = strings.TrimSpace(req.Date)
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.StaffID == "" || req.Date == "" || req.StartTime == "" || req.CustomerName == "" {
		http.Error(w, "staff_id, date, start_time and customer_name are required", http.StatusBadRequest)
		return
	}
	if req.ServiceName == "" {
		http.Error(w, "service_name is required", http.StatusBadRequest)
		return
	}

	day, err := availability.ParseDate(req.Date, h.engine.Config().Location)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	start, err := availability.ParseSlot(req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	addons := cleanList(req.Addons)
	duration, err := h.engine.RequestedDuration(ctx, req.DurationMinutes, req.ServiceName, addons)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	if h.store == nil || h.events == nil {
		http.Error(w, "booking store unavailable", http.StatusServiceUnavailable)
		return
	}

	tx, err := h.store.Begin(ctx)
	if err != nil {
		h.logger.Error("begin booking tx failed", "err", err)
		http.Error(w, "booking store unavailable", http.StatusServiceUnavailable)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		rec, exists, err := h.store.LockIdempotencyKey(ctx, tx, idempotencyKey)
		if err != nil {
			http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
			return
		}
		if exists {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(rec.StatusCode)
			if len(rec.ResponsePayload) > 0 {
				_, _ = w.Write(rec.ResponsePayload)
				return
			}
			_ = json.NewEncoder(w).Encode(createBookingResponse{BookingID: rec.BookingID})
			return
		}
	}

	ok, err := h.engine.IsAvailable(ctx, req.StaffID, req.Date, start, duration)
	if err != nil {
		if errors.Is(err, availability.ErrInvalidInput) {
			h.writeEngineError(w, err)
			return
		}
		// Not recorded against the idempotency key; the client may retry.
		h.logger.Warn("availability check failed", "staff_id", req.StaffID, "date", req.Date, "err", err)
		http.Error(w, "availability unavailable, retry later", http.StatusServiceUnavailable)
		return
	}
	if !ok {
		const msg = "requested time is not available"
		if idempotencyKey != "" && h.finalizeIdempotencyError(ctx, tx, idempotencyKey, http.StatusUnprocessableEntity, msg) {
			_ = tx.Commit(ctx)
		}
		http.Error(w, msg, http.StatusUnprocessableEntity)
		return
	}

	booking := &model.Booking{
		StaffID:         req.StaffID,
		Date:            day,
		StartTime:       start.String(),
		ServiceName:     req.ServiceName,
		AddonNames:      addons,
		DurationMinutes: duration,
		CustomerName:    req.CustomerName,
		CustomerEmail:   strings.TrimSpace(req.CustomerEmail),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		Status:          model.StatusPending,
	}
	id, err := h.store.Create(ctx, tx, booking)
	if err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		h.logger.Error("create booking failed", "err", err)
		http.Error(w, "failed to create booking", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":       id,
		"staff_id":         booking.StaffID,
		"date":             availability.FormatDate(booking.Date),
		"start_time":       booking.StartTime,
		"service_name":     booking.ServiceName,
		"addons":           booking.AddonNames,
		"duration_minutes": booking.DurationMinutes,
		"customer_name":    booking.CustomerName,
		"customer_email":   booking.CustomerEmail,
		"customer_phone":   booking.CustomerPhone,
		"status":           booking.Status,
	})
	if err != nil {
		http.Error(w, "failed to build event payload", http.StatusInternalServerError)
		return
	}
	if err := h.events.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateBooking,
		AggregateID:   id,
		EventType:     outbox.EventBookingBooked,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	respBody, err := json.Marshal(createBookingResponse{BookingID: id})
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	if idempotencyKey != "" {
		if err := h.store.FinalizeIdempotency(ctx, tx, idempotencyKey, id, http.StatusCreated, respBody); err != nil {
			http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
			return
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if storage.IsConflict(err) {
			http.Error(w, "time slot already booked", http.StatusConflict)
			return
		}
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	h.logger.Info("booking created", "booking_id", id, "staff_id", booking.StaffID, "date", req.Date, "start_time", booking.StartTime)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write(respBody)
}

// Cancel answers POST /api/v1/bookings/cancel. Cancelling twice returns the
// first cancellation.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	req.Reason = strings.TrimSpace(req.Reason)
	if req.BookingID == "" {
		http.Error(w, "booking_id required", http.StatusBadRequest)
		return
	}
	if h.store == nil || h.events == nil {
		http.Error(w, "booking store unavailable", http.StatusServiceUnavailable)
		return
	}

	ctx := r.Context()
	tx, err := h.store.Begin(ctx)
	if err != nil {
		http.Error(w, "booking store unavailable", http.StatusServiceUnavailable)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := h.store.GetForUpdate(ctx, tx, req.BookingID)
	if err != nil {
		if storage.IsNotFound(err) {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load booking", http.StatusInternalServerError)
		return
	}

	if booking.Status == model.StatusCancelled && booking.CancelledAt != nil {
		writeJSON(w, http.StatusOK, cancelResponse(booking.ID, *booking.CancelledAt))
		return
	}
	if !model.IsActiveStatus(booking.Status) {
		http.Error(w, "booking cannot be cancelled", http.StatusConflict)
		return
	}

	cancelledAt, err := h.store.Cancel(ctx, tx, booking.ID, req.Reason)
	if err != nil {
		http.Error(w, "failed to cancel booking", http.StatusInternalServerError)
		return
	}

	payload, err := json.Marshal(map[string]any{
		"booking_id":   booking.ID,
		"staff_id":     booking.StaffID,
		"date":         availability.FormatDate(booking.Date),
		"start_time":   booking.StartTime,
		"service_name": booking.ServiceName,
		"cancelled_at": cancelledAt.UTC().Format(time.RFC3339),
		"reason":       req.Reason,
	})
	if err != nil {
		http.Error(w, "failed to build cancellation event", http.StatusInternalServerError)
		return
	}
	if err := h.events.Insert(ctx, tx, outbox.Event{
		AggregateType: outbox.AggregateBooking,
		AggregateID:   booking.ID,
		EventType:     outbox.EventBookingCancelled,
		Payload:       payload,
	}); err != nil {
		http.Error(w, "failed to write outbox event", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponse(booking.ID, cancelledAt))
}

// List answers GET /api/v1/bookings?staff_id=&date= with every booking of the
// day, cancelled ones included.
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	staffID := strings.TrimSpace(r.URL.Query().Get("staff_id"))
	if staffID == "" {
		http.Error(w, "staff_id required", http.StatusBadRequest)
		return
	}
	day, err := availability.ParseDate(r.URL.Query().Get("date"), h.engine.Config().Location)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	if h.store == nil {
		http.Error(w, "booking store unavailable", http.StatusServiceUnavailable)
		return
	}

	bookings, err := h.store.ListByStaffDay(r.Context(), staffID, day)
	if err != nil {
		http.Error(w, "failed to list bookings", http.StatusInternalServerError)
		return
	}

	items := make([]listBookingItem, 0, len(bookings))
	for _, b := range bookings {
		item := listBookingItem{
			BookingID:       b.ID,
			StaffID:         b.StaffID,
			Date:            availability.FormatDate(b.Date),
			StartTime:       b.StartTime,
			ServiceName:     b.ServiceName,
			Addons:          b.AddonNames,
			DurationMinutes: b.DurationMinutes,
			Status:          b.Status,
			CreatedAt:       b.CreatedAt.UTC().Format(time.RFC3339),
		}
		if item.Addons == nil {
			item.Addons = []string{}
		}
		if b.CancelledAt != nil {
			item.CancelledAt = b.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *BookingHandler) writeEngineError(w http.ResponseWriter, err error) {
	if errors.Is(err, availability.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error("availability query failed", "err", err)
	http.Error(w, "availability query failed", http.StatusInternalServerError)
}

func (h *BookingHandler) finalizeIdempotencyError(ctx context.Context, tx pgx.Tx, key string, statusCode int, msg string) bool {
	body, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return false
	}
	if err := h.store.FinalizeIdempotency(ctx, tx, key, "", statusCode, body); err != nil {
		h.logger.Error("failed to finalize idempotency (error)", "err", err)
		return false
	}
	return true
}

func cancelResponse(bookingID string, cancelledAt time.Time) cancelBookingResponse {
	return cancelBookingResponse{
		BookingID:   bookingID,
		Status:      model.StatusCancelled,
		CancelledAt: cancelledAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func splitList(raw string) []string {
	return cleanList(strings.Split(raw, ","))
}

func cleanList(in []string) []string {
	var out []string
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
