package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/storage"
)

type fakeTx struct {
	pgx.Tx
	committed bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error { return nil }

type fakeStore struct {
	tx          *fakeTx
	bookings    map[string]model.Booking
	createErr   error
	idempotency map[string]storage.IdempotencyRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings:    map[string]model.Booking{},
		idempotency: map[string]storage.IdempotencyRecord{},
	}
}

func (s *fakeStore) Begin(context.Context) (pgx.Tx, error) {
	s.tx = &fakeTx{}
	return s.tx, nil
}

func (s *fakeStore) LockIdempotencyKey(_ context.Context, _ pgx.Tx, key string) (storage.IdempotencyRecord, bool, error) {
	rec, ok := s.idempotency[key]
	return rec, ok && rec.StatusCode > 0, nil
}

func (s *fakeStore) FinalizeIdempotency(_ context.Context, _ pgx.Tx, key, bookingID string, statusCode int, response []byte) error {
	s.idempotency[key] = storage.IdempotencyRecord{IdempotencyKey: key, BookingID: bookingID, StatusCode: statusCode, ResponsePayload: response}
	return nil
}

func (s *fakeStore) Create(_ context.Context, _ pgx.Tx, b *model.Booking) (string, error) {
	if s.createErr != nil {
		return "", s.createErr
	}
	b.ID = "b-" + b.StartTime
	s.bookings[b.ID] = *b
	return b.ID, nil
}

func (s *fakeStore) GetForUpdate(_ context.Context, _ pgx.Tx, id string) (model.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return model.Booking{}, model.ErrNotFound
	}
	return b, nil
}

func (s *fakeStore) Cancel(_ context.Context, _ pgx.Tx, id, reason string) (time.Time, error) {
	b := s.bookings[id]
	at := time.Date(2026, 1, 20, 8, 0, 0, 0, time.UTC)
	b.Status = model.StatusCancelled
	b.CancelledAt = &at
	b.CancelReason = reason
	s.bookings[id] = b
	return at, nil
}

func (s *fakeStore) ListByStaffDay(_ context.Context, staffID string, _ time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.StaffID == staffID {
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeEvents struct {
	events []outbox.Event
}

func (f *fakeEvents) Insert(_ context.Context, _ pgx.Tx, evt outbox.Event) error {
	f.events = append(f.events, evt)
	return nil
}

type fakeDirectory struct{}

func (fakeDirectory) GetStaff(_ context.Context, id string) (model.Staff, error) {
	if id == "s1" {
		return model.Staff{ID: id, Active: true}, nil
	}
	return model.Staff{}, model.ErrNotFound
}

func (fakeDirectory) GetWeeklySchedule(context.Context, string, time.Weekday) (model.WeeklySchedule, bool, error) {
	return model.WeeklySchedule{}, false, nil
}

func (fakeDirectory) HasTimeOff(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

type fakeBookings struct {
	active []model.ActiveBooking
	err    error
}

func (f *fakeBookings) ListActiveBookings(context.Context, string, time.Time) ([]model.ActiveBooking, error) {
	return f.active, f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testEngine(bookings *fakeBookings) *availability.Engine {
	cfg := availability.DefaultConfig()
	clock := func() time.Time { return time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC) }
	return availability.NewEngine(cfg, fakeDirectory{}, availability.NewLiveStore(bookings, cfg), nil, testLogger(), availability.WithClock(clock))
}

func TestSlots(t *testing.T) {
	h := NewBookingHandler(testEngine(&fakeBookings{active: []model.ActiveBooking{{StartTime: "09:00", DurationMinutes: 60}}}), nil, nil, testLogger())

	rr := httptest.NewRecorder()
	h.Slots(rr, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?staff_id=s1&date=2026-01-28&service_name=Kids%20Cut", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp slotsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.DurationMinutes != 30 {
		t.Fatalf("expected estimated 30 minutes, got %d", resp.DurationMinutes)
	}
	if resp.Date != "2026-01-28" || resp.StaffID != "s1" {
		t.Fatalf("unexpected echo %+v", resp)
	}
	if len(resp.Slots) == 0 || resp.Slots[0] != "10:00" {
		t.Fatalf("expected first slot 10:00, got %v", resp.Slots)
	}
}

func TestSlots_UnknownStaffIsEmptyList(t *testing.T) {
	h := NewBookingHandler(testEngine(&fakeBookings{}), nil, nil, testLogger())
	rr := httptest.NewRecorder()
	h.Slots(rr, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?staff_id=ghost&date=2026-01-28&duration_minutes=30", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"slots":[]`) {
		t.Fatalf("expected empty slots array, got %s", rr.Body.String())
	}
}

func TestSlots_StoreFailureStillAnswers(t *testing.T) {
	h := NewBookingHandler(testEngine(&fakeBookings{err: errors.New("timeout")}), nil, nil, testLogger())
	rr := httptest.NewRecorder()
	h.Slots(rr, httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?staff_id=s1&date=2026-01-28&duration_minutes=30", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 in degraded mode, got %d", rr.Code)
	}
}

func TestSlots_InvalidInput(t *testing.T) {
	h := NewBookingHandler(testEngine(&fakeBookings{}), nil, nil, testLogger())
	for _, target := range []string{
		"/api/v1/public/slots?date=2026-01-28&duration_minutes=30",
		"/api/v1/public/slots?staff_id=s1&date=2026-13-01&duration_minutes=30",
		"/api/v1/public/slots?staff_id=s1&date=2026-01-28&duration_minutes=-5",
		"/api/v1/public/slots?staff_id=s1&date=2026-01-28&duration_minutes=abc",
		"/api/v1/public/slots?staff_id=s1&date=2026-01-28",
	} {
		rr := httptest.NewRecorder()
		h.Slots(rr, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
	}
}

func bookBody(start string) string {
	return `{"staff_id":"s1","date":"2026-01-28","start_time":"` + start + `","service_name":"Classic Cut","addons":["dye"],"customer_name":"Ada"}`
}

func TestCreate(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	h := NewBookingHandler(testEngine(&fakeBookings{}), store, events, testLogger())

	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("10:00:00"))))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp createBookingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	b, ok := store.bookings[resp.BookingID]
	if !ok {
		t.Fatalf("booking %q not stored", resp.BookingID)
	}
	if b.Status != model.StatusPending || b.StartTime != "10:00" || b.DurationMinutes != 75 {
		t.Fatalf("unexpected booking %+v", b)
	}
	if !store.tx.committed {
		t.Fatal("expected commit")
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventBookingBooked {
		t.Fatalf("expected one booked event, got %+v", events.events)
	}
}

func TestCreate_SlotTaken(t *testing.T) {
	bookings := &fakeBookings{active: []model.ActiveBooking{{StartTime: "10:00", DurationMinutes: 30}}}
	h := NewBookingHandler(testEngine(bookings), newFakeStore(), &fakeEvents{}, testLogger())
	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("10:15"))))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
}

func TestCreate_ConflictOnInsert(t *testing.T) {
	cases := map[string]string{
		"same start":  "23505",
		"overlapping": "23P01",
	}
	for name, code := range cases {
		t.Run(name, func(t *testing.T) {
			store := newFakeStore()
			store.createErr = &pgconn.PgError{Code: code}
			h := NewBookingHandler(testEngine(&fakeBookings{}), store, &fakeEvents{}, testLogger())
			rr := httptest.NewRecorder()
			h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("11:00"))))
			if rr.Code != http.StatusConflict {
				t.Fatalf("expected 409, got %d", rr.Code)
			}
		})
	}
}

func TestCreate_StoreFailureIsNotDegraded(t *testing.T) {
	store := newFakeStore()
	h := NewBookingHandler(testEngine(&fakeBookings{err: errors.New("timeout")}), store, &fakeEvents{}, testLogger())
	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("11:00"))))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	if len(store.bookings) != 0 {
		t.Fatal("no booking should be written against synthetic availability")
	}
}

func TestCreate_NoStoreConfigured(t *testing.T) {
	h := NewBookingHandler(testEngine(&fakeBookings{}), nil, nil, testLogger())
	rr := httptest.NewRecorder()
	h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("11:00"))))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestCreate_Validation(t *testing.T) {
	h := NewBookingHandler(testEngine(&fakeBookings{}), newFakeStore(), &fakeEvents{}, testLogger())
	for _, body := range []string{
		`not json`,
		`{"staff_id":"s1","date":"2026-01-28","start_time":"10:00"}`,
		`{"staff_id":"s1","date":"28/01/2026","start_time":"10:00","service_name":"Cut","customer_name":"Ada"}`,
		`{"staff_id":"s1","date":"2026-01-28","start_time":"25:00","service_name":"Cut","customer_name":"Ada"}`,
		`{"staff_id":"s1","date":"2026-01-28","start_time":"10:00","service_name":"Cut","customer_name":"Ada","duration_minutes":-10}`,
	} {
		rr := httptest.NewRecorder()
		h.Create(rr, httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(body)))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestCreate_IdempotencyReplay(t *testing.T) {
	store := newFakeStore()
	events := &fakeEvents{}
	h := NewBookingHandler(testEngine(&fakeBookings{}), store, events, testLogger())

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/public/book", strings.NewReader(bookBody("12:00")))
		req.Header.Set("Idempotency-Key", "key-1")
		rr := httptest.NewRecorder()
		h.Create(rr, req)
		return rr
	}
	first := send()
	second := send()
	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("expected 201 twice, got %d and %d", first.Code, second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatalf("replay body differs: %s vs %s", first.Body.String(), second.Body.String())
	}
	if len(events.events) != 1 {
		t.Fatalf("replay must not emit another event, got %d", len(events.events))
	}
}

func TestCancel(t *testing.T) {
	store := newFakeStore()
	store.bookings["b1"] = model.Booking{ID: "b1", StaffID: "s1", StartTime: "10:00", Status: model.StatusConfirmed}
	store.bookings["b2"] = model.Booking{ID: "b2", StaffID: "s1", StartTime: "11:00", Status: model.StatusCompleted}
	events := &fakeEvents{}
	h := NewBookingHandler(testEngine(&fakeBookings{}), store, events, testLogger())

	cancel := func(id string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.Cancel(rr, httptest.NewRequest(http.MethodPost, "/api/v1/bookings/cancel", strings.NewReader(`{"booking_id":"`+id+`","reason":"sick"}`)))
		return rr
	}

	rr := cancel("b1")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp cancelBookingResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != model.StatusCancelled || resp.CancelledAt != "2026-01-20T08:00:00Z" {
		t.Fatalf("unexpected response %+v", resp)
	}

	again := cancel("b1")
	if again.Code != http.StatusOK || again.Body.String() != rr.Body.String() {
		t.Fatalf("second cancel should replay the first, got %d %s", again.Code, again.Body.String())
	}
	if len(events.events) != 1 || events.events[0].EventType != outbox.EventBookingCancelled {
		t.Fatalf("expected exactly one cancelled event, got %+v", events.events)
	}

	if rr := cancel("missing"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if rr := cancel("b2"); rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 for a completed booking, got %d", rr.Code)
	}
}

func TestList(t *testing.T) {
	store := newFakeStore()
	store.bookings["b1"] = model.Booking{ID: "b1", StaffID: "s1", StartTime: "10:00", Status: model.StatusPending}
	h := NewBookingHandler(testEngine(&fakeBookings{}), store, &fakeEvents{}, testLogger())

	rr := httptest.NewRecorder()
	h.List(rr, httptest.NewRequest(http.MethodGet, "/api/v1/bookings?staff_id=s1&date=2026-01-28", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var items []listBookingItem
	if err := json.Unmarshal(rr.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 1 || items[0].BookingID != "b1" || items[0].Addons == nil {
		t.Fatalf("unexpected items %+v", items)
	}
}
