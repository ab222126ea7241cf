package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	IdempotencyKey  string
	BookingID       string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockIdempotencyKey claims key for the current transaction. exists is true
// when an earlier request already used it; rec then holds its outcome.
func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, key)
	if err == nil {
		return rec, rec.StatusCode > 0, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, rec.StatusCode > 0, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, key, bookingID string, statusCode int, response []byte) error {
	var id *string
	if bookingID != "" {
		id = &bookingID
	}
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET booking_id = $2,
			status_code = $3,
			response_payload = $4,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, id, statusCode, response)
	return err
}

// Create inserts the booking and its add-ons. The partial unique index on
// (staff_id, booking_date, start_time) and the bookings_no_overlap exclusion
// constraint reject a clashing active booking; see IsConflict.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, b *model.Booking) (string, error) {
	id := uuid.NewString()
	var duration *int
	if b.DurationMinutes > 0 {
		duration = &b.DurationMinutes
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings
			(id, staff_id, booking_date, start_time, service_name, duration_minutes,
			 customer_name, customer_email, customer_phone, status)
		VALUES ($1, $2, $3::date, $4::time, $5, $6, $7, $8, $9, $10)
	`, id, b.StaffID, b.Date.Format(dateLayout), b.StartTime, b.ServiceName, duration,
		b.CustomerName, b.CustomerEmail, b.CustomerPhone, b.Status)
	if err != nil {
		return "", err
	}
	for _, addon := range b.AddonNames {
		if _, err := tx.Exec(ctx, `
			INSERT INTO booking_addons (booking_id, addon_name)
			VALUES ($1, $2)
		`, id, addon); err != nil {
			return "", err
		}
	}
	b.ID = id
	return id, nil
}

const bookingColumns = `
	b.id::text, b.staff_id, b.booking_date, to_char(b.start_time, 'HH24:MI'), b.service_name,
	COALESCE(b.duration_minutes, 0), b.customer_name, COALESCE(b.customer_email, ''),
	COALESCE(b.customer_phone, ''), b.status, b.cancelled_at,
	COALESCE(b.cancellation_reason, ''), b.created_at,
	COALESCE((SELECT array_agg(a.addon_name ORDER BY a.addon_name) FROM booking_addons a WHERE a.booking_id = b.id), '{}')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (model.Booking, error) {
	var b model.Booking
	var cancelledAt *time.Time
	err := row.Scan(
		&b.ID,
		&b.StaffID,
		&b.Date,
		&b.StartTime,
		&b.ServiceName,
		&b.DurationMinutes,
		&b.CustomerName,
		&b.CustomerEmail,
		&b.CustomerPhone,
		&b.Status,
		&cancelledAt,
		&b.CancelReason,
		&b.CreatedAt,
		&b.AddonNames,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.CancelledAt = cancelledAt
	return b, nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, bookingID string) (model.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return model.Booking{}, model.ErrNotFound
	}
	b, err := scanBooking(tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		WHERE b.id = $1
		FOR UPDATE
	`, bookingID))
	if err != nil {
		return model.Booking{}, notFound(err)
	}
	return b, nil
}

func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, bookingID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE bookings
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2
		WHERE id = $1
		RETURNING cancelled_at
	`, bookingID, reason).Scan(&cancelledAt)
	return cancelledAt, notFound(err)
}

// ListByStaffDay returns every booking of staffID on day, whatever its
// status, ordered by start time.
func (r *BookingRepository) ListByStaffDay(ctx context.Context, staffID string, day time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b
		WHERE b.staff_id = $1 AND b.booking_date = $2::date
		ORDER BY b.start_time ASC, b.created_at ASC
	`, staffID, day.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT idempotency_key,
			COALESCE(booking_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(
		&rec.IdempotencyKey,
		&rec.BookingID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
