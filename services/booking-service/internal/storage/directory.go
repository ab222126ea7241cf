package storage

import (
	"context"
	"strings"
	"time"

	"github.com/md-rashed-zaman/salonbook/libs/db"
	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

const dateLayout = "2006-01-02"

// Directory reads staff, schedules, time off, the service catalog and the
// bookings that occupy a day.
type Directory struct {
	pool *db.Pool
}

func NewDirectory(pool *db.Pool) *Directory {
	return &Directory{pool: pool}
}

func (d *Directory) GetStaff(ctx context.Context, staffID string) (model.Staff, error) {
	var s model.Staff
	err := d.pool.QueryRow(ctx, `
		SELECT id, name, is_active
		FROM staff
		WHERE id = $1
	`, staffID).Scan(&s.ID, &s.Name, &s.Active)
	if err != nil {
		return model.Staff{}, notFound(err)
	}
	return s, nil
}

// ActiveStaffIDs lists active staff in creation order.
func (d *Directory) ActiveStaffIDs(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id
		FROM staff
		WHERE is_active
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}

func (d *Directory) GetWeeklySchedule(ctx context.Context, staffID string, weekday time.Weekday) (model.WeeklySchedule, bool, error) {
	sched := model.WeeklySchedule{StaffID: staffID, Weekday: weekday}
	err := d.pool.QueryRow(ctx, `
		SELECT COALESCE(open_time::text, ''), COALESCE(close_time::text, ''), is_available
		FROM staff_weekly_schedule
		WHERE staff_id = $1 AND weekday = $2
	`, staffID, int(weekday)).Scan(&sched.Open, &sched.Close, &sched.Available)
	if err != nil {
		if IsNotFound(err) {
			return model.WeeklySchedule{}, false, nil
		}
		return model.WeeklySchedule{}, false, err
	}
	return sched, true, nil
}

func (d *Directory) HasTimeOff(ctx context.Context, staffID string, day time.Time) (bool, error) {
	var off bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM staff_time_off
			WHERE staff_id = $1
				AND $2::date BETWEEN start_date AND end_date
		)
	`, staffID, day.Format(dateLayout)).Scan(&off)
	return off, err
}

// ListActiveBookings returns the bookings of staffID on day whose status
// takes calendar time, ordered by start time.
func (d *Directory) ListActiveBookings(ctx context.Context, staffID string, day time.Time) ([]model.ActiveBooking, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT b.start_time::text,
			b.service_name,
			COALESCE(b.duration_minutes, 0),
			COALESCE(array_agg(a.addon_name ORDER BY a.addon_name) FILTER (WHERE a.addon_name IS NOT NULL), '{}')
		FROM bookings b
		LEFT JOIN booking_addons a ON a.booking_id = b.id
		WHERE b.staff_id = $1
			AND b.booking_date = $2::date
			AND b.status = ANY($3)
		GROUP BY b.id
		ORDER BY b.start_time ASC
	`, staffID, day.Format(dateLayout), model.ActiveStatuses())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ActiveBooking
	for rows.Next() {
		var b model.ActiveBooking
		if err := rows.Scan(&b.StartTime, &b.ServiceName, &b.DurationMinutes, &b.AddonNames); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// ServiceDuration sums the catalog durations of a service and its add-ons,
// matched by case-insensitive name. ok is false when any of them is missing.
func (d *Directory) ServiceDuration(ctx context.Context, serviceName string, addonNames []string) (int, bool, error) {
	var minutes int
	err := d.pool.QueryRow(ctx, `
		SELECT duration_minutes
		FROM services
		WHERE lower(name) = lower($1)
	`, strings.TrimSpace(serviceName)).Scan(&minutes)
	if err != nil {
		if IsNotFound(err) {
			return 0, false, nil
		}
		return 0, false, err
	}

	names := normalizeNames(addonNames)
	if len(names) == 0 {
		return minutes, true, nil
	}
	var found, addonMinutes int
	err = d.pool.QueryRow(ctx, `
		SELECT count(*), COALESCE(sum(duration_minutes), 0)
		FROM service_addons
		WHERE lower(name) = ANY($1)
	`, names).Scan(&found, &addonMinutes)
	if err != nil {
		return 0, false, err
	}
	if found != len(names) {
		return 0, false, nil
	}
	return minutes + addonMinutes, true, nil
}

// normalizeNames lowercases, trims and de-duplicates add-on names.
func normalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
