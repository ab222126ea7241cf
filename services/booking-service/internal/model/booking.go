package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by stores when the requested record does not exist.
var ErrNotFound = errors.New("not found")

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPaid      = "paid"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// ActiveStatuses are the booking statuses that take calendar time. Every
// other status is ignored when computing occupancy.
func ActiveStatuses() []string {
	return []string{StatusConfirmed, StatusPending, StatusPaid}
}

func IsActiveStatus(status string) bool {
	for _, s := range ActiveStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

type Staff struct {
	ID     string
	Name   string
	Active bool
}

// WeeklySchedule is one weekday row. Open and Close come from the store as
// "HH:MM" or "HH:MM:SS" and may be empty when Available is false.
type WeeklySchedule struct {
	StaffID   string
	Weekday   time.Weekday
	Open      string
	Close     string
	Available bool
}

// TimeOffWindow covers StartDate through EndDate, both inclusive.
type TimeOffWindow struct {
	ID        string
	StaffID   string
	StartDate time.Time
	EndDate   time.Time
	Reason    string
}

func (w TimeOffWindow) Covers(day time.Time) bool {
	d := dateOnly(day)
	return !d.Before(dateOnly(w.StartDate)) && !d.After(dateOnly(w.EndDate))
}

// ActiveBooking is the slice of a booking the availability engine reads.
// DurationMinutes is zero when no authoritative duration is recorded.
type ActiveBooking struct {
	StartTime       string
	ServiceName     string
	AddonNames      []string
	DurationMinutes int
}

type Booking struct {
	ID              string
	StaffID         string
	Date            time.Time
	StartTime       string
	ServiceName     string
	AddonNames      []string
	DurationMinutes int
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Status          string
	CancelledAt     *time.Time
	CancelReason    string
	CreatedAt       time.Time
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
