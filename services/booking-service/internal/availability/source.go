package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/salonbook/services/booking-service/internal/model"
)

// OccupancySource produces the occupied-set for one staff member on one day.
type OccupancySource interface {
	Occupancy(ctx context.Context, staffID string, day time.Time) (OccupancySet, error)
}

// BookingLister returns the bookings in an active status for a staff/day.
type BookingLister interface {
	ListActiveBookings(ctx context.Context, staffID string, day time.Time) ([]model.ActiveBooking, error)
}

// LiveStore reads real bookings from the data store.
type LiveStore struct {
	bookings    BookingLister
	granularity time.Duration
	estimate    bool
}

func NewLiveStore(bookings BookingLister, cfg Config) *LiveStore {
	cfg = cfg.withDefaults()
	return &LiveStore{
		bookings:    bookings,
		granularity: cfg.Granularity,
		estimate:    !cfg.DisableEstimator,
	}
}

func (s *LiveStore) Occupancy(ctx context.Context, staffID string, day time.Time) (OccupancySet, error) {
	bookings, err := s.bookings.ListActiveBookings(ctx, staffID, day)
	if err != nil {
		return nil, err
	}
	occupied := OccupancySet{}
	for _, b := range bookings {
		start, err := ParseSlot(b.StartTime)
		if err != nil {
			return nil, fmt.Errorf("booking start %q: %w", b.StartTime, err)
		}
		minutes := ResolveDuration(b.DurationMinutes, b.ServiceName, b.AddonNames, s.estimate)
		if minutes <= 0 {
			minutes = int(s.granularity / time.Minute)
		}
		occupied.Add(OccupiedSlots(start, minutes, s.granularity)...)
	}
	return occupied, nil
}
