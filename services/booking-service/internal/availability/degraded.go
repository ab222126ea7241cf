package availability

import (
	"context"
	"time"
)

// Deterministic fabricates a plausible occupied-set without touching the data
// store. The same staff and date always produce the same set, so a refreshed
// page shows the same slots.
type Deterministic struct {
	staffIndex  map[string]int
	granularity time.Duration
}

// NewDeterministic maps each known staff id to a small offset (its position
// plus one). Unknown ids get offset zero.
func NewDeterministic(knownStaff []string, cfg Config) *Deterministic {
	cfg = cfg.withDefaults()
	idx := make(map[string]int, len(knownStaff))
	for i, id := range knownStaff {
		if _, dup := idx[id]; !dup {
			idx[id] = i + 1
		}
	}
	return &Deterministic{staffIndex: idx, granularity: cfg.Granularity}
}

func (d *Deterministic) Seed(staffID string, day time.Time) int {
	return day.Day() + d.staffIndex[staffID]
}

type syntheticBlock struct {
	start   Slot
	minutes int
}

func (d *Deterministic) Occupancy(_ context.Context, staffID string, day time.Time) (OccupancySet, error) {
	occupied := OccupancySet{}
	for _, b := range d.pattern(d.Seed(staffID, day)) {
		occupied.Add(OccupiedSlots(b.start, b.minutes, d.granularity)...)
	}
	return occupied, nil
}

// pattern places one morning, lunch, afternoon and evening block; the seed
// shifts each of them by whole quarter hours.
func (d *Deterministic) pattern(seed int) []syntheticBlock {
	quarter := func(n int) Slot { return Slot(15 * n) }

	morning := syntheticBlock{start: SlotAt(10, 0), minutes: 45}
	if seed%2 == 0 {
		morning = syntheticBlock{start: SlotAt(9, 30), minutes: 30}
	}
	lunch := syntheticBlock{start: SlotAt(12, 0) + quarter(seed%3), minutes: 45}
	afternoon := syntheticBlock{start: SlotAt(14, 0) + quarter(seed%4), minutes: 60}
	if seed%3 == 0 {
		afternoon = syntheticBlock{start: SlotAt(15, 30), minutes: 30}
	}
	evening := syntheticBlock{start: SlotAt(19, 30), minutes: 30}
	if seed%2 == 1 {
		evening = syntheticBlock{start: SlotAt(18, 0) + quarter(seed%5), minutes: 45}
	}
	return []syntheticBlock{morning, lunch, afternoon, evening}
}
