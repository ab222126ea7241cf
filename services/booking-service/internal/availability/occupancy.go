package availability

import (
	"sort"
	"time"
)

// OccupancySet is the union of slots taken by existing bookings.
type OccupancySet map[Slot]struct{}

func (o OccupancySet) Add(slots ...Slot) {
	for _, s := range slots {
		o[s] = struct{}{}
	}
}

func (o OccupancySet) Has(s Slot) bool {
	_, ok := o[s]
	return ok
}

func (o OccupancySet) Sorted() []Slot {
	out := make([]Slot, 0, len(o))
	for s := range o {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OccupiedSlots expands a booking into the points it covers: the start itself
// plus every granularity slot that overlaps [start, start+duration). For an
// aligned start this is start, then one step at a time while the elapsed time
// is below the duration. An unaligned start also blocks the slot it falls in.
func OccupiedSlots(start Slot, durationMinutes int, granularity time.Duration) []Slot {
	step := Slot(granularity / time.Minute)
	if durationMinutes <= 0 || step <= 0 {
		return nil
	}
	end := start + Slot(durationMinutes)
	first := start - start%step
	out := make([]Slot, 0, int((end-first+step-1)/step)+1)
	if first < start {
		out = append(out, first)
	}
	out = append(out, start)
	for s := first + step; s < end; s += step {
		out = append(out, s)
	}
	return out
}
