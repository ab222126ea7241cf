package availability

import "time"

// FilterContiguous returns, in lattice order, every start s that is free and
// whose following ceil(duration/granularity)-1 steps are free and still part
// of the lattice. The last condition keeps a service from running past
// closing time.
func FilterContiguous(lattice []Slot, occupied OccupancySet, durationMinutes int, granularity time.Duration) []Slot {
	step := int(granularity / time.Minute)
	out := make([]Slot, 0, len(lattice))
	if durationMinutes <= 0 || step <= 0 {
		return out
	}
	needed := (durationMinutes + step - 1) / step

	inLattice := make(map[Slot]struct{}, len(lattice))
	for _, s := range lattice {
		inLattice[s] = struct{}{}
	}

	for _, s := range lattice {
		if occupied.Has(s) {
			continue
		}
		fits := true
		for k := 1; k < needed; k++ {
			next := s + Slot(k*step)
			if _, ok := inLattice[next]; !ok || occupied.Has(next) {
				fits = false
				break
			}
		}
		if fits {
			out = append(out, s)
		}
	}
	return out
}
