package availability

import "time"

// GenerateLattice returns every candidate start in [openHour:00, closeHour:00)
// spaced by granularity. An empty or inverted window yields no slots.
func GenerateLattice(openHour, closeHour int, granularity time.Duration) []Slot {
	step := Slot(granularity / time.Minute)
	if step <= 0 {
		return nil
	}
	if openHour < 0 {
		openHour = 0
	}
	if closeHour > 24 {
		closeHour = 24
	}
	if openHour >= closeHour {
		return nil
	}

	start, end := SlotAt(openHour, 0), SlotAt(closeHour, 0)
	out := make([]Slot, 0, int((end-start+step-1)/step))
	for s := start; s < end; s += step {
		out = append(out, s)
	}
	return out
}

// after keeps the slots that start strictly later than the time of day of now.
func after(lattice []Slot, now time.Time) []Slot {
	nowSec := now.Hour()*3600 + now.Minute()*60 + now.Second()
	out := make([]Slot, 0, len(lattice))
	for _, s := range lattice {
		if int(s)*60 > nowSec {
			out = append(out, s)
		}
	}
	return out
}
