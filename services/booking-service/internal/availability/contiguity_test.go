package availability

import "testing"

func TestFilterContiguous(t *testing.T) {
	tests := []struct {
		name     string
		lattice  []string
		occupied []string
		duration int
		want     []string
	}{
		{
			name:     "no run fits before closing",
			lattice:  []string{"09:00", "09:15", "09:30", "09:45"},
			duration: 75,
			want:     []string{},
		},
		{
			// The last step of the run is 09:45, the final lattice point.
			name:     "run ending exactly at closing fits",
			lattice:  []string{"09:00", "09:15", "09:30", "09:45"},
			duration: 60,
			want:     []string{"09:00"},
		},
		{
			name:     "single occupied slot blocks neighbours",
			lattice:  []string{"09:00", "09:15", "09:30", "09:45"},
			occupied: []string{"09:15"},
			duration: 30,
			want:     []string{"09:30"},
		},
		{
			name:     "single step service only needs its own slot",
			lattice:  []string{"09:00", "09:15", "09:30", "09:45"},
			occupied: []string{"09:15"},
			duration: 15,
			want:     []string{"09:00", "09:30", "09:45"},
		},
		{
			name:     "partial step rounds up",
			lattice:  []string{"09:00", "09:15", "09:30", "09:45"},
			occupied: []string{"09:30"},
			duration: 20,
			want:     []string{"09:00"},
		},
		{
			name:     "gap in lattice breaks the run",
			lattice:  []string{"09:00", "09:15", "10:00", "10:15"},
			duration: 30,
			want:     []string{"09:00", "10:00"},
		},
		{
			name:     "fully booked",
			lattice:  []string{"09:00", "09:15"},
			occupied: []string{"09:00", "09:15"},
			duration: 15,
			want:     []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			occupied := OccupancySet{}
			occupied.Add(slotList(t, tt.occupied...)...)
			got := Strings(FilterContiguous(slotList(t, tt.lattice...), occupied, tt.duration, quarter))
			if !equalStrings(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestFilterContiguous_SixtyMinutesNeedsFourFreeSlots(t *testing.T) {
	lattice := slotList(t, "09:00", "09:15", "09:30", "09:45")
	// Closing at 10:00: a 60 minute service needs 09:00..09:45 all free.
	occupied := OccupancySet{}
	occupied.Add(mustSlot(t, "09:45"))
	if got := FilterContiguous(lattice, occupied, 60, quarter); len(got) != 0 {
		t.Fatalf("expected no start, got %v", Strings(got))
	}
}

func TestFilterContiguous_PreservesLatticeOrder(t *testing.T) {
	lattice := GenerateLattice(9, 21, quarter)
	got := FilterContiguous(lattice, nil, 45, quarter)
	if len(got) != len(lattice)-2 {
		t.Fatalf("expected %d starts, got %d", len(lattice)-2, len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i] <= got[i-1] {
			t.Fatalf("output not ascending at %d: %s then %s", i, got[i-1], got[i])
		}
	}
	if got[len(got)-1].String() != "20:15" {
		t.Fatalf("expected last start 20:15, got %s", got[len(got)-1])
	}
}
