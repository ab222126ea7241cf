package availability

import "testing"

func TestOccupiedSlots_HalfOpen(t *testing.T) {
	got := Strings(OccupiedSlots(mustSlot(t, "10:00"), 45, quarter))
	want := []string{"10:00", "10:15", "10:30"}
	if !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOccupiedSlots_PartialStep(t *testing.T) {
	// 50 minutes still reaches into the fourth quarter hour.
	got := Strings(OccupiedSlots(mustSlot(t, "10:00"), 50, quarter))
	want := []string{"10:00", "10:15", "10:30", "10:45"}
	if !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOccupiedSlots_UnalignedStart(t *testing.T) {
	// 10:05 for 45 minutes runs until 10:50 and touches four quarter hours.
	got := Strings(OccupiedSlots(mustSlot(t, "10:05"), 45, quarter))
	want := []string{"10:00", "10:05", "10:15", "10:30", "10:45"}
	if !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOccupiedSlots_UnalignedShortBooking(t *testing.T) {
	got := Strings(OccupiedSlots(mustSlot(t, "10:10"), 5, quarter))
	want := []string{"10:00", "10:10"}
	if !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestOccupiedSlots_NonPositive(t *testing.T) {
	if got := OccupiedSlots(mustSlot(t, "10:00"), 0, quarter); len(got) != 0 {
		t.Fatalf("expected nothing for zero duration, got %v", got)
	}
}

func TestOccupancySetUnion(t *testing.T) {
	set := OccupancySet{}
	set.Add(OccupiedSlots(mustSlot(t, "10:00"), 30, quarter)...)
	set.Add(OccupiedSlots(mustSlot(t, "10:15"), 30, quarter)...)
	got := Strings(set.Sorted())
	want := []string{"10:00", "10:15", "10:30"}
	if !equalStrings(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}
