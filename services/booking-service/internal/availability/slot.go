package availability

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput marks caller mistakes: a malformed date or time, an empty
// staff id or a non-positive duration.
var ErrInvalidInput = errors.New("invalid input")

const dateLayout = "2006-01-02"

// Slot is a time of day, in minutes after midnight. The calendar date is
// implied by the query it belongs to.
type Slot int

func SlotAt(hour, minute int) Slot {
	return Slot(hour*60 + minute)
}

func (s Slot) Hour() int   { return int(s) / 60 }
func (s Slot) Minute() int { return int(s) % 60 }

func (s Slot) Add(d time.Duration) Slot {
	return s + Slot(d/time.Minute)
}

// String formats the slot as 24-hour HH:MM.
func (s Slot) String() string {
	return fmt.Sprintf("%02d:%02d", s.Hour(), s.Minute())
}

func (s Slot) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ParseSlot accepts "HH:MM" and "HH:MM:SS"; seconds are dropped. "24:00"
// is midnight at the end of the day, as Postgres stores a closing time.
func ParseSlot(raw string) (Slot, error) {
	v := strings.TrimSpace(raw)
	if v == "24:00" || v == "24:00:00" {
		return SlotAt(24, 0), nil
	}
	if len(v) > 5 && v[len(v)-3] == ':' {
		v = v[:len(v)-3]
	}
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q", ErrInvalidInput, raw)
	}
	return SlotAt(t.Hour(), t.Minute()), nil
}

// ParseDate parses a YYYY-MM-DD calendar date in loc.
func ParseDate(raw string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(raw), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q", ErrInvalidInput, raw)
	}
	return day, nil
}

func FormatDate(day time.Time) string {
	return day.Format(dateLayout)
}

// Strings renders slots as HH:MM values, never returning nil.
func Strings(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	return out
}
