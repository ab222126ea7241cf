package availability

import "time"

// Config holds the process-wide scheduling constants. They are values, not
// literals, so tests can run the engine against other windows.
type Config struct {
	// Granularity is the lattice step.
	Granularity time.Duration
	// DefaultOpenHour and DefaultCloseHour bound the working window for
	// weekdays without a schedule row.
	DefaultOpenHour  int
	DefaultCloseHour int
	// StoreTimeout bounds each round of data-store reads.
	StoreTimeout time.Duration
	// Location decides what "today" means.
	Location *time.Location
	// DisableEstimator turns off name-based duration guessing. Bookings
	// without an authoritative duration then occupy a single step.
	DisableEstimator bool
}

func DefaultConfig() Config {
	return Config{
		Granularity:      15 * time.Minute,
		DefaultOpenHour:  9,
		DefaultCloseHour: 21,
		StoreTimeout:     3 * time.Second,
		Location:         time.UTC,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Granularity < time.Minute {
		c.Granularity = d.Granularity
	}
	if c.DefaultOpenHour == 0 && c.DefaultCloseHour == 0 {
		c.DefaultOpenHour = d.DefaultOpenHour
		c.DefaultCloseHour = d.DefaultCloseHour
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = d.StoreTimeout
	}
	if c.Location == nil {
		c.Location = d.Location
	}
	return c
}

func (c Config) stepMinutes() int {
	return int(c.Granularity / time.Minute)
}
