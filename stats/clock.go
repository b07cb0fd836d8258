package stats

import "time"

// Clock supplies the current time. The engine never reads the wall clock
// directly so that day-rollover and window boundaries are deterministic in
// tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall-clock Clock used in production.
func SystemClock() Clock { return systemClock{} }

// FixedClock always reports the same instant.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }

// Midnight truncates t to local midnight, which is how day buckets are
// keyed against the DATE column.
func Midnight(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dayKey formats a bucket date for map lookups after rows come back from
// the store. Drivers may hand back another location for the same instant,
// so the key is always derived in local time.
func dayKey(t time.Time) string {
	return t.In(time.Local).Format("2006-01-02")
}
