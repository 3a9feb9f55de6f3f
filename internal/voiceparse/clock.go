package voiceparse

import "time"

// isoDate is the layout of every date produced by this package.
const isoDate = "2006-01-02"

// Clock supplies the current time to callers that need "today". The parsers
// themselves take the time as an argument; Clock exists so that long-lived
// callers (the dialogue session, HTTP handlers) can be given a fixed time in
// tests.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to [Clock].
type ClockFunc func() time.Time

// Now implements [Clock].
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the local wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// FixedClock returns a [Clock] that always reports t.
func FixedClock(t time.Time) Clock {
	return ClockFunc(func() time.Time { return t })
}

// addDays returns the ISO date n calendar days after now.
func addDays(now time.Time, n int) string {
	return now.AddDate(0, 0, n).Format(isoDate)
}
