package voiceparse

import (
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		// relative offsets
		{"in 3 days", "2026-10-17", true},
		{"3 din baad", "2026-10-17", true},
		{"teen din mein", "2026-10-17", true},
		{"after 2 weeks", "2026-10-28", true},
		{"2 hafte baad", "2026-10-28", true},
		{"in a week", "2026-10-21", true},
		{"ek mahina mein", "2026-11-14", true},
		{"in a year", "2027-10-14", true},
		{"2 saal baad", "2028-10-14", true},
		{"1.5 din baad", "", false},
		{"dedh din baad", "", false},
		{"in 1.5 days", "", false},

		// numeric
		{"01 12 26", "2026-12-01", true},
		{"5/1/2027", "2027-01-05", true},
		{"31.02.26", "2026-02-31", true},
		{"13 13 26", "", false},

		// day and month name
		{"5th December", "2026-12-05", true},
		{"15 october", "2026-10-15", true},
		{"21 of march", "2027-03-21", true},
		{"3rd jan 2030", "2030-01-03", true},

		// keywords
		{"today", "2026-10-14", true},
		{"kal", "2026-10-15", true},
		{"day after tomorrow", "2026-10-16", true},
		{"parso", "2026-10-16", true},
		{"next week", "2026-10-21", true},

		{"sometime soon", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseDate(tt.in, testNow)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseDate(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseDate_RelativeFormsAgree(t *testing.T) {
	t.Parallel()

	a, okA := ParseDate("in 3 days", testNow)
	b, okB := ParseDate("3 din baad", testNow)
	if !okA || !okB || a != b {
		t.Errorf("relative forms disagree: %q (%v) vs %q (%v)", a, okA, b, okB)
	}
}

func TestParseDate_MonthOverflow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.January, 31, 12, 0, 0, 0, time.UTC)
	got, ok := ParseDate("in 1 month", now)
	if !ok || got != "2026-03-03" {
		t.Errorf("ParseDate(in 1 month) = (%q, %v), want (2026-03-03, true)", got, ok)
	}
}

func TestParseDate_MonthNameYearRollover(t *testing.T) {
	t.Parallel()

	tests := []struct {
		now  time.Time
		in   string
		want string
	}{
		{time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC), "5th december", "2026-12-05"},
		{time.Date(2026, time.December, 20, 0, 0, 0, 0, time.UTC), "5th november", "2027-11-05"},
		{time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), "5th december", "2026-12-05"},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in, tt.now)
		if !ok || got != tt.want {
			t.Errorf("ParseDate(%q) at %s = (%q, %v), want %q", tt.in, tt.now.Format(isoDate), got, ok, tt.want)
		}
	}
}
