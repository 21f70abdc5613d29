package scheduler

import (
	"testing"
	"time"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in     string
		kind   SpecKind
		every  time.Duration
		source string
		err    bool
	}{
		{in: "60s", kind: SpecInterval, every: time.Minute, source: "duration"},
		{in: "every:90s", kind: SpecInterval, every: 90 * time.Second, source: "duration"},
		{in: "interval:00:05", kind: SpecInterval, every: 5 * time.Minute, source: "hhmm"},
		{in: "01:30", kind: SpecInterval, every: 90 * time.Minute, source: "hhmm"},
		{in: "*/2 * * * *", kind: SpecCron, source: "cron"},
		{in: "0 */30 7-18 * * 1-5", kind: SpecCron, source: "cron"},
		{in: "@every 45s", kind: SpecCron, source: "cron"},
		{in: "cron:@hourly", kind: SpecCron, source: "cron"},
		{in: "", err: true},
		{in: "0s", err: true},
		{in: "00:61", err: true},
		{in: "soon", err: true},
		{in: "cron:", err: true},
		{in: "* * *", err: true},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.in)
		if tc.err {
			if err == nil {
				t.Errorf("%q: expected error, got %+v", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("%q: %v", tc.in, err)
			continue
		}
		if got.Kind != tc.kind || got.Every != tc.every || got.Source != tc.source {
			t.Errorf("%q: got %+v", tc.in, got)
		}
	}
}

func TestScheduleNext(t *testing.T) {
	t.Parallel()

	base := time.Date(2023, 10, 15, 9, 0, 7, 0, time.UTC)

	iv, _ := ParseSchedule("1500ms")
	s, err := iv.Schedule(nil)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := s.Next(base); !got.Equal(base.Add(1500 * time.Millisecond)) {
		t.Fatalf("interval next=%v", got)
	}

	cr, _ := ParseSchedule("*/5 * * * *")
	s, err = cr.Schedule(time.UTC)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if got := s.Next(base); !got.Equal(time.Date(2023, 10, 15, 9, 5, 0, 0, time.UTC)) {
		t.Fatalf("cron next=%v", got)
	}
}
