package config

import (
	"fmt"
	"strings"
	"time"
)

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Timings holds every duration in Config, parsed and defaulted.
type Timings struct {
	PollTimeout    time.Duration
	CommandTimeout time.Duration
	RequestTimeout time.Duration
	Cooldown       time.Duration
	DedupTTL       time.Duration
	BreakerOpenFor time.Duration
	BusyTimeout    time.Duration
}

func ResolveTimings(cfg *Config) (Timings, error) {
	var (
		t   Timings
		err error
	)
	fields := []struct {
		path string
		raw  string
		def  time.Duration
		dst  *time.Duration
	}{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout, 10 * time.Second, &t.PollTimeout},
		{"telegram.command_timeout", cfg.Telegram.CommandTimeout, 15 * time.Second, &t.CommandTimeout},
		{"poller.request_timeout", cfg.Poller.RequestTimeout, 10 * time.Second, &t.RequestTimeout},
		{"poller.cooldown", cfg.Poller.Cooldown, 300 * time.Second, &t.Cooldown},
		{"dedup.ttl", cfg.Dedup.TTL, 300 * time.Second, &t.DedupTTL},
		{"notifier.breaker.open_for", cfg.Notifier.Breaker.OpenFor, 60 * time.Second, &t.BreakerOpenFor},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout, 5 * time.Second, &t.BusyTimeout},
	}
	for _, f := range fields {
		if *f.dst, err = ParseDurationOrDefault(f.path, f.raw, f.def); err != nil {
			return Timings{}, err
		}
	}
	return t, nil
}
