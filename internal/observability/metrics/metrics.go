// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollResults counts per-service poll outcomes by status label.
	PollResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burgerbot_poll_results_total",
			Help: "Per-service poll outcomes",
		},
		[]string{"status"}, // slots_found, valid_no_slots, connection_issue, rate_limited, parse_error
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burgerbot_fetch_duration_seconds",
			Help:    "Booking page fetch latency",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 9), // 50ms to ~13s
		},
		[]string{"egress"},
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burgerbot_cycle_duration_seconds",
			Help:    "Wall time of one full poll cycle, cooldowns included",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
	)

	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burgerbot_poll_cycles_total",
		Help: "Completed poll cycles",
	})

	EgressToggles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "burgerbot_egress_toggles_total",
		Help: "Egress route flips caused by rate limiting or unparseable pages",
	})

	// EgressFallback is 1 while fetches go through the fallback route.
	EgressFallback = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burgerbot_egress_fallback",
		Help: "1 when the fallback egress route is active",
	})

	WatchedServices = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burgerbot_watched_services",
		Help: "Services in the watch set",
	})

	SlotsSeen = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burgerbot_slots_total",
			Help: "Slots seen by the poller, split by dedup outcome",
		},
		[]string{"result"}, // new, duplicate
	)

	DedupEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burgerbot_dedup_entries",
		Help: "Live entries in the notification dedup cache",
	})

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burgerbot_deliveries_total",
			Help: "Notification send attempts by result",
		},
		[]string{"result"}, // sent, gone, failed, dropped, breaker_open
	)

	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "burgerbot_subscribers",
		Help: "Registered chats",
	})
)
