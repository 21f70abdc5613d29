package app

import (
	"context"
	"time"

	"burgerbot/internal/notifier"
	rtsup "burgerbot/internal/runtime/supervisor"
	"burgerbot/internal/slots"
	"burgerbot/internal/task/scheduler"
)

// StatusDoc is served at /status.
type StatusDoc struct {
	Started     time.Time                            `json:"started"`
	Uptime      string                               `json:"uptime"`
	Egress      string                               `json:"egress"`
	Schedule    string                               `json:"schedule"`
	Watching    []slots.ServiceID                    `json:"watching"`
	Statuses    map[slots.ServiceID]slots.PollStatus `json:"statuses"`
	Subscribers int                                  `json:"subscribers"`
	DedupSize   int                                  `json:"dedup_entries"`
	LastCycle   *scheduler.CycleSummary              `json:"last_cycle,omitempty"`
	NextCycle   *time.Time                           `json:"next_cycle,omitempty"`
	Notifier    notifier.Stats                       `json:"notifier"`
	Supervisors map[string]rtsup.Snapshot            `json:"supervisors"`
}

func (a *App) statusDoc(context.Context) any {
	doc := StatusDoc{
		Started:     a.started,
		Uptime:      time.Since(a.started).Truncate(time.Second).String(),
		Egress:      a.engine.Egress().String(),
		Schedule:    a.runner.Spec().String(),
		Watching:    a.engine.Services(),
		Statuses:    a.engine.Statuses(),
		Subscribers: a.subs.Count(),
		DedupSize:   a.dedup.Len(),
		Notifier:    a.notif.Stats(),
		Supervisors: map[string]rtsup.Snapshot{},
	}
	if last := a.runner.LastCycle(); last.ID != "" {
		doc.LastCycle = &last
	}
	if next := a.runner.Next(); !next.IsZero() {
		doc.NextCycle = &next
	}

	sups := map[string]*rtsup.Supervisor{
		"app":              a.sup,
		"notifier":         a.notif.Supervisor(),
		"telegram.adapter": a.adapter.Supervisor(),
		"telegram.router":  a.router.Supervisor(),
		"ops":              a.ops.Supervisor(),
	}
	for name, s := range sups {
		if s != nil {
			doc.Supervisors[name] = s.Snapshot()
		}
	}
	return doc
}
