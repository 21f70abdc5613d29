package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"burgerbot/internal/observability/metrics"
	"burgerbot/internal/poller"
	"burgerbot/internal/slots"
	logx "burgerbot/pkg/logx"
)

// Poller runs one pass over the watch set.
type Poller interface {
	Poll(ctx context.Context) ([]slots.Slot, error)
	Services() []slots.ServiceID
	Egress() poller.EgressMode
}

// Dedup drops slots announced within its TTL.
type Dedup interface {
	FilterAndRecord(in []slots.Slot, now time.Time) []slots.Slot
	Len() int
}

type Deliverer interface {
	Deliver(ctx context.Context, slot slots.Slot, recipients []int64) error
}

type Recipients interface {
	RecipientsFor(id slots.ServiceID) []int64
}

type Options struct {
	// Location is used for cron schedules. Default time.Local.
	Location *time.Location
	Now      func() time.Time
	Log      logx.Logger
}

// CycleSummary describes one finished cycle.
type CycleSummary struct {
	ID       string        `json:"id"`
	Started  time.Time     `json:"started"`
	Finished time.Time     `json:"finished"`
	Took     time.Duration `json:"took"`
	Services int           `json:"services"`
	Found    int           `json:"found"`
	New      int           `json:"new"`
	Notified int           `json:"notified"`
	Egress   string        `json:"egress"`
	Err      string        `json:"error,omitempty"`
}

// Runner owns the poll loop. Apply may be called while Run is active.
type Runner struct {
	poller     Poller
	dedup      Dedup
	notifier   Deliverer
	recipients Recipients
	opt        Options
	log        logx.Logger

	mu    sync.Mutex
	spec  ParsedSpec
	sched cron.Schedule
	last  CycleSummary
	next  time.Time
	wake  chan struct{}
}

func NewRunner(schedule string, p Poller, d Dedup, n Deliverer, r Recipients, opt Options) (*Runner, error) {
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Location == nil {
		opt.Location = time.Local
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	run := &Runner{
		poller:     p,
		dedup:      d,
		notifier:   n,
		recipients: r,
		opt:        opt,
		log:        opt.Log.With(logx.String("comp", "scheduler")),
		wake:       make(chan struct{}, 1),
	}
	if err := run.Apply(schedule); err != nil {
		return nil, err
	}
	return run, nil
}

// Apply replaces the schedule. A waiting Run recomputes its next cycle.
func (r *Runner) Apply(schedule string) error {
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	sched, err := spec.Schedule(r.opt.Location)
	if err != nil {
		return err
	}

	r.mu.Lock()
	changed := r.spec.Raw != spec.Raw
	r.spec = spec
	r.sched = sched
	r.mu.Unlock()

	if changed {
		r.log.Info("schedule applied", logx.String("schedule", spec.String()))
		select {
		case r.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

func (r *Runner) Spec() ParsedSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.spec
}

func (r *Runner) LastCycle() CycleSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// Next is when the following cycle starts (zero while a cycle runs).
func (r *Runner) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.next
}

// RunCycle polls once, filters out announced slots and hands the rest to
// the notifier. Delivery failures are logged; the only error is ctx ending.
func (r *Runner) RunCycle(ctx context.Context) (CycleSummary, error) {
	sum := CycleSummary{
		ID:       uuid.NewString(),
		Started:  r.opt.Now(),
		Services: len(r.poller.Services()),
	}
	log := r.log.With(logx.String("cycle", sum.ID))
	log.Debug("cycle started", logx.Int("services", sum.Services))

	found, err := r.poller.Poll(ctx)
	sum.Found = len(found)
	if err == nil {
		fresh := r.dedup.FilterAndRecord(found, r.opt.Now())
		sum.New = len(fresh)
		metrics.SlotsSeen.WithLabelValues("new").Add(float64(len(fresh)))
		metrics.SlotsSeen.WithLabelValues("duplicate").Add(float64(len(found) - len(fresh)))
		metrics.DedupEntries.Set(float64(r.dedup.Len()))

		for _, s := range fresh {
			to := r.recipients.RecipientsFor(s.Service)
			if len(to) == 0 {
				continue
			}
			if derr := r.notifier.Deliver(ctx, s, to); derr != nil {
				log.Warn("deliver failed",
					logx.Int("service", int(s.Service)),
					logx.String("slot", s.ID),
					logx.Err(derr),
				)
				if ctx.Err() != nil {
					err = ctx.Err()
					break
				}
				continue
			}
			sum.Notified += len(to)
		}
	}

	sum.Finished = r.opt.Now()
	sum.Took = sum.Finished.Sub(sum.Started)
	sum.Egress = r.poller.Egress().String()
	if err != nil {
		sum.Err = err.Error()
	}

	r.mu.Lock()
	r.last = sum
	r.mu.Unlock()

	metrics.Cycles.Inc()
	metrics.CycleDuration.Observe(sum.Took.Seconds())
	log.Info("cycle finished",
		logx.Int("found", sum.Found),
		logx.Int("new", sum.New),
		logx.Int("notified", sum.Notified),
		logx.Duration("took", sum.Took),
		logx.String("egress", sum.Egress),
	)
	return sum, err
}

// Run executes cycles until ctx ends. The first cycle starts immediately.
func (r *Runner) Run(ctx context.Context) error {
	for {
		if _, err := r.RunCycle(ctx); err != nil && ctx.Err() == nil {
			r.log.Warn("cycle failed", logx.Err(err))
		}
		if err := r.waitNext(ctx); err != nil {
			return err
		}
	}
}

func (r *Runner) waitNext(ctx context.Context) error {
	for {
		r.mu.Lock()
		next := r.sched.Next(r.last.Finished)
		r.next = next
		r.mu.Unlock()

		d := next.Sub(r.opt.Now())
		if d <= 0 {
			break
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-r.wake:
			t.Stop()
			continue
		case <-t.C:
		}
		break
	}

	r.mu.Lock()
	r.next = time.Time{}
	r.mu.Unlock()
	return ctx.Err()
}
