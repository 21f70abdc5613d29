package poller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"burgerbot/internal/observability/metrics"
	"burgerbot/internal/slots"
	logx "burgerbot/pkg/logx"
)

// Fetcher is the transport the engine polls through.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, mode EgressMode) (*Page, error)
}

// URLBuilder maps a service to its availability page.
type URLBuilder interface {
	URL(id slots.ServiceID) string
}

type Options struct {
	// Cooldown is the whole-cycle pause after a rate-limited page. Default 300s.
	Cooldown time.Duration
	// Workers > 1 fetches services concurrently. Statuses and slots are
	// still applied in service id order.
	Workers int

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	Log   logx.Logger
}

// Engine owns the watch set, the egress mode and the status tracker.
type Engine struct {
	fetch Fetcher
	urls  URLBuilder
	opt   Options
	log   logx.Logger

	mu      sync.RWMutex
	watch   map[slots.ServiceID]struct{}
	egress  EgressMode
	tracker *Tracker

	// held for writing while a cooldown is in progress
	gate sync.RWMutex
}

func NewEngine(f Fetcher, urls URLBuilder, opt Options) *Engine {
	if opt.Cooldown <= 0 {
		opt.Cooldown = 300 * time.Second
	}
	if opt.Workers <= 0 {
		opt.Workers = 1
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}
	if opt.Sleep == nil {
		opt.Sleep = sleepCtx
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	return &Engine{
		fetch:   f,
		urls:    urls,
		opt:     opt,
		log:     opt.Log.With(logx.String("comp", "poller")),
		watch:   map[slots.ServiceID]struct{}{},
		tracker: NewTracker(),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AddService adds id to the watch set. Adding a watched id is a no-op.
func (e *Engine) AddService(id slots.ServiceID) {
	e.mu.Lock()
	e.watch[id] = struct{}{}
	n := len(e.watch)
	e.mu.Unlock()
	metrics.WatchedServices.Set(float64(n))
}

// RemoveService drops id from the watch set. Removing an absent id is a no-op.
func (e *Engine) RemoveService(id slots.ServiceID) {
	e.mu.Lock()
	delete(e.watch, id)
	n := len(e.watch)
	e.mu.Unlock()
	metrics.WatchedServices.Set(float64(n))
}

// Services returns the watch set in ascending order.
func (e *Engine) Services() []slots.ServiceID {
	e.mu.RLock()
	out := make([]slots.ServiceID, 0, len(e.watch))
	for id := range e.watch {
		out = append(out, id)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (e *Engine) Status(id slots.ServiceID) slots.PollStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tracker.Get(id, e.opt.Now())
}

func (e *Engine) Statuses() map[slots.ServiceID]slots.PollStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tracker.Snapshot()
}

func (e *Engine) Egress() EgressMode {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.egress
}

// Poll runs one cycle over a snapshot of the watch set and returns the slots
// found, in service id order. Per-service failures are recorded and skipped;
// the only error is ctx ending.
func (e *Engine) Poll(ctx context.Context) ([]slots.Slot, error) {
	ids := e.Services()
	if e.opt.Workers > 1 && len(ids) > 1 {
		return e.pollConcurrent(ctx, ids)
	}

	var found []slots.Slot
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return found, err
		}
		v, err := e.check(ctx, id)
		if err != nil {
			return found, err
		}
		e.apply(id, v)
		found = append(found, v.Slots...)
		if v.Cooldown {
			if err := e.cooldown(ctx, id); err != nil {
				return found, err
			}
		}
	}
	return found, nil
}

func (e *Engine) pollConcurrent(ctx context.Context, ids []slots.ServiceID) ([]slots.Slot, error) {
	verdicts := make([]Verdict, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opt.Workers)
	for i, id := range ids {
		g.Go(func() error {
			// wait out a cooldown another worker started
			e.gate.RLock()
			e.gate.RUnlock()

			v, err := e.check(gctx, id)
			if err != nil {
				return err
			}
			verdicts[i] = v
			if v.ToggleEgress {
				e.toggle(id, v.Kind)
			}
			if v.Cooldown {
				e.gate.Lock()
				defer e.gate.Unlock()
				return e.cooldown(gctx, id)
			}
			return nil
		})
	}
	err := g.Wait()

	var found []slots.Slot
	e.mu.Lock()
	at := e.opt.Now()
	for i, id := range ids {
		if verdicts[i].Kind == slots.NoneYet {
			continue // not reached before shutdown
		}
		e.tracker.Record(id, verdicts[i].Kind, at)
		metrics.PollResults.WithLabelValues(verdicts[i].Kind.Label()).Inc()
		found = append(found, verdicts[i].Slots...)
	}
	e.mu.Unlock()
	return found, err
}

// check fetches and interprets one service. A fetch failure becomes a
// ConnectionIssue verdict unless ctx itself ended.
func (e *Engine) check(ctx context.Context, id slots.ServiceID) (Verdict, error) {
	mode := e.Egress()
	page, err := e.fetch.Fetch(ctx, e.urls.URL(id), mode)
	if err != nil {
		if ctx.Err() != nil {
			return Verdict{}, ctx.Err()
		}
		fields := []logx.Field{logx.Int("service", int(id)), logx.String("egress", mode.String()), logx.Err(err)}
		if errors.Is(err, ErrConnectionIssue) {
			e.log.Warn("fetch failed", fields...)
		} else {
			e.log.Error("fetch failed", fields...)
		}
		return Verdict{Kind: slots.ConnectionIssue}, nil
	}
	metrics.FetchDuration.WithLabelValues(mode.String()).Observe(page.Latency.Seconds())

	if page.Truncated && page.Status != StatusRateLimited {
		e.log.Warn("page exceeds size limit; treating as parse error",
			logx.Int("service", int(id)),
			logx.String("egress", mode.String()),
			logx.Int("limit", maxPageSize),
		)
		return Verdict{Kind: slots.ParseError, ToggleEgress: true}, nil
	}
	v := Interpret(id, page.Body, page.Status)
	e.log.Debug("page checked",
		logx.Int("service", int(id)),
		logx.Int("http_status", page.Status),
		logx.String("status", v.Kind.Label()),
		logx.Int("slots", len(v.Slots)),
	)
	return v, nil
}

// apply records the verdict and flips egress when asked to.
func (e *Engine) apply(id slots.ServiceID, v Verdict) {
	e.mu.Lock()
	e.tracker.Record(id, v.Kind, e.opt.Now())
	e.mu.Unlock()
	metrics.PollResults.WithLabelValues(v.Kind.Label()).Inc()
	if v.ToggleEgress {
		e.toggle(id, v.Kind)
	}
}

// toggle is a plain flip-flop: every signal flips the mode, so two signals in
// a row land back on the original route.
func (e *Engine) toggle(id slots.ServiceID, cause slots.StatusKind) {
	e.mu.Lock()
	e.egress = e.egress.Toggle()
	mode := e.egress
	e.mu.Unlock()

	metrics.EgressToggles.Inc()
	if mode == Fallback {
		metrics.EgressFallback.Set(1)
	} else {
		metrics.EgressFallback.Set(0)
	}
	e.log.Info("egress toggled", logx.Int("service", int(id)), logx.String("cause", cause.Label()), logx.String("egress", mode.String()))
}

func (e *Engine) cooldown(ctx context.Context, id slots.ServiceID) error {
	e.log.Warn("rate limited; pausing cycle", logx.Int("service", int(id)), logx.Duration("cooldown", e.opt.Cooldown))
	return e.opt.Sleep(ctx, e.opt.Cooldown)
}
