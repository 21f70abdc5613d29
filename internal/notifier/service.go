package notifier

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"burgerbot/internal/catalog"
	"burgerbot/internal/observability/metrics"
	rtsup "burgerbot/internal/runtime/supervisor"
	"burgerbot/internal/slots"
	kit "burgerbot/internal/transport"
	logx "burgerbot/pkg/logx"
)

type job struct {
	chatID  int64
	service slots.ServiceID
	text    string
}

// Service implements the async delivery pipeline:
// queue + worker pool + rate limit + circuit breaker + retry.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender Sender
	cat    *catalog.Catalog
	onGone func(ctx context.Context, chatID int64)

	cfg     Config
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[kit.MessageRef]

	accepting bool
	sendWG    sync.WaitGroup

	queue    chan job
	sup      *rtsup.Supervisor
	stopDone chan struct{} // non-nil while stopping

	queued, sent, gone, failed, dropped, open atomic.Uint64
}

func New(cfg Config, sender Sender, cat *catalog.Catalog, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cat == nil {
		cat = catalog.New("", nil)
	}
	s := &Service{sender: sender, cat: cat, log: log}
	s.applyLocked(cfg)
	return s
}

// OnGone registers the hook run after a send fails with ErrRecipientGone.
// It runs on a worker goroutine.
func (s *Service) OnGone(fn func(ctx context.Context, chatID int64)) {
	s.mu.Lock()
	s.onGone = fn
	s.mu.Unlock()
}

// Supervisor returns the worker supervisor (nil if not started).
func (s *Service) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	sup := s.sup
	s.mu.Unlock()
	return sup
}

// Apply swaps rate and retry settings. Worker and queue sizes take effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 512
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 25
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = time.Minute
	}

	old := s.cfg
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	if s.breaker == nil || old.BreakerFailures != cfg.BreakerFailures || old.BreakerOpenFor != cfg.BreakerOpenFor {
		s.breaker = s.newBreaker(cfg)
	}
}

func (s *Service) newBreaker(cfg Config) *gobreaker.CircuitBreaker[kit.MessageRef] {
	trip := uint32(cfg.BreakerFailures)
	log := s.log
	return gobreaker.NewCircuitBreaker[kit.MessageRef](gobreaker.Settings{
		Name:        "telegram.send",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= trip
		},
		// A chat that blocked the bot says nothing about the platform.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRecipientGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logx.String("breaker", name),
				logx.String("from", from.String()),
				logx.String("to", to.String()),
			)
		},
	})
}

func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	// If stopping, wait for it to finish before restarting.
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notifier"))),
		rtsup.WithCancelOnError(false),
	)
	sup := s.sup
	q := s.queue
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.GoRestart(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			// Clean exits happen on shutdown (queue close).
			s.mu.Lock()
			stopping := s.stopDone != nil
			s.mu.Unlock()
			if stopping {
				return context.Canceled
			}
			if c.Err() != nil {
				return c.Err()
			}
			return errors.New("notifier worker exited unexpectedly")
		}, rtsup.WithPublishFirstError(true))
	}
}

// Stop stops intake and drains the queue best-effort until ctx deadline.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		// Wait for in-flight enqueues, then close the queue so workers drain.
		s.sendWG.Wait()
		close(q)
		if sup != nil {
			_ = sup.Wait(context.Background())
		}
		s.mu.Lock()
		s.queue = nil
		s.stopDone = nil
		s.sup = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		if sup != nil {
			sup.Cancel()
		}
	}
}

// Deliver queues the announcement for slot to every recipient. It never
// waits for a send; recipients that do not fit in the queue are dropped and
// reported as ErrQueueFull.
func (s *Service) Deliver(ctx context.Context, slot slots.Slot, recipients []int64) error {
	if len(recipients) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	cat := s.cat
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	text := Message(cat, slot)
	dropped := 0
	for _, chatID := range recipients {
		select {
		case q <- job{chatID: chatID, service: slot.Service, text: text}:
			s.queued.Add(1)
		default:
			dropped++
		}
	}
	if dropped > 0 {
		s.dropped.Add(uint64(dropped))
		metrics.Deliveries.WithLabelValues("dropped").Add(float64(dropped))
		s.log.Warn("notification queue full",
			logx.Int("service", int(slot.Service)),
			logx.Int("dropped", dropped),
			logx.Int("recipients", len(recipients)),
		)
		return fmt.Errorf("%w: %d of %d recipients dropped", ErrQueueFull, dropped, len(recipients))
	}
	return nil
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	br := s.breaker
	s.mu.Unlock()
	return Stats{
		Queued:      s.queued.Load(),
		Sent:        s.sent.Load(),
		Gone:        s.gone.Load(),
		Failed:      s.failed.Load(),
		Dropped:     s.dropped.Load(),
		BreakerOpen: s.open.Load(),
		Breaker:     br.State().String(),
	}
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	br := s.breaker
	sender := s.sender
	onGone := s.onGone
	log := s.log
	s.mu.Unlock()

	if sender == nil {
		return
	}
	log = log.With(logx.Int64("chat_id", j.chatID), logx.Int("service", int(j.service)))
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}

	maxAttempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}

		_, err := br.Execute(func() (kit.MessageRef, error) {
			callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
			defer cancel()
			return sender.SendText(callCtx, kit.ChatTarget{ChatID: j.chatID}, j.text, opt)
		})
		switch {
		case err == nil:
			s.sent.Add(1)
			metrics.Deliveries.WithLabelValues("sent").Inc()
			log.Debug("notification sent")
			return
		case errors.Is(err, ErrRecipientGone):
			s.gone.Add(1)
			metrics.Deliveries.WithLabelValues("gone").Inc()
			log.Info("recipient unreachable, unregistering", logx.Err(err))
			if onGone != nil {
				onGone(ctx, j.chatID)
			}
			return
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			s.open.Add(1)
			metrics.Deliveries.WithLabelValues("breaker_open").Inc()
			log.Warn("notification skipped, circuit open")
			return
		}
		lastErr = err
		log.Debug("notification send failed", logx.Err(err), logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

		if attempt >= maxAttempts {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	s.failed.Add(1)
	metrics.Deliveries.WithLabelValues("failed").Inc()
	log.Warn("notification failed", logx.Err(lastErr), logx.Int("attempts", maxAttempts))
}

func retryDelay(cfg Config, attempt int) time.Duration {
	// Exponential backoff: base * 2^(attempt-1), jittered 0.7..1.3.
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	d = time.Duration(float64(d) * (0.7 + rand.Float64()*0.6))
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
