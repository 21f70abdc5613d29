package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"burgerbot/internal/catalog"
	"burgerbot/internal/slots"
	kit "burgerbot/internal/transport"
	logx "burgerbot/pkg/logx"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	calls map[int64]int
	// fail returns the error for the n-th call (1-based) to chatID.
	fail    func(chatID int64, n int) error
	entered chan int64
	release chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{calls: map[int64]int{}}
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if f.entered != nil {
		f.entered <- to.ChatID
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[to.ChatID]++
	if f.fail != nil {
		if err := f.fail(to.ChatID, f.calls[to.ChatID]); err != nil {
			return kit.MessageRef{}, err
		}
	}
	if opt == nil || opt.ParseMode != "HTML" {
		return kit.MessageRef{}, errors.New("expected HTML parse mode")
	}
	f.sent = append(f.sent, fmt.Sprintf("%d:%s", to.ChatID, text))
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) callsTo(chatID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[chatID]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

var slot = slots.Slot{ID: "/terminvereinbarung/termin/time/20231015/", Service: 120686}

func TestMessageFormat(t *testing.T) {
	t.Parallel()

	msg := Message(catalog.New("", nil), slot)
	for _, want := range []string{
		"There are slots on 15 October available for booking for Anmeldung",
		`click <a href="https://service.berlin.de/terminvereinbarung/termin/tag.php?anliegen[]=120686&amp;dienstleisterlist=`,
		"to check it out",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message %q missing %q", msg, want)
		}
	}

	fallback := Message(catalog.New("", nil), slots.Slot{ID: "/no/date/", Service: 120686})
	if !strings.Contains(fallback, "slots on an upcoming day") {
		t.Fatalf("fallback date missing: %q", fallback)
	}
}

func TestDeliverFansOutToRecipients(t *testing.T) {
	f := newFakeSender()
	s := New(Config{Workers: 2}, f, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	if err := s.Deliver(context.Background(), slot, []int64{1, 2, 3}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	waitFor(t, "three sends", func() bool { return s.Stats().Sent == 3 })
	for _, id := range []int64{1, 2, 3} {
		if f.callsTo(id) != 1 {
			t.Fatalf("chat %d got %d sends", id, f.callsTo(id))
		}
	}
}

func TestRecipientGoneRunsHookAndSkipsOthers(t *testing.T) {
	f := newFakeSender()
	f.fail = func(chatID int64, _ int) error {
		if chatID == 2 {
			return fmt.Errorf("%w: Forbidden: bot was blocked by the user", kit.ErrRecipientGone)
		}
		return nil
	}
	s := New(Config{Workers: 1, RetryMax: 3, RetryBase: time.Millisecond}, f, nil, logx.Nop())

	var (
		mu   sync.Mutex
		gone []int64
	)
	s.OnGone(func(_ context.Context, chatID int64) {
		mu.Lock()
		gone = append(gone, chatID)
		mu.Unlock()
	})
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Deliver(context.Background(), slot, []int64{1, 2, 3})
	waitFor(t, "deliveries", func() bool { st := s.Stats(); return st.Sent == 2 && st.Gone == 1 })

	mu.Lock()
	defer mu.Unlock()
	if fmt.Sprint(gone) != "[2]" {
		t.Fatalf("gone hook calls=%v", gone)
	}
	if f.callsTo(2) != 1 {
		t.Fatalf("gone recipient must not be retried, calls=%d", f.callsTo(2))
	}
}

func TestTransientErrorsAreRetried(t *testing.T) {
	f := newFakeSender()
	f.fail = func(_ int64, n int) error {
		if n < 3 {
			return errors.New("telegram: 502 bad gateway")
		}
		return nil
	}
	s := New(Config{Workers: 1, RetryMax: 2, RetryBase: time.Millisecond, RetryMaxDelay: 2 * time.Millisecond}, f, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Deliver(context.Background(), slot, []int64{9})
	waitFor(t, "retried send", func() bool { return s.Stats().Sent == 1 })
	if f.callsTo(9) != 3 {
		t.Fatalf("calls=%d want 3", f.callsTo(9))
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	f := newFakeSender()
	f.fail = func(int64, int) error { return errors.New("network down") }
	s := New(Config{Workers: 1, BreakerFailures: 2, BreakerOpenFor: time.Hour}, f, nil, logx.Nop())
	s.Start(context.Background())
	defer s.Stop(context.Background())

	_ = s.Deliver(context.Background(), slot, []int64{1, 2, 3, 4})
	waitFor(t, "all jobs handled", func() bool {
		st := s.Stats()
		return st.Failed+st.BreakerOpen == 4
	})
	st := s.Stats()
	if st.Failed != 2 || st.BreakerOpen != 2 || st.Breaker != "open" {
		t.Fatalf("stats=%+v", st)
	}
	if f.callsTo(3) != 0 || f.callsTo(4) != 0 {
		t.Fatalf("open breaker must short-circuit sends")
	}
}

func TestDeliverQueueFull(t *testing.T) {
	f := newFakeSender()
	f.entered = make(chan int64, 8)
	f.release = make(chan struct{})
	s := New(Config{Workers: 1, QueueSize: 1}, f, nil, logx.Nop())
	s.Start(context.Background())

	if err := s.Deliver(context.Background(), slot, []int64{1}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	<-f.entered // the only worker is now busy

	err := s.Deliver(context.Background(), slot, []int64{2, 3, 4})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want ErrQueueFull", err)
	}
	if got := s.Stats().Dropped; got != 2 {
		t.Fatalf("dropped=%d want 2", got)
	}

	close(f.release)
	s.Stop(context.Background())
	if err := s.Deliver(context.Background(), slot, []int64{5}); !errors.Is(err, ErrStopped) {
		t.Fatalf("after stop err=%v", err)
	}
}

func TestDeliverBeforeStart(t *testing.T) {
	t.Parallel()

	s := New(Config{}, newFakeSender(), nil, logx.Nop())
	if err := s.Deliver(context.Background(), slot, nil); err != nil {
		t.Fatalf("no recipients should be a no-op: %v", err)
	}
	if err := s.Deliver(context.Background(), slot, []int64{1}); !errors.Is(err, ErrStopped) {
		t.Fatalf("err=%v want ErrStopped", err)
	}
}
