package poller

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"burgerbot/internal/slots"
)

type idURLs struct{}

func (idURLs) URL(id slots.ServiceID) string { return "svc/" + id.String() }

type fetchCall struct {
	url  string
	mode EgressMode
}

// scriptedFetcher answers per URL; missing URLs get the not-bookable page.
type scriptedFetcher struct {
	mu    sync.Mutex
	pages map[string]func(mode EgressMode) (*Page, error)
	calls []fetchCall
}

func (f *scriptedFetcher) Fetch(_ context.Context, rawURL string, mode EgressMode) (*Page, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{rawURL, mode})
	fn := f.pages[rawURL]
	f.mu.Unlock()
	if fn == nil {
		return &Page{Status: 200, Body: []byte(pageNoSlots)}, nil
	}
	return fn(mode)
}

func page(status int, body string) func(EgressMode) (*Page, error) {
	return func(EgressMode) (*Page, error) { return &Page{Status: status, Body: []byte(body)}, nil }
}

type sleepRecorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.slept = append(s.slept, d)
	s.mu.Unlock()
	return ctx.Err()
}

func newTestEngine(f Fetcher, workers int) (*Engine, *sleepRecorder) {
	rec := &sleepRecorder{}
	now := time.Date(2023, 10, 1, 12, 0, 0, 0, time.UTC)
	e := NewEngine(f, idURLs{}, Options{
		Cooldown: 300 * time.Second,
		Workers:  workers,
		Now:      func() time.Time { return now },
		Sleep:    rec.Sleep,
	})
	return e, rec
}

func TestWatchSetReplay(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 50; round++ {
		e, _ := newTestEngine(&scriptedFetcher{}, 1)
		model := map[slots.ServiceID]bool{}
		for op := 0; op < 40; op++ {
			id := slots.ServiceID(rng.Intn(6))
			if rng.Intn(2) == 0 {
				e.AddService(id)
				model[id] = true
			} else {
				e.RemoveService(id)
				delete(model, id)
			}
		}
		var want []slots.ServiceID
		for id := range model {
			want = append(want, id)
		}
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
		got := e.Services()
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("round %d: got %v want %v", round, got, want)
		}
	}
}

func TestStatusUnknownIsNoneYet(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(&scriptedFetcher{}, 1)
	st := e.Status(42)
	if st.Kind != slots.NoneYet || st.At.IsZero() {
		t.Fatalf("status=%+v", st)
	}
}

func TestPollRateLimitTogglesAndCoolsDownOnce(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]func(EgressMode) (*Page, error){
		"svc/1": page(428, ""),
		"svc/3": page(200, pageTwoSlots),
	}}
	e, rec := newTestEngine(f, 1)
	for _, id := range []slots.ServiceID{3, 1, 2} {
		e.AddService(id)
	}

	found, err := e.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(found) != 2 || found[0].Service != 3 {
		t.Fatalf("found=%v", found)
	}
	if len(rec.slept) != 1 || rec.slept[0] != 300*time.Second {
		t.Fatalf("slept=%v", rec.slept)
	}
	if e.Egress() != Fallback {
		t.Fatalf("egress=%v want fallback", e.Egress())
	}
	wantCalls := []fetchCall{{"svc/1", Direct}, {"svc/2", Fallback}, {"svc/3", Fallback}}
	if fmt.Sprint(f.calls) != fmt.Sprint(wantCalls) {
		t.Fatalf("calls=%v want %v", f.calls, wantCalls)
	}
	if e.Status(1).Kind != slots.RateLimited || e.Status(2).Kind != slots.ValidNoSlots || e.Status(3).Kind != slots.SlotsFound {
		t.Fatalf("statuses=%v", e.Statuses())
	}
}

func TestPollIsolatesFailures(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]func(EgressMode) (*Page, error){
		"svc/1": func(EgressMode) (*Page, error) {
			return nil, fmt.Errorf("%w: dial tcp: refused", ErrConnectionIssue)
		},
		"svc/2": page(200, pageOnlyBookable),
	}}
	e, rec := newTestEngine(f, 1)
	e.AddService(1)
	e.AddService(2)

	found, err := e.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(found) != 1 || found[0].Service != 2 {
		t.Fatalf("found=%v", found)
	}
	if e.Status(1).Kind != slots.ConnectionIssue || e.Status(2).Kind != slots.SlotsFound {
		t.Fatalf("statuses=%v", e.Statuses())
	}
	if e.Egress() != Direct || len(rec.slept) != 0 {
		t.Fatalf("connection issues must not toggle or sleep")
	}
}

func TestTruncatedPageIsParseError(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]func(EgressMode) (*Page, error){
		"svc/1": func(EgressMode) (*Page, error) {
			return &Page{Status: 200, Body: []byte(pageOnlyBookable), Truncated: true}, nil
		},
	}}
	e, _ := newTestEngine(f, 1)
	e.AddService(1)

	found, err := e.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("slots from a cut-off page: %v", found)
	}
	if e.Status(1).Kind != slots.ParseError || e.Egress() != Fallback {
		t.Fatalf("status=%v egress=%v", e.Status(1), e.Egress())
	}
}

func TestEgressFlipFlop(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{pages: map[string]func(EgressMode) (*Page, error){
		"svc/1": page(200, pageDecoy),
	}}
	e, rec := newTestEngine(f, 1)
	e.AddService(1)

	want := []EgressMode{Fallback, Direct, Fallback}
	for i, w := range want {
		if _, err := e.Poll(context.Background()); err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if e.Egress() != w {
			t.Fatalf("cycle %d: egress=%v want %v", i, e.Egress(), w)
		}
	}
	if len(rec.slept) != 0 {
		t.Fatalf("parse errors must not sleep")
	}
	if e.Status(1).Kind != slots.ParseError {
		t.Fatalf("status=%v", e.Status(1))
	}
}

func TestPollConcurrentIsOrdered(t *testing.T) {
	t.Parallel()

	pages := map[string]func(EgressMode) (*Page, error){}
	for i := 1; i <= 8; i++ {
		body := fmt.Sprintf(`<table><tr><td class="buchbar"><a href="/t/%d/x/">x</a></td></tr></table>`, i)
		pages["svc/"+slots.ServiceID(i).String()] = page(200, body)
	}
	pages["svc/5"] = page(428, "")
	f := &scriptedFetcher{pages: pages}
	e, rec := newTestEngine(f, 4)
	for i := 8; i >= 1; i-- {
		e.AddService(slots.ServiceID(i))
	}

	found, err := e.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	var ids []string
	for _, s := range found {
		ids = append(ids, s.ID)
	}
	want := "/t/1/x/ /t/2/x/ /t/3/x/ /t/4/x/ /t/6/x/ /t/7/x/ /t/8/x/"
	if strings.Join(ids, " ") != want {
		t.Fatalf("order=%v", ids)
	}
	if len(rec.slept) != 1 || e.Status(5).Kind != slots.RateLimited {
		t.Fatalf("slept=%v status=%v", rec.slept, e.Status(5))
	}
}

func TestPollStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := &scriptedFetcher{}
	e, _ := newTestEngine(f, 1)
	e.AddService(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
	if len(f.calls) != 0 {
		t.Fatalf("no fetch expected after cancel")
	}
}
