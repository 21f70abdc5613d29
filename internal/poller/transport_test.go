package poller

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestTransportFetch(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "burgerbot-test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(StatusRateLimited)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	tr, err := NewTransport(TransportConfig{Timeout: 2 * time.Second, UserAgent: "burgerbot-test"})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	defer tr.Close()

	p, err := tr.Fetch(context.Background(), srv.URL, Direct)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if p.Status != 428 || string(p.Body) != "slow down" {
		t.Fatalf("page=%+v", p)
	}
}

func TestTransportFlagsOversizedBody(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		size      int
		truncated bool
	}{
		{"at limit", maxPageSize, false},
		{"over limit", maxPageSize + 10, true},
	}
	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write(bytes.Repeat([]byte("x"), tc.size))
		}))
		tr, _ := NewTransport(TransportConfig{Timeout: 5 * time.Second})
		p, err := tr.Fetch(context.Background(), srv.URL, Direct)
		srv.Close()
		if err != nil {
			t.Fatalf("%s: Fetch: %v", tc.name, err)
		}
		if p.Truncated != tc.truncated || len(p.Body) > maxPageSize {
			t.Fatalf("%s: truncated=%v len=%d", tc.name, p.Truncated, len(p.Body))
		}
	}
}

func TestTransportTimeoutIsConnectionIssue(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	tr, _ := NewTransport(TransportConfig{Timeout: 50 * time.Millisecond})
	_, err := tr.Fetch(context.Background(), srv.URL, Direct)
	if !errors.Is(err, ErrConnectionIssue) {
		t.Fatalf("err=%v want ErrConnectionIssue", err)
	}
}

func TestTransportRefusedIsConnectionIssue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	tr, _ := NewTransport(TransportConfig{Timeout: time.Second})
	if _, err := tr.Fetch(context.Background(), addr, Direct); !errors.Is(err, ErrConnectionIssue) {
		t.Fatalf("err=%v want ErrConnectionIssue", err)
	}
}

func TestTransportFallbackUsesProxy(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("direct"))
	}))
	defer target.Close()
	relay := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("relayed"))
	}))
	defer relay.Close()

	tr, err := NewTransport(TransportConfig{Timeout: 2 * time.Second, FallbackProxy: relay.URL})
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}
	for mode, want := range map[EgressMode]string{Direct: "direct", Fallback: "relayed"} {
		p, err := tr.Fetch(context.Background(), target.URL, mode)
		if err != nil {
			t.Fatalf("%v: %v", mode, err)
		}
		if string(p.Body) != want {
			t.Fatalf("%v: body=%q want %q", mode, p.Body, want)
		}
	}
}

func TestNewTransportRejectsBadProxy(t *testing.T) {
	t.Parallel()

	if _, err := NewTransport(TransportConfig{FallbackProxy: "ftp://127.0.0.1:21"}); err == nil {
		t.Fatalf("expected unsupported scheme error")
	}
	if _, err := NewTransport(TransportConfig{FallbackProxy: "socks5://127.0.0.1:9050"}); err != nil {
		t.Fatalf("socks5: %v", err)
	}
}
