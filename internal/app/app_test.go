package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"burgerbot/internal/config"
	"burgerbot/internal/slots"
)

func TestChangedSections(t *testing.T) {
	t.Parallel()

	base := &config.Config{
		Telegram: config.TelegramConfig{Token: "x"},
		Poller:   config.PollerConfig{Schedule: "60s"},
	}
	same := *base
	if got := changedSections(base, &same); len(got) != 0 {
		t.Fatalf("identical configs reported %v", got)
	}

	next := *base
	next.Poller.Schedule = "90s"
	next.Services = []config.ServiceEntry{{ID: 1, Name: "x"}}
	next.Notifier.RatePerSec = 5
	got := strings.Join(changedSections(base, &next), ",")
	if got != "poller,notifier,services" {
		t.Fatalf("changed=%q", got)
	}
}

func TestMappings(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		Poller:   config.PollerConfig{BaseURL: "https://mirror.example/"},
		Storage:  config.StorageConfig{Driver: " SQLite ", Path: " bot.db "},
		Notifier: config.NotifierConfig{Workers: 3, Breaker: config.BreakerConfig{Failures: 7}},
		Ops:      config.OpsConfig{Enabled: true, Addr: "127.0.0.1:0", Pprof: true},
		Services: []config.ServiceEntry{{ID: 4242, Name: "Test service"}},
	}
	tm := config.Timings{BusyTimeout: 2 * time.Second, BreakerOpenFor: 30 * time.Second}

	sc := mapStorageConfig(cfg, tm)
	if sc.Driver != "sqlite" || sc.Path != "bot.db" || sc.BusyTimeout != 2*time.Second {
		t.Fatalf("storage=%+v", sc)
	}
	nc := mapNotifierConfig(cfg, tm)
	if nc.Workers != 3 || nc.BreakerFailures != 7 || nc.BreakerOpenFor != 30*time.Second {
		t.Fatalf("notifier=%+v", nc)
	}
	if oc := mapOpsConfig(cfg); !oc.Enabled || !oc.Pprof || oc.Addr != "127.0.0.1:0" {
		t.Fatalf("ops=%+v", oc)
	}

	cat := NewCatalog(cfg)
	if !cat.Known(4242) || cat.Name(4242) != "Test service" {
		t.Fatalf("extra service missing from catalog")
	}
	if !cat.Known(slots.ServiceID(120686)) {
		t.Fatalf("built-in services must stay")
	}
	if u := cat.URL(4242); !strings.HasPrefix(u, "https://mirror.example/") {
		t.Fatalf("url=%q", u)
	}
}

func TestNewAppRejectsBadSchedule(t *testing.T) {
	p := filepath.Join(t.TempDir(), "config.json")
	body := `{"telegram":{"token":"123:abc"},"poller":{"schedule":"whenever"}}`
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := NewApp(p)
	if err == nil || !strings.Contains(err.Error(), "poller.schedule") {
		t.Fatalf("err=%v", err)
	}
}

func TestNewAppMissingConfig(t *testing.T) {
	if _, err := NewApp(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("missing config should fail")
	}
}
