package subscribers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"burgerbot/internal/catalog"
	"burgerbot/internal/slots"
	"burgerbot/internal/storage"
	logx "burgerbot/pkg/logx"
)

func openFileStore(t *testing.T, path string) storage.Store {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestRegistryLifecycle(t *testing.T) {
	ctx := context.Background()
	r, err := Load(ctx, nil, catalog.New("", nil), logx.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if created, _ := r.Add(ctx, 1); !created {
		t.Fatalf("first Add should create")
	}
	if created, _ := r.Add(ctx, 1); created {
		t.Fatalf("second Add should be a no-op")
	}
	_, _ = r.Add(ctx, 2)

	if _, err := r.Subscribe(ctx, 1, 999); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("unknown service: err=%v", err)
	}
	if _, err := r.Subscribe(ctx, 3, 120686); !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("unregistered chat: err=%v", err)
	}

	mustSub := func(chat int64, id slots.ServiceID) {
		t.Helper()
		if _, err := r.Subscribe(ctx, chat, id); err != nil {
			t.Fatalf("subscribe %d/%d: %v", chat, id, err)
		}
	}
	mustSub(1, 120686)
	mustSub(1, 120686)
	mustSub(1, catalog.UkraineServiceID)
	mustSub(2, 120686)
	mustSub(2, 121151)

	if got := fmt.Sprint(r.ServicesOf(1)); got != "[120686 -2]" {
		t.Fatalf("ServicesOf(1)=%s", got)
	}
	if got := fmt.Sprint(r.UniqueServices()); got != "[-2 120686 121151]" {
		t.Fatalf("UniqueServices=%s", got)
	}
	if got := fmt.Sprint(r.RecipientsFor(120686)); got != "[1 2]" {
		t.Fatalf("RecipientsFor=%s", got)
	}

	orphaned, err := r.Unsubscribe(ctx, 2, 120686)
	if err != nil || orphaned {
		t.Fatalf("120686 is still needed by chat 1: orphaned=%v err=%v", orphaned, err)
	}
	orphaned, _ = r.Unsubscribe(ctx, 2, 121151)
	if !orphaned {
		t.Fatalf("121151 should be orphaned")
	}

	gone, err := r.Remove(ctx, 1, "stop")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if fmt.Sprint(gone) != "[-2 120686]" {
		t.Fatalf("orphaned on remove=%v", gone)
	}
	if r.Count() != 1 || r.Registered(1) {
		t.Fatalf("count=%d registered(1)=%v", r.Count(), r.Registered(1))
	}
	if len(r.UniqueServices()) != 0 {
		t.Fatalf("watch seed should be empty: %v", r.UniqueServices())
	}
}

func TestRegistryPersistsAndSanitizes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chats.json")
	raw := `[{"chat_id": 7, "services": [120686, 120686, 42, 121151]}, {"chat_id": 8, "services": []}]`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	st := openFileStore(t, path)
	r, err := Load(ctx, st, catalog.New("", nil), logx.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := fmt.Sprint(r.ServicesOf(7)); got != "[120686 121151]" {
		t.Fatalf("sanitized=%s", got)
	}
	if _, err := r.Subscribe(ctx, 8, 120680); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	_ = st.Close()

	r2, err := Load(ctx, openFileStore(t, path), catalog.New("", nil), logx.Nop())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := fmt.Sprint(r2.ServicesOf(7), r2.ServicesOf(8)); got != "[120686 121151] [120680]" {
		t.Fatalf("after reload: %s", got)
	}
}

func TestCatalogExtrasAreSubscribable(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New("", []catalog.Entry{{ID: 555, Name: "Custom"}})
	r, _ := Load(ctx, nil, cat, logx.Nop())
	_, _ = r.Add(ctx, 1)
	if _, err := r.Subscribe(ctx, 1, 555); err != nil {
		t.Fatalf("extra service should be known: %v", err)
	}
}

type recordingWatch struct {
	set map[slots.ServiceID]bool
}

func (w *recordingWatch) AddService(id slots.ServiceID)    { w.set[id] = true }
func (w *recordingWatch) RemoveService(id slots.ServiceID) { delete(w.set, id) }

func TestRegistryKeepsWatchSetInStep(t *testing.T) {
	ctx := context.Background()
	r, err := Load(ctx, nil, catalog.New("", nil), logx.Nop())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_, _ = r.Add(ctx, 1)
	_, _ = r.Add(ctx, 2)
	if _, err := r.Subscribe(ctx, 1, 120686); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	w := &recordingWatch{set: map[slots.ServiceID]bool{}}
	r.Bind(w)
	if !w.set[120686] || len(w.set) != 1 {
		t.Fatalf("seed=%v", w.set)
	}

	steps := []struct {
		name string
		do   func() error
		want string
	}{
		{"second follower", func() error { _, err := r.Subscribe(ctx, 2, 120686); return err }, "[120686]"},
		{"new service", func() error { _, err := r.Subscribe(ctx, 2, 121151); return err }, "[120686 121151]"},
		{"still followed", func() error { _, err := r.Unsubscribe(ctx, 1, 120686); return err }, "[120686 121151]"},
		{"not followed", func() error { _, err := r.Unsubscribe(ctx, 1, 121151); return err }, "[120686 121151]"},
		{"last follower leaves", func() error { _, err := r.Remove(ctx, 2, ActionStop); return err }, "[]"},
	}
	for _, s := range steps {
		if err := s.do(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		var got []slots.ServiceID
		for id := range w.set {
			got = append(got, id)
		}
		sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
		if fmt.Sprint(got) != s.want {
			t.Fatalf("%s: watch=%v want %s", s.name, got, s.want)
		}
	}
}
