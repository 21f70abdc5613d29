// Package subscribers tracks which chats follow which services.
package subscribers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"burgerbot/internal/catalog"
	"burgerbot/internal/observability/metrics"
	"burgerbot/internal/slots"
	"burgerbot/internal/storage"
	logx "burgerbot/pkg/logx"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrNotRegistered  = errors.New("chat not registered")
)

// Audit actions.
const (
	ActionStart       = "start"
	ActionStop        = "stop"
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// WatchSet is the set of services being polled. A bound WatchSet is only
// mutated while the registry lock is held, so it always matches the union
// of every chat's services.
type WatchSet interface {
	AddService(id slots.ServiceID)
	RemoveService(id slots.ServiceID)
}

// Registry is the in-memory subscriber set, written through to a store.
// A nil store keeps everything in memory.
//
// It is safe for concurrent use.
type Registry struct {
	log   logx.Logger
	store storage.Store
	cat   *catalog.Catalog
	now   func() time.Time

	mu    sync.RWMutex
	chats map[int64][]slots.ServiceID
	watch WatchSet
}

// Load reads every subscriber from store. Service lists are filtered to the
// catalog and deduplicated; rows that changed are written back.
func Load(ctx context.Context, store storage.Store, cat *catalog.Catalog, log logx.Logger) (*Registry, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cat == nil {
		cat = catalog.New("", nil)
	}
	r := &Registry{
		log:   log,
		store: store,
		cat:   cat,
		now:   time.Now,
		chats: map[int64][]slots.ServiceID{},
	}
	if store == nil {
		metrics.Subscribers.Set(0)
		return r, nil
	}

	subs, err := store.LoadSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load subscribers: %w", err)
	}
	for _, s := range subs {
		clean := r.sanitize(s.Services)
		r.chats[s.ChatID] = clean
		if len(clean) != len(s.Services) {
			log.Info("dropping unknown or duplicate services",
				logx.Int64("chat_id", s.ChatID),
				logx.Int("before", len(s.Services)),
				logx.Int("after", len(clean)),
			)
			if err := store.SaveSubscriber(ctx, storage.Subscriber{ChatID: s.ChatID, Services: clean}); err != nil {
				return nil, fmt.Errorf("rewrite subscriber %d: %w", s.ChatID, err)
			}
		}
	}
	metrics.Subscribers.Set(float64(len(r.chats)))
	log.Info("subscribers loaded", logx.Int("chats", len(r.chats)))
	return r, nil
}

// Bind seeds w with every followed service and keeps it in step with later
// changes. w must not call back into the registry.
func (r *Registry) Bind(w WatchSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.watch = w
	if w == nil {
		return
	}
	for _, id := range r.uniqueLocked() {
		w.AddService(id)
	}
}

func (r *Registry) sanitize(in []slots.ServiceID) []slots.ServiceID {
	out := make([]slots.ServiceID, 0, len(in))
	seen := make(map[slots.ServiceID]struct{}, len(in))
	for _, id := range in {
		if !r.cat.Known(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Add registers chatID with no services. It reports whether the chat was new.
func (r *Registry) Add(ctx context.Context, chatID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.chats[chatID]; ok {
		return false, nil
	}
	if err := r.persistLocked(ctx, chatID, []slots.ServiceID{}); err != nil {
		return false, err
	}
	r.chats[chatID] = []slots.ServiceID{}
	r.auditLocked(ctx, storage.AuditEntry{ChatID: chatID, Action: ActionStart})
	metrics.Subscribers.Set(float64(len(r.chats)))
	return true, nil
}

// Remove forgets chatID and returns the services it followed that no other
// chat needs any more, sorted. reason is recorded in the audit trail.
func (r *Registry) Remove(ctx context.Context, chatID int64, reason string) ([]slots.ServiceID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	services, ok := r.chats[chatID]
	if !ok {
		return nil, nil
	}
	if r.store != nil {
		if err := r.store.DeleteSubscriber(ctx, chatID); err != nil {
			return nil, fmt.Errorf("delete subscriber %d: %w", chatID, err)
		}
	}
	delete(r.chats, chatID)
	r.auditLocked(ctx, storage.AuditEntry{ChatID: chatID, Action: ActionStop, Reason: reason})
	metrics.Subscribers.Set(float64(len(r.chats)))

	var orphaned []slots.ServiceID
	for _, id := range services {
		if !r.neededLocked(id) {
			orphaned = append(orphaned, id)
			r.unwatchLocked(id)
		}
	}
	sort.Slice(orphaned, func(i, j int) bool { return orphaned[i] < orphaned[j] })
	return orphaned, nil
}

// Subscribe adds id to chatID's list. It reports whether the list changed.
func (r *Registry) Subscribe(ctx context.Context, chatID int64, id slots.ServiceID) (bool, error) {
	if !r.cat.Known(id) {
		return false, fmt.Errorf("%w: %d", ErrUnknownService, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.chats[chatID]
	if !ok {
		return false, ErrNotRegistered
	}
	for _, have := range cur {
		if have == id {
			r.watchLocked(id)
			return false, nil
		}
	}
	next := append(append(make([]slots.ServiceID, 0, len(cur)+1), cur...), id)
	if err := r.persistLocked(ctx, chatID, next); err != nil {
		return false, err
	}
	r.chats[chatID] = next
	r.watchLocked(id)
	r.auditLocked(ctx, storage.AuditEntry{ChatID: chatID, Action: ActionSubscribe, Service: id})
	return true, nil
}

// Unsubscribe removes id from chatID's list. orphaned is true when no chat
// follows id afterwards.
func (r *Registry) Unsubscribe(ctx context.Context, chatID int64, id slots.ServiceID) (orphaned bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.chats[chatID]
	if !ok {
		return false, ErrNotRegistered
	}
	next := make([]slots.ServiceID, 0, len(cur))
	for _, have := range cur {
		if have != id {
			next = append(next, have)
		}
	}
	if len(next) != len(cur) {
		if err := r.persistLocked(ctx, chatID, next); err != nil {
			return false, err
		}
		r.chats[chatID] = next
		r.auditLocked(ctx, storage.AuditEntry{ChatID: chatID, Action: ActionUnsubscribe, Service: id})
	}
	if r.neededLocked(id) {
		return false, nil
	}
	r.unwatchLocked(id)
	return true, nil
}

func (r *Registry) watchLocked(id slots.ServiceID) {
	if r.watch != nil {
		r.watch.AddService(id)
	}
}

func (r *Registry) unwatchLocked(id slots.ServiceID) {
	if r.watch != nil {
		r.watch.RemoveService(id)
	}
}

func (r *Registry) persistLocked(ctx context.Context, chatID int64, services []slots.ServiceID) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveSubscriber(ctx, storage.Subscriber{ChatID: chatID, Services: services}); err != nil {
		return fmt.Errorf("save subscriber %d: %w", chatID, err)
	}
	return nil
}

// auditLocked is best-effort; a failed audit write never undoes a change.
func (r *Registry) auditLocked(ctx context.Context, e storage.AuditEntry) {
	if r.store == nil {
		return
	}
	e.At = r.now()
	if err := r.store.AppendAudit(ctx, e); err != nil {
		r.log.Warn("audit append failed", logx.Int64("chat_id", e.ChatID), logx.String("action", e.Action), logx.Err(err))
	}
}

func (r *Registry) neededLocked(id slots.ServiceID) bool {
	for _, services := range r.chats {
		for _, s := range services {
			if s == id {
				return true
			}
		}
	}
	return false
}

func (r *Registry) Registered(chatID int64) bool {
	r.mu.RLock()
	_, ok := r.chats[chatID]
	r.mu.RUnlock()
	return ok
}

// ServicesOf returns a copy of chatID's services in subscription order.
func (r *Registry) ServicesOf(chatID int64) []slots.ServiceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]slots.ServiceID(nil), r.chats[chatID]...)
}

// RecipientsFor returns the chats following id, sorted.
func (r *Registry) RecipientsFor(id slots.ServiceID) []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []int64
	for chatID, services := range r.chats {
		for _, s := range services {
			if s == id {
				out = append(out, chatID)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// UniqueServices is the union of every chat's services, sorted.
func (r *Registry) UniqueServices() []slots.ServiceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.uniqueLocked()
}

func (r *Registry) uniqueLocked() []slots.ServiceID {
	set := map[slots.ServiceID]struct{}{}
	for _, services := range r.chats {
		for _, s := range services {
			set[s] = struct{}{}
		}
	}
	out := make([]slots.ServiceID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.chats)
}
