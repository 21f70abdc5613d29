package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"burgerbot/internal/slots"
	logx "burgerbot/pkg/logx"
)

// fileStore keeps every subscriber in one JSON array, rewritten through a
// temp file and rename on each change, next to an append-only audit journal.
type fileStore struct {
	log logx.Logger

	mu        sync.Mutex
	path      string
	subs      map[int64]Subscriber
	auditFile *os.File
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	subs := map[int64]Subscriber{}
	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.WriteFile(path, []byte("[]"), 0o600); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case len(strings.TrimSpace(string(b))) > 0:
		var list []Subscriber
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		for _, s := range list {
			subs[s.ChatID] = s
		}
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	af, err := os.OpenFile(base+".audit.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	log.Debug("file store opened", logx.String("path", path), logx.Int("subscribers", len(subs)))
	return &fileStore{log: log, path: path, subs: subs, auditFile: af}, nil
}

func (s *fileStore) LoadSubscribers(ctx context.Context) ([]Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(), nil
}

func (s *fileStore) sortedLocked() []Subscriber {
	out := make([]Subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}

func (s *fileStore) SaveSubscriber(ctx context.Context, sub Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	prev, had := s.subs[sub.ChatID]
	s.subs[sub.ChatID] = sub
	if err := s.flushLocked(); err != nil {
		if had {
			s.subs[sub.ChatID] = prev
		} else {
			delete(s.subs, sub.ChatID)
		}
		return err
	}
	return nil
}

func (s *fileStore) DeleteSubscriber(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	prev, had := s.subs[chatID]
	if !had {
		return nil
	}
	delete(s.subs, chatID)
	if err := s.flushLocked(); err != nil {
		s.subs[chatID] = prev
		return err
	}
	return nil
}

func (s *fileStore) flushLocked() error {
	list := s.sortedLocked()
	for i := range list {
		if list[i].Services == nil {
			list[i].Services = []slots.ServiceID{}
		}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return nil
	}
	err := s.auditFile.Close()
	s.auditFile = nil
	return err
}
