package storage

import (
	"context"
	"fmt"
	"strings"

	logx "burgerbot/pkg/logx"
)

type Store interface {
	LoadSubscribers(ctx context.Context) ([]Subscriber, error)
	// SaveSubscriber inserts or replaces the row for sub.ChatID.
	SaveSubscriber(ctx context.Context, sub Subscriber) error
	// DeleteSubscriber is a no-op for unknown chats.
	DeleteSubscriber(ctx context.Context, chatID int64) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

// Open initializes the configured store. It returns (nil, nil) when
// persistence is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "none":
		return nil, nil
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
