// Package storage persists subscribers and an append-only audit trail of
// subscription changes.
package storage

import (
	"errors"
	"time"

	"burgerbot/internal/slots"
)

var ErrClosed = errors.New("storage closed")

// Config selects a driver.
//
//   - "file": chats JSON file plus an <name>.audit.jsonl journal
//   - "sqlite": SQLite database file (pure Go driver)
//
// Empty or "none" disables persistence; subscribers then live in memory.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Subscriber is one chat and the services it follows. The JSON shape is
// the chats file format.
type Subscriber struct {
	ChatID   int64             `json:"chat_id"`
	Services []slots.ServiceID `json:"services"`
}

// AuditEntry records a subscription change made from chat.
type AuditEntry struct {
	At      time.Time       `json:"at"`
	ChatID  int64           `json:"chat_id"`
	ActorID int64           `json:"actor_id,omitempty"`
	Action  string          `json:"action"`
	Service slots.ServiceID `json:"service,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}
