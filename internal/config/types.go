package config

import "errors"

var ErrConfigNotLoaded = errors.New("config: not loaded")

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Poller   PollerConfig   `json:"poller"`
	Dedup    DedupConfig    `json:"dedup"`
	Notifier NotifierConfig `json:"notifier"`
	Storage  StorageConfig  `json:"storage"`
	Ops      OpsConfig      `json:"ops"`

	// Services adds or renames catalog entries.
	Services []ServiceEntry `json:"services,omitempty" validate:"dive"`
}

type TelegramConfig struct {
	Token        string  `json:"token" validate:"required"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	// PollTimeout is the long-poll timeout (Go duration string).
	PollTimeout    string `json:"poll_timeout,omitempty"`
	CommandTimeout string `json:"command_timeout,omitempty"`
	CommandWorkers int    `json:"command_workers,omitempty" validate:"gte=0,lte=64"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	JSON     bool            `json:"json,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty" validate:"gte=0"`
}

// PollerConfig controls the availability poller.
//
// Schedule accepts an interval ("60s", "every:2m", or "HH:MM" read as hours
// and minutes) or a cron expression ("cron:*/2 * * * *"). The next cycle is
// computed after the previous one ends.
type PollerConfig struct {
	Schedule       string `json:"schedule"`
	RequestTimeout string `json:"request_timeout,omitempty"`
	Cooldown       string `json:"cooldown,omitempty"`
	FallbackProxy  string `json:"fallback_proxy,omitempty" validate:"omitempty,url"`
	Workers        int    `json:"workers,omitempty" validate:"gte=0,lte=16"`
	UserAgent      string `json:"user_agent,omitempty"`
	// BaseURL replaces the booking site origin, e.g. for a mirror.
	BaseURL string `json:"base_url,omitempty" validate:"omitempty,url"`
}

type DedupConfig struct {
	TTL string `json:"ttl,omitempty"`
}

type NotifierConfig struct {
	Workers    int           `json:"workers,omitempty" validate:"gte=0,lte=32"`
	QueueSize  int           `json:"queue_size,omitempty" validate:"gte=0"`
	RatePerSec int           `json:"rate_per_sec,omitempty" validate:"gte=0"`
	Breaker    BreakerConfig `json:"breaker"`
}

// BreakerConfig guards the Telegram send path. After Failures consecutive
// transient errors the breaker opens for OpenFor.
type BreakerConfig struct {
	Failures int    `json:"failures,omitempty" validate:"gte=0"`
	OpenFor  string `json:"open_for,omitempty"`
}

// StorageConfig selects where subscribers are kept.
//
//	"storage": { "driver": "file", "path": "./chats.json" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=file sqlite sqlite3 none"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// OpsConfig controls the operational HTTP listener (/healthz, /status,
// /metrics and optionally /debug/pprof). Bind to loopback unless a token is set.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}

type ServiceEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name" validate:"required"`
}
