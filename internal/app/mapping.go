package app

import (
	"strings"

	"burgerbot/internal/catalog"
	"burgerbot/internal/config"
	"burgerbot/internal/notifier"
	"burgerbot/internal/observability/ops"
	"burgerbot/internal/slots"
	"burgerbot/internal/storage"
	logx "burgerbot/pkg/logx"
)

func mapStorageConfig(cfg *config.Config, t config.Timings) storage.Config {
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)),
		Path:        strings.TrimSpace(cfg.Storage.Path),
		BusyTimeout: t.BusyTimeout,
	}
}

func mapNotifierConfig(cfg *config.Config, t config.Timings) notifier.Config {
	return notifier.Config{
		Workers:         cfg.Notifier.Workers,
		QueueSize:       cfg.Notifier.QueueSize,
		RatePerSec:      cfg.Notifier.RatePerSec,
		BreakerFailures: cfg.Notifier.Breaker.Failures,
		BreakerOpenFor:  t.BreakerOpenFor,
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		JSON:    lc.JSON,
		File: logx.FileConfig{
			Enabled: lc.File.Enabled,
			Path:    lc.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled: cfg.Ops.Enabled,
		Addr:    cfg.Ops.Addr,
		Token:   cfg.Ops.Token,
		Pprof:   cfg.Ops.Pprof,
	}
}

// NewCatalog builds the service catalog from the poller origin and the
// configured extra services.
func NewCatalog(cfg *config.Config) *catalog.Catalog {
	extra := make([]catalog.Entry, 0, len(cfg.Services))
	for _, s := range cfg.Services {
		extra = append(extra, catalog.Entry{ID: slots.ServiceID(s.ID), Name: s.Name})
	}
	return catalog.New(cfg.Poller.BaseURL, extra)
}
