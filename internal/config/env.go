package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envOverrides are read from the process environment (and ./.env when it
// exists). Non-empty values win over the config file.
type envOverrides struct {
	TelegramToken string `envconfig:"TELEGRAM_API_KEY"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
	ChatsFile     string `envconfig:"BURGERBOT_CHATS_FILE"`
	FallbackProxy string `envconfig:"BURGERBOT_FALLBACK_PROXY"`
	OpsAddr       string `envconfig:"BURGERBOT_OPS_ADDR"`
}

// LoadDotEnv loads ./.env into the environment without overriding values
// that are already set. A missing file is not an error.
func LoadDotEnv() {
	_ = godotenv.Load()
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("env: %w", err)
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.Telegram.Token, env.TelegramToken)
	set(&cfg.Logging.Level, env.LogLevel)
	set(&cfg.Poller.FallbackProxy, env.FallbackProxy)
	set(&cfg.Ops.Addr, env.OpsAddr)
	if strings.TrimSpace(env.ChatsFile) != "" {
		cfg.Storage.Path = strings.TrimSpace(env.ChatsFile)
		if cfg.Storage.Driver == "" {
			cfg.Storage.Driver = "file"
		}
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Poller.Schedule) == "" {
		cfg.Poller.Schedule = "60s"
	}
	if cfg.Poller.FallbackProxy == "" {
		cfg.Poller.FallbackProxy = "socks5://127.0.0.1:9050"
	}
	if cfg.Poller.Workers == 0 {
		cfg.Poller.Workers = 1
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Path == "" && cfg.Storage.Driver == "file" {
		cfg.Storage.Path = "chats.json"
	}
	if cfg.Storage.Path == "" && strings.HasPrefix(cfg.Storage.Driver, "sqlite") {
		cfg.Storage.Path = "burgerbot.db"
	}
	if cfg.Ops.Addr == "" {
		cfg.Ops.Addr = "127.0.0.1:9090"
	}
}
