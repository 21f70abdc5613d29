package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	logx "burgerbot/pkg/logx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags, durations and log levels. It does not look at
// the poll schedule; callers that own the scheduler check that separately.
func Validate(cfg *Config) error {
	if cfg == nil {
		return ErrConfigNotLoaded
	}
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := ResolveTimings(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	for path, lvl := range map[string]string{
		"logging.level":              cfg.Logging.Level,
		"logging.telegram.min_level": cfg.Logging.Telegram.MinLevel,
	} {
		if !logx.ValidLevel(lvl) {
			return fmt.Errorf("invalid config: %s: unknown level %q", path, lvl)
		}
	}
	if cfg.Ops.Enabled && cfg.Ops.Token == "" && !loopbackAddr(cfg.Ops.Addr) {
		return fmt.Errorf("invalid config: ops.addr %q is not loopback; set ops.token", cfg.Ops.Addr)
	}
	seen := map[int]bool{}
	for _, s := range cfg.Services {
		if seen[s.ID] {
			return fmt.Errorf("invalid config: services: duplicate id %d", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

func loopbackAddr(addr string) bool {
	host := addr
	if i := strings.LastIndex(addr, ":"); i >= 0 {
		host = addr[:i]
	}
	host = strings.Trim(host, "[]")
	return host == "127.0.0.1" || host == "localhost" || host == "::1"
}
