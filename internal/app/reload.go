package app

import (
	"context"
	"reflect"
	"strings"

	"burgerbot/internal/config"
	logx "burgerbot/pkg/logx"
)

// restartOnly lists config sections that are read once in NewApp.
var restartOnly = map[string]bool{
	"storage":  true,
	"services": true,
	"dedup":    true,
}

// changedSections names the top-level config sections that differ.
func changedSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return nil
	}
	pv := reflect.ValueOf(*prev)
	nv := reflect.ValueOf(*next)
	typ := pv.Type()
	var out []string
	for i := 0; i < typ.NumField(); i++ {
		if reflect.DeepEqual(pv.Field(i).Interface(), nv.Field(i).Interface()) {
			continue
		}
		name := typ.Field(i).Tag.Get("json")
		if j := strings.IndexByte(name, ','); j >= 0 {
			name = name[:j]
		}
		out = append(out, name)
	}
	return out
}

func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)

	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			sections := changedSections(last, next)
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			a.applyConfig(ctx, last, next, sections)
			last = next
			a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
		}
	}
}

func (a *App) applyConfig(ctx context.Context, prev, next *config.Config, sections []string) {
	t, err := config.ResolveTimings(next)
	if err != nil {
		a.log.Warn("invalid timings; keeping previous config", logx.Err(err))
		return
	}

	for _, s := range sections {
		if restartOnly[s] {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	a.logs.Apply(mapLogConfig(next))

	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.router.SetTimeout(t.CommandTimeout)
	if next.Telegram.Token != prev.Telegram.Token {
		a.log.Warn("telegram.token changed; restart required for it to take effect")
	}

	if next.Poller.Schedule != prev.Poller.Schedule {
		if err := a.runner.Apply(next.Poller.Schedule); err != nil {
			a.log.Warn("invalid poller.schedule; keeping previous", logx.Err(err))
		} else {
			a.log.Info("poll schedule updated", logx.String("schedule", a.runner.Spec().String()))
		}
	}
	if next.Poller.FallbackProxy != prev.Poller.FallbackProxy ||
		next.Poller.RequestTimeout != prev.Poller.RequestTimeout ||
		next.Poller.BaseURL != prev.Poller.BaseURL {
		a.log.Warn("poller transport settings changed; restart required for them to take effect")
	}

	a.notif.Apply(mapNotifierConfig(next, t))
	a.ops.Reconfigure(ctx, mapOpsConfig(next))
}
