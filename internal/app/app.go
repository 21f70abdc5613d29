// Package app wires the bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"burgerbot/internal/catalog"
	"burgerbot/internal/commands"
	"burgerbot/internal/config"
	"burgerbot/internal/dedup"
	"burgerbot/internal/notifier"
	"burgerbot/internal/observability/ops"
	"burgerbot/internal/poller"
	rtsup "burgerbot/internal/runtime/supervisor"
	"burgerbot/internal/storage"
	"burgerbot/internal/subscribers"
	"burgerbot/internal/task/scheduler"
	kit "burgerbot/internal/transport"
	telegram "burgerbot/internal/transport/telegram/adapter"
	"burgerbot/internal/transport/telegram/router"
	logx "burgerbot/pkg/logx"
)

const pollLoopTask = "poll.loop"

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	cat       *catalog.Catalog
	store     storage.Store
	subs      *subscribers.Registry
	transport *poller.Transport
	engine    *poller.Engine
	dedup     *dedup.Cache
	notif     *notifier.Service
	runner    *scheduler.Runner

	adapter *telegram.Adapter
	router  *router.Router
	ops     *ops.Service

	updates chan kit.Update
	started time.Time
}

// NewApp loads the config and builds every component. Nothing runs until
// Start. Any error here is a startup failure.
func NewApp(cfgPath string) (a *App, err error) {
	config.LoadDotEnv()
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	t, err := config.ResolveTimings(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.ParseSchedule(cfg.Poller.Schedule); err != nil {
		return nil, fmt.Errorf("poller.schedule: %w", err)
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: t.PollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	cat := NewCatalog(cfg)

	store, err := storage.Open(mapStorageConfig(cfg, t), log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil && store != nil {
			_ = store.Close()
		}
	}()

	subs, err := subscribers.Load(context.Background(), store, cat, log.With(logx.String("comp", "subscribers")))
	if err != nil {
		return nil, err
	}

	transport, err := poller.NewTransport(poller.TransportConfig{
		Timeout:       t.RequestTimeout,
		FallbackProxy: cfg.Poller.FallbackProxy,
		UserAgent:     cfg.Poller.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	engine := poller.NewEngine(transport, cat, poller.Options{
		Cooldown: t.Cooldown,
		Workers:  cfg.Poller.Workers,
		Log:      log,
	})
	subs.Bind(engine)

	cache := dedup.New(t.DedupTTL)

	notif := notifier.New(mapNotifierConfig(cfg, t), ad, cat, log.With(logx.String("comp", "notifier")))
	notif.OnGone(func(ctx context.Context, chatID int64) {
		orphaned, err := subs.Remove(ctx, chatID, "recipient gone")
		if err != nil {
			log.Warn("remove gone recipient failed", logx.Int64("chat_id", chatID), logx.Err(err))
			return
		}
		log.Info("recipient removed", logx.Int64("chat_id", chatID), logx.Int("orphaned", len(orphaned)))
	})

	runner, err := scheduler.NewRunner(cfg.Poller.Schedule, engine, cache, notif, subs, scheduler.Options{
		Log: log.With(logx.String("comp", "scheduler")),
	})
	if err != nil {
		return nil, err
	}

	started := time.Now()
	rt := router.New(log, ad, router.Options{
		Workers: cfg.Telegram.CommandWorkers,
		Timeout: t.CommandTimeout,
		Owners:  cfg.Telegram.OwnerUserIDs,
	})
	rt.SetCommands(commands.Commands(commands.Deps{
		Catalog:     cat,
		Subscribers: subs,
		Watcher:     engine,
		Cycles:      runner,
		Dedup:       cache,
		Notifier:    notif,
		Started:     started,
		Log:         log.With(logx.String("comp", "commands")),
	}))

	a = &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		cat:       cat,
		store:     store,
		subs:      subs,
		transport: transport,
		engine:    engine,
		dedup:     cache,
		notif:     notif,
		runner:    runner,
		adapter:   ad,
		router:    rt,
		updates:   make(chan kit.Update, 256),
		started:   started,
	}
	a.ops = ops.New(mapOpsConfig(cfg), a.statusDoc, log)

	a.log.Info("app ready",
		logx.Int("subscribers", subs.Count()),
		logx.Int("watching", len(engine.Services())),
		logx.String("schedule", runner.Spec().String()),
		logx.String("storage", cfg.Storage.Driver),
	)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := scheduler.ParseSchedule(cfg.Poller.Schedule); err != nil {
			return fmt.Errorf("poller.schedule: %w", err)
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	a.ops.Start(a.sup.Context())

	mctx, cancel := context.WithTimeout(a.sup.Context(), 10*time.Second)
	if err := a.router.PublishMenu(mctx); err != nil {
		a.log.Warn("publish command menu failed", logx.Err(err))
	}
	cancel()

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go(pollLoopTask, a.runner.Run)
	a.sup.Go0("config.reload", a.reloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		watchdogLoop(c, a.log, a.pollLoopAlive)
	})

	sdNotify(a.log, daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

func (a *App) pollLoopAlive() bool {
	for _, t := range a.sup.Snapshot().Tasks {
		if t.Name == pollLoopTask {
			return t.Active > 0
		}
	}
	return false
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdNotify(a.log, daemon.SdNotifyStopping)

	a.sup.Cancel()

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// the poll loop and dispatcher unwind with the supervisor context
	step("supervisor", 3*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("ops", 1*time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("transport", 1*time.Second, func(context.Context) error { a.transport.Close(); return nil })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Duration("uptime", time.Since(a.started).Truncate(time.Second)))
	return a.logs.Close()
}
