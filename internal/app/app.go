// Package app wires the engine together: config, logging, storage, the
// orchestrator, the job tracker, the periodic sweep tick and the admin API.
// One App per process; everything downstream receives its dependencies
// explicitly from here.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"autopost/internal/candidate"
	"autopost/internal/config"
	"autopost/internal/dedup"
	"autopost/internal/eventbus"
	"autopost/internal/job"
	"autopost/internal/lock"
	"autopost/internal/poster"
	"autopost/internal/quota"
	"autopost/internal/retry"
	"autopost/internal/schedule"
	"autopost/internal/server"
	"autopost/internal/settings"
	"autopost/internal/source/rss"
	"autopost/internal/storage"
	logx "autopost/pkg/logx"
)

type App struct {
	log  logx.Logger
	logs *logx.Service

	cfgMgr   *config.Manager
	store    storage.Store
	bus      *eventbus.Bus
	channels *settings.Store
	quotas   *quota.Limiter
	engine   *poster.Service
	jobs     *job.Tracker
	api      *server.Service
	cron     *cron.Cron
	tick     string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads and validates the config file and builds the full object graph.
// Nothing is running yet; call Start.
func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, err
	}

	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	logs, root := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	cfgMgr.SetLogger(root.With(logx.String("comp", "config")))

	a := &App{log: root, logs: logs, cfgMgr: cfgMgr, tick: cfg.Engine.Tick}
	if err := a.build(cfg); err != nil {
		logs.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config) error {
	eng := cfg.Engine
	durs, err := engineDurations(eng)
	if err != nil {
		return err
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, a.log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = store

	a.bus = eventbus.New()
	a.channels = settings.NewStore(cfg, a.log.With(logx.String("comp", "settings")))

	a.quotas = quota.NewLimiter(store, a.log.With(logx.String("comp", "quota")))
	if err := a.configureProviders(cfg); err != nil {
		return err
	}

	feeds := rss.NewClient(rss.Options{Timeout: durs.fetchTimeout}, a.log.With(logx.String("comp", "rss")))

	a.engine = poster.NewService(poster.Deps{
		Settings:  a.channels,
		Probe:     feeds,
		Fetcher:   feeds,
		Publisher: poster.NewLogPublisher(a.log.With(logx.String("comp", "publisher"))),
		Locks:     lock.NewManager(store, a.log.With(logx.String("comp", "lock"))),
		Quotas:    a.quotas,
		Cache: candidate.NewCache(candidate.Options{
			TTL:        durs.candidateTTL,
			SourceCap:  eng.ProbeSourceCap,
			KeywordCap: eng.ProbeKeywordCap,
		}, a.log.With(logx.String("comp", "candidate"))),
		Dedup: dedup.NewDetector(store, dedup.Windows{
			Article: durs.articleDedup,
			Video:   durs.videoDedup,
		}, a.log.With(logx.String("comp", "dedup"))),
		Sched: schedule.NewScheduler(store, a.log.With(logx.String("comp", "schedule"))),
		Retry: retry.NewExecutor(retry.Options{
			MaxAttempts: eng.RetryMax,
			BaseDelay:   durs.retryBase,
		}, a.log.With(logx.String("comp", "retry"))),
		Bus: a.bus,
	}, poster.Options{
		GlobalLockTTL:  durs.globalLockTTL,
		ChannelLockTTL: durs.channelLockTTL,
		ChannelPacing:  durs.channelPacing,
		SweepTimeout:   durs.sweepTimeout,
		FetchTimeout:   durs.fetchTimeout,
	}, a.log.With(logx.String("comp", "poster")))

	a.jobs = job.NewTracker(store, a.engine, job.Options{
		QueueSize: eng.JobQueueSize,
		TTL:       durs.jobTTL,
	}, a.log.With(logx.String("comp", "job")))

	if cfg.Server != nil && cfg.Server.Enabled {
		srvCfg, err := serverConfig(cfg.Server)
		if err != nil {
			return err
		}
		a.api = server.New(srvCfg, a.engine, a.jobs, a.log.With(logx.String("comp", "api")))
	}
	return nil
}

func (a *App) configureProviders(cfg *config.Config) error {
	for name, pc := range cfg.Providers {
		minInterval, err := config.ParseDurationOrDefault(
			fmt.Sprintf("providers.%s.min_interval", name), pc.MinInterval, time.Second)
		if err != nil {
			return err
		}
		a.quotas.Configure(name, quota.Config{DailyLimit: pc.DailyLimit, MinInterval: minInterval})
	}
	return nil
}

// Start brings the engine online: job workers, config watcher, sweep tick
// and the admin API.
func (a *App) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.jobs.Start(ctx)
	a.startEventLog(ctx)
	a.startReload(ctx)

	if a.tick != "" {
		c := cron.New()
		if _, err := c.AddFunc(a.tick, func() { a.sweep(ctx) }); err != nil {
			cancel()
			return fmt.Errorf("engine.tick: %w", err)
		}
		c.Start()
		a.cron = c
		a.log.Info("sweep tick scheduled", logx.String("tick", a.tick))
	} else {
		a.log.Warn("engine.tick empty: periodic sweep disabled, manual triggers only")
	}

	if a.api != nil {
		if err := a.api.Start(ctx); err != nil {
			cancel()
			return err
		}
	}

	a.log.Info("autopost started")
	return nil
}

func (a *App) sweep(ctx context.Context) {
	rep, err := a.engine.ExecuteAll(ctx, false)
	if err != nil {
		// Contention with a manual run is routine, everything else is not.
		a.log.Warn("sweep did not run", logx.Err(err))
		return
	}
	a.log.Info("sweep finished",
		logx.Int("executed", rep.Executed),
		logx.Int("skipped", rep.Skipped),
		logx.Int("posts", rep.PostsCreated))
}

// startReload follows the config file: channel edits apply live, logging
// changes re-apply, provider budgets reconfigure. Storage and server
// changes need a restart.
func (a *App) startReload(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.cfgMgr.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("config watcher stopped", logx.Err(err))
		}
	}()
	go func() {
		defer a.wg.Done()
		defer a.cfgMgr.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()
}

func (a *App) applyReload(cfg *config.Config) {
	console := true
	if cfg.Logging.Console != nil {
		console = *cfg.Logging.Console
	}
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.channels.Apply(cfg)
	if err := a.configureProviders(cfg); err != nil {
		a.log.Error("provider reload failed", logx.Err(err))
	}
	a.log.Info("configuration reloaded", logx.Int("channels", len(cfg.Channels)))
}

// startEventLog subscribes a log sink to the event bus so runs are traceable
// without any external consumer.
func (a *App) startEventLog(ctx context.Context) {
	events, unsub := a.bus.Subscribe(64)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
			}
		}
	}()
}

// Stop shuts everything down in reverse start order and waits for workers.
func (a *App) Stop(ctx context.Context) error {
	if a.api != nil {
		a.api.Stop(ctx)
	}
	if a.cron != nil {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.jobs.Wait()
	a.wg.Wait()

	err := a.store.Close()
	a.logs.Close()
	return err
}

// Engine exposes the orchestrator for embedding callers (tests, one-shot CLI).
func (a *App) Engine() *poster.Service { return a.engine }
