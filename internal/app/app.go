// Package app wires configuration, transport, and the mailbox and
// countdown services into one process.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"mailpost/internal/config"
	"mailpost/internal/eventbus"
	"mailpost/internal/health"
	"mailpost/internal/livecode"
	"mailpost/internal/mailbox"
	"mailpost/internal/notify"
	"mailpost/internal/runtime/supervisor"
	"mailpost/internal/session"
	"mailpost/internal/transport"
	telegram "mailpost/internal/transport/telegram/adapter"
	"mailpost/internal/transport/telegram/router"
	"mailpost/internal/watcher"
	logx "mailpost/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter  *telegram.Adapter
	sessions *session.Registry
	client   *mailbox.Client
	gen      *mailbox.Generator

	notif  *notify.Service
	codes  *livecode.Manager
	poller *watcher.Poller
	health *health.Server
	router *router.Router

	// pollMu guards the poller restart dance during hot reload.
	pollMu     sync.Mutex
	pollCancel context.CancelFunc

	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	mbCfg, err := mapMailboxConfig(cfg)
	if err != nil {
		return nil, err
	}
	client := mailbox.NewClient(mbCfg.baseURL, mailbox.WithHTTPClient(&http.Client{Timeout: mbCfg.fetchTimeout}))
	gen := mailbox.NewGenerator(mbCfg.domain)
	sessions := session.NewRegistry()

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	notif := notify.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)

	codes := livecode.NewManager(ad, log.With(logx.String("comp", "livecode")), bus)

	poller := watcher.NewPoller(client, gen, sessions, notif, codes,
		log.With(logx.String("comp", "watcher")), bus,
		mbCfg.pollInterval, mbCfg.previewLimit)

	var hs *health.Server
	if cfg.Health.Enabled {
		hs = health.NewServer(cfg.Health.Addr, log.With(logx.String("comp", "health")))
	}

	rt := router.New(log.With(logx.String("comp", "commands")), ad)
	cmds, cbs := buildRegistry(commandDeps{
		sessions:  sessions,
		generator: gen,
		codes:     codes,
	})
	rt.SetRegistry(cmds, cbs)

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		adapter:  ad,
		sessions: sessions,
		client:   client,
		gen:      gen,
		notif:    notif,
		codes:    codes,
		poller:   poller,
		health:   hs,
		router:   rt,
		updates:  make(chan transport.Update, 256),
	}, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return fmt.Errorf("telegram.token must not be empty")
		}
		if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
			return err
		}
		if _, err := mapMailboxConfig(cfg); err != nil {
			return err
		}
		if _, err := mapNotifierConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.notif.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.startPoller(a.sup.Context())

	if a.health != nil {
		a.health.SetReady(true)
		a.sup.Go("health.serve", func(c context.Context) error {
			return a.health.Run(c)
		})
	}

	// Event flow visibility; keep at debug to stay quiet under load.
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, newCfg)
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	// logging first so the rest of the reload logs at the new level
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if ncfg, err := mapNotifierConfig(cfg); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	mbCfg, err := mapMailboxConfig(cfg)
	if err != nil {
		a.log.Warn("invalid mailbox config; keeping previous", logx.Err(err))
		a.log.Info("config reloaded")
		return
	}

	a.poller.SetPreviewLimit(mbCfg.previewLimit)
	if mbCfg.pollInterval != a.poller.Interval() {
		a.poller.SetInterval(mbCfg.pollInterval)
		a.restartPoller(ctx)
		a.log.Info("poll interval changed", logx.Duration("interval", mbCfg.pollInterval))
	}
	if mbCfg.baseURL != a.client.BaseURL() || mbCfg.domain != a.gen.Domain() {
		a.log.Warn("mailbox provider config changed; restart required for changes to take effect")
	}

	a.log.Info("config reloaded",
		logx.String("log_level", cfg.Logging.Level),
		logx.Bool("log_console", cfg.Logging.Console),
		logx.Bool("log_file", cfg.Logging.File.Enabled),
	)
}

func (a *App) startPoller(parent context.Context) {
	a.pollMu.Lock()
	defer a.pollMu.Unlock()

	pctx, cancel := context.WithCancel(parent)
	a.pollCancel = cancel
	a.sup.Go("mailbox.poll", func(context.Context) error {
		return a.poller.Run(pctx)
	})
}

func (a *App) restartPoller(parent context.Context) {
	a.pollMu.Lock()
	if a.pollCancel != nil {
		a.pollCancel()
	}
	a.pollMu.Unlock()
	a.startPoller(parent)
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// step bounds each shutdown phase so one component can't stall the stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem > 0 && rem < max {
					max = rem
				}
			}
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

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
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name))
		}
	}

	step("livecode", 1*time.Second, func(context.Context) error { a.codes.StopAll(); return nil })
	step("notifier", 2*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	step("adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

type mailboxSettings struct {
	baseURL      string
	domain       string
	pollInterval time.Duration
	fetchTimeout time.Duration
	previewLimit int
}

func mapMailboxConfig(cfg *config.Config) (mailboxSettings, error) {
	out := mailboxSettings{
		baseURL:      strings.TrimSpace(cfg.Mailbox.BaseURL),
		domain:       strings.TrimSpace(cfg.Mailbox.Domain),
		previewLimit: cfg.Mailbox.PreviewLimit,
	}
	var err error
	out.pollInterval, err = config.ParseDurationOrDefault("mailbox.poll_interval", cfg.Mailbox.PollInterval, mailbox.DefaultPollInterval)
	if err != nil {
		return out, err
	}
	out.fetchTimeout, err = config.ParseDurationOrDefault("mailbox.fetch_timeout", cfg.Mailbox.FetchTimeout, mailbox.DefaultFetchTimeout)
	if err != nil {
		return out, err
	}
	if out.previewLimit < 0 {
		return out, fmt.Errorf("mailbox.preview_limit must be >= 0")
	}
	return out, nil
}

func mapNotifierConfig(cfg *config.Config) (notify.Config, error) {
	var out notify.Config
	n := cfg.Notifier
	if n == nil {
		return out, nil
	}
	out.Workers = n.Workers
	out.QueueSize = n.QueueSize
	out.RatePerSec = n.RatePerSec
	out.RetryMax = n.RetryMax

	var err error
	out.RetryBase, err = config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return out, err
	}
	out.RetryMaxDelay, err = config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return out, err
	}
	return out, nil
}
