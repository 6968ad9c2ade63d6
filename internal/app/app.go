package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/assets"
	"github.com/ChuprinaDaria/yoga-bot/internal/clock"
	"github.com/ChuprinaDaria/yoga-bot/internal/config"
	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
	"github.com/ChuprinaDaria/yoga-bot/internal/lifecycle"
	"github.com/ChuprinaDaria/yoga-bot/internal/scheduler"
	"github.com/ChuprinaDaria/yoga-bot/internal/store"
	"github.com/ChuprinaDaria/yoga-bot/internal/telegram"
	"github.com/ChuprinaDaria/yoga-bot/internal/trial"
)

type App struct {
	cfg      config.Config
	log      *zap.Logger
	bot      *tgbotapi.BotAPI
	httpSrv  *http.Server
	repo     store.Repo
	sched    *scheduler.Scheduler
	svc      *trial.Service
	router   *telegram.Router
	registry *prometheus.Registry
}

// New connects to Telegram, opens the database and wires the services.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	bot.Debug = false

	repo, err := store.OpenSQLite(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	log.Info("sqlite ready", zap.String("path", cfg.DBPath))

	catalog, err := assets.LoadCatalog()
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sched := scheduler.New(log.Named("scheduler"))
	out := telegram.NewMessenger(bot, cfg.SendRate, log.Named("telegram"))
	svc := trial.New(trial.Config{
		Lifecycle: lifecycle.Config{
			TrialDuration:      cfg.TrialDuration.Std(),
			ReminderEvery:      cfg.ReminderEvery.Std(),
			ExtensionDuration:  cfg.ExtensionDuration.Std(),
			PromptCleanupAfter: cfg.PromptCleanupAfter.Std(),
		},
		StartDelay:   cfg.StartDelay.Std(),
		Concurrency:  cfg.SweepConcurrency,
		ContentLimit: cfg.ContentLimit,
		Links: trial.Links{
			ChatURL:     cfg.ChatURL,
			DiscountURL: cfg.DiscountURL,
			CoachURL:    cfg.CoachURL,
		},
	}, trial.Deps{
		Repo:      repo,
		Messenger: out,
		Content:   catalog,
		Deferrer:  sched,
		Clock:     clock.Real{},
		Metrics:   trial.NewMetrics(reg),
		Log:       log.Named("trial"),
	})

	a := &App{
		cfg:      cfg,
		log:      log,
		bot:      bot,
		repo:     repo,
		sched:    sched,
		svc:      svc,
		router:   telegram.NewRouter(out, svc, cfg.IsAdmin, log.Named("router")),
		registry: reg,
	}
	if cfg.HTTPAddr != "" {
		a.httpSrv = &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      opsRouter(repo, reg),
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		}
	}
	return a, nil
}

// Run serves Telegram updates and maintenance jobs until ctx is cancelled
// or the process receives SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting yoga-bot",
		zap.String("http", a.cfg.HTTPAddr),
		zap.Duration("maintenanceEvery", a.cfg.MaintenanceEvery.Std()),
		zap.Duration("purgeEvery", a.cfg.PurgeEvery.Std()),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := a.svc.RecoverPending(ctx); err != nil {
		a.log.Warn("recover pending starts failed", zap.Error(err))
	}
	if err := scheduleMaintenance(a.sched, a.cfg.MaintenanceEvery.Std(), a.cfg.PurgeEvery.Std(), a.dailyJob, a.purgeJob); err != nil {
		return err
	}
	a.sched.Start()

	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server error", zap.Error(err))
			}
		}()
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updCh := a.bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("shutdown signal received")
			a.shutdown()
			return nil

		case upd := <-updCh:
			a.router.HandleUpdate(ctx, upd)
		}
	}
}

// Sweep runs one maintenance sweep and returns its audit record.
func (a *App) Sweep(ctx context.Context, kind domain.RunKind) (domain.MaintenanceRun, error) {
	switch kind {
	case domain.RunDaily:
		return a.svc.DailySweep(ctx)
	case domain.RunPurge:
		return a.svc.PurgeSweep(ctx)
	case domain.RunCleanup:
		return a.svc.CleanupSweep(ctx)
	}
	return domain.MaintenanceRun{}, fmt.Errorf("unknown sweep %q", kind)
}

// Close releases resources of an App that was not Run.
func (a *App) Close() error {
	a.sched.Stop()
	return a.repo.Close()
}

type jobScheduler interface {
	RunEvery(name string, interval time.Duration, job scheduler.Job) error
	RunAfter(key string, delay time.Duration, job scheduler.Job)
}

// scheduleMaintenance registers the periodic sweeps plus one catch-up pass
// that fires right away, so work that fell due while the process was down
// does not wait for the first interval.
func scheduleMaintenance(s jobScheduler, dailyEvery, purgeEvery time.Duration, daily, purge scheduler.Job) error {
	if err := s.RunEvery("daily", dailyEvery, daily); err != nil {
		return err
	}
	if err := s.RunEvery("purge", purgeEvery, purge); err != nil {
		return err
	}
	s.RunAfter("maintenance:startup", 0, func(ctx context.Context) {
		daily(ctx)
		purge(ctx)
	})
	return nil
}

// dailyJob expires and reminds, then removes leftover prompts of finished
// extensions.
func (a *App) dailyJob(ctx context.Context) {
	if _, err := a.svc.DailySweep(ctx); err != nil {
		a.log.Error("daily sweep failed", zap.Error(err))
	}
	if _, err := a.svc.CleanupSweep(ctx); err != nil {
		a.log.Error("cleanup sweep failed", zap.Error(err))
	}
}

func (a *App) purgeJob(ctx context.Context) {
	if _, err := a.svc.PurgeSweep(ctx); err != nil {
		a.log.Error("purge sweep failed", zap.Error(err))
	}
}

func (a *App) shutdown() {
	a.bot.StopReceivingUpdates()

	if a.httpSrv != nil {
		// Create a short-lived shutdown context and cancel it immediately after use.
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := a.httpSrv.Shutdown(shCtx)
		cancel()
		if err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
	}

	// Waits for in-flight sweeps so they commit before the store closes.
	a.sched.Stop()
	if err := a.repo.Close(); err != nil {
		a.log.Warn("close sqlite failed", zap.Error(err))
	}
}
