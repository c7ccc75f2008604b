// Package app wires the store, scheduler, notification channel and Discord
// front end together and runs them until shutdown.
package app

import (
	"context"
	"errors"
	"math"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"focusbot/internal/bot"
	"focusbot/internal/config"
	"focusbot/internal/db"
	"focusbot/internal/db/memory"
	"focusbot/internal/db/models"
	"focusbot/internal/digest"
	"focusbot/internal/logger"
	"focusbot/internal/metrics"
	"focusbot/internal/notify"
	"focusbot/internal/pomodoro"
	"focusbot/internal/reminder"
	"focusbot/internal/schedule"
	"focusbot/internal/worker/cleanup"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	log        *zap.Logger
	store      db.Store
	closeStore func()
	sched      *schedule.Runtime
	pomodoro   *pomodoro.Manager
	digest     *digest.Scheduler
	reminders  *reminder.Checker
	cleanup    *cleanup.Job
	bot        *bot.Bot
	httpSrv    *http.Server
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, closeStore: func() {}}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		a.closeStore()
		return nil, goerr.Wrap(err, "error creating discord session")
	}

	router, err := a.newRouter(session)
	if err != nil {
		a.closeStore()
		return nil, err
	}
	sender := notify.NewLimited(router, cfg.Scheduler.SendRate, int(math.Max(1, math.Ceil(cfg.Scheduler.SendRate))))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	tz := cfg.Scheduler.DefaultTimezone
	a.sched = schedule.NewRuntime(tz, log.Named("schedule"))

	a.pomodoro = pomodoro.NewManager(a.store, a.sched, log.Named("pomodoro"),
		pomodoro.WithRenderer(bot.TimerRenderer(a.store, cfg.Location())),
		pomodoro.WithMetrics(collector),
	)
	a.digest = digest.New(a.store, a.sched, sender, log.Named("digest"), tz, digest.WithMetrics(collector))
	a.reminders = reminder.New(a.store, sender, log.Named("reminder"), cfg.Location(),
		reminder.WithInterval(cfg.Scheduler.ReminderInterval),
		reminder.WithDedupTTL(cfg.Scheduler.DedupTTL),
		reminder.WithMetrics(collector),
	)
	a.cleanup = cleanup.NewJob(a.store, log.Named("cleanup"), collector, nil)
	a.cleanup.RetentionDays = cfg.Scheduler.RetentionDays

	a.bot = bot.New(cfg, session, bot.Services{
		Store:     a.store,
		Pomodoro:  a.pomodoro,
		Digest:    a.digest,
		Reminders: a.reminders,
		Sender:    sender,
	}, log.Named("bot"))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))

	a.httpSrv = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	tz := a.cfg.Scheduler.DefaultTimezone

	if a.cfg.Database.Backend == config.BackendMemory {
		a.log.Warn("using in-memory store, data is lost on restart")
		a.store = memory.New(tz)
		return nil
	}

	if err := db.RunMigrations(a.cfg.Database.URL()); err != nil {
		return err
	}
	database, err := db.New(ctx, a.cfg.Database, tz)
	if err != nil {
		return err
	}
	a.store = database
	a.closeStore = database.Close
	a.log.Info("database ready", zap.String("host", a.cfg.Database.Host), zap.String("dbname", a.cfg.Database.DBName))
	return nil
}

// newRouter always delivers over Discord and adds Telegram and Slack when
// their tokens are configured.
func (a *App) newRouter(session *discordgo.Session) (*notify.Router, error) {
	var opts []notify.RouterOption

	if token := a.cfg.Telegram.Token; token != "" {
		api, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return nil, goerr.Wrap(err, "error creating telegram client")
		}
		opts = append(opts, notify.WithTransport(models.DeliveryTelegram, notify.NewTelegram(api)))
		a.log.Info("telegram delivery enabled", zap.String("bot", api.Self.UserName))
	}
	if token := a.cfg.Slack.Token; token != "" {
		opts = append(opts, notify.WithTransport(models.DeliverySlack, notify.NewSlack(slack.New(token))))
		a.log.Info("slack delivery enabled")
	}

	return notify.NewRouter(a.store, notify.NewDiscord(session), a.log.Named("notify"), opts...), nil
}

// Run restores scheduled work and serves until ctx ends or SIGINT/SIGTERM.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	defer a.closeStore()

	a.log.Info("starting focusbot",
		zap.String("backend", a.cfg.Database.Backend),
		zap.String("http", a.cfg.HTTP.Addr),
		zap.String("timezone", a.cfg.Scheduler.DefaultTimezone),
	)

	if err := a.restore(ctx); err != nil {
		return err
	}
	a.sched.Start()
	defer a.sched.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.reminders.Run(gctx)
	})
	g.Go(func() error {
		return a.bot.Start(gctx)
	})
	g.Go(func() error {
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "http server error", goerr.V("addr", a.httpSrv.Addr))
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.log.Info("shutdown signal received")

		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.httpSrv.Shutdown(shCtx); err != nil {
			a.log.Warn("http server shutdown error", zap.Error(err))
		}
		return nil
	})

	err := g.Wait()
	a.log.Info("focusbot stopped", zap.Int("running_pomodoros", a.pomodoro.Active()))
	return err
}

// restore brings scheduled state in line with the store after a restart.
func (a *App) restore(ctx context.Context) error {
	if err := a.pomodoro.Reconcile(ctx); err != nil {
		a.log.Error("pomodoro reconcile failed", logger.ErrFields(err)...)
	}
	if err := a.digest.EnsureAll(ctx); err != nil {
		a.log.Error("digest scheduling failed", logger.ErrFields(err)...)
	}

	tz := a.cfg.Scheduler.DefaultTimezone
	if _, err := a.cleanup.Register(a.sched, a.cfg.Scheduler.CleanupCron, tz); err != nil {
		return err
	}

	// The checker sleeps until a day has reminders; look again each midnight.
	wake := func() {
		if err := a.reminders.EnsureStarted(context.WithoutCancel(ctx)); err != nil {
			a.log.Error("reminder activation failed", logger.ErrFields(err)...)
		}
	}
	if _, err := a.sched.Recurring("0 0 * * *", tz, wake); err != nil {
		return goerr.Wrap(err, "failed to schedule reminder activation")
	}
	wake()
	return nil
}
