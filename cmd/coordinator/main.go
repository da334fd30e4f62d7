// Command coordinator runs the BuildIt coordinator: the HTTP API, the
// liveness sweeper, and the background job manager that schedules it.
package main

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/aosc-dev/buildit/internal/api"
	"github.com/aosc-dev/buildit/internal/completion"
	"github.com/aosc-dev/buildit/internal/config"
	"github.com/aosc-dev/buildit/internal/dispatch"
	"github.com/aosc-dev/buildit/internal/liveness"
	"github.com/aosc-dev/buildit/internal/notify"
	"github.com/aosc-dev/buildit/internal/orchestrator"
	"github.com/aosc-dev/buildit/internal/platform"
	"github.com/aosc-dev/buildit/internal/relay"
	"github.com/aosc-dev/buildit/internal/store"
	"github.com/aosc-dev/buildit/middlewares"
	"github.com/aosc-dev/buildit/pkg/db"
	"github.com/aosc-dev/buildit/pkg/health"
	"github.com/aosc-dev/buildit/pkg/job"
	"github.com/aosc-dev/buildit/pkg/logger"
	"github.com/aosc-dev/buildit/pkg/mailer"
	"github.com/aosc-dev/buildit/pkg/mailer/resend"
	"github.com/aosc-dev/buildit/pkg/redis"
)

// defaultArchs is proposed by the literal resolver stand-in (§1 treats git
// inspection as an external collaborator) when a submission does not narrow
// its own architecture set.
var defaultArchs = []string{"amd64", "arm64", "loongarch64", "ppc64el", "riscv64"}

func main() {
	if err := run(); err != nil {
		slog.Error("coordinator exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := buildLogger(cfg)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL,
		db.WithMigrations(platform.Migrations),
		db.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer pool.Close()

	s := store.New(pool)

	var redisClient goredis.UniversalClient
	if cfg.RedisURL != "" {
		redisClient, err = redis.Open(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("open redis: %w", err)
		}
		defer redis.Shutdown(redisClient)(context.Background())
	}

	mail := buildMailer(cfg)
	sweeper := liveness.New(s, cfg.LivenessTick, cfg.LivenessTimeout, log)

	managerOpts := []job.Option{
		job.WithScheduledTask(sweeper),
		job.WithLogger(log),
	}
	if mail != nil {
		managerOpts = append(managerOpts, job.WithTask(notify.NewMailRetryTask(mail)))
	}

	manager, err := job.NewManager(pool, managerOpts...)
	if err != nil {
		return fmt.Errorf("build job manager: %w", err)
	}
	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start job manager: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Stop(shutdownCtx); err != nil {
			log.Error("job manager stop failed", "error", err)
		}
	}()

	notifier := buildNotifier(cfg, s, mail, manager, log)

	resolver := orchestrator.LiteralResolver{DefaultArchs: defaultArchs}
	orch := orchestrator.New(s, resolver, notifier)
	dispatcher := dispatch.New(s)
	completer := completion.New(s, notifier, nil)
	relayHub := relay.New(cfg.RelayBuffer, log)

	a := api.New(s, orch, dispatcher, completer, relayHub, log, cfg.LivenessTimeout)
	if redisClient != nil {
		a.EnableRedisDashboardCache(redisClient, cfg.DashboardCacheTTL)
	}

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      buildHandler(a, pool, manager, redisClient, log, cfg.RequestTimeout),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // log streaming and the websocket relay run long-lived connections
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("coordinator listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildLogger(cfg *config.Config) *slog.Logger {
	if cfg.SentryDSN == "" {
		return logger.New()
	}
	return logger.NewWithSentry(logger.SentryConfig{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		MinLevel:    slog.LevelWarn,
	})
}

// buildMailer constructs the Resend-backed mailer only when both an API key
// and a sender address are configured, returning nil otherwise so callers
// can fall back to notify.Noop without a nil-interface foot-gun.
func buildMailer(cfg *config.Config) *mailer.Mailer {
	if cfg.ResendAPIKey == "" || cfg.MailFromEmail == "" {
		return nil
	}

	sender := resend.New(resend.Config{
		APIKey:      cfg.ResendAPIKey,
		SenderEmail: cfg.MailFromEmail,
		SenderName:  cfg.MailFromName,
	})
	// MailNotifier and MailRetryTask only ever call Mailer.SendRaw with
	// pre-rendered HTML, so the renderer's template filesystem is never
	// consulted.
	renderer := mailer.NewRenderer(embed.FS{})
	return mailer.New(sender, renderer, mailer.Config{})
}

// buildNotifier wires a MailNotifier when a mailer is configured, handing it
// the job manager so a failed send durably retries instead of being dropped;
// otherwise notifications are silently dropped, matching notify.Noop's
// contract.
func buildNotifier(cfg *config.Config, s *store.Store, m *mailer.Mailer, manager *job.Manager, log *slog.Logger) notify.Notifier {
	if m == nil {
		return notify.Noop{}
	}

	recipient := func(ctx context.Context, pipelineID int64) (string, string) {
		if cfg.MailRecipientDomain == "" {
			return "", ""
		}
		p, err := s.GetPipeline(ctx, pipelineID)
		if err != nil || p.CreatorLogin == "" {
			return "", ""
		}
		return fmt.Sprintf("%s@%s", p.CreatorLogin, cfg.MailRecipientDomain), p.CreatorLogin
	}

	return notify.NewMailNotifier(m, recipient, log, manager)
}

func buildHandler(a *api.API, pool healthPinger, manager *job.Manager, redisClient goredis.UniversalClient, log *slog.Logger, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	r.Use(middlewares.Recover(middlewares.WithRecoverLogger(log)))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.CORS())
	r.Use(middlewares.Timeout(timeout))

	r.Mount("/", a.Router())

	checks := health.Checks{
		"database": func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
		"jobs": job.Healthcheck(manager),
	}
	if redisClient != nil {
		checks["redis"] = redis.Healthcheck(redisClient)
	}

	r.Get("/healthz", health.LivenessHandler())
	r.Get("/readyz", health.ReadinessHandler(checks))

	return r
}

// healthPinger is the subset of *pgxpool.Pool the readiness check needs.
type healthPinger interface {
	Ping(ctx context.Context) error
}
