package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/alecgard/teamhub/internal/api"
	"github.com/alecgard/teamhub/internal/audit"
	"github.com/alecgard/teamhub/internal/authz"
	"github.com/alecgard/teamhub/internal/config"
	"github.com/alecgard/teamhub/internal/metrics"
	"github.com/alecgard/teamhub/internal/notification"
	"github.com/alecgard/teamhub/internal/ratelimit"
	"github.com/alecgard/teamhub/internal/user"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the TeamHub API server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	level, _ := cfg.LogLevel()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return err
	}
	slog.Info("connected to database")

	m := metrics.New()
	m.RegisterDBPoolCollector(func() metrics.PoolStats {
		s := pool.Stat()
		return metrics.PoolStats{
			Total:         s.TotalConns(),
			Idle:          s.IdleConns(),
			Acquired:      s.AcquiredConns(),
			Max:           s.MaxConns(),
			EmptyAcquires: s.EmptyAcquireCount(),
		}
	})

	var (
		hub     *notification.Hub
		redisCl *redis.Client
	)
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("parsing redis url: %w", err)
		}
		redisCl = redis.NewClient(opts)
		defer redisCl.Close()
		if err := redisCl.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		hub = notification.NewHub(redisCl)
		hub.OnPublish(m.IncNotificationPublished)
		slog.Info("connected to redis")
	} else {
		slog.Warn("redis not configured, live notifications disabled")
	}

	a := newApp(cfg, pool, hub)
	a.roles.Observe(m.ObserveRecompute)

	collector := audit.NewCollector(a.auditLog, cfg.Audit.BatchSize, cfg.Audit.FlushInterval, cfg.Audit.RecordGrants)
	collector.OnFlush(m.ObserveAuditFlush)
	a.authz.Observe(collector.Observe)
	a.authz.Observe(m.ObserveDecision)

	scheduler := cron.New()
	if cfg.Session.CleanupSchedule != "" {
		if _, err := scheduler.AddFunc(cfg.Session.CleanupSchedule, cleanSessions(a.userStore)); err != nil {
			return fmt.Errorf("scheduling session cleanup: %w", err)
		}
	}

	deps := api.RouterDeps{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Sessions:       user.NewAuthAdapter(a.userStore),
		Users:          a.users,
		Roles:          a.roles,
		Teams:          a.teams,
		Boards:         a.boards,
		Tasks:          a.tasks,
		Logbook:        a.logbook,
		Notifications:  a.notifications,
		Hub:            hub,
		Chat:           a.chat,
		Metrics:        m,
		Decisions:      []authz.DecisionFunc{collector.Observe},
		Limiter:        ratelimit.New(cfg.RateLimit.Default, cfg.RateLimit.Window),
		AdminRate:      cfg.RateLimit.Admin,
		LoginLimit:     cfg.RateLimit.LoginLimit,
		LoginWindow:    cfg.RateLimit.LoginWindow,
		DB:             pool,
		Cron:           scheduler,
	}
	if hub != nil {
		deps.Redis = hub
	}

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Addr(), err)
	}
	slog.Info("server starting", "addr", ln.Addr().String())
	return serveUntilDone(ctx, srv, ln, collector, scheduler, cfg.Server.ShutdownTimeout)
}

// serveUntilDone serves on ln until ctx is cancelled. On the way out it
// stops the scheduler, drains in-flight requests and flushes the audit
// collector last.
func serveUntilDone(ctx context.Context, srv *http.Server, ln net.Listener, collector *audit.Collector, scheduler *cron.Cron, shutdownTimeout time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)

	// The collector outlives the signal so decisions made while requests
	// drain are still flushed; Stop ends it after Shutdown.
	g.Go(func() error {
		collector.Start(context.Background())
		return nil
	})

	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	scheduler.Start()

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		<-scheduler.Stop().Done()
		err := srv.Shutdown(shutdownCtx)
		collector.Stop()
		return err
	})

	return g.Wait()
}

// cleanSessions returns the cron job that deletes expired sessions.
func cleanSessions(store *user.Store) func() {
	return func() {
		n, err := store.CleanExpiredSessions(context.Background())
		if err != nil {
			slog.Error("cleaning expired sessions", "error", err)
			return
		}
		if n > 0 {
			slog.Info("cleaned expired sessions", "count", n)
		}
	}
}
