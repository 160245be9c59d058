package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/pediaclinic/clinic/internal/config"
	"github.com/pediaclinic/clinic/internal/domain/account"
	"github.com/pediaclinic/clinic/internal/domain/encounter"
	"github.com/pediaclinic/clinic/internal/domain/recordimport"
	"github.com/pediaclinic/clinic/internal/platform/apperr"
	"github.com/pediaclinic/clinic/internal/platform/auditlog"
	"github.com/pediaclinic/clinic/internal/platform/auth"
	"github.com/pediaclinic/clinic/internal/platform/cache"
	"github.com/pediaclinic/clinic/internal/platform/db"
	"github.com/pediaclinic/clinic/internal/platform/metrics"
	"github.com/pediaclinic/clinic/internal/platform/middleware"
	"github.com/pediaclinic/clinic/internal/platform/notification"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
	bodyLimit       = "1M"
	mailAttempts    = 3
	mailBackoff     = 500 * time.Millisecond
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "clinic-server",
		Short:        "Pediatric clinic API server",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printMigrationStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (defaults to MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, dir))
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

func newLogger(env string, out io.Writer) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: out}).With().Timestamp().Logger()
	}
	return zerolog.New(out).With().Timestamp().Logger()
}

// newEcho builds the server with the global middleware chain. Routes are
// mounted separately.
func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperr.HTTPErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(metrics.Middleware())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	e.Use(echomw.BodyLimit(bodyLimit))

	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	e.Use(middleware.RateLimit(rl))
	e.Use(middleware.RequestTimeout(requestTimeout))
	return e
}

type services struct {
	accounts   *account.Service
	encounters *encounter.Service
	imports    *recordimport.Service
}

func newServices(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, tokens *cache.TokenStore, tm *auth.TokenManager) services {
	tx := db.NewTxRunner(pool)
	encRepo := encounter.NewRepo(pool)
	mailer := notification.NewMailer(notification.NewLogSender(logger), notification.NewTemplateEngine(), mailAttempts, mailBackoff)
	notifier := account.NewEmailNotifier(mailer, cfg.VerifyURL, cfg.VerificationTTL)
	return services{
		accounts:   account.NewService(account.NewRepo(pool), tx, tokens, tm, notifier, logger),
		encounters: encounter.NewService(encRepo, tx, logger),
		imports:    recordimport.NewService(recordimport.NewRepo(pool), encRepo, tx, logger),
	}
}

// mountRoutes wires the public and authenticated /api/v1 groups. Audit
// entries go to the log and to every recorder.
func mountRoutes(e *echo.Echo, logger zerolog.Logger, tm *auth.TokenManager, svcs services, accessLog auditlog.Lister, recorders ...middleware.AuditRecorder) {
	public := e.Group("/api/v1")
	api := e.Group("/api/v1", auth.JWTMiddleware(tm), middleware.Audit(logger, recorders...))

	account.NewHandler(svcs.accounts).RegisterRoutes(public, api)
	encounter.NewHandler(svcs.encounters).RegisterRoutes(api)
	recordimport.NewHandler(svcs.imports).RegisterRoutes(api)
	auditlog.NewHandler(accessLog).RegisterRoutes(api)
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg.Env, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")
	metrics.RegisterPoolStats(pool)

	rdb, err := cache.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to redis")
		return err
	}
	defer rdb.Close()
	logger.Info().Msg("connected to redis")

	tokens := cache.NewTokenStore(rdb, cfg.VerificationTTL)
	tm := auth.NewTokenManager(cfg.SigningKey(), cfg.JWTIssuer, cfg.TokenTTL)

	accessLog := auditlog.NewStore(pool)
	e := newEcho(cfg, logger)
	mountRoutes(e, logger, tm, newServices(cfg, logger, pool, tokens, tm), accessLog, accessLog)
	e.GET("/health/db", db.HealthHandler(pool, map[string]db.Pinger{"redis": tokens}))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
