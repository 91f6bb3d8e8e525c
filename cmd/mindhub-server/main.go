package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dralejandroc/MINDHUB-sub003/internal/config"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/assessments"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/consultations"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/patients"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scales"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scheduling"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/auth"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/db"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/middleware"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/notification"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mindhub-server",
		Short: "Clinical assessment and consultation API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
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
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Rollback last migration (not supported)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("WARNING: migrate down is destructive and not supported by the built-in runner.")
			fmt.Println("Restore from a backup or write a forward migration instead.")
			return nil
		},
	})

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.RequestTimeout(30 * time.Second))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:   cfg.AuthIssuer,
			Audience: cfg.AuthAudience,
			JWKSURL:  cfg.AuthJWKSURL,
		}))
	}

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	apiV1 := e.Group("/api/v1")

	// Scale registry
	scaleSvc := scales.NewService(scales.NewRepoPG(pool), logger)
	if err := scaleSvc.SeedBuiltins(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to seed built-in scales")
	}
	scales.NewHandler(scaleSvc).RegisterRoutes(apiV1)

	// Patients
	patientSvc := patients.NewService(patients.NewRepoPG(pool))
	patients.NewHandler(patientSvc).RegisterRoutes(apiV1)

	// Assessment lifecycle. Response recording and completion scoring run
	// inside a single transaction.
	txRunner := func(ctx context.Context, fn func(context.Context) error) error {
		return db.WithTx(ctx, pool, fn)
	}
	assessSvc := assessments.NewService(
		assessments.NewInstanceRepoPG(pool),
		assessments.NewResponseRepoPG(pool),
		assessments.NewScoreRepoPG(pool),
		scaleSvc,
		patientSvc,
		txRunner,
		time.Duration(cfg.AssessmentExpiryHrs)*time.Hour,
		logger,
	)
	assessments.NewHandler(assessSvc).RegisterRoutes(apiV1)

	// Notifications
	notifier := notification.NewManager(
		&notification.LogEmailSender{Log: logger},
		&notification.LogSMSSender{Log: logger},
		&notification.LogPushSender{Log: logger},
		notification.NewTemplateEngine(),
	)

	// Scheduled assessments and reminders
	schedSvc := scheduling.NewService(
		scheduling.NewScheduleRepoPG(pool),
		scheduling.NewReminderRepoPG(pool),
		assessSvc,
		scaleSvc,
		patientSvc,
		notifier,
		logger,
	)
	scheduling.NewHandler(schedSvc).RegisterRoutes(apiV1)

	// Consultation drafts with background autosave
	draftSvc := consultations.NewService(consultations.NewRepoPG(pool), patientSvc, logger)
	autosaver := consultations.NewAutosaver(draftSvc, cfg.AutosaveInterval(), cfg.AutosaveMaxRetries, logger)
	defer autosaver.Close()
	consultations.NewHandler(draftSvc, autosaver).RegisterRoutes(apiV1)

	// Background loops: reminder dispatch and expiry sweeping.
	bgCtx, bgCancel := context.WithCancel(ctx)
	defer bgCancel()
	go schedSvc.Run(bgCtx, cfg.ReminderPollInterval())
	go func() {
		ticker := time.NewTicker(cfg.ReminderPollInterval())
		defer ticker.Stop()
		for {
			select {
			case <-bgCtx.Done():
				return
			case <-ticker.C:
				if n, err := assessSvc.SweepExpired(bgCtx); err != nil {
					logger.Error().Err(err).Msg("expiry sweep failed")
				} else if n > 0 {
					logger.Info().Int("cancelled", n).Msg("expired assessments cancelled")
				}
			}
		}
	}()

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
