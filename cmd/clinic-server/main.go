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

	"github.com/parakaleomed/clinic/internal/config"
	"github.com/parakaleomed/clinic/internal/domain/family"
	"github.com/parakaleomed/clinic/internal/domain/patient"
	"github.com/parakaleomed/clinic/internal/domain/prescription"
	"github.com/parakaleomed/clinic/internal/domain/snapshot"
	"github.com/parakaleomed/clinic/internal/domain/visit"
	"github.com/parakaleomed/clinic/internal/platform/auth"
	"github.com/parakaleomed/clinic/internal/platform/db"
	"github.com/parakaleomed/clinic/internal/platform/hub"
	"github.com/parakaleomed/clinic/internal/platform/middleware"
	"github.com/parakaleomed/clinic/internal/workflow"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Mobile clinic visit workflow server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
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

	return cmd
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
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
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Station role tagging
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.StationMiddleware([]byte(cfg.StationSecret)))
	}

	// Health check
	e.GET("/health", db.HealthHandler(pool))

	apiV1 := e.Group("/api/v1")

	// Station sessions: a tablet identifies itself and its role, gets a
	// token for subsequent commands.
	apiV1.POST("/sessions", sessionHandler(cfg))

	// Change notification hub
	clinicHub := hub.NewHub(logger)
	hubHandler := hub.NewHandler(clinicHub, cfg.HeartbeatInterval, cfg.HeartbeatTimeout)
	hubHandler.RegisterRoutes(apiV1)

	// Registry repositories
	patientRepo := patient.NewRepo(pool)
	familyRepo := family.NewRepo(pool)
	visitRepo := visit.NewRepo(pool)
	ledgerRepo := prescription.NewRepo(pool)
	snapRepo := snapshot.NewRepo(pool)

	// Patient domain
	patientSvc := patient.NewService(patientRepo, cfg.ClinicLocation)
	patientHandler := patient.NewHandler(patientSvc)
	patientHandler.RegisterRoutes(apiV1)

	// Family domain
	familySvc := family.NewService(familyRepo, patientRepo)
	familyHandler := family.NewHandler(familySvc)
	familyHandler.RegisterRoutes(apiV1)

	// Prescription formulary and ledger reads
	rxHandler := prescription.NewHandler(ledgerRepo)
	rxHandler.RegisterRoutes(apiV1)

	// Workflow engine
	engine := workflow.NewEngine(
		db.NewRunner(pool), patientRepo, visitRepo, ledgerRepo, snapRepo,
		clinicHub, cfg.ClinicLocation, logger,
	)
	workflowHandler := workflow.NewHandler(engine)
	workflowHandler.RegisterRoutes(apiV1)

	// Serve with graceful shutdown: let in-flight transitions finish, then
	// drop the hub connections with the listener.
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server started")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type sessionRequest struct {
	StationID string `json:"station_id"`
	Role      string `json:"role"`
}

// sessionHandler issues a station role token. In development mode tokens are
// still issued (so the websocket flow can be exercised) but every request is
// already tagged admin by the dev middleware.
func sessionHandler(cfg *config.Config) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req sessionRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		if req.StationID == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "station_id is required")
		}
		if !auth.ValidRole(req.Role) {
			return echo.NewHTTPError(http.StatusBadRequest, "unknown role")
		}

		secret := cfg.StationSecret
		if secret == "" {
			secret = "dev-only-secret"
		}
		token, err := auth.IssueToken([]byte(secret), req.StationID, req.Role, 12*time.Hour)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "could not issue token")
		}
		return c.JSON(http.StatusOK, map[string]string{
			"token": token,
			"role":  req.Role,
		})
	}
}
