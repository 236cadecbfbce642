package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portfolio-persist/core/loader"
	"portfolio-persist/core/logger"
	"portfolio-persist/core/middleware/auth"
	"portfolio-persist/core/middleware/rayid"
	"portfolio-persist/core/persist"
	"portfolio-persist/feature/persistence"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var migrateOnStart bool

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the reconciler and the HTTP server",
	Long: `Starts the reconciler workers and the HTTP API.
On SIGINT/SIGTERM the server stops accepting requests and the queues are drained.`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "Migrate the records table before starting")
	RootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, logg, err := loadRuntime()
	if err != nil {
		return err
	}
	defer logg.Sync()
	zap.ReplaceGlobals(logg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	logg.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	if migrateOnStart {
		if err := store.Migrate(ctx); err != nil {
			return err
		}
	}
	if err := store.Verify(ctx); err != nil {
		return err
	}

	// Escalations are still logged without the archive.
	archive, err := openArchive(ctx, cfg, logg)
	if err != nil {
		logg.Warn("Dead-letter archive unavailable", zap.Error(err))
		archive = nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	reconciler, classify := newReconciler(cfg, store, archive, logg, persist.WithMetrics(persist.NewMetrics(reg)))

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	// RayID must be first so every log line can be traced.
	app.Use(rayid.New())
	app.Use(func(c *fiber.Ctx) error {
		l := logger.WithRayID(logg, c)
		l.Debug("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			l.Error("Request error", zap.Error(err))
		}
		return err
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey}))

	mgr := loader.NewManager()
	mgr.Register(persistence.NewFeature(reconciler, store, classify, archive, logg))
	if err := mgr.LoadAll(app); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reconciler.Run(gctx)
	})
	g.Go(func() error {
		logg.Info("Starting server", zap.String("port", cfg.Server.Port))
		return app.Listen(":" + cfg.Server.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		logg.Info("Shutting down server...")
		return app.ShutdownWithTimeout(time.Duration(cfg.Server.ShutdownSeconds) * time.Second)
	})

	runErr := g.Wait()

	// Flush what the workers left behind before exiting.
	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Reconciler.TxTimeout()*time.Duration(max(cfg.Reconciler.MaxAttempts, 1)))
	defer cancel()
	if err := reconciler.Drain(drainCtx); err != nil {
		logg.Warn("Records escalated during shutdown", zap.Error(err))
	}
	reconciler.Close()
	if left := reconciler.Stats(); left.Insert+left.Merge > 0 {
		logg.Error("Records left unreconciled at shutdown",
			zap.Int("insert", left.Insert),
			zap.Int("merge", left.Merge),
		)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	logg.Info("Shutdown complete")
	return nil
}
