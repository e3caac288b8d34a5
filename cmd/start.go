package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"holdings-sync/core/loader"
	"holdings-sync/core/logger"
	"holdings-sync/core/middleware/auth"
	"holdings-sync/core/middleware/rayid"
	"holdings-sync/core/tracing"
	"holdings-sync/feature/changes"
	"holdings-sync/feature/status"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the change detectors, the queue processor and the status API",
	Long: `Starts one change detector per catalog lane, the single queue processor and,
unless disabled, the status HTTP server. Stops gracefully on SIGINT or SIGTERM.`,
	RunE: runStart,
}

func init() {
	RootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp()
	if err != nil {
		return err
	}
	l := a.logger
	defer l.Sync()
	zap.ReplaceGlobals(l)

	shutdownTracing, err := tracing.Setup(ctx, a.cfg.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			l.Warn("Failed to flush spans", zap.Error(err))
		}
	}()

	if err := a.migrate(ctx); err != nil {
		return err
	}
	source, err := a.source(ctx)
	if err != nil {
		return err
	}
	idx, err := a.indexer(ctx)
	if err != nil {
		return err
	}
	reviews, err := a.reviews(ctx)
	if err != nil {
		return err
	}
	proc := a.processor(source, idx, reviews)

	lanes := a.cfg.Detector.Select(source.Lanes())
	if len(lanes) == 0 {
		return fmt.Errorf("no detector lanes selected from %v", source.Lanes())
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, lane := range lanes {
		d := changes.NewDetector(lane, source, a.queue, a.cfg.Detector.Options(), l)
		g.Go(func() error { return d.Run(gctx) })
	}
	g.Go(func() error { return proc.Run(gctx) })

	if a.cfg.Server.Enabled {
		srv := newServer(a, proc)
		g.Go(func() error {
			l.Info("Starting server", zap.String("address", a.cfg.Server.Address()))
			if err := srv.Listen(a.cfg.Server.Address()); err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			l.Info("Shutting down server...")
			return srv.ShutdownWithTimeout(a.cfg.Server.ShutdownTimeout)
		})
	}

	l.Info("Sync started",
		zap.String("source", source.Name()),
		zap.Strings("lanes", lanes),
		zap.String("index", idx.Name()),
		zap.Bool("reviews", reviews != nil),
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	l.Info("Sync stopped")
	return nil
}

func newServer(a *app, previewer status.Previewer) *fiber.App {
	l := a.logger
	srv := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           a.cfg.Server.ReadTimeout,
	})

	// RayID first so every later log line carries it.
	srv.Use(rayid.New())

	srv.Use(func(c *fiber.Ctx) error {
		rl := logger.WithRayID(l, c)
		rl.Debug("Request started",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		err := c.Next()
		if err != nil {
			rl.Error("Request error", zap.Error(err))
		}
		return err
	})

	srv.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	srv.Use(auth.New(auth.Config{ApiKey: a.cfg.Server.ApiKey, Skip: []string{"/healthz"}}))

	mgr := loader.NewManager(l)
	mgr.Register(status.NewFeature(a.queue, previewer, l))
	if err := mgr.LoadAll(srv); err != nil {
		l.Fatal("Failed to load features", zap.Error(err))
	}
	return srv
}
