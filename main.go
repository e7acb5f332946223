package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/brelow/eml-archiver/internal/archive"
	"github.com/brelow/eml-archiver/internal/config"
	"github.com/brelow/eml-archiver/internal/consumer"
	"github.com/brelow/eml-archiver/internal/ghostscript"
	"github.com/brelow/eml-archiver/internal/gotenberg"
	"github.com/brelow/eml-archiver/internal/logger"
	"github.com/brelow/eml-archiver/internal/metrics"
	"github.com/brelow/eml-archiver/internal/registry"
	"github.com/brelow/eml-archiver/internal/server"
	"github.com/brelow/eml-archiver/internal/store"
	"github.com/brelow/eml-archiver/internal/tika"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "eml-archiver",
		Short:         "Convert mail messages into searchable, archivable PDF documents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "path to an .env configuration file")

	root.AddCommand(newServeCmd(&configFile))
	root.AddCommand(newConsumeCmd(&configFile))
	return root
}

func newServeCmd(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the archive API server and the consume-directory watcher",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configFile, true)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServe(a)
		},
	}
}

func newConsumeCmd(configFile *string) *cobra.Command {
	var ruleID int64

	cmd := &cobra.Command{
		Use:   "consume <file|dir>...",
		Short: "Convert the given .eml files or directories once and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*configFile, false)
			if err != nil {
				return err
			}
			defer a.Close()
			return runConsume(cmd.Context(), a, args, ruleID)
		},
	}
	cmd.Flags().Int64Var(&ruleID, "rule", 0, "conversion rule id applied to every document")
	return cmd
}

// app bundles the shared state both commands build from the configuration.
type app struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *store.Store
	registry  *registry.Registry
	consumer  *consumer.Consumer
	metrics   *metrics.Metrics
	gotenberg *gotenberg.Client
	tika      *tika.Client
}

// newApp loads the configuration and wires the conversion stack. Metrics
// registration is process-global, so only the server enables it.
func newApp(configFile string, withMetrics bool) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		File:        cfg.Log.File,
	})
	if err != nil {
		return nil, err
	}

	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Data.DatabasePath())
	if err != nil {
		return nil, err
	}

	gtb := gotenberg.NewClient(cfg.Gotenberg.URL, cfg.Convert.Timeout)
	tk := tika.NewClient(cfg.Tika.URL, cfg.Convert.Timeout)
	gs := ghostscript.New(cfg.Ghostscript.Binary, cfg.Ghostscript.ColorStrategy)

	var standards archive.StandardsConverter
	switch cfg.Convert.Engine {
	case config.EngineGotenberg:
		standards = gtb
	default:
		standards = gs
	}

	var m *metrics.Metrics
	var observe archive.Observer
	if withMetrics {
		m = metrics.New()
		observe = m.ObserveStage
	}

	pipeline, err := archive.NewPipeline(archive.Collaborators{
		Renderer:   gtb,
		Converter:  gtb,
		Merger:     gtb,
		Extractor:  tk,
		Recognizer: tk,
		Standards:  standards,
	}, archive.Options{
		Conformance:       cfg.Convert.Conformance,
		OCR:               cfg.Convert.OCR,
		AttachmentWorkers: cfg.Convert.AttachmentWorkers,
		Observe:           observe,
		Logger:            log,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	mailParser := archive.NewMailParser(pipeline, archive.Rule{
		Layout: cfg.Convert.DefaultLayout,
		Scope:  cfg.Convert.DefaultScope,
	}).
		WithRuleResolver(st).
		WithThumbnailer(gs).
		WithLogger(log)

	reg := registry.NewRegistry()
	if err := reg.Register(registry.Declaration{
		Name:      "mail",
		Weight:    30,
		MimeTypes: map[string]string{"message/rfc822": ".eml"},
		New:       func() registry.DocumentParser { return mailParser },
	}); err != nil {
		st.Close()
		return nil, err
	}

	cons := consumer.New(st, reg, cfg.Data.Dir, log).
		WithWorkers(cfg.Consume.Workers).
		WithMetrics(m)

	return &app{
		cfg:       cfg,
		log:       log,
		store:     st,
		registry:  reg,
		consumer:  cons,
		metrics:   m,
		gotenberg: gtb,
		tika:      tk,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("failed to close store", zap.Error(err))
	}
	_ = a.log.Sync()
}

func (a *app) readinessChecks() map[string]healthcheck.Check {
	return map[string]healthcheck.Check{
		"database":  healthcheck.DatabasePingCheck(a.store.DB, time.Second),
		"gotenberg": collaboratorCheck(a.gotenberg.Health),
		"tika":      collaboratorCheck(a.tika.Health),
	}
}

func collaboratorCheck(health func(context.Context) error) healthcheck.Check {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return health(ctx)
	}
}

func runServe(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(server.Options{
		Store:      a.store,
		Registry:   a.registry,
		Consumer:   a.consumer,
		ConsumeDir: a.cfg.Consume.Dir,
		Logger:     a.log,
		Metrics:    a.metrics,
		Readiness:  a.readinessChecks(),
	})

	httpServer := &http.Server{
		Addr:        a.cfg.Server.Address(),
		Handler:     srv.Router(),
		ReadTimeout: 15 * time.Second,
		// Uploads convert synchronously, so writes may take a full
		// conversion.
		WriteTimeout: a.cfg.Convert.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		a.log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.watchConsumeDir(ctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// watchConsumeDir sweeps the consume directory immediately and then on
// every interval tick until the context ends.
func (a *app) watchConsumeDir(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Consume.Interval)
	defer ticker.Stop()

	for {
		stats, err := a.consumer.ConsumeDir(ctx, a.cfg.Consume.Dir, 0)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Error("consume pass failed", zap.Error(err))
		} else if stats.Consumed > 0 || stats.Failed > 0 {
			a.log.Info("consume pass finished",
				zap.Int("found", stats.Found),
				zap.Int("consumed", stats.Consumed),
				zap.Int("skipped", stats.Skipped),
				zap.Int("failed", stats.Failed))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runConsume(ctx context.Context, a *app, args []string, ruleID int64) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var total consumer.Stats
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}

		if info.IsDir() {
			stats, err := a.consumer.ConsumeDir(ctx, arg, ruleID)
			if err != nil {
				return err
			}
			total.Found += stats.Found
			total.Consumed += stats.Consumed
			total.Skipped += stats.Skipped
			total.Failed += stats.Failed
			total.FailedFiles = append(total.FailedFiles, stats.FailedFiles...)
			continue
		}

		total.Found++
		_, err = a.consumer.ConsumeFile(ctx, arg, ruleID)
		switch {
		case err == nil:
			total.Consumed++
		case errors.Is(err, consumer.ErrDuplicate):
			total.Skipped++
		default:
			total.Failed++
			total.FailedFiles = append(total.FailedFiles, arg)
			a.log.Warn("failed to consume file", zap.String("path", arg), zap.Error(err))
		}
	}

	fmt.Printf("found %d, archived %d, skipped %d, failed %d\n",
		total.Found, total.Consumed, total.Skipped, total.Failed)
	for _, f := range total.FailedFiles {
		fmt.Printf("  failed: %s\n", f)
	}
	if total.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", total.Failed, total.Found)
	}
	return nil
}
