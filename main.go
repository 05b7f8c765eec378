package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/liavyona/vaccinations-tracker/pkg"
)

const shutdownTimeout = 30 * time.Second

func openStore(cfg *pkg.Config) (pkg.Store, error) {
	if cfg.StoreBackend == pkg.BackendArango {
		store, err := pkg.ConnectToArango(
			cfg.Endpoint,
			cfg.Username,
			cfg.Password,
			cfg.Certificate,
			cfg.Database,
			&log.Logger,
		)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	store, err := pkg.OpenSQLStore(cfg.StoreBackend, cfg.DatabaseDSN, &log.Logger)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func handleLambdaRun(pipeline *pkg.Pipeline) func(ctx context.Context) (pkg.RunSummary, error) {
	return func(ctx context.Context) (pkg.RunSummary, error) {
		report, err := pipeline.Run(ctx)
		if err != nil {
			return pkg.RunSummary{}, err
		}
		return report.Summary(), nil
	}
}

func serve(ctx context.Context, cfg *pkg.Config, pipeline *pkg.Pipeline, store pkg.Store) error {
	schedule, err := cfg.Schedule()
	if err != nil {
		return err
	}
	scheduler, err := pkg.NewScheduler(pipeline, schedule, &log.Logger)
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           pkg.NewDashboard(pipeline, store, &log.Logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.BindAddr).Msg("Starting dashboard")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Start()
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := scheduler.Stop(shutdownCtx); err != nil {
			log.Err(err).Msg("Scheduler did not stop in time")
		}
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func main() {
	cfg, err := pkg.LoadConfig(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if err := pkg.SetupLogging(cfg.LogLevel, cfg.LogPretty); err != nil {
		log.Fatal().Err(err).Msg("Invalid logging configuration")
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatal().Str("backend", cfg.StoreBackend).Err(err).Msg("Error while connecting to percentages store")
	}
	defer store.Close() // nolint: errcheck

	pipeline := &pkg.Pipeline{
		Source:     cfg.ApiMetadata(),
		Store:      store,
		ChartTitle: cfg.ChartTitle,
		Logger:     &log.Logger,
	}

	switch cfg.RunMode {
	case pkg.RunModeLambda:
		lambda.Start(handleLambdaRun(pipeline))
	case pkg.RunModeOnce:
		report, err := pipeline.Run(context.Background())
		if err != nil {
			log.Err(err).Msg("Run failed")
			store.Close() // nolint: errcheck
			os.Exit(1)
		}
		log.Info().Interface("summary", report.Summary()).Msg("Run succeeded")
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := serve(ctx, cfg, pipeline, store); err != nil {
			log.Err(err).Msg("Service stopped with error")
		}
	}
}
