// Command boothd runs the booth daemon: it recovers the rotation timer
// on startup, then keeps the single logical per-room timer armed until
// a shutdown signal arrives or a store drops out from under it.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/uwave/booth/internal/booth"
	"github.com/uwave/booth/internal/broadcast"
	"github.com/uwave/booth/internal/config"
	"github.com/uwave/booth/internal/durable/sqlite"
	"github.com/uwave/booth/internal/ephemeral/redis"
	"github.com/uwave/booth/internal/logging"
	"github.com/uwave/booth/internal/storeapi"
)

var (
	app        = kingpin.New("boothd", "Runs the booth rotation daemon.")
	configPath = app.Flag("config", "Path to the YAML config file.").Default("booth.yaml").String()
	verbose    = app.Flag("verbose", "Enable debug logging.").Short('v').Bool()
	logFile    = app.Flag("logfile", "Write logs to this file instead of stdout.").String()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	_ = godotenv.Load()

	logCfg := logging.Config{Output: "stdout"}
	if *verbose {
		logCfg.Level = "debug"
	}
	if *logFile != "" {
		logCfg.Output = "file"
		logCfg.File = *logFile
	}
	logger, err := logging.Init(logCfg)
	if err != nil {
		kingpin.Fatalf("init logger: %s", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("boothd exited with error")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ephemeral, err := redis.New(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer ephemeral.Close()

	durable, err := sqlite.NewStore(cfg.SQLite.Path)
	if err != nil {
		return errors.Wrap(err, "open sqlite store")
	}
	defer durable.Close()

	bus := broadcast.New(ephemeral, logger)
	scheduler := booth.New(ephemeral, durable, bus, logger, cfg.Booth.AdvanceLockTTL)

	if err := scheduler.OnStart(ctx); err != nil {
		return errors.Wrap(err, "recover rotation state")
	}
	logger.Info().Msg("booth daemon started")

	storeErrs := make(chan error, 1)
	go watchStore(ctx, ephemeral, storeErrs, logger)

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-storeErrs:
		scheduler.OnStop()
		return errors.Wrap(err, "ephemeral store unavailable")
	}

	scheduler.OnStop()
	logger.Info().Msg("booth daemon stopped")
	return nil
}

// watchStore periodically pings the ephemeral store so a dropped Redis
// connection is reported to run's select loop instead of only
// surfacing the next time Advance happens to run.
func watchStore(ctx context.Context, ephemeral storeapi.EphemeralStore, errs chan<- error, logger zerolog.Logger) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := ephemeral.Get(ctx, "booth:healthcheck"); err != nil && errors.Is(err, storeapi.ErrStoreUnavailable) {
				logger.Error().Err(err).Msg("ephemeral store health check failed")
				select {
				case errs <- err:
				default:
				}
				return
			}
		}
	}
}
