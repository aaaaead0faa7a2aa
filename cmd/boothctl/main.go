// Command boothctl is an operator tool for inspecting and
// out-of-band-advancing a running booth. It talks to the same Redis
// and SQLite stores the daemon uses directly; there is no RPC layer to
// go through.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/uwave/booth/internal/booth"
	"github.com/uwave/booth/internal/broadcast"
	"github.com/uwave/booth/internal/config"
	"github.com/uwave/booth/internal/durable/sqlite"
	"github.com/uwave/booth/internal/ephemeral/redis"
)

var (
	app        = kingpin.New("boothctl", "Operator tool for the booth rotation daemon.")
	configPath = app.Flag("config", "Path to the YAML config file.").Default("booth.yaml").String()

	statusCmd = app.Command("status", "Show the current play (the waitlist is not listed).")

	advanceCmd = app.Command("advance", "Force the booth to advance to the next DJ.")

	skipCmd    = app.Command("skip", "Evict the current DJ without re-queueing them.")
	replaceCmd = app.Command("replace", "Alias of skip: replace the current DJ with the waitlist head.")
)

func main() {
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		kingpin.Fatalf("load config: %s", err)
	}

	sched, closeFn, err := connect(cfg)
	if err != nil {
		kingpin.Fatalf("connect to stores: %s", err)
	}
	defer closeFn()

	ctx := context.Background()

	switch command {
	case statusCmd.FullCommand():
		err = runStatus(ctx, sched)
	case advanceCmd.FullCommand():
		err = sched.Advance(ctx, booth.AdvanceOptions{})
	case skipCmd.FullCommand(), replaceCmd.FullCommand():
		err = sched.Advance(ctx, booth.AdvanceOptions{Remove: true})
	}
	if err != nil {
		kingpin.Fatalf("%s", err)
	}
}

func connect(cfg *config.Config) (*booth.Scheduler, func(), error) {
	logger := zerolog.Nop()

	ephemeral, err := redis.New(redis.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	durable, err := sqlite.NewStore(cfg.SQLite.Path)
	if err != nil {
		ephemeral.Close()
		return nil, nil, err
	}

	bus := broadcast.New(ephemeral, logger)
	sched := booth.New(ephemeral, durable, bus, logger, cfg.Booth.AdvanceLockTTL)

	closeFn := func() {
		durable.Close()
		ephemeral.Close()
	}
	return sched, closeFn, nil
}

func runStatus(ctx context.Context, sched *booth.Scheduler) error {
	snap, playing, err := sched.CurrentPlay(ctx)
	if err != nil {
		return err
	}
	if !playing {
		fmt.Println("booth is idle")
		return nil
	}
	fmt.Printf("now playing: %s — %s (dj %s)\n", snap.Media.Artist, snap.Media.Title, snap.UserID)
	fmt.Printf("played at: %s\n", snap.PlayedAt.Format("15:04:05"))
	return nil
}
