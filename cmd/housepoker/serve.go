package main

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/lox/housepoker/cmd/housepoker/shared"
	"github.com/lox/housepoker/internal/auth"
	"github.com/lox/housepoker/internal/bot"
	"github.com/lox/housepoker/internal/config"
	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/phh"
	"github.com/lox/housepoker/internal/scheduler"
	"github.com/lox/housepoker/internal/server"
	"github.com/lox/housepoker/internal/store"
	"github.com/lox/housepoker/internal/table"
	"github.com/lox/housepoker/internal/tournament"
)

// ServeCmd runs the server until interrupted.
type ServeCmd struct {
	Addr     string `help:"Override the listen address (host:port)"`
	LogLevel string `help:"Override the configured log level"`
	JSONLogs bool   `name:"json-logs" help:"Log JSON instead of console output"`
	Seed     int64  `help:"Deterministic RNG seed (0 = random)"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	level := cfg.Server.LogLevel
	if c.LogLevel != "" {
		level = c.LogLevel
	}
	logger := shared.SetupLogger(level, c.JSONLogs)

	ctx := shared.SetupSignalHandler(logger)
	a, err := newApp(ctx, cfg, c.Seed, quartz.NewReal(), logger)
	if err != nil {
		return err
	}
	defer a.close()

	addr := cfg.ServerAddress()
	if c.Addr != "" {
		addr = c.Addr
	}
	logger.Info().
		Str("address", addr).
		Int("tables", len(cfg.Tables)).
		Int("bots", len(cfg.Bots)).
		Int("tournaments", len(cfg.Tournaments)).
		Str("database", cfg.Storage.Database).
		Msg("Starting housepoker server")
	return a.run(ctx, cfg, addr)
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return cfg, nil
}

// app is the wired server process.
type app struct {
	logger      zerolog.Logger
	store       *store.Store
	checkpoints store.Checkpointer
	redis       *store.RedisCheckpoints
	nats        *server.NATSPublisher
	sched       *scheduler.Scheduler
	registry    *table.Registry
	server      *server.Server
	tournaments *tournament.Manager
}

func tableTimings(t config.Timings) table.Timings {
	return table.Timings{
		TurnTimeout:     t.TurnTimeout,
		BotDelayMin:     t.BotDelayMin,
		BotDelayMax:     t.BotDelayMax,
		DisconnectGrace: t.DisconnectGrace,
		RunoutDelay:     t.RunoutDelay,
		NextHandDelay:   t.NextHandDelay,
	}
}

// newApp opens storage and builds every component. Nothing runs until
// run is called.
func newApp(ctx context.Context, cfg *config.Config, seed int64, clock quartz.Clock, logger zerolog.Logger) (*app, error) {
	timings, err := cfg.Timing.Resolve()
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger}
	a.store, err = store.Open(ctx, cfg.Storage.Database, logger)
	if err != nil {
		return nil, err
	}

	a.checkpoints = store.NewMemoryCheckpoints()
	if cfg.Storage.RedisAddr != "" {
		rc := store.NewRedisCheckpoints(cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rc.Ping(pingCtx)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("addr", cfg.Storage.RedisAddr).Msg("Redis unavailable, keeping checkpoints in memory")
			_ = rc.Close()
		} else {
			a.redis = rc
			a.checkpoints = rc
		}
	}

	if cfg.Storage.NatsURL != "" {
		a.nats, err = server.ConnectNATS(cfg.Storage.NatsURL, logger)
		if err != nil {
			a.close()
			return nil, err
		}
	}

	var tableOpts []table.Option
	if dir := cfg.Server.HandHistoryDir; dir != "" {
		w, err := phh.NewWriter(dir)
		if err != nil {
			a.close()
			return nil, err
		}
		tableOpts = append(tableOpts, table.WithHandHistory(w))
	}
	if a.nats != nil {
		tableOpts = append(tableOpts, table.OnHandComplete(a.nats.PublishHand))
	}

	a.sched = scheduler.New(clock, logger)
	a.registry = table.NewRegistry(logger)
	if err := a.openTables(cfg, timings, seed, tableOpts); err != nil {
		a.close()
		return nil, err
	}

	opts := server.Options{
		ActionRate:     rate.Limit(cfg.Server.ActionRate),
		ActionBurst:    cfg.Server.ActionBurst,
		OpeningBalance: cfg.Server.OpeningBalance,
	}
	if cfg.Server.AuthURL != "" {
		opts.Auth = auth.NewHTTPValidator(cfg.Server.AuthURL, cfg.Server.AuthSecret)
	}
	a.server = server.New(a.registry, nil, a.store, opts, logger)

	publishers := tournament.Publishers{a.server}
	if a.nats != nil {
		publishers = append(publishers, a.nats)
	}
	roster := make([]store.BotEntry, 0, len(cfg.Bots))
	for _, b := range cfg.Bots {
		roster = append(roster, store.BotEntry{Name: b.Name, Difficulty: b.Difficulty})
	}
	a.tournaments = tournament.New(a.store, a.registry, a.sched, publishers, tournament.Settings{
		Timings:       tableTimings(timings),
		SitAndGoDelay: timings.SitAndGoDelay,
		PendingCheck:  timings.PendingCheck,
		Bots:          roster,
		Seed:          seed,
		TableOptions:  tableOpts,
	}, logger)
	a.server.SetTournaments(a.tournaments)
	return a, nil
}

// openTables registers the configured cash tables.
func (a *app) openTables(cfg *config.Config, timings config.Timings, seed int64, opts []table.Option) error {
	for i, tc := range cfg.Tables {
		variant, err := game.ParseVariant(tc.Variant)
		if err != nil {
			return err
		}
		var tableSeed int64
		if seed != 0 {
			tableSeed = seed + int64(i)
		}
		s := table.New(table.Config{
			ID:         tc.Name,
			Variant:    variant,
			MaxSeats:   tc.MaxPlayers,
			SmallBlind: tc.SmallBlind,
			BigBlind:   tc.BigBlind,
			Rake:       tc.RakeConfig(),
			BuyIn:      tc.BuyIn,
			Timings:    tableTimings(timings),
			AutoDeal:   true,
			Seed:       tableSeed,
		}, a.sched, a.logger, append([]table.Option{
			table.WithSettler(a.store),
			table.WithCheckpointer(a.checkpoints),
		}, opts...)...)
		if err := a.registry.Register(s); err != nil {
			return err
		}
	}
	return nil
}

// seatBots sits the configured bots at their cash tables. Sessions must be
// running.
func (a *app) seatBots(cfg *config.Config) error {
	for _, tc := range cfg.Tables {
		s, ok := a.registry.Get(tc.Name)
		if !ok {
			continue
		}
		for _, b := range cfg.BotsForTable(tc.Name) {
			difficulty, err := bot.ParseDifficulty(b.Difficulty)
			if err != nil {
				return err
			}
			if _, err := s.AddBot("bot:"+b.Name, b.Name, difficulty, b.BuyIn); err != nil {
				return errors.Wrapf(err, "seat bot %s at %s", b.Name, tc.Name)
			}
		}
	}
	return nil
}

// createTournaments stores the configured tournaments that do not exist yet.
func (a *app) createTournaments(ctx context.Context, cfg *config.Config) error {
	for _, tc := range cfg.Tournaments {
		def, err := tc.Definition()
		if err != nil {
			return err
		}
		t, err := a.tournaments.EnsureCreated(ctx, def)
		if err != nil {
			return errors.Wrapf(err, "create tournament %s", tc.Name)
		}
		a.logger.Info().Int64("tournament_id", t.ID).Str("name", t.Name).Str("status", string(t.Status)).Msg("Tournament ready")
	}
	return nil
}

// start starts the tables and tournament manager, then seats the house bots
// and creates the configured tournaments.
func (a *app) start(ctx context.Context, cfg *config.Config) error {
	a.registry.Start(ctx)
	if err := a.seatBots(cfg); err != nil {
		return err
	}
	if err := a.tournaments.Start(ctx); err != nil {
		return err
	}
	return a.createTournaments(ctx, cfg)
}

func (a *app) run(ctx context.Context, cfg *config.Config, addr string) error {
	if err := a.start(ctx, cfg); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.server.ListenAndServe(ctx, addr)
	})
	return g.Wait()
}

// close stops everything newApp built, in reverse order.
func (a *app) close() {
	if a.tournaments != nil {
		a.tournaments.Stop()
	}
	if a.registry != nil {
		if err := a.registry.Stop(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to stop tables cleanly")
		}
	}
	if a.sched != nil {
		a.sched.Stop()
	}
	if a.nats != nil {
		a.nats.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to close store")
		}
	}
}
