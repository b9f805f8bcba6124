// Package config loads the server configuration from HCL, with optional
// YAML timing overrides and environment variables on top.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/pkg/errors"

	"github.com/lox/housepoker/internal/bot"
	"github.com/lox/housepoker/internal/game"
	"github.com/lox/housepoker/internal/store"
)

// Config is the complete server configuration.
type Config struct {
	Server      ServerSettings     `hcl:"server,block"`
	Storage     *StorageSettings   `hcl:"storage,block"`
	Timing      *TimingSettings    `hcl:"timing,block"`
	Tables      []TableConfig      `hcl:"table,block"`
	Bots        []BotConfig        `hcl:"bot,block"`
	Tournaments []TournamentConfig `hcl:"tournament,block"`
}

type ServerSettings struct {
	Address        string  `hcl:"address,optional"`
	Port           int     `hcl:"port,optional"`
	LogLevel       string  `hcl:"log_level,optional"`
	HandHistoryDir string  `hcl:"hand_history_dir,optional"`
	ActionRate     float64 `hcl:"action_rate,optional"`
	ActionBurst    int     `hcl:"action_burst,optional"`
	OpeningBalance int64   `hcl:"opening_balance,optional"`
	AuthURL        string  `hcl:"auth_url,optional"`
	AuthSecret     string  `hcl:"auth_secret,optional"`
}

type StorageSettings struct {
	Database      string `hcl:"database,optional"`
	RedisAddr     string `hcl:"redis_addr,optional"`
	RedisPassword string `hcl:"redis_password,optional"`
	RedisDB       int    `hcl:"redis_db,optional"`
	NatsURL       string `hcl:"nats_url,optional"`
}

// TimingSettings holds durations as Go duration strings ("30s", "1.5s").
type TimingSettings struct {
	TurnTimeout     string `hcl:"turn_timeout,optional"`
	BotDelayMin     string `hcl:"bot_delay_min,optional"`
	BotDelayMax     string `hcl:"bot_delay_max,optional"`
	DisconnectGrace string `hcl:"disconnect_grace,optional"`
	RunoutDelay     string `hcl:"runout_delay,optional"`
	NextHandDelay   string `hcl:"next_hand_delay,optional"`
	SitAndGoDelay   string `hcl:"sit_and_go_delay,optional"`
	PendingCheck    string `hcl:"pending_check,optional"`
	OverridesFile   string `hcl:"overrides_file,optional"`
}

type TableConfig struct {
	Name       string `hcl:"name,label"`
	Variant    string `hcl:"variant,optional"`
	MaxPlayers int    `hcl:"max_players,optional"`
	SmallBlind int    `hcl:"small_blind"`
	BigBlind   int    `hcl:"big_blind"`
	BuyIn      int    `hcl:"buy_in,optional"`
	RakePct    int    `hcl:"rake_percent,optional"`
	RakeCap    int    `hcl:"rake_cap,optional"`
	RakeMinPot int    `hcl:"rake_min_pot,optional"`
}

// BotConfig is one entry of the house bot roster. Bots listed with tables
// sit at those cash tables; every bot is available for tournament top-up.
type BotConfig struct {
	Name       string   `hcl:"name,label"`
	Difficulty string   `hcl:"difficulty,optional"`
	Avatar     string   `hcl:"avatar,optional"`
	Tables     []string `hcl:"tables,optional"`
	BuyIn      int      `hcl:"buy_in,optional"`
}

type TournamentConfig struct {
	Name          string         `hcl:"name,label"`
	Type          string         `hcl:"type,optional"`
	Variant       string         `hcl:"variant,optional"`
	BuyIn         int64          `hcl:"buy_in,optional"`
	EntryFee      int64          `hcl:"entry_fee,optional"`
	StartingChips int64          `hcl:"starting_chips,optional"`
	MinPlayers    int            `hcl:"min_players,optional"`
	MaxPlayers    int            `hcl:"max_players,optional"`
	BotsEnabled   bool           `hcl:"bots_enabled,optional"`
	BotCount      int            `hcl:"bot_count,optional"`
	StartAt       string         `hcl:"start_at,optional"`
	Levels        []LevelConfig  `hcl:"level,block"`
	Payouts       []PayoutConfig `hcl:"payout,block"`
}

// LevelConfig is a blind level; levels are numbered in file order.
type LevelConfig struct {
	SmallBlind int     `hcl:"small_blind"`
	BigBlind   int     `hcl:"big_blind"`
	Minutes    float64 `hcl:"minutes"`
}

type PayoutConfig struct {
	Place      int     `hcl:"place"`
	Percentage float64 `hcl:"percentage"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{
		Server: ServerSettings{},
		Tables: []TableConfig{
			{Name: "main", SmallBlind: 5, BigBlind: 10},
		},
		Bots: []BotConfig{
			{Name: "Dealer Dan", Difficulty: "easy", Tables: []string{"main"}},
			{Name: "Lucky Lu", Difficulty: "medium"},
			{Name: "Stone Cold", Difficulty: "hard"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads filename. A missing file yields Default.
func Load(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return Default(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var cfg Config
	diags = gohcl.DecodeBody(file.Body, nil, &cfg)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}
	cfg.applyDefaults()

	if cfg.Timing.OverridesFile != "" {
		overrides, err := LoadTimingOverrides(cfg.Timing.OverridesFile)
		if err != nil {
			return nil, err
		}
		cfg.Timing.apply(overrides)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.ActionRate == 0 {
		c.Server.ActionRate = 10
	}
	if c.Server.ActionBurst == 0 {
		c.Server.ActionBurst = 20
	}
	if c.Server.OpeningBalance == 0 {
		c.Server.OpeningBalance = 10000
	}

	if c.Storage == nil {
		c.Storage = &StorageSettings{}
	}
	if c.Storage.Database == "" {
		c.Storage.Database = "housepoker.db"
	}

	if c.Timing == nil {
		c.Timing = &TimingSettings{}
	}
	d := DefaultTimings()
	setDefault := func(v *string, def time.Duration) {
		if *v == "" {
			*v = def.String()
		}
	}
	setDefault(&c.Timing.TurnTimeout, d.TurnTimeout)
	setDefault(&c.Timing.BotDelayMin, d.BotDelayMin)
	setDefault(&c.Timing.BotDelayMax, d.BotDelayMax)
	setDefault(&c.Timing.DisconnectGrace, d.DisconnectGrace)
	setDefault(&c.Timing.RunoutDelay, d.RunoutDelay)
	setDefault(&c.Timing.NextHandDelay, d.NextHandDelay)
	setDefault(&c.Timing.SitAndGoDelay, d.SitAndGoDelay)
	setDefault(&c.Timing.PendingCheck, d.PendingCheck)

	for i := range c.Tables {
		t := &c.Tables[i]
		if t.Variant == "" {
			t.Variant = game.Holdem.String()
		}
		if t.MaxPlayers == 0 {
			t.MaxPlayers = game.DefaultMaxSeats
		}
		if t.BuyIn == 0 {
			t.BuyIn = t.BigBlind * 100
		}
	}

	for i := range c.Bots {
		b := &c.Bots[i]
		if b.Difficulty == "" {
			b.Difficulty = string(bot.Medium)
		}
		if b.BuyIn == 0 {
			b.BuyIn = 1000
		}
	}

	for i := range c.Tournaments {
		t := &c.Tournaments[i]
		if t.Type == "" {
			t.Type = string(store.SitAndGo)
		}
		if t.Variant == "" {
			t.Variant = game.Holdem.String()
		}
		if t.StartingChips == 0 {
			t.StartingChips = 1500
		}
		if t.MinPlayers == 0 {
			t.MinPlayers = 2
		}
		if t.MaxPlayers == 0 {
			t.MaxPlayers = game.DefaultMaxSeats
		}
	}
}

// ApplyEnv lets HOUSEPOKER_DB, REDIS_ADDR and NATS_URL override storage.
// HOUSEPOKER_AUTH_SECRET keeps the auth service secret out of the file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HOUSEPOKER_AUTH_SECRET"); v != "" {
		c.Server.AuthSecret = v
	}
	if v := os.Getenv("HOUSEPOKER_DB"); v != "" {
		c.Storage.Database = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("NATS_URL"); v != "" {
		c.Storage.NatsURL = v
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.ActionRate <= 0 || c.Server.ActionBurst <= 0 {
		return fmt.Errorf("action rate and burst must be positive")
	}
	if _, err := c.Timing.Resolve(); err != nil {
		return err
	}

	names := make(map[string]bool)
	for _, t := range c.Tables {
		if names[t.Name] {
			return fmt.Errorf("table %s: defined twice", t.Name)
		}
		names[t.Name] = true
		if t.SmallBlind <= 0 {
			return fmt.Errorf("table %s: small blind must be positive", t.Name)
		}
		if t.BigBlind < t.SmallBlind {
			return fmt.Errorf("table %s: big blind must be at least the small blind", t.Name)
		}
		if t.MaxPlayers < 2 || t.MaxPlayers > 10 {
			return fmt.Errorf("table %s: max players must be between 2 and 10", t.Name)
		}
		if _, err := game.ParseVariant(t.Variant); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if t.RakePct < 0 || t.RakePct > 10 {
			return fmt.Errorf("table %s: rake percent must be between 0 and 10", t.Name)
		}
		if t.BuyIn < t.BigBlind {
			return fmt.Errorf("table %s: buy-in below the big blind", t.Name)
		}
	}

	for _, b := range c.Bots {
		if _, err := bot.ParseDifficulty(b.Difficulty); err != nil {
			return fmt.Errorf("bot %s: %w", b.Name, err)
		}
		if b.BuyIn <= 0 {
			return fmt.Errorf("bot %s: buy-in must be positive", b.Name)
		}
		for _, table := range b.Tables {
			if !names[table] {
				return fmt.Errorf("bot %s: unknown table %s", b.Name, table)
			}
		}
	}

	for _, t := range c.Tournaments {
		if _, err := t.Definition(); err != nil {
			return err
		}
	}
	return nil
}

// ServerAddress returns host:port.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// BotsForTable returns the roster entries seated at a cash table.
func (c *Config) BotsForTable(name string) []BotConfig {
	var bots []BotConfig
	for _, b := range c.Bots {
		for _, table := range b.Tables {
			if table == name {
				bots = append(bots, b)
				break
			}
		}
	}
	return bots
}

// RakeConfig converts the table's rake settings.
func (t TableConfig) RakeConfig() game.RakeConfig {
	return game.RakeConfig{Percentage: t.RakePct, Cap: t.RakeCap, MinPot: t.RakeMinPot}
}

// Definition converts a tournament block into a storable, validated
// tournament.
func (t TournamentConfig) Definition() (*store.Tournament, error) {
	def := &store.Tournament{
		Name:          t.Name,
		Type:          store.TournamentType(t.Type),
		Variant:       t.Variant,
		BuyIn:         t.BuyIn,
		EntryFee:      t.EntryFee,
		StartingChips: t.StartingChips,
		MinPlayers:    t.MinPlayers,
		MaxPlayers:    t.MaxPlayers,
		BotsEnabled:   t.BotsEnabled,
		BotCount:      t.BotCount,
	}
	switch def.Type {
	case store.SitAndGo, store.Scheduled:
	default:
		return nil, fmt.Errorf("tournament %s: unknown type %q", t.Name, t.Type)
	}
	if _, err := game.ParseVariant(t.Variant); err != nil {
		return nil, fmt.Errorf("tournament %s: %w", t.Name, err)
	}
	if t.StartAt != "" {
		at, err := time.Parse(time.RFC3339, t.StartAt)
		if err != nil {
			return nil, errors.Wrapf(err, "tournament %s: start_at", t.Name)
		}
		def.ScheduledStart = &at
	} else if def.Type == store.Scheduled {
		return nil, fmt.Errorf("tournament %s: scheduled tournaments need start_at", t.Name)
	}

	for i, l := range t.Levels {
		def.BlindSchedule = append(def.BlindSchedule, store.BlindLevel{
			Level:      i + 1,
			SmallBlind: l.SmallBlind,
			BigBlind:   l.BigBlind,
			Duration:   l.Minutes,
		})
	}
	for _, p := range t.Payouts {
		def.Payouts = append(def.Payouts, store.Payout{Place: p.Place, Percentage: p.Percentage})
	}
	if len(def.Payouts) == 0 {
		def.Payouts = store.DefaultPayouts
	}

	if err := store.ValidateBlindSchedule(def.BlindSchedule); err != nil {
		return nil, errors.Wrapf(err, "tournament %s", t.Name)
	}
	if err := store.ValidatePayouts(def.Payouts); err != nil {
		return nil, errors.Wrapf(err, "tournament %s", t.Name)
	}
	return def, nil
}
