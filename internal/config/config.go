// Package config provides Viper-based configuration loading for the arena server.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Server modes.
const (
	// ModeStandalone persists to PostgreSQL and notifies through Redis.
	ModeStandalone = "standalone"
	// ModeEphemeral keeps everything in memory and logs notifications.
	ModeEphemeral = "ephemeral"
)

// ServerConfig holds top-level server settings.
type ServerConfig struct {
	// Mode is the server operation mode: "standalone" or "ephemeral".
	Mode string `mapstructure:"mode"`
	// Type identifies this server in logs.
	Type string `mapstructure:"type"`
}

// Persistent reports whether the server needs PostgreSQL and Redis.
func (s ServerConfig) Persistent() bool { return s.Mode == ModeStandalone }

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds the notifier's Redis connection settings.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// ChannelPrefix starts every per-participant channel: "<prefix>:<participant>".
	ChannelPrefix string `mapstructure:"channel_prefix"`
}

// GRPCConfig holds the inbound gRPC listener settings.
type GRPCConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// StreamBuffer is the number of events buffered per event stream before
	// further events for that stream are dropped.
	StreamBuffer int `mapstructure:"stream_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (g GRPCConfig) Addr() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ContentConfig locates ghost content.
type ContentConfig struct {
	// Dir holds archetypes.yaml, companions.yaml, items/ and tactics/.
	Dir string `mapstructure:"dir"`
	// InstructionLimit caps Lua opcodes per tactics call; 0 uses the scripting default.
	InstructionLimit int `mapstructure:"instruction_limit"`
}

// ArenaConfig holds match timings and caps.
type ArenaConfig struct {
	SingleWaitMin     time.Duration `mapstructure:"single_wait_min"`
	SingleWaitMax     time.Duration `mapstructure:"single_wait_max"`
	ConfirmTimeout    time.Duration `mapstructure:"confirm_timeout"`
	AutostartInterval time.Duration `mapstructure:"autostart_interval"`
	AutostartTimeout  time.Duration `mapstructure:"autostart_timeout"`
	TeamSize          int           `mapstructure:"team_size"`
	RoyalCap          int           `mapstructure:"royal_cap"`
	// TurnDelay paces turn_results publication; 0 publishes immediately.
	TurnDelay time.Duration `mapstructure:"turn_delay"`
	// TurnTimeout surrenders humans that stay silent for a whole turn; 0 disables it.
	TurnTimeout       time.Duration `mapstructure:"turn_timeout"`
	GhostSpreadSingle int           `mapstructure:"ghost_spread_single"`
	GhostSpreadTeams  int           `mapstructure:"ghost_spread_teams"`
	GhostSpreadRoyal  int           `mapstructure:"ghost_spread_royal"`
	// CreateRate is the sustained number of queue joins per second per participant.
	CreateRate  float64 `mapstructure:"create_rate"`
	CreateBurst int     `mapstructure:"create_burst"`
	// RNGSeed selects a seeded source when non-zero, the crypto source otherwise.
	RNGSeed uint64 `mapstructure:"rng_seed"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Content  ContentConfig  `mapstructure:"content"`
	Arena    ArenaConfig    `mapstructure:"arena"`
}

// Validate checks all configuration invariants. Database and Redis settings
// are only checked for persistent servers.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Server.Persistent() {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
		if err := validateRedis(c.Redis); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateGRPC(c.GRPC); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateArena(c.Arena); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Mode != ModeStandalone && s.Mode != ModeEphemeral {
		return fmt.Errorf("server.mode must be one of [standalone, ephemeral], got %q", s.Mode)
	}
	if s.Type == "" {
		return errors.New("server.type must not be empty")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateRedis(r RedisConfig) error {
	var errs []string
	if r.Addr == "" {
		errs = append(errs, "redis.addr must not be empty")
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.ChannelPrefix == "" {
		errs = append(errs, "redis.channel_prefix must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGRPC(g GRPCConfig) error {
	var errs []string
	if g.Host == "" {
		errs = append(errs, "grpc.host must not be empty")
	}
	if g.Port < 1 || g.Port > 65535 {
		errs = append(errs, fmt.Sprintf("grpc.port must be 1-65535, got %d", g.Port))
	}
	if g.StreamBuffer < 1 {
		errs = append(errs, fmt.Sprintf("grpc.stream_buffer must be >= 1, got %d", g.StreamBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	if c.Dir == "" {
		return errors.New("content.dir must not be empty")
	}
	if c.InstructionLimit < 0 {
		return fmt.Errorf("content.instruction_limit must be >= 0, got %d", c.InstructionLimit)
	}
	return nil
}

func validateArena(a ArenaConfig) error {
	var errs []string
	if a.SingleWaitMin < 0 || a.SingleWaitMax < a.SingleWaitMin {
		errs = append(errs, fmt.Sprintf("arena.single_wait_min/max must satisfy 0 <= min <= max, got %s/%s", a.SingleWaitMin, a.SingleWaitMax))
	}
	for name, d := range map[string]time.Duration{
		"confirm_timeout":    a.ConfirmTimeout,
		"autostart_interval": a.AutostartInterval,
		"autostart_timeout":  a.AutostartTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Sprintf("arena.%s must be > 0, got %s", name, d))
		}
	}
	if a.TurnDelay < 0 {
		errs = append(errs, "arena.turn_delay must not be negative")
	}
	if a.TurnTimeout < 0 {
		errs = append(errs, "arena.turn_timeout must not be negative")
	}
	if a.TeamSize < 1 {
		errs = append(errs, fmt.Sprintf("arena.team_size must be >= 1, got %d", a.TeamSize))
	}
	if a.RoyalCap < 2 {
		errs = append(errs, fmt.Sprintf("arena.royal_cap must be >= 2, got %d", a.RoyalCap))
	}
	if a.GhostSpreadSingle < 0 || a.GhostSpreadTeams < 0 || a.GhostSpreadRoyal < 0 {
		errs = append(errs, "arena.ghost_spread_* must not be negative")
	}
	if a.CreateRate <= 0 {
		errs = append(errs, fmt.Sprintf("arena.create_rate must be > 0, got %g", a.CreateRate))
	}
	if a.CreateBurst < 1 {
		errs = append(errs, fmt.Sprintf("arena.create_burst must be >= 1, got %d", a.CreateBurst))
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with ARENA_ prefix
	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance holding only the default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.mode", ModeStandalone)
	v.SetDefault("server.type", "arena")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "arena")
	v.SetDefault("database.password", "arena")
	v.SetDefault("database.name", "arena")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel_prefix", "arena")

	v.SetDefault("grpc.host", "0.0.0.0")
	v.SetDefault("grpc.port", 50061)
	v.SetDefault("grpc.stream_buffer", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("content.dir", "content")
	v.SetDefault("content.instruction_limit", 0)

	v.SetDefault("arena.single_wait_min", "3s")
	v.SetDefault("arena.single_wait_max", "8s")
	v.SetDefault("arena.confirm_timeout", "20s")
	v.SetDefault("arena.autostart_interval", "5s")
	v.SetDefault("arena.autostart_timeout", "60s")
	v.SetDefault("arena.team_size", 3)
	v.SetDefault("arena.royal_cap", 12)
	v.SetDefault("arena.turn_delay", "1s")
	v.SetDefault("arena.turn_timeout", "60s")
	v.SetDefault("arena.ghost_spread_single", 0)
	v.SetDefault("arena.ghost_spread_teams", 1)
	v.SetDefault("arena.ghost_spread_royal", 2)
	v.SetDefault("arena.create_rate", 1.0)
	v.SetDefault("arena.create_burst", 3)
	v.SetDefault("arena.rng_seed", 0)
}
