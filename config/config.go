// Package config loads server settings from a YAML file, an optional .env file
// and OPENBID_* environment overrides, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	EnvConfigPath = "OPENBID_CONFIG"
	DefaultPath   = "config.yaml"
)

const (
	ListenTCP   = "tcp"
	ListenVsock = "vsock"

	DriverMemory = "memory"
	DriverSQLite = "sqlite"

	SignerNone  = "none"
	SignerKey   = "key"
	SignerNitro = "nitro"
)

type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Store    StoreConfig   `yaml:"store"`
	Engine   EngineConfig  `yaml:"engine"`
	Sweep    SweepConfig   `yaml:"sweep"`
	Receipts ReceiptConfig `yaml:"receipts"`
	Events   EventsConfig  `yaml:"events"`
	Log      LogConfig     `yaml:"log"`
}

// ServerConfig selects the listener. Addr applies to tcp, Port to vsock.
// Subscriptions count against MaxSubscribers, not MaxWorkers.
type ServerConfig struct {
	Listen         string        `yaml:"listen"`
	Addr           string        `yaml:"addr"`
	Port           uint32        `yaml:"port"`
	MaxWorkers     int           `yaml:"max_workers"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	MaxSubscribers int           `yaml:"max_subscribers"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type EngineConfig struct {
	MaxCASRetries int           `yaml:"max_cas_retries"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	InboxSize     int           `yaml:"inbox_size"`
}

type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
	Batch    int           `yaml:"batch"`
}

// ReceiptConfig chooses how settlement receipts are signed. With the key
// signer, KeyPath persists the key across restarts and AttestKey binds it to
// the enclave through one NSM attestation at startup.
type ReceiptConfig struct {
	Signer    string `yaml:"signer"`
	KeyPath   string `yaml:"key_path"`
	AttestKey bool   `yaml:"attest_key"`
}

// EventsConfig controls in-process delivery. An empty JournalPath disables
// the event journal. JournalBuffer bounds the events waiting for the disk.
type EventsConfig struct {
	JournalPath   string `yaml:"journal_path"`
	JournalBuffer int    `yaml:"journal_buffer"`
	HubBuffer     int    `yaml:"hub_buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:      ListenTCP,
			Addr:        ":7000",
			Port:        5000,
			MaxWorkers:  64,
			ReadTimeout: 30 * time.Second,

			MaxSubscribers: 256,
			Heartbeat:      15 * time.Second,
		},
		Store: StoreConfig{Driver: DriverMemory},
		Engine: EngineConfig{
			MaxCASRetries: 3,
			IdleTimeout:   2 * time.Minute,
			InboxSize:     256,
		},
		Sweep:    SweepConfig{Interval: 15 * time.Second, Batch: 500},
		Receipts: ReceiptConfig{Signer: SignerKey},
		Events:   EventsConfig{JournalBuffer: 1024, HubBuffer: 64},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// LoadDotEnv loads .env files into the process environment. Variables already
// set are not overridden and missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML file at path (or $OPENBID_CONFIG, or config.yaml) over
// the defaults, applies environment overrides and validates the result.
// A missing file is not an error unless the path was given explicitly.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if p, ok := os.LookupEnv(EnvConfigPath); ok && p != "" {
			path, explicit = p, true
		} else {
			path = DefaultPath
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.UnmarshalStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OPENBID_LISTEN", &c.Server.Listen)
	str("OPENBID_ADDR", &c.Server.Addr)
	str("OPENBID_STORE_DRIVER", &c.Store.Driver)
	str("OPENBID_STORE_DSN", &c.Store.DSN)
	str("OPENBID_LOG_LEVEL", &c.Log.Level)
	str("OPENBID_RECEIPT_SIGNER", &c.Receipts.Signer)

	if v, ok := lookup("OPENBID_PORT"); ok && v != "" {
		port, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid value for OPENBID_PORT: %s (must be a valid port)", v)
		}
		c.Server.Port = uint32(port)
	}
	if v, ok := lookup("OPENBID_MAX_WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid value for OPENBID_MAX_WORKERS: %s (must be a valid integer)", v)
		}
		c.Server.MaxWorkers = n
	}
	if v, ok := lookup("OPENBID_SWEEP_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid value for OPENBID_SWEEP_INTERVAL: %s (must be a duration like 15s)", v)
		}
		c.Sweep.Interval = d
	}
	return nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Server.Listen {
	case ListenTCP:
		if c.Server.Addr == "" {
			errs = append(errs, errors.New("server.addr is required for tcp"))
		}
	case ListenVsock:
		if c.Server.Port == 0 {
			errs = append(errs, errors.New("server.port is required for vsock"))
		}
	default:
		errs = append(errs, fmt.Errorf("server.listen must be %q or %q, got %q", ListenTCP, ListenVsock, c.Server.Listen))
	}
	if c.Server.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("server.max_workers must be positive, got %d", c.Server.MaxWorkers))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.MaxSubscribers < 1 {
		errs = append(errs, fmt.Errorf("server.max_subscribers must be positive, got %d", c.Server.MaxSubscribers))
	}
	if c.Server.Heartbeat <= 0 {
		errs = append(errs, errors.New("server.heartbeat must be positive"))
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Engine.MaxCASRetries < 0 {
		errs = append(errs, errors.New("engine.max_cas_retries cannot be negative"))
	}
	if c.Engine.IdleTimeout <= 0 {
		errs = append(errs, errors.New("engine.idle_timeout must be positive"))
	}
	if c.Engine.InboxSize < 1 {
		errs = append(errs, errors.New("engine.inbox_size must be positive"))
	}
	if c.Sweep.Interval <= 0 {
		errs = append(errs, errors.New("sweep.interval must be positive"))
	}
	if c.Sweep.Batch < 1 {
		errs = append(errs, errors.New("sweep.batch must be positive"))
	}

	switch c.Receipts.Signer {
	case SignerNone, SignerNitro:
		if c.Receipts.AttestKey {
			errs = append(errs, errors.New("receipts.attest_key requires the key signer"))
		}
	case SignerKey:
	default:
		errs = append(errs, fmt.Errorf("unknown receipts.signer %q", c.Receipts.Signer))
	}

	if c.Events.HubBuffer < 1 {
		errs = append(errs, errors.New("events.hub_buffer must be positive"))
	}
	if c.Events.JournalBuffer < 1 {
		errs = append(errs, errors.New("events.journal_buffer must be positive"))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
