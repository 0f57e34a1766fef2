// Package config loads service settings from an optional YAML file and
// applies environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"dronenav/internal/model"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Logging  LoggingConfig  `yaml:"logging"`
	RunLog   RunLogConfig   `yaml:"run_log"`
	Engine   EngineConfig   `yaml:"engine"`
}

type ServerConfig struct {
	Port      int     `yaml:"port"`
	RateRPS   float64 `yaml:"rate_rps"`
	RateBurst int     `yaml:"rate_burst"`
}

// DatabaseConfig selects the store. Driver is memory, sqlite or postgres.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig enables the cross-instance event broker when URL is set.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

type WebhookConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RunLogConfig enables the compressed run archive when Dir is set.
type RunLogConfig struct {
	Dir string `yaml:"dir"`
}

type EngineConfig struct {
	ReferenceTime string  `yaml:"reference_time"`
	Population    int     `yaml:"population"`
	Generations   int     `yaml:"generations"`
	CrossoverRate float64 `yaml:"crossover_rate"`
	MutationRate  float64 `yaml:"mutation_rate"`
	Workers       int     `yaml:"workers"`
}

func Defaults() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, RateRPS: 5, RateBurst: 10},
		Database: DatabaseConfig{
			Driver: "memory",
			SQLite: SQLiteConfig{Path: "dronenav.db"},
		},
		Redis:    RedisConfig{Prefix: "dronenav:run:"},
		Webhooks: WebhookConfig{MaxAttempts: 10, PollInterval: time.Second, Timeout: 5 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Engine: EngineConfig{
			ReferenceTime: "10:00",
			Population:    50,
			Generations:   100,
			CrossoverRate: 0.8,
			MutationRate:  0.2,
			Workers:       1,
		},
	}
}

// Load reads path over the defaults, then applies the environment. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []string
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = n
		}
	}
	flt := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, key)
				return
			}
			*dst = f
		}
	}

	num("PORT", &c.Server.Port)
	flt("RATE_RPS", &c.Server.RateRPS)
	num("RATE_BURST", &c.Server.RateBurst)
	str("DB_DRIVER", &c.Database.Driver)
	str("SQLITE_PATH", &c.Database.SQLite.Path)
	if v, ok := lookup("DATABASE_URL"); ok && strings.TrimSpace(v) != "" {
		c.Database.Postgres.URL = strings.TrimSpace(v)
		if _, set := lookup("DB_DRIVER"); !set {
			c.Database.Driver = "postgres"
		}
	}
	str("REDIS_URL", &c.Redis.URL)
	str("REDIS_PREFIX", &c.Redis.Prefix)
	num("WEBHOOK_MAX_ATTEMPTS", &c.Webhooks.MaxAttempts)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("RUN_LOG_DIR", &c.RunLog.Dir)
	str("GA_REFERENCE_TIME", &c.Engine.ReferenceTime)
	num("GA_POPULATION", &c.Engine.Population)
	num("GA_GENERATIONS", &c.Engine.Generations)
	flt("GA_CROSSOVER", &c.Engine.CrossoverRate)
	flt("GA_MUTATION", &c.Engine.MutationRate)
	num("GA_WORKERS", &c.Engine.Workers)

	if len(errs) > 0 {
		return fmt.Errorf("config: invalid number in %s", strings.Join(errs, ", "))
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "memory", "sqlite":
	case "postgres":
		if c.Database.Postgres.URL == "" {
			return fmt.Errorf("config: postgres driver needs database.postgres.url or DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Server.Port)
	}
	if _, err := model.ParseTimeOfDay(c.Engine.ReferenceTime); err != nil {
		return fmt.Errorf("config: engine.reference_time: %w", err)
	}
	if c.Engine.CrossoverRate < 0 || c.Engine.CrossoverRate > 1 || c.Engine.MutationRate < 0 || c.Engine.MutationRate > 1 {
		return fmt.Errorf("config: engine rates must be within [0,1]")
	}
	return nil
}

// ReferenceTime returns the parsed default engine clock.
func (c *Config) ReferenceTime() model.TimeOfDay {
	t, _ := model.ParseTimeOfDay(c.Engine.ReferenceTime)
	return t
}

func (c *Config) Addr() string { return fmt.Sprintf(":%d", c.Server.Port) }

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
