package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Bot         BotConfig                 `json:"bot"`
	Log         LogConfig                 `json:"log"`
}

type BasicConfig struct {
	ServerAddress     string `json:"server_address"`
	MinWorkers        int    `json:"min_workers"`
	MaxWorkers        int    `json:"max_workers"`
	QueueSize         int    `json:"queue_size"`
	WorkerIdleTimeout int    `json:"worker_idle_timeout"` // minutes
	TokenTTLHours     int    `json:"token_ttl_hours"`
	SeedProducts      bool   `json:"seed_products"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// BotConfig tunes the canned replies and result caps of the support bot.
type BotConfig struct {
	ResultLimit int    `json:"result_limit"`
	Greeting    string `json:"greeting"`
	PriceLow    int    `json:"price_low"`
	PriceHigh   int    `json:"price_high"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text or json
}

const (
	DefaultResultLimit = 5
	DefaultGreeting    = "Hello! How can I help you today?"
	DefaultPriceLow    = 10
	DefaultPriceHigh   = 1000
)

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	for _, name := range []string{"sqlite", "sqlite3"} {
		dbCfg, ok := cfg.Databases[name]
		if !ok {
			continue
		}
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("databases.%s.dsn must be configured", name)
		}
		if dbCfg.DSN != ":memory:" && !strings.HasPrefix(dbCfg.DSN, "file:") && !filepath.IsAbs(dbCfg.DSN) {
			dbCfg.DSN = filepath.Join(filepath.Dir(absPath), dbCfg.DSN)
			cfg.Databases[name] = dbCfg
		}
	}

	return &cfg, nil
}

func (c *Config) applyEnv() {
	if addr := strings.TrimSpace(os.Getenv("SHOPCHAT_ADDR")); addr != "" {
		c.BasicConfig.ServerAddress = addr
	}
	if lvl := strings.TrimSpace(os.Getenv("SHOPCHAT_LOG_LEVEL")); lvl != "" {
		c.Log.Level = lvl
	}
}

func (c *Config) applyDefaults() {
	if c.Databases == nil {
		c.Databases = make(map[string]DatabaseConfig)
	}
	if c.Bot.ResultLimit <= 0 {
		c.Bot.ResultLimit = DefaultResultLimit
	}
	if strings.TrimSpace(c.Bot.Greeting) == "" {
		c.Bot.Greeting = DefaultGreeting
	}
	switch {
	case c.Bot.PriceLow == 0 && c.Bot.PriceHigh == 0:
		c.Bot.PriceLow, c.Bot.PriceHigh = DefaultPriceLow, DefaultPriceHigh
	case c.Bot.PriceHigh == 0 && c.Bot.PriceLow < DefaultPriceHigh:
		c.Bot.PriceHigh = DefaultPriceHigh
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// validate rejects settings the bot could not honour.
func (c *Config) validate() error {
	if c.Bot.PriceLow < 0 || c.Bot.PriceHigh <= c.Bot.PriceLow {
		return fmt.Errorf("bot.price_high (%d) must be greater than bot.price_low (%d) and both non-negative",
			c.Bot.PriceHigh, c.Bot.PriceLow)
	}
	return nil
}
