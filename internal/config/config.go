package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            string `yaml:"port"`
		PProf           bool   `yaml:"pprof"`
		ShutdownTimeout string `yaml:"shutdownTimeout"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		// Relay runs several instances against the same rooms: events fan out over pub/sub
		// and state changes are forwarded to the instance owning the room. Requires Postgres.
		Relay bool `yaml:"relay"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL           string `yaml:"ttl"`
		AutoLock      bool   `yaml:"autoLock"`
		AutoLockGrace string `yaml:"autoLockGrace"`
	} `yaml:"quiz"`
	// Scoring fields are pointers so an unset value can be told apart from an explicit zero.
	Scoring struct {
		BaseScore       *int `yaml:"baseScore"`
		TimeBonusFactor *int `yaml:"timeBonusFactor"`
	} `yaml:"scoring"`
	Leaderboard struct {
		RoundLimit   int `yaml:"roundLimit"`
		DisplayLimit int `yaml:"displayLimit"`
	} `yaml:"leaderboard"`
	Gateway struct {
		SendBuffer      int      `yaml:"sendBuffer"`
		MaxMessageBytes int64    `yaml:"maxMessageBytes"`
		PingInterval    string   `yaml:"pingInterval"`
		RateLimit       float64  `yaml:"rateLimit"`
		RateBurst       int      `yaml:"rateBurst"`
		AllowedOrigins  []string `yaml:"allowedOrigins"`
	} `yaml:"gateway"`
	Moderator struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"tokenTTL"`
		Issuer   string `yaml:"issuer"`
	} `yaml:"moderator"`
	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"maxSizeMB"`
		MaxBackups int    `yaml:"maxBackups"`
		MaxAgeDays int    `yaml:"maxAgeDays"`
	} `yaml:"log"`
}

// Load reads YAML config from path. Variables from a .env file in the working directory are
// loaded first and ${VAR} references in the YAML are expanded from the environment.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Parse(data)
}

// Parse decodes YAML after expanding environment references, validates it and applies
// defaults.
func Parse(data []byte) (Config, error) {
	cfg := Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg.withDefaults(), nil
}

func (c Config) validate() error {
	if c.Scoring.BaseScore != nil && *c.Scoring.BaseScore <= 0 {
		return fmt.Errorf("scoring.baseScore must be positive, got %d", *c.Scoring.BaseScore)
	}
	if c.Scoring.TimeBonusFactor != nil && *c.Scoring.TimeBonusFactor < 0 {
		return fmt.Errorf("scoring.timeBonusFactor must not be negative, got %d", *c.Scoring.TimeBonusFactor)
	}
	if c.Redis.Relay && c.Redis.Addr == "" {
		return errors.New("redis.relay requires redis.addr")
	}
	if c.Redis.Relay && c.Postgres.URL == "" {
		return errors.New("redis.relay requires postgres.url so every instance shares participants and results")
	}
	return nil
}

// Default returns the configuration used when no values are set.
func Default() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Scoring.BaseScore == nil {
		c.Scoring.BaseScore = intPtr(1000)
	}
	if c.Scoring.TimeBonusFactor == nil {
		c.Scoring.TimeBonusFactor = intPtr(50)
	}
	if c.Leaderboard.RoundLimit <= 0 {
		c.Leaderboard.RoundLimit = 5
	}
	if c.Leaderboard.DisplayLimit <= 0 {
		c.Leaderboard.DisplayLimit = 20
	}
	if c.Gateway.SendBuffer <= 0 {
		c.Gateway.SendBuffer = 32
	}
	if c.Gateway.MaxMessageBytes <= 0 {
		c.Gateway.MaxMessageBytes = 4096
	}
	if c.Gateway.RateLimit <= 0 {
		c.Gateway.RateLimit = 10
	}
	if c.Gateway.RateBurst <= 0 {
		c.Gateway.RateBurst = 20
	}
	if c.Moderator.Issuer == "" {
		c.Moderator.Issuer = "livequiz"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	return c
}

func intPtr(v int) *int {
	return &v
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
