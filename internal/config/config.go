package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

var (
	ErrMissingToken   = goerr.New("discord bot token is required")
	ErrUnknownBackend = goerr.New("unknown database backend")
)

type Database struct {
	Backend  string `yaml:"backend"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// URL returns the postgres connection string for the pool and the migrator.
func (d Database) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type Scheduler struct {
	DefaultTimezone  string        `yaml:"default_timezone"`
	ReminderInterval time.Duration `yaml:"reminder_interval"`
	DedupTTL         time.Duration `yaml:"dedup_ttl"`
	CleanupCron      string        `yaml:"cleanup_cron"`
	RetentionDays    int           `yaml:"retention_days"`
	SendRate         float64       `yaml:"send_rate"`
}

type Config struct {
	Discord struct {
		Token    string `yaml:"token" env:"DISCORD_TOKEN"`
		ClientID string `yaml:"client_id" env:"DISCORD_CLIENT_ID"`
	} `yaml:"discord"`

	Telegram struct {
		Token string `yaml:"token" env:"TELEGRAM_TOKEN"`
	} `yaml:"telegram"`

	Slack struct {
		Token string `yaml:"token" env:"SLACK_TOKEN"`
	} `yaml:"slack"`

	Database Database `yaml:"database"`

	Scheduler Scheduler `yaml:"scheduler"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads the YAML file at path, substituting ${VAR} placeholders from the
// environment, and fills defaults for everything left blank.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "error reading config file", goerr.V("path", path))
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	content := string(data)
	for _, env := range os.Environ() {
		pair := strings.SplitN(env, "=", 2)
		if len(pair) != 2 {
			continue
		}
		placeholder := "${" + pair[0] + "}"
		content = strings.ReplaceAll(content, placeholder, pair[1])
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(content), &cfg); err != nil {
		return nil, goerr.Wrap(err, "error parsing config")
	}

	// DB_PORT arrives as a string when substituted into an unquoted scalar
	if portStr := os.Getenv("DB_PORT"); portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid DB_PORT value", goerr.V("value", portStr))
		}
		cfg.Database.Port = port
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Database.Backend == "" {
		c.Database.Backend = BackendPostgres
	}
	if c.Database.Port == 0 {
		c.Database.Port = 5432
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}

	s := &c.Scheduler
	if s.DefaultTimezone == "" {
		s.DefaultTimezone = "Europe/Moscow"
	}
	if s.ReminderInterval <= 0 {
		s.ReminderInterval = time.Minute
	}
	if s.DedupTTL <= 0 {
		s.DedupTTL = 24 * time.Hour
	}
	if s.CleanupCron == "" {
		s.CleanupCron = "0 3 * * 0"
	}
	if s.RetentionDays <= 0 {
		s.RetentionDays = 7
	}
	if s.SendRate <= 0 {
		s.SendRate = 20
	}

	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) validate() error {
	// Telegram and Slack are optional delivery channels; commands always arrive over Discord.
	if c.Discord.Token == "" {
		return goerr.Wrap(ErrMissingToken, "invalid config")
	}

	switch c.Database.Backend {
	case BackendPostgres, BackendMemory:
	default:
		return goerr.Wrap(ErrUnknownBackend, "invalid config", goerr.V("backend", c.Database.Backend))
	}

	if _, err := time.LoadLocation(c.Scheduler.DefaultTimezone); err != nil {
		return goerr.Wrap(err, "invalid default timezone", goerr.V("timezone", c.Scheduler.DefaultTimezone))
	}
	return nil
}

// Location returns the default time zone; validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Scheduler.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
