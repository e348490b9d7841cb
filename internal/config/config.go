package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath        = "config.toml"
	DefaultHTTPAddr          = ":8080"
	DefaultJWTExpiresIn      = "24h"
	DefaultPGHost            = "127.0.0.1"
	DefaultPGPort            = 5432
	DefaultPGUser            = "postgres"
	DefaultPGDatabase        = "leadwire"
	DefaultPGSSLMode         = "disable"
	DefaultGraphBaseURL      = "https://graph.facebook.com"
	DefaultGraphVersion      = "v19.0"
	DefaultGraphTimeout      = 10
	DefaultRealtimeBuffer    = 64
	DefaultAuthTimeout       = 10
	DefaultPingInterval      = 25
	DefaultBusBuffer         = 1024
	DefaultWebhookWorkers    = 4
	DefaultWebhookQueueSize  = 256
	DefaultWebhookTimeout    = 15
	DefaultWebhookMaxBodyLen = 1 << 20 // 1 MiB

	EnvJWTSecret   = "LEADWIRE_JWT_SECRET"
	EnvDatabaseURL = "DATABASE_URL"
)

type Config struct {
	Log      LogConfig      `toml:"log" yaml:"log"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Auth     AuthConfig     `toml:"auth" yaml:"auth"`
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres"`
	Meta     MetaConfig     `toml:"meta" yaml:"meta"`
	Realtime RealtimeConfig `toml:"realtime" yaml:"realtime"`
	Webhook  WebhookConfig  `toml:"webhook" yaml:"webhook"`
}

type LogConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
	// File enables rotating file output instead of stderr.
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

type ServerConfig struct {
	Addr string `toml:"addr" yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret" yaml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in" yaml:"jwt_expires_in"`
	// VerifyRealtimeSignatures makes the realtime handshake re-verify token
	// signatures. Off means claims are decoded only.
	VerifyRealtimeSignatures bool `toml:"verify_realtime_signatures" yaml:"verify_realtime_signatures"`
}

type PostgresConfig struct {
	URL      string `toml:"url" yaml:"url"`
	Host     string `toml:"host" yaml:"host"`
	Port     int    `toml:"port" yaml:"port"`
	User     string `toml:"user" yaml:"user"`
	Password string `toml:"password" yaml:"password"`
	Database string `toml:"database" yaml:"database"`
	SSLMode  string `toml:"sslmode" yaml:"sslmode"`
}

// DSN returns URL when set, otherwise a postgres:// URL assembled from the parts.
func (c PostgresConfig) DSN() string {
	if strings.TrimSpace(c.URL) != "" {
		return strings.TrimSpace(c.URL)
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else {
		u.User = url.User(c.User)
	}
	q := u.Query()
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type MetaConfig struct {
	GraphBaseURL   string `toml:"graph_base_url" yaml:"graph_base_url"`
	GraphVersion   string `toml:"graph_version" yaml:"graph_version"`
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds"`
	// VerifyToken is accepted by the unscoped verification endpoint in
	// addition to the tokens stored per page.
	VerifyToken string `toml:"verify_token" yaml:"verify_token"`
}

type RealtimeConfig struct {
	SendBuffer          int `toml:"send_buffer" yaml:"send_buffer"`
	AuthTimeoutSeconds  int `toml:"auth_timeout_seconds" yaml:"auth_timeout_seconds"`
	PingIntervalSeconds int `toml:"ping_interval_seconds" yaml:"ping_interval_seconds"`
	BusBuffer           int `toml:"bus_buffer" yaml:"bus_buffer"`
}

type WebhookConfig struct {
	Workers               int   `toml:"workers" yaml:"workers"`
	QueueSize             int   `toml:"queue_size" yaml:"queue_size"`
	ProcessTimeoutSeconds int   `toml:"process_timeout_seconds" yaml:"process_timeout_seconds"`
	MaxBodyBytes          int64 `toml:"max_body_bytes" yaml:"max_body_bytes"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 14,
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
		Meta: MetaConfig{
			GraphBaseURL:   DefaultGraphBaseURL,
			GraphVersion:   DefaultGraphVersion,
			TimeoutSeconds: DefaultGraphTimeout,
		},
		Realtime: RealtimeConfig{
			SendBuffer:          DefaultRealtimeBuffer,
			AuthTimeoutSeconds:  DefaultAuthTimeout,
			PingIntervalSeconds: DefaultPingInterval,
			BusBuffer:           DefaultBusBuffer,
		},
		Webhook: WebhookConfig{
			Workers:               DefaultWebhookWorkers,
			QueueSize:             DefaultWebhookQueueSize,
			ProcessTimeoutSeconds: DefaultWebhookTimeout,
			MaxBodyBytes:          DefaultWebhookMaxBodyLen,
		},
	}
}

// Load reads path (TOML, or YAML for .yaml/.yml) over the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else if err := decodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg)
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return yaml.Unmarshal(data, cfg)
	default:
		_, err := toml.DecodeFile(path, cfg)
		return err
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Postgres.URL = v
	}
}
