// Package config loads the terminal client configuration from TOML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Netflix/go-env"
	"github.com/danmuck/groupctl/internal/logging"
	"github.com/danmuck/groupctl/internal/session"
	"github.com/danmuck/groupctl/internal/transport"
	"github.com/danmuck/groupctl/internal/transport/tcp"
)

const DefaultPath = "groupctl.toml"

type ClientConfig struct {
	User   string
	Host   string
	Port   int
	Groups []string
	// StatusAddr enables the status HTTP server when non-empty.
	StatusAddr  string
	CORSOrigins []string
	Session     SessionConfig
	Log         LogConfig
}

type SessionConfig struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReceiveTimeout bounds each receive; zero blocks until woken.
	ReceiveTimeout time.Duration
	DeliveryBuffer int
	SelfDiscard    bool
}

type LogConfig struct {
	Level string
}

func Default() ClientConfig {
	tcpCfg := tcp.DefaultConfig()
	return ClientConfig{
		User:        "",
		Host:        "localhost",
		Port:        transport.DefaultPort,
		Groups:      []string{},
		CORSOrigins: []string{},
		Session: SessionConfig{
			ConnectTimeout:   tcpCfg.ConnectTimeout,
			HandshakeTimeout: tcpCfg.HandshakeTimeout,
			WriteTimeout:     tcpCfg.WriteTimeout,
			DeliveryBuffer:   session.DefaultConfig().DeliveryBuffer,
		},
		Log: LogConfig{Level: "info"},
	}
}

type fileConfig struct {
	User        string      `toml:"user"`
	Host        string      `toml:"host"`
	Port        int         `toml:"port"`
	Groups      []string    `toml:"groups"`
	StatusAddr  string      `toml:"status_addr"`
	CORSOrigins []string    `toml:"cors_origins"`
	Session     fileSession `toml:"session"`
	Log         fileLog     `toml:"log"`
}

type fileSession struct {
	ConnectTimeout   string `toml:"connect_timeout"`
	HandshakeTimeout string `toml:"handshake_timeout"`
	WriteTimeout     string `toml:"write_timeout"`
	ReceiveTimeout   string `toml:"receive_timeout"`
	DeliveryBuffer   int    `toml:"delivery_buffer"`
	SelfDiscard      bool   `toml:"self_discard"`
}

type fileLog struct {
	Level string `toml:"level"`
}

type envOverrides struct {
	User       *string `env:"GROUPCTL_USER"`
	Host       *string `env:"GROUPCTL_HOST"`
	Port       *int    `env:"GROUPCTL_PORT"`
	StatusAddr *string `env:"GROUPCTL_STATUS_ADDR"`
}

// Load reads path over Default, applies environment overrides and validates.
// An empty path skips the file. Only keys present in the file override.
func Load(path string) (ClientConfig, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		if err := loadFile(path, &cfg); err != nil {
			return ClientConfig{}, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *ClientConfig) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config (%s): unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("user") {
		cfg.User = strings.TrimSpace(raw.User)
	}
	if meta.IsDefined("host") {
		cfg.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Port = raw.Port
	}
	if meta.IsDefined("groups") {
		cfg.Groups = normalizeGroups(raw.Groups)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CORSOrigins = raw.CORSOrigins
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.Session.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.Session.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"write_timeout", raw.Session.WriteTimeout, &cfg.Session.WriteTimeout},
		{"receive_timeout", raw.Session.ReceiveTimeout, &cfg.Session.ReceiveTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("session", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse session.%s: %w", d.key, err)
		}
		*d.dst = v
	}
	if meta.IsDefined("session", "delivery_buffer") {
		cfg.Session.DeliveryBuffer = raw.Session.DeliveryBuffer
	}
	if meta.IsDefined("session", "self_discard") {
		cfg.Session.SelfDiscard = raw.Session.SelfDiscard
	}
	if meta.IsDefined("log", "level") {
		cfg.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	return nil
}

// ApplyEnv overlays GROUPCTL_USER, GROUPCTL_HOST, GROUPCTL_PORT and
// GROUPCTL_STATUS_ADDR onto cfg when they are set.
func ApplyEnv(cfg *ClientConfig) error {
	var ov envOverrides
	if _, err := env.UnmarshalFromEnviron(&ov); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	if ov.User != nil {
		cfg.User = strings.TrimSpace(*ov.User)
	}
	if ov.Host != nil {
		cfg.Host = strings.TrimSpace(*ov.Host)
	}
	if ov.Port != nil {
		cfg.Port = *ov.Port
	}
	if ov.StatusAddr != nil {
		cfg.StatusAddr = strings.TrimSpace(*ov.StatusAddr)
	}
	return nil
}

func (c ClientConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Host) == "" {
		errs = append(errs, fmt.Errorf("host is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port out of range: %d", c.Port))
	}
	for i, g := range c.Groups {
		if err := transport.ValidateGroupName(g); err != nil {
			errs = append(errs, fmt.Errorf("groups[%d] %q invalid", i, g))
		}
	}
	if c.StatusAddr != "" {
		if _, _, err := net.SplitHostPort(c.StatusAddr); err != nil {
			errs = append(errs, fmt.Errorf("status_addr: %w", err))
		}
	}
	if c.Session.DeliveryBuffer < 0 {
		errs = append(errs, fmt.Errorf("session.delivery_buffer must not be negative"))
	}
	if c.Session.ReceiveTimeout < 0 {
		errs = append(errs, fmt.Errorf("session.receive_timeout must not be negative"))
	}
	if c.Log.Level != "" {
		if _, ok := logging.ParseLevel(c.Log.Level); !ok {
			errs = append(errs, fmt.Errorf("log.level unknown: %q", c.Log.Level))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Options maps the session table onto session options.
func (c SessionConfig) Options() session.Config {
	cfg := session.DefaultConfig()
	cfg.DeliveryBuffer = c.DeliveryBuffer
	cfg.ReceiveTimeout = c.ReceiveTimeout
	return cfg
}

// TCP maps the session table onto the daemon socket config.
func (c SessionConfig) TCP() tcp.Config {
	return tcp.Config{
		ConnectTimeout:   c.ConnectTimeout,
		HandshakeTimeout: c.HandshakeTimeout,
		WriteTimeout:     c.WriteTimeout,
		SelfDiscard:      c.SelfDiscard,
	}.WithDefaults()
}

func normalizeGroups(in []string) []string {
	out := make([]string, 0, len(in))
	for _, g := range in {
		v := strings.TrimSpace(g)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
