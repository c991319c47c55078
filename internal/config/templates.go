package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Template renders cfg in the file format Load reads.
func Template(cfg ClientConfig) (string, error) {
	raw := fileConfig{
		User:        cfg.User,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Groups:      cfg.Groups,
		StatusAddr:  cfg.StatusAddr,
		CORSOrigins: cfg.CORSOrigins,
		Session: fileSession{
			ConnectTimeout:   cfg.Session.ConnectTimeout.String(),
			HandshakeTimeout: cfg.Session.HandshakeTimeout.String(),
			WriteTimeout:     cfg.Session.WriteTimeout.String(),
			ReceiveTimeout:   cfg.Session.ReceiveTimeout.String(),
			DeliveryBuffer:   cfg.Session.DeliveryBuffer,
			SelfDiscard:      cfg.Session.SelfDiscard,
		},
		Log: fileLog{Level: cfg.Log.Level},
	}
	if raw.Groups == nil {
		raw.Groups = []string{}
	}
	if raw.CORSOrigins == nil {
		raw.CORSOrigins = []string{}
	}
	out, err := toml.Marshal(raw)
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return string(out), nil
}

// WriteTemplate writes the default config to path.
func WriteTemplate(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	tmpl, err := Template(Default())
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(tmpl), 0o600)
}
