// Package config loads application configuration from defaults, an
// optional YAML file and ALERTTRAIL_-prefixed environment variables,
// in that order of precedence (env wins).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/alerttrail/alerttrail/internal/domain"
	"github.com/alerttrail/alerttrail/internal/logging"
)

const envPrefix = "ALERTTRAIL_"

// DefaultConfigPaths are searched in order when no explicit path is given.
var DefaultConfigPaths = []string{
	"alerttrail.yaml",
	"/etc/alerttrail/alerttrail.yaml",
}

type Config struct {
	Database DatabaseConfig `koanf:"database"`
	Log      logging.Config `koanf:"log"`
	Push     PushConfig     `koanf:"push"`
	Alerts   AlertsConfig   `koanf:"alerts"`
	MailScan MailScanConfig `koanf:"mailscan"`
	Metrics  MetricsConfig  `koanf:"metrics"`
}

type DatabaseConfig struct {
	URL string `koanf:"url" validate:"required"`
}

// PushConfig carries the VAPID key pair used to sign web push requests.
type PushConfig struct {
	VAPIDPublicKey  string        `koanf:"vapid_public_key" validate:"required"`
	VAPIDPrivateKey string        `koanf:"vapid_private_key" validate:"required"`
	Contact         string        `koanf:"contact" validate:"required"`
	Timeout         time.Duration `koanf:"timeout"`
}

type AlertsConfig struct {
	DefaultCooldownMinutes int `koanf:"default_cooldown_minutes" validate:"gte=0"`
}

type MailScanConfig struct {
	SuspiciousTLDs []string      `koanf:"suspicious_tlds"`
	MaxMessages    int           `koanf:"max_messages" validate:"gt=0"`
	IMAPTimeout    time.Duration `koanf:"imap_timeout"`
}

type MetricsConfig struct {
	Enabled    bool   `koanf:"enabled"`
	ListenAddr string `koanf:"listen_addr"`
}

func defaultConfig() Config {
	return Config{
		Log: logging.Config{
			Level:  "info",
			Format: "console",
		},
		Push: PushConfig{
			Contact: "mailto:admin@alerttrail.com",
			Timeout: 10 * time.Second,
		},
		Alerts: AlertsConfig{
			DefaultCooldownMinutes: domain.DefaultCooldownMinutes,
		},
		MailScan: MailScanConfig{
			MaxMessages: 20,
			IMAPTimeout: 30 * time.Second,
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
	}
}

// Load builds the effective configuration. path may be empty, in which
// case DefaultConfigPaths are probed; a missing file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// ALERTTRAIL_PUSH_TIMEOUT -> push.timeout
	envProvider := env.Provider(envPrefix, ".", func(key string) string {
		key = strings.TrimPrefix(key, envPrefix)
		key = strings.ToLower(key)
		return strings.Replace(key, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// splitSliceFields turns comma-separated env values into slices for the
// fields that expect one. YAML lists pass through untouched.
func splitSliceFields(k *koanf.Koanf) error {
	const path = "mailscan.suspicious_tlds"
	val := k.Get(path)
	s, ok := val.(string)
	if !ok || s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tlds := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tlds = append(tlds, p)
		}
	}
	if err := k.Set(path, tlds); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}
