package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Token   string     `koanf:"token"`
	Prefix  string     `koanf:"prefix"`
	Gateway string     `koanf:"gateway"`
	API     string     `koanf:"api"`
	Logs    LogsConfig `koanf:"logs"`
}

type LogsConfig struct {
	Dir         string `koanf:"dir"`
	ArchiveCron string `koanf:"archive_cron"`
}

// Load reads the yaml config file, then lets AIKO_ environment
// variables override it (AIKO_TOKEN, AIKO_LOGS_DIR, ...).
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("AIKO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "AIKO_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	cfg := &Config{Prefix: "!"}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
