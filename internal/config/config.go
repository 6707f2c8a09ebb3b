package config

import (
	"fmt"
	"time"

	"db-sync/internal/state"

	"github.com/spf13/viper"
)

type Log struct {
	Level string `mapstructure:"level"`
}

type Server struct {
	Listen string `mapstructure:"listen"`
}

// Config is the whole db-sync.yaml file.
type Config struct {
	Log           Log           `mapstructure:"log"`
	State         state.Options `mapstructure:"state"`
	Server        Server        `mapstructure:"server"`
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
	Jobs          []Job         `mapstructure:"jobs"`
}

// SetDefaults registers fallbacks for everything but jobs.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("state.backend", "sqlite")
	v.SetDefault("state.path", "./db-sync-state.db")
	v.SetDefault("state.database", "db_sync")
	v.SetDefault("server.listen", ":8080")
	v.SetDefault("shutdown_grace", 30*time.Second)
}

// Load decodes the configuration held by v and applies job defaults.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	for i := range cfg.Jobs {
		cfg.Jobs[i].ApplyDefaults()
	}
	return &cfg, nil
}

// Job returns the named job.
func (c *Config) Job(name string) (*Job, error) {
	for i := range c.Jobs {
		if c.Jobs[i].Name == name {
			return &c.Jobs[i], nil
		}
	}
	return nil, fmt.Errorf("no job named %q in config", name)
}
