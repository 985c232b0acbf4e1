package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/playforge/warehouse/internal/mq"
	"github.com/playforge/warehouse/internal/telemetry"
)

// Game is one (game, branch) scope the warehouse maintains.
type Game struct {
	ID     string   `mapstructure:"id"`
	Branch string   `mapstructure:"branch"`
	Envs   []string `mapstructure:"envs"`
}

// Config is the full warehoused configuration.
type Config struct {
	DatabaseDSN   string        `mapstructure:"database_dsn"`
	RedisURL      string        `mapstructure:"redis_url"`
	ClickHouseDSN string        `mapstructure:"clickhouse_dsn"`
	HTTPAddr      string        `mapstructure:"http_addr"`
	SyncInterval  time.Duration `mapstructure:"sync_interval"`
	TemplateSeed  string        `mapstructure:"template_seed"`

	Games     []Game           `mapstructure:"games"`
	MQ        mq.Config        `mapstructure:"mq"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// Load reads the base config file, merges includes in order, applies
// WAREHOUSE_* environment overrides and fills defaults.
func Load(base string, includes []string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAREHOUSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("http_addr", ":8090")
	v.SetDefault("sync_interval", 30*time.Second)
	v.SetDefault("mq.type", "noop")
	v.SetDefault("telemetry.service_name", "warehoused")

	if base != "" {
		v.SetConfigFile(base)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	for _, inc := range includes {
		iv := viper.New()
		iv.SetConfigFile(inc)
		if err := iv.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("include %s: %w", inc, err)
		}
		if err := v.MergeConfigMap(iv.AllSettings()); err != nil {
			return nil, fmt.Errorf("include %s: %w", inc, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	for i := range cfg.Games {
		if cfg.Games[i].Branch == "" {
			cfg.Games[i].Branch = "main"
		}
		if len(cfg.Games[i].Envs) == 0 {
			cfg.Games[i].Envs = []string{"prod"}
		}
	}
	return &cfg, nil
}
