// Package config loads Scatter's configuration for both the coordinator and
// node binaries. Settings come from an optional YAML file merged with
// SCATTER_* environment variables, 12-factor style.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix for all Scatter settings.
const envPrefix = "SCATTER"

// Config is the full configuration tree for a Scatter process. A coordinator
// reads Coordinator, Remotes, and Routing; a node reads Node. Log and HTTP
// apply to both.
type Config struct {
	Log         LogConfig           `mapstructure:"log"`
	HTTP        HTTPConfig          `mapstructure:"http"`
	Coordinator CoordinatorConfig   `mapstructure:"coordinator"`
	Node        NodeConfig          `mapstructure:"node"`
	Routing     RoutingConfig       `mapstructure:"routing"`
	Remotes     []RemoteClusterSeed `mapstructure:"remotes"`
}

// LogConfig selects logger level and encoding.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPConfig configures the process's HTTP server and outbound client.
type HTTPConfig struct {
	Listen         string        `mapstructure:"listen"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// CoordinatorConfig holds coordinator-side tunables.
type CoordinatorConfig struct {
	// PerShardTimeout bounds each shard-level RPC.
	PerShardTimeout time.Duration `mapstructure:"per_shard_timeout"`

	// SearchTimeout bounds the whole request, all phases included.
	SearchTimeout time.Duration `mapstructure:"search_timeout"`

	// HealthInterval is how often registered nodes are probed.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// NodeConfig holds data-node tunables.
type NodeConfig struct {
	ID              string        `mapstructure:"id"`
	PublicAddr      string        `mapstructure:"public_addr"`
	CoordinatorAddr string        `mapstructure:"coordinator_addr"`
	NumShards       int           `mapstructure:"num_shards"`
	Index           string        `mapstructure:"index"`
	ScrollKeepAlive time.Duration `mapstructure:"scroll_keep_alive"`
}

// RoutingConfig tunes local replica ordering.
type RoutingConfig struct {
	// MaxReplicaMisses is how many consecutive failed health probes a node
	// may accumulate before its replicas are ordered after healthy ones.
	MaxReplicaMisses int `mapstructure:"max_replica_misses"`
}

// RemoteClusterSeed names one configured remote cluster.
type RemoteClusterSeed struct {
	Alias string   `mapstructure:"alias"`
	Seeds []string `mapstructure:"seeds"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)
	return v
}

// setDefaults registers every key with viper so environment overrides bind
// even when no config file is present.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.listen", ":8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("coordinator.per_shard_timeout", 5*time.Second)
	v.SetDefault("coordinator.search_timeout", 20*time.Second)
	v.SetDefault("coordinator.health_interval", 5*time.Second)
	v.SetDefault("routing.max_replica_misses", 3)
	v.SetDefault("node.id", "")
	v.SetDefault("node.public_addr", "")
	v.SetDefault("node.coordinator_addr", "")
	v.SetDefault("node.num_shards", 4)
	v.SetDefault("node.index", "docs")
	v.SetDefault("node.scroll_keep_alive", 5*time.Minute)
}

// Load reads the YAML file at path (when non-empty), merges SCATTER_*
// environment overrides, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	seen := map[string]bool{}
	for _, r := range c.Remotes {
		if r.Alias == "" {
			return fmt.Errorf("config: remote cluster alias must not be empty")
		}
		if strings.Contains(r.Alias, ":") {
			return fmt.Errorf("config: remote cluster alias %q must not contain ':'", r.Alias)
		}
		if seen[r.Alias] {
			return fmt.Errorf("config: duplicate remote cluster alias %q", r.Alias)
		}
		seen[r.Alias] = true
		if len(r.Seeds) == 0 {
			return fmt.Errorf("config: remote cluster %q has no seed addresses", r.Alias)
		}
	}
	return nil
}
