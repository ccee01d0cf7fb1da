package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// CHESS_ANALYZER_ENGINE_BINARYPATH or CHESS_ANALYZER_LOGGING_LEVEL.
const EnvPrefix = "CHESS_ANALYZER"

type Config struct {
	// Engine connection and protocol timing
	Engine EngineConfig `mapstructure:"engine"`

	// Game analysis behaviour
	Analysis AnalysisConfig `mapstructure:"analysis"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`

	// Result cache configuration
	Cache CacheConfig `mapstructure:"cache"`

	// Persistent result store
	Store StoreConfig `mapstructure:"store"`

	// Request throttling for tools and bridge connections
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

type EngineConfig struct {
	BinaryPath string            `mapstructure:"binaryPath"`
	Args       []string          `mapstructure:"args"`
	URL        string            `mapstructure:"url"`
	Options    map[string]string `mapstructure:"options"`

	HandshakeTimeout time.Duration `mapstructure:"handshakeTimeout"`
	DepthTimeout     time.Duration `mapstructure:"depthTimeout"`
	MoveTimeSlack    time.Duration `mapstructure:"moveTimeSlack"`

	// Exactly one of Depth and MoveTime is used per request; MoveTime wins
	// when both are set.
	Depth    int           `mapstructure:"depth"`
	MoveTime time.Duration `mapstructure:"moveTime"`

	DialAttempts int           `mapstructure:"dialAttempts"`
	DialDelay    time.Duration `mapstructure:"dialDelay"`
}

type AnalysisConfig struct {
	MaxPVLength      int  `mapstructure:"maxPVLength"`
	WhitePerspective bool `mapstructure:"whitePerspective"`
}

type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Description string `mapstructure:"description"`
	HealthAddr  string `mapstructure:"healthAddr"`
	BridgeAddr  string `mapstructure:"bridgeAddr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Prefix string `mapstructure:"prefix"`
}

type CacheConfig struct {
	Enabled      bool  `mapstructure:"enabled"`
	MaxItems     int   `mapstructure:"maxItems"`
	MaxSizeBytes int64 `mapstructure:"maxSizeBytes"`
	TTLSeconds   int   `mapstructure:"ttlSeconds"`
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
	// Results older than MaxAge are pruned at startup; 0 keeps everything.
	MaxAge time.Duration `mapstructure:"maxAge"`
}

// RateLimitConfig limits requests per client. PerScopeLimits overrides
// RequestsPerMin for a tool name or "bridge"; keys are case-insensitive.
type RateLimitConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	RequestsPerMin int            `mapstructure:"requestsPerMin"`
	BurstSize      int            `mapstructure:"burstSize"`
	PerScopeLimits map[string]int `mapstructure:"perScopeLimits"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.binaryPath", "stockfish")
	v.SetDefault("engine.args", []string{})
	v.SetDefault("engine.url", "")
	v.SetDefault("engine.options", map[string]string{})
	v.SetDefault("engine.handshakeTimeout", 4*time.Second)
	v.SetDefault("engine.depthTimeout", 15*time.Second)
	v.SetDefault("engine.moveTimeSlack", 3*time.Second)
	v.SetDefault("engine.depth", 13)
	v.SetDefault("engine.moveTime", time.Duration(0))
	v.SetDefault("engine.dialAttempts", 3)
	v.SetDefault("engine.dialDelay", 200*time.Millisecond)

	v.SetDefault("analysis.maxPVLength", 16)
	v.SetDefault("analysis.whitePerspective", false)

	v.SetDefault("server.name", "chess-analysis-mcp")
	v.SetDefault("server.version", "0.1.0")
	v.SetDefault("server.description", "Chess game analysis server for MCP")
	v.SetDefault("server.healthAddr", ":9090")
	v.SetDefault("server.bridgeAddr", ":8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.prefix", "[chess-analysis-mcp] ")

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.maxItems", 2000)
	v.SetDefault("cache.maxSizeBytes", int64(16*1024*1024))
	v.SetDefault("cache.ttlSeconds", 3600)

	v.SetDefault("store.path", "")
	v.SetDefault("store.maxAge", 30*24*time.Hour)

	v.SetDefault("rateLimit.enabled", true)
	v.SetDefault("rateLimit.requestsPerMin", 60)
	v.SetDefault("rateLimit.burstSize", 10)
	v.SetDefault("rateLimit.perScopeLimits", map[string]int{
		"analyzegame": 12,
		"bridge":      6,
	})
}

// Load reads configuration from defaults, an optional file (YAML, JSON or
// TOML by extension) and CHESS_ANALYZER_* environment variables, in
// increasing order of precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	// Validate paths exist if they're absolute paths
	if filepath.IsAbs(c.Engine.BinaryPath) {
		if _, err := os.Stat(c.Engine.BinaryPath); err != nil {
			return fmt.Errorf("engine binary not found at %s", c.Engine.BinaryPath)
		}
	}
	if c.Engine.BinaryPath == "" && c.Engine.URL == "" {
		return errors.New("one of engine.binaryPath or engine.url is required")
	}
	if c.Engine.URL != "" && !strings.HasPrefix(c.Engine.URL, "ws://") && !strings.HasPrefix(c.Engine.URL, "wss://") {
		return fmt.Errorf("engine.url must be a ws:// or wss:// URL, got %q", c.Engine.URL)
	}

	// Validate numeric ranges
	if c.Engine.Depth < 1 {
		c.Engine.Depth = 1
	}
	if c.Engine.MoveTime < 0 {
		c.Engine.MoveTime = 0
	}
	if c.Engine.HandshakeTimeout < 100*time.Millisecond {
		c.Engine.HandshakeTimeout = 100 * time.Millisecond
	}
	if c.Engine.DepthTimeout < time.Second {
		c.Engine.DepthTimeout = time.Second
	}
	if c.Engine.MoveTimeSlack < 0 {
		c.Engine.MoveTimeSlack = 0
	}
	if c.Engine.DialAttempts < 1 {
		c.Engine.DialAttempts = 1
	}
	if c.Analysis.MaxPVLength < 1 {
		c.Analysis.MaxPVLength = 1
	}

	if c.Cache.Enabled {
		if c.Cache.MaxItems < 1 {
			c.Cache.MaxItems = 1
		}
		if c.Cache.MaxSizeBytes < 1024 {
			c.Cache.MaxSizeBytes = 1024
		}
		if c.Cache.TTLSeconds < 1 {
			c.Cache.TTLSeconds = 1
		}
	}

	if c.Store.MaxAge < 0 {
		c.Store.MaxAge = 0
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.RequestsPerMin < 1 {
			c.RateLimit.RequestsPerMin = 1
		}
		if c.RateLimit.BurstSize < 1 {
			c.RateLimit.BurstSize = 1
		}
	}

	return nil
}

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

func GetConfigPath() string {
	// Check environment variable first
	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		return path
	}

	// Check current directory
	for _, name := range []string{"config.yaml", "config.json"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}

	// Check home directory
	if home, err := os.UserHomeDir(); err == nil {
		configPath := filepath.Join(home, ".chess-analyzer", "config.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}

	return ""
}
