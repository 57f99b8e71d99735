package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/asaskevich/govalidator"
	"github.com/spf13/viper"
)

type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Status  StatusConfig  `mapstructure:"status"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type BackendConfig struct {
	URL string `mapstructure:"url"`
	// Timeout applies to one-shot calls only, never to generation streams
	Timeout time.Duration `mapstructure:"timeout"`
}

type StatusConfig struct {
	URL            string        `mapstructure:"url"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	NoticeTTL      time.Duration `mapstructure:"notice_ttl"`
	// IgnoreMessages lists keepalive texts that never replace the status
	IgnoreMessages []string `mapstructure:"ignore_messages"`
}

type IngestConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus endpoint when non-empty, e.g. ":9102"
	Addr string `mapstructure:"addr"`
}

func setDefaults() {
	viper.SetDefault("backend.url", "http://localhost:8000")
	viper.SetDefault("backend.timeout", 30*time.Second)
	viper.SetDefault("status.url", "ws://localhost:8000/ws/status")
	viper.SetDefault("status.max_attempts", 5)
	viper.SetDefault("status.reconnect_delay", 5*time.Second)
	viper.SetDefault("status.notice_ttl", 3*time.Second)
	viper.SetDefault("status.ignore_messages", []string{"ping"})
	viper.SetDefault("ingest.chunk_size", 32*1024)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.debug", false)
	viper.SetDefault("metrics.addr", "")
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// Add config search paths
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.forge")
	viper.AddConfigPath("/etc/forge/")

	// Environment variable overrides: FORGE_BACKEND_URL, FORGE_STATUS_URL, ...
	viper.SetEnvPrefix("FORGE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("backend.url")
	viper.BindEnv("status.url")
	viper.BindEnv("log.level")
	viper.BindEnv("metrics.addr")

	setDefaults()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations that cannot work
func (c *Config) Validate() error {
	if !govalidator.IsURL(c.Backend.URL) {
		return fmt.Errorf("invalid backend.url %q", c.Backend.URL)
	}
	if !isWebSocketURL(c.Status.URL) {
		return fmt.Errorf("invalid status.url %q (expected ws:// or wss://)", c.Status.URL)
	}
	if c.Status.MaxAttempts < 0 {
		return fmt.Errorf("status.max_attempts must not be negative")
	}
	if c.Status.ReconnectDelay <= 0 {
		return fmt.Errorf("status.reconnect_delay must be positive")
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive")
	}
	if c.Metrics.Addr != "" && !govalidator.IsDialString(normalizeListenAddr(c.Metrics.Addr)) {
		return fmt.Errorf("invalid metrics.addr %q", c.Metrics.Addr)
	}
	return nil
}

// isWebSocketURL checks the scheme and then the rest as an http URL, since
// govalidator does not know the ws schemes.
func isWebSocketURL(u string) bool {
	switch {
	case strings.HasPrefix(u, "ws://"):
		return govalidator.IsURL("http://" + strings.TrimPrefix(u, "ws://"))
	case strings.HasPrefix(u, "wss://"):
		return govalidator.IsURL("https://" + strings.TrimPrefix(u, "wss://"))
	default:
		return false
	}
}

// normalizeListenAddr turns ":9102" into "0.0.0.0:9102" for validation
func normalizeListenAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "0.0.0.0" + addr
	}
	return addr
}

func (c *Config) Save() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".forge")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := filepath.Join(configDir, "config.yaml")
	viper.SetConfigFile(configFile)

	// Update viper with current config values
	viper.Set("backend.url", c.Backend.URL)
	viper.Set("backend.timeout", c.Backend.Timeout)
	viper.Set("status.url", c.Status.URL)
	viper.Set("status.max_attempts", c.Status.MaxAttempts)
	viper.Set("status.reconnect_delay", c.Status.ReconnectDelay)
	viper.Set("status.notice_ttl", c.Status.NoticeTTL)
	viper.Set("status.ignore_messages", c.Status.IgnoreMessages)
	viper.Set("ingest.chunk_size", c.Ingest.ChunkSize)
	viper.Set("log.level", c.Log.Level)
	viper.Set("log.format", c.Log.Format)
	viper.Set("metrics.addr", c.Metrics.Addr)

	return viper.WriteConfig()
}
