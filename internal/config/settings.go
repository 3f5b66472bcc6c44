package config

import (
	"errors"
	"os"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	defaultServerAddress   = "https://api.example.dev"
	defaultPageSize        = 100
	maxPageSize            = 100
	defaultArtifactLimit   = 20 * 1024
	defaultPollInterval    = 3 * time.Second
	defaultStorageBackend  = "bbolt"
	fallbackStorageBackend = "file"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Feed     FeedConfig     `toml:"feed"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
	Truncate TruncateConfig `toml:"truncate"`
}

type ServerConfig struct {
	Address string `toml:"address"`
	APIKey  string `toml:"api_key"`
}

type FeedConfig struct {
	PageSize         int `toml:"page_size"`
	PollIntervalSecs int `toml:"poll_interval_secs"`
}

type StorageConfig struct {
	Backend string `toml:"backend"`
}

type LoggingConfig struct {
	Level string `toml:"level"`
}

type TruncateConfig struct {
	Enabled          *bool `toml:"enabled"`
	MaxArtifactBytes int   `toml:"max_artifact_bytes"`
}

func DefaultConfig() Config {
	enabled := true
	return Config{
		Server: ServerConfig{
			Address: defaultServerAddress,
		},
		Feed: FeedConfig{
			PageSize: defaultPageSize,
		},
		Storage: StorageConfig{
			Backend: defaultStorageBackend,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Truncate: TruncateConfig{
			Enabled:          &enabled,
			MaxArtifactBytes: defaultArtifactLimit,
		},
	}
}

func Load() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	return loadFromPath(path)
}

func loadFromPath(path string) (Config, error) {
	cfg := DefaultConfig()
	if err := readTOML(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readTOML(path string, out any) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return errors.New("path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	return toml.Unmarshal(data, out)
}

func (c Config) ServerBaseURL() string {
	addr := strings.TrimSpace(c.Server.Address)
	if addr == "" {
		addr = defaultServerAddress
	}
	return strings.TrimRight(addr, "/")
}

func (c Config) APIKey() string {
	return strings.TrimSpace(c.Server.APIKey)
}

// PageSize clamps the configured activity page size to the server's
// accepted range of 1..100.
func (c Config) PageSize() int {
	size := c.Feed.PageSize
	if size <= 0 {
		return defaultPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

func (c Config) PollInterval() time.Duration {
	if c.Feed.PollIntervalSecs <= 0 {
		return defaultPollInterval
	}
	return time.Duration(c.Feed.PollIntervalSecs) * time.Second
}

func (c Config) StorageBackend() string {
	backend := strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch backend {
	case fallbackStorageBackend:
		return fallbackStorageBackend
	default:
		return defaultStorageBackend
	}
}

func (c Config) LogLevel() string {
	level := strings.TrimSpace(c.Logging.Level)
	if level == "" {
		return "info"
	}
	return level
}

func (c Config) TruncateEnabled() bool {
	if c.Truncate.Enabled == nil {
		return true
	}
	return *c.Truncate.Enabled
}

func (c Config) MaxArtifactBytes() int {
	if c.Truncate.MaxArtifactBytes <= 0 {
		return defaultArtifactLimit
	}
	return c.Truncate.MaxArtifactBytes
}
