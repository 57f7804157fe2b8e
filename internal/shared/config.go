package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Index     IndexConfig     `toml:"index"`
	Projector ProjectorConfig `toml:"projector"`
	Recommend RecommendConfig `toml:"recommend"`
	Logging   LoggingConfig   `toml:"logging"`
}

// DatabaseConfig contains catalog store connection settings.
type DatabaseConfig struct {
	Path          string `toml:"path"`
	MaxOpenConns  int    `toml:"max_open_conns"`
	MaxIdleConns  int    `toml:"max_idle_conns"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`

	// read retries
	MaxAttempts      int `toml:"max_attempts"`
	InitialBackoffMS int `toml:"initial_backoff_ms"`
	MaxBackoffMS     int `toml:"max_backoff_ms"`
}

// Index backends.
const (
	IndexBackendSQLite        = "sqlite"
	IndexBackendElasticsearch = "elasticsearch"
)

// IndexConfig contains document index settings.
//
// Path is used by the sqlite backend; Elasticsearch holds the cluster settings.
type IndexConfig struct {
	Backend          string              `toml:"backend"`
	Path             string              `toml:"path"`
	Elasticsearch    ElasticsearchConfig `toml:"elasticsearch"`
	WriteConcurrency int    `toml:"write_concurrency"`
	MaxAttempts      int    `toml:"max_attempts"`
	InitialBackoffMS int    `toml:"initial_backoff_ms"`
	MaxBackoffMS     int    `toml:"max_backoff_ms"`
}

// ElasticsearchConfig locates the cluster and names the song and user indices.
type ElasticsearchConfig struct {
	Addresses []string `toml:"addresses"`
	Username  string   `toml:"username"`
	Password  string   `toml:"password"`
	SongIndex string   `toml:"song_index"`
	UserIndex string   `toml:"user_index"`
	Refresh   string   `toml:"refresh"`
}

// ProjectorConfig bounds projection fan-out.
type ProjectorConfig struct {
	Workers   int     `toml:"workers"`
	RateLimit float64 `toml:"rate_limit"` // documents per second during bulk rebuilds, 0 = unlimited
}

// RecommendConfig tunes the recommendation engine.
type RecommendConfig struct {
	PoolSize               int `toml:"pool_size"`
	DefaultSize            int `toml:"default_size"`
	MaxQueryTerms          int `toml:"max_query_terms"`
	PopularGenres          int `toml:"popular_genres"`
	PopularArtists         int `toml:"popular_artists"`
	MinGenreSongs          int `toml:"min_genre_songs"`
	NeighborhoodTTLSeconds int `toml:"neighborhood_ttl_seconds"`
}

// LoggingConfig sets the log level.
type LoggingConfig struct {
	Level string `toml:"level"`
}

// RetryPolicy converts the index settings into a [RetryPolicy].
func (c IndexConfig) RetryPolicy() RetryPolicy {
	return newRetryPolicy(c.MaxAttempts, c.InitialBackoffMS, c.MaxBackoffMS)
}

// RetryPolicy converts the catalog read retry settings into a [RetryPolicy].
func (c DatabaseConfig) RetryPolicy() RetryPolicy {
	return newRetryPolicy(c.MaxAttempts, c.InitialBackoffMS, c.MaxBackoffMS)
}

func newRetryPolicy(attempts, initialMS, maxMS int) RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     attempts,
		InitialInterval: time.Duration(initialMS) * time.Millisecond,
		MaxInterval:     time.Duration(maxMS) * time.Millisecond,
	}
}

// NeighborhoodTTL returns the cold-start cache lifetime.
func (c RecommendConfig) NeighborhoodTTL() time.Duration {
	return time.Duration(c.NeighborhoodTTLSeconds) * time.Second
}

// Validate rejects settings that would stall or disable core operations.
func (c *Config) Validate() error {
	switch {
	case c.Database.Path == "":
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	case c.Database.MaxAttempts <= 0:
		return fmt.Errorf("%w: database.max_attempts must be positive", ErrInvalidConfig)
	case c.Index.Backend != IndexBackendSQLite && c.Index.Backend != IndexBackendElasticsearch:
		return fmt.Errorf("%w: index.backend must be %q or %q", ErrInvalidConfig, IndexBackendSQLite, IndexBackendElasticsearch)
	case c.Index.Backend == IndexBackendSQLite && c.Index.Path == "":
		return fmt.Errorf("%w: index.path is required", ErrInvalidConfig)
	case c.Index.Backend == IndexBackendElasticsearch && len(c.Index.Elasticsearch.Addresses) == 0:
		return fmt.Errorf("%w: index.elasticsearch.addresses is required", ErrInvalidConfig)
	case c.Index.WriteConcurrency <= 0:
		return fmt.Errorf("%w: index.write_concurrency must be positive", ErrInvalidConfig)
	case c.Index.MaxAttempts <= 0:
		return fmt.Errorf("%w: index.max_attempts must be positive", ErrInvalidConfig)
	case c.Projector.Workers <= 0:
		return fmt.Errorf("%w: projector.workers must be positive", ErrInvalidConfig)
	case c.Projector.RateLimit < 0:
		return fmt.Errorf("%w: projector.rate_limit must not be negative", ErrInvalidConfig)
	case c.Recommend.PoolSize <= 0:
		return fmt.Errorf("%w: recommend.pool_size must be positive", ErrInvalidConfig)
	case c.Recommend.DefaultSize <= 0:
		return fmt.Errorf("%w: recommend.default_size must be positive", ErrInvalidConfig)
	case c.Recommend.NeighborhoodTTLSeconds < 0:
		return fmt.Errorf("%w: recommend.neighborhood_ttl_seconds must not be negative", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
