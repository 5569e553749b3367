package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/moviesearch/movies-etl/pkg/retry"
)

// State backends
const (
	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
)

// ETLConfig represents the synchronization service configuration
type ETLConfig struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Sync          SyncConfig          `mapstructure:"sync"`
	State         StateConfig         `mapstructure:"state"`
	Schemes       SchemesConfig       `mapstructure:"schemes"`
	Retry         retry.Policy        `mapstructure:"retry"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ServerConfig contains operational HTTP server settings
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port" validate:"min=0,max=65535"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host           string        `mapstructure:"host" validate:"required"`
	Port           int           `mapstructure:"port" validate:"min=1,max=65535"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Database       string        `mapstructure:"database" validate:"required"`
	SSLMode        string        `mapstructure:"ssl_mode" validate:"omitempty,oneof=disable require verify-ca verify-full"`
	MaxOpenConns   int           `mapstructure:"max_open_conns" validate:"min=0"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// ElasticsearchConfig contains search index connection settings
type ElasticsearchConfig struct {
	Addresses      []string      `mapstructure:"addresses" validate:"required,min=1,dive,url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// SyncConfig contains polling loop settings
type SyncConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size" validate:"min=1"`
}

// StateConfig selects where checkpoints are persisted
type StateConfig struct {
	Backend  string `mapstructure:"backend" validate:"oneof=file postgres"`
	FilePath string `mapstructure:"file_path"`
}

// SchemesConfig points to the index templates file; empty uses the built-in templates
type SchemesConfig struct {
	Path string `mapstructure:"path"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoadETL loads the synchronization service configuration from file and environment variables
func LoadETL(configPath string) (*ETLConfig, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setETLDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config ETLConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateETL(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setETLDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.database", "movies_database")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.connect_timeout", "10s")

	// Elasticsearch defaults
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.request_timeout", "30s")

	// Sync defaults
	v.SetDefault("sync.interval", "5s")
	v.SetDefault("sync.batch_size", 100)

	// State defaults
	v.SetDefault("state.backend", StateBackendFile)
	v.SetDefault("state.file_path", "state.json")

	// Retry defaults
	v.SetDefault("retry.start_sleep_time", "100ms")
	v.SetDefault("retry.factor", 2)
	v.SetDefault("retry.border_sleep_time", "10s")
	v.SetDefault("retry.max_attempts", 0)

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")

	// Shutdown defaults
	v.SetDefault("shutdown.timeout", "30s")
}

func validateETL(config *ETLConfig) error {
	if err := validator.New().Struct(config); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s: failed on %q", verrs[0].Namespace(), verrs[0].Tag())
		}
		return err
	}
	if config.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if config.State.Backend == StateBackendFile && config.State.FilePath == "" {
		return fmt.Errorf("state.file_path is required for the file backend")
	}
	if err := config.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	return nil
}

// GetConnectionString returns a PostgreSQL URL, with the password redacted when redact is set
func (c *DatabaseConfig) GetConnectionString(redact bool) string {
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + c.SSLMode,
	}
	switch {
	case c.Password != "" && redact:
		u.User = url.UserPassword(c.User, "xxxxx")
	case c.Password != "":
		u.User = url.UserPassword(c.User, c.Password)
	case c.User != "":
		u.User = url.User(c.User)
	}
	return u.String()
}
