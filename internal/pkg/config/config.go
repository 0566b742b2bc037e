package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Data       DataConfig       `mapstructure:"data"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Valkey     ValkeyConfig     `mapstructure:"valkey"`
	Routing    RoutingConfig    `mapstructure:"routing"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Viewport   ViewportConfig   `mapstructure:"viewport"`
	Corridor   CorridorConfig   `mapstructure:"corridor"`
	Search     SearchConfig     `mapstructure:"search"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry"`
	Temporal   TemporalConfig   `mapstructure:"temporal"`
}

type ServerConfig struct {
	Port         int `mapstructure:"port"`
	ReadTimeout  int `mapstructure:"read_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DataConfig selects the dataset. Source is "file" or "postgres".
type DataConfig struct {
	Source          string `mapstructure:"source"`
	StopsPath       string `mapstructure:"stops_path"`
	FacilitiesPath  string `mapstructure:"facilities_path"`
	Table           string `mapstructure:"table"`
	RefreshInterval int    `mapstructure:"refresh_interval"` // seconds, 0 disables polling
}

// RefreshEvery returns the polling interval.
func (d DataConfig) RefreshEvery() time.Duration {
	return time.Duration(d.RefreshInterval) * time.Second
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Enabled bool   `mapstructure:"enabled"`
}

type ValkeyConfig struct {
	Addr    string `mapstructure:"addr"`
	Prefix  string `mapstructure:"prefix"`
	Enabled bool   `mapstructure:"enabled"`
}

type RoutingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Profile string `mapstructure:"profile"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

type ClusteringConfig struct {
	MinZoom          int     `mapstructure:"min_zoom"`
	MaxZoom          int     `mapstructure:"max_zoom"`
	Radius           float64 `mapstructure:"radius"`
	Extent           float64 `mapstructure:"extent"`
	NodeSize         int     `mapstructure:"node_size"`
	MaxExpansionZoom int     `mapstructure:"max_expansion_zoom"`
}

type ViewportConfig struct {
	PanDelayMS    int `mapstructure:"pan_delay_ms"`
	FilterDelayMS int `mapstructure:"filter_delay_ms"`
}

type CorridorConfig struct {
	BufferMeters float64 `mapstructure:"buffer_meters"`
}

type SearchConfig struct {
	Threshold float64 `mapstructure:"threshold"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	OTLPAddr    string `mapstructure:"otlp_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

type TemporalConfig struct {
	HostPort  string `mapstructure:"host_port"`
	Namespace string `mapstructure:"namespace"`
	TaskQueue string `mapstructure:"task_queue"`
}

// Load reads configuration from .env, an optional config file and
// environment variables, in increasing precedence.
func Load(service string) (*Config, error) {
	// .env only fills variables that are not already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v, service)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: STOPMAP_DATA_STOPS_PATH → data.stops_path
	v.SetEnvPrefix("STOPMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, service string) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.source", "file")
	v.SetDefault("data.stops_path", "data/namtang-stop.txt")
	v.SetDefault("data.facilities_path", "")
	v.SetDefault("data.table", "stops")
	v.SetDefault("data.refresh_interval", 60)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "stopmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "stopmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", false)
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.prefix", "stopmap:")
	v.SetDefault("valkey.enabled", false)
	v.SetDefault("routing.base_url", "https://router.project-osrm.org")
	v.SetDefault("routing.profile", "driving")
	v.SetDefault("routing.timeout", 5)
	v.SetDefault("clustering.min_zoom", 0)
	v.SetDefault("clustering.max_zoom", 18)
	v.SetDefault("clustering.radius", 60)
	v.SetDefault("clustering.extent", 512)
	v.SetDefault("clustering.node_size", 64)
	v.SetDefault("clustering.max_expansion_zoom", 20)
	v.SetDefault("viewport.pan_delay_ms", 120)
	v.SetDefault("viewport.filter_delay_ms", 50)
	v.SetDefault("corridor.buffer_meters", 200)
	v.SetDefault("search.threshold", 0.35)
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.otlp_addr", "localhost:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "stopmap-corridor")
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Data.Source {
	case "file":
		if c.Data.StopsPath == "" {
			errs = append(errs, "data.stops_path is required when data.source is file")
		}
	case "postgres":
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
		if c.Data.Table == "" {
			errs = append(errs, "data.table is required when data.source is postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("data.source must be file or postgres, got %q", c.Data.Source))
	}
	if c.Data.RefreshInterval < 0 {
		errs = append(errs, "data.refresh_interval must not be negative")
	}

	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, "nats.url is required when nats is enabled")
	}
	if c.Valkey.Enabled && c.Valkey.Addr == "" {
		errs = append(errs, "valkey.addr is required when valkey is enabled")
	}
	if c.Routing.BaseURL != "" && !strings.HasPrefix(c.Routing.BaseURL, "http://") && !strings.HasPrefix(c.Routing.BaseURL, "https://") {
		errs = append(errs, fmt.Sprintf("routing.base_url must be an http(s) URL, got %q", c.Routing.BaseURL))
	}
	if c.Clustering.MaxZoom < c.Clustering.MinZoom || c.Clustering.MaxZoom > 21 {
		errs = append(errs, fmt.Sprintf("clustering.max_zoom must be between min_zoom and 21, got %d", c.Clustering.MaxZoom))
	}
	if c.Viewport.PanDelayMS < 0 || c.Viewport.FilterDelayMS < 0 {
		errs = append(errs, "viewport delays must not be negative")
	}
	if c.Corridor.BufferMeters <= 0 {
		errs = append(errs, "corridor.buffer_meters must be positive")
	}
	if c.Search.Threshold <= 0 || c.Search.Threshold >= 1 {
		errs = append(errs, fmt.Sprintf("search.threshold must be in (0,1), got %g", c.Search.Threshold))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
