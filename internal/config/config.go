package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fer004/Sensores/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Estimate  EstimateConfig  `yaml:"estimate" mapstructure:"estimate"`
	PurpleAir PurpleAirConfig `yaml:"purpleair" mapstructure:"purpleair"`
	Input     InputConfig     `yaml:"input" mapstructure:"input"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	History   HistoryConfig   `yaml:"history" mapstructure:"history"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// EstimateConfig selects what a run estimates and how values are reported.
type EstimateConfig struct {
	Pollutant         string `yaml:"pollutant" mapstructure:"pollutant"`
	Profile           string `yaml:"profile" mapstructure:"profile"`
	RoundingPrecision int    `yaml:"rounding_precision" mapstructure:"rounding_precision"`
	Concurrency       int    `yaml:"concurrency" mapstructure:"concurrency"`
	ProfilesFile      string `yaml:"profiles_file" mapstructure:"profiles_file"`
}

// PurpleAirConfig holds PurpleAir API settings.
type PurpleAirConfig struct {
	APIKey      string      `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string      `yaml:"base_url" mapstructure:"base_url"`
	Fields      []string    `yaml:"fields" mapstructure:"fields"`
	RateLimit   float64     `yaml:"rate_limit" mapstructure:"rate_limit"`
	TimeoutSecs int         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Concurrency int         `yaml:"concurrency" mapstructure:"concurrency"`
	Retry       RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures retries of transient API failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// InputConfig locates the sensor inventory and the region shapefile.
type InputConfig struct {
	Sensors     string `yaml:"sensors" mapstructure:"sensors"`
	Regions     string `yaml:"regions" mapstructure:"regions"`
	NameField   string `yaml:"name_field" mapstructure:"name_field"`
	DBFEncoding string `yaml:"dbf_encoding" mapstructure:"dbf_encoding"`
	// Offline takes readings from the inventory file instead of polling.
	Offline bool `yaml:"offline" mapstructure:"offline"`
}

// OutputConfig names the files written by a run. Empty paths are skipped.
type OutputConfig struct {
	SensorsGeoJSON string `yaml:"sensors_geojson" mapstructure:"sensors_geojson"`
	RegionsGeoJSON string `yaml:"regions_geojson" mapstructure:"regions_geojson"`
	ArcGISJSON     string `yaml:"arcgis_json" mapstructure:"arcgis_json"`
}

// HistoryConfig configures the run history backend.
type HistoryConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the layer server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	CORSOrigins    []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RefreshMinutes int      `yaml:"refresh_minutes" mapstructure:"refresh_minutes"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SENSORES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("estimate.pollutant", string(model.PM2_5))
	v.SetDefault("estimate.profile", "epa-pm25")
	v.SetDefault("estimate.rounding_precision", 2)
	v.SetDefault("estimate.concurrency", 8)
	v.SetDefault("estimate.profiles_file", "")
	v.SetDefault("purpleair.api_key", "")
	v.SetDefault("purpleair.base_url", "https://api.purpleair.com/v1")
	v.SetDefault("purpleair.fields", []string{"pm1.0", "pm2.5"})
	v.SetDefault("purpleair.rate_limit", 5.0)
	v.SetDefault("purpleair.timeout_secs", 30)
	v.SetDefault("purpleair.concurrency", 4)
	v.SetDefault("purpleair.retry.max_attempts", 3)
	v.SetDefault("purpleair.retry.initial_backoff_ms", 500)
	v.SetDefault("purpleair.retry.max_backoff_ms", 10000)
	v.SetDefault("input.sensors", "sensores_detectados.csv")
	v.SetDefault("input.regions", "shp/2023_1_19_A.shp")
	v.SetDefault("input.name_field", "")
	v.SetDefault("input.dbf_encoding", "utf-8")
	v.SetDefault("input.offline", false)
	v.SetDefault("output.sensors_geojson", "sensores.geojson")
	v.SetDefault("output.regions_geojson", "AQ.geojson")
	v.SetDefault("output.arcgis_json", "")
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.database_url", "sensores.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.refresh_minutes", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are "run",
// "serve", "history" and "profiles".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "profiles":
		return nil
	case "history":
		errs = append(errs, c.validateHistory()...)
	case "run":
		errs = append(errs, c.validateEstimate()...)
		errs = append(errs, c.validateInput()...)
		errs = append(errs, c.validateHistory()...)
	case "serve":
		errs = append(errs, c.validateEstimate()...)
		errs = append(errs, c.validateInput()...)
		errs = append(errs, c.validateHistory()...)
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
		if c.Server.RefreshMinutes < 0 {
			errs = append(errs, "server.refresh_minutes must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEstimate() []string {
	var errs []string
	if _, ok := model.ParsePollutant(c.Estimate.Pollutant); !ok {
		errs = append(errs, "estimate.pollutant must be pm1_0 or pm2_5")
	}
	if c.Estimate.Profile == "" {
		errs = append(errs, "estimate.profile is required")
	}
	if c.Estimate.RoundingPrecision < 0 || c.Estimate.RoundingPrecision > 12 {
		errs = append(errs, "estimate.rounding_precision must be between 0 and 12")
	}
	if c.Estimate.Concurrency < 1 || c.Estimate.Concurrency > 256 {
		errs = append(errs, "estimate.concurrency must be between 1 and 256")
	}
	return errs
}

func (c *Config) validateInput() []string {
	var errs []string
	if c.Input.Sensors == "" {
		errs = append(errs, "input.sensors is required")
	}
	if c.Input.Regions == "" {
		errs = append(errs, "input.regions is required")
	}
	if !c.Input.Offline {
		if c.PurpleAir.APIKey == "" {
			errs = append(errs, "purpleair.api_key is required (or set input.offline)")
		}
		if c.PurpleAir.RateLimit <= 0 {
			errs = append(errs, "purpleair.rate_limit must be > 0")
		}
		if c.PurpleAir.Concurrency < 1 || c.PurpleAir.Concurrency > 64 {
			errs = append(errs, "purpleair.concurrency must be between 1 and 64")
		}
	}
	return errs
}

func (c *Config) validateHistory() []string {
	switch c.History.Driver {
	case "none":
		return nil
	case "sqlite", "postgres":
		if c.History.DatabaseURL == "" {
			return []string{"history.database_url is required"}
		}
		return nil
	default:
		return []string{"history.driver must be sqlite, postgres or none"}
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
