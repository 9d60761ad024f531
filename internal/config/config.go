package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/landcover-cli/internal/zonal"
)

// Config holds the full application configuration.
type Config struct {
	Input       InputConfig   `yaml:"input" mapstructure:"input"`
	Output      OutputConfig  `yaml:"output" mapstructure:"output"`
	Zonal       ZonalConfig   `yaml:"zonal" mapstructure:"zonal"`
	Batch       BatchConfig   `yaml:"batch" mapstructure:"batch"`
	Classes     []zonal.Class `yaml:"classes" mapstructure:"classes"`
	ClassesFile string        `yaml:"classes_file" mapstructure:"classes_file"`
	Store       StoreConfig   `yaml:"store" mapstructure:"store"`
	Server      ServerConfig  `yaml:"server" mapstructure:"server"`
	Log         LogConfig     `yaml:"log" mapstructure:"log"`
}

// InputConfig locates the classified raster and the region boundaries.
type InputConfig struct {
	Raster     string   `yaml:"raster" mapstructure:"raster"`
	Regions    string   `yaml:"regions" mapstructure:"regions"`
	NameFields []string `yaml:"name_fields" mapstructure:"name_fields"`
	Encoding   string   `yaml:"encoding" mapstructure:"encoding"`
}

// OutputConfig configures the output sinks.
type OutputConfig struct {
	Dir     string   `yaml:"dir" mapstructure:"dir"`
	Formats []string `yaml:"formats" mapstructure:"formats"`
}

// ZonalConfig tunes the statistics engine.
type ZonalConfig struct {
	CountUnrecognized bool    `yaml:"count_unrecognized" mapstructure:"count_unrecognized"`
	AreaScale         float64 `yaml:"area_scale" mapstructure:"area_scale"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentRegions int `yaml:"max_concurrent_regions" mapstructure:"max_concurrent_regions"`
}

// StoreConfig configures the result store. An empty driver disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultClasses is the nine-class land-cover legend used when no class
// table is configured.
func DefaultClasses() []zonal.Class {
	return []zonal.Class{
		{Code: 47, Name: "Agua", Color: "#419bdf"},
		{Code: 57, Name: "Bosques", Color: "#397d49"},
		{Code: 122, Name: "Pastizales", Color: "#7a87c6"},
		{Code: 136, Name: "Matorrales", Color: "#88b053"},
		{Code: 165, Name: "Suelo Desnudo", Color: "#a59b8f"},
		{Code: 179, Name: "Nieve y Hielo", Color: "#b39fe1"},
		{Code: 196, Name: "Áreas Urbanas", Color: "#c4281b"},
		{Code: 223, Name: "Vegetación Inundable", Color: "#dfc35a"},
		{Code: 228, Name: "Tierras de Cultivo", Color: "#e49635"},
	}
}

// Load reads configuration from ./config.yaml (optional) and environment.
// A .env file in the working directory is loaded first; it never overrides
// variables already set in the process environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file. An empty path falls back to
// the optional ./config.yaml; a non-empty path must exist.
func LoadFile(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("LANDCOVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("input.raster", "landcover.asc")
	v.SetDefault("input.regions", "regions/regions.shp")
	v.SetDefault("output.dir", "outputs_analysis")
	v.SetDefault("output.formats", []string{"json", "geojson", "csv", "maxima"})
	v.SetDefault("zonal.count_unrecognized", true)
	v.SetDefault("zonal.area_scale", 1.0)
	v.SetDefault("batch.max_concurrent_regions", 4)
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "landcover.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrapf(err, "config: read file %s", v.ConfigFileUsed())
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ClassTable resolves the configured classes: classes_file first, then the
// inline classes list, then DefaultClasses.
func (c *Config) ClassTable() (*zonal.ClassTable, error) {
	classes := c.Classes
	if c.ClassesFile != "" {
		loaded, err := LoadClasses(c.ClassesFile)
		if err != nil {
			return nil, err
		}
		classes = loaded
	}
	if len(classes) == 0 {
		classes = DefaultClasses()
	}

	ct, err := zonal.NewClassTable(classes)
	if err != nil {
		return nil, eris.Wrap(err, "config: class table")
	}
	return ct, nil
}

// LoadClasses reads a class table from a YAML file with a top-level
// "classes" list.
func LoadClasses(path string) ([]zonal.Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read classes %s", path)
	}

	var wrapper struct {
		Classes []zonal.Class `yaml:"classes"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "config: parse classes")
	}
	if len(wrapper.Classes) == 0 {
		return nil, eris.Errorf("config: %s defines no classes", path)
	}
	return wrapper.Classes, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Batch.MaxConcurrentRegions < 1 || c.Batch.MaxConcurrentRegions > 256 {
		errs = append(errs, "batch.max_concurrent_regions must be between 1 and 256")
	}
	if c.Zonal.AreaScale <= 0 {
		errs = append(errs, "zonal.area_scale must be > 0")
	}

	switch mode {
	case "analyze":
		if c.Input.Raster == "" {
			errs = append(errs, "input.raster is required")
		}
		if c.Input.Regions == "" {
			errs = append(errs, "input.regions is required")
		}
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
	case "locate":
		if c.Input.Regions == "" {
			errs = append(errs, "input.regions is required")
		}
	case "store":
		errs = append(errs, c.validateStore()...)
	case "serve":
		errs = append(errs, c.validateStore()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	case "":
		errs = append(errs, "store.driver is required")
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
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
