package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/boundary-compare/internal/metrics"
)

// Config holds the full application configuration.
type Config struct {
	Swisstopo SwisstopoConfig `yaml:"swisstopo" mapstructure:"swisstopo"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Quality   QualityConfig   `yaml:"quality" mapstructure:"quality"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SwisstopoConfig configures the authoritative swissBOUNDARIES3D source.
type SwisstopoConfig struct {
	ArchiveURL string `yaml:"archive_url" mapstructure:"archive_url"`
	Format     string `yaml:"format" mapstructure:"format"` // gpkg or shp
	Layer      string `yaml:"layer" mapstructure:"layer"`
	IDField    string `yaml:"id_field" mapstructure:"id_field"`
	NameField  string `yaml:"name_field" mapstructure:"name_field"`
	TypeField  string `yaml:"type_field" mapstructure:"type_field"`
	ObjectType string `yaml:"object_type" mapstructure:"object_type"`
	SRID       int    `yaml:"srid" mapstructure:"srid"` // shapefile only; GeoPackage carries its own
	TempDir    string `yaml:"temp_dir" mapstructure:"temp_dir"`
	KeepTemp   bool   `yaml:"keep_temp" mapstructure:"keep_temp"`
}

// OverpassConfig configures the crowd-sourced OpenStreetMap source.
type OverpassConfig struct {
	URL          string `yaml:"url" mapstructure:"url"`
	IDTag        string `yaml:"id_tag" mapstructure:"id_tag"`
	AdminLevel   int    `yaml:"admin_level" mapstructure:"admin_level"`
	CountryCode  string `yaml:"country_code" mapstructure:"country_code"`
	QueryTimeout int    `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
}

// FetchConfig configures the shared HTTP fetcher.
type FetchConfig struct {
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// QualityConfig holds the IoU category thresholds and report listing limits.
type QualityConfig struct {
	Excellent    float64 `yaml:"excellent" mapstructure:"excellent"`
	Good         float64 `yaml:"good" mapstructure:"good"`
	Fair         float64 `yaml:"fair" mapstructure:"fair"`
	WorstN       int     `yaml:"worst_n" mapstructure:"worst_n"`
	MissingLimit int     `yaml:"missing_limit" mapstructure:"missing_limit"`
}

// Thresholds converts the quality section into metric engine thresholds.
func (q QualityConfig) Thresholds() metrics.Thresholds {
	return metrics.Thresholds{Excellent: q.Excellent, Good: q.Good, Fair: q.Fair}
}

// OutputConfig lists the files a run writes. An empty XLSXPath or MetricsPath
// disables that export.
type OutputConfig struct {
	ReportPath  string `yaml:"report_path" mapstructure:"report_path"`
	CSVPath     string `yaml:"csv_path" mapstructure:"csv_path"`
	GeoJSONPath string `yaml:"geojson_path" mapstructure:"geojson_path"`
	XLSXPath    string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	MetricsPath string `yaml:"metrics_path" mapstructure:"metrics_path"` // Prometheus textfile collector
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment. A .env file in the
// working directory, when present, is loaded into the environment first.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BOUNDARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults always decode.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("swisstopo.archive_url", "https://data.geo.admin.ch/ch.swisstopo.swissboundaries3d/swissboundaries3d_2025-04/swissboundaries3d_2025-04_2056_5728.gpkg.zip")
	v.SetDefault("swisstopo.format", "gpkg")
	v.SetDefault("swisstopo.layer", "tlm_hoheitsgebiet")
	v.SetDefault("swisstopo.id_field", "bfs_nummer")
	v.SetDefault("swisstopo.name_field", "name")
	v.SetDefault("swisstopo.type_field", "objektart")
	v.SetDefault("swisstopo.object_type", "Gemeindegebiet")
	v.SetDefault("swisstopo.srid", 2056)
	v.SetDefault("swisstopo.temp_dir", "")
	v.SetDefault("swisstopo.keep_temp", false)
	v.SetDefault("overpass.url", "https://overpass.osm.ch/api/interpreter")
	v.SetDefault("overpass.id_tag", "swisstopo:BFS_NUMMER")
	v.SetDefault("overpass.admin_level", 8)
	v.SetDefault("overpass.country_code", "CH")
	v.SetDefault("overpass.query_timeout_secs", 300)
	v.SetDefault("fetch.user_agent", "boundary-compare/1.0")
	v.SetDefault("fetch.timeout_secs", 400)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("quality.excellent", 0.98)
	v.SetDefault("quality.good", 0.95)
	v.SetDefault("quality.fair", 0.90)
	v.SetDefault("quality.worst_n", 10)
	v.SetDefault("quality.missing_limit", 20)
	v.SetDefault("output.report_path", "reports/comparison_report.txt")
	v.SetDefault("output.csv_path", "reports/detailed_results.csv")
	v.SetDefault("output.geojson_path", "osm_boundaries.geojson")
	v.SetDefault("output.xlsx_path", "")
	v.SetDefault("output.metrics_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks the values a run cannot proceed without.
func (c *Config) Validate() error {
	if c.Swisstopo.ArchiveURL == "" {
		return eris.New("config: swisstopo.archive_url is required")
	}
	switch c.Swisstopo.Format {
	case "gpkg", "shp":
	default:
		return eris.Errorf("config: unknown swisstopo.format %q", c.Swisstopo.Format)
	}
	if c.Overpass.URL == "" {
		return eris.New("config: overpass.url is required")
	}
	if c.Overpass.IDTag == "" {
		return eris.New("config: overpass.id_tag is required")
	}
	if c.Fetch.MaxRetries < 1 {
		return eris.Errorf("config: fetch.max_retries must be at least 1, got %d", c.Fetch.MaxRetries)
	}
	if c.Fetch.TimeoutSecs < 0 {
		return eris.Errorf("config: fetch.timeout_secs must not be negative, got %d", c.Fetch.TimeoutSecs)
	}
	if err := c.Quality.Thresholds().Validate(); err != nil {
		return eris.Wrap(err, "config: quality")
	}
	if c.Output.ReportPath == "" || c.Output.CSVPath == "" {
		return eris.New("config: output.report_path and output.csv_path are required")
	}
	return nil
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
