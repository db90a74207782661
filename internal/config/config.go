package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Supported index engines.
const (
	DriverRedis         = "redis"
	DriverElasticsearch = "elasticsearch"
)

// Config holds the geodex API configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Index    IndexConfig    `yaml:"index"`
	Query    QueryConfig    `yaml:"query"`
	Ranking  RankingConfig  `yaml:"ranking"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings. Empty APIKeys disables auth.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds index engine connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, elasticsearch (default: redis)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds place index and index client settings.
type IndexConfig struct {
	Name             string  `yaml:"name"`
	KeyPrefix        string  `yaml:"key_prefix"`
	RequestTimeoutMs int     `yaml:"request_timeout_ms"`
	RetryDelayMs     int     `yaml:"retry_delay_ms"`
	ReverseRadiusM   float64 `yaml:"reverse_radius_m"`
}

// QueryConfig holds query parsing and pagination settings.
type QueryConfig struct {
	PostcodeCountry string `yaml:"postcode_country"`
	PostcodeDigits  int    `yaml:"postcode_digits"`
	DefaultLimit    int    `yaml:"default_limit"`
	MaxLimit        int    `yaml:"max_limit"`
}

// RankingConfig holds merge ordering and geographic bias settings.
type RankingConfig struct {
	ScoreEpsilon  float64  `yaml:"score_epsilon"`
	TypePriority  []string `yaml:"type_priority"` // most precise first
	DecayScaleKm  float64  `yaml:"decay_scale_km"`
	DecayOffsetKm float64  `yaml:"decay_offset_km"`
	Decay         float64  `yaml:"decay"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes raw YAML, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverRedis
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Name == "" {
		c.Index.Name = "places"
	}
	if c.Index.KeyPrefix == "" {
		c.Index.KeyPrefix = "geodex:"
	}
	if c.Index.RequestTimeoutMs <= 0 {
		c.Index.RequestTimeoutMs = 2000
	}
	if c.Index.RetryDelayMs <= 0 {
		c.Index.RetryDelayMs = 50
	}
	if c.Index.ReverseRadiusM <= 0 {
		c.Index.ReverseRadiusM = 500
	}
	if c.Query.PostcodeCountry == "" {
		c.Query.PostcodeCountry = "DE"
	}
	if c.Query.PostcodeDigits <= 0 {
		c.Query.PostcodeDigits = 5
	}
	if c.Query.DefaultLimit <= 0 {
		c.Query.DefaultLimit = 10
	}
	if c.Query.MaxLimit <= 0 {
		c.Query.MaxLimit = 20
	}
	if c.Ranking.ScoreEpsilon <= 0 {
		c.Ranking.ScoreEpsilon = 0.05
	}
	if len(c.Ranking.TypePriority) == 0 {
		c.Ranking.TypePriority = []string{"house", "poi", "street", "admin", "zone"}
	}
	if c.Ranking.DecayScaleKm <= 0 {
		c.Ranking.DecayScaleKm = 50
	}
	if c.Ranking.Decay <= 0 {
		c.Ranking.Decay = 0.5
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Database.Driver {
	case DriverRedis, DriverElasticsearch:
	default:
		return fmt.Errorf("database.driver must be %q or %q, got %q",
			DriverRedis, DriverElasticsearch, c.Database.Driver)
	}
	if c.Query.DefaultLimit > c.Query.MaxLimit {
		return fmt.Errorf("query.default_limit (%d) exceeds query.max_limit (%d)",
			c.Query.DefaultLimit, c.Query.MaxLimit)
	}
	if c.Ranking.Decay >= 1 {
		return fmt.Errorf("ranking.decay must be in (0, 1), got %g", c.Ranking.Decay)
	}
	if c.Ranking.ScoreEpsilon >= 1 {
		return fmt.Errorf("ranking.score_epsilon must be in (0, 1), got %g", c.Ranking.ScoreEpsilon)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
