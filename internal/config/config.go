package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/sawpanic/ruleforge/internal/domain/rules"
	"github.com/sawpanic/ruleforge/internal/infrastructure/db"
)

// Config is the full ruleforge configuration file
type Config struct {
	Extraction ExtractionConfig `yaml:"extraction"`
	Trader     TraderConfig     `yaml:"trader"`
	Database   db.Config        `yaml:"database"`
	Cache      CacheConfig      `yaml:"cache"`
	Server     ServerConfig     `yaml:"server"`
}

// ExtractionConfig controls path walking, scoring and selection
type ExtractionConfig struct {
	MaxRules   int    `yaml:"max_rules" validate:"gte=0"`
	MinSamples int    `yaml:"min_samples" validate:"gte=0"`
	TaskType   string `yaml:"task_type" validate:"oneof=regression classification"`
	TargetName string `yaml:"target_name" validate:"required"`
	Workers    int    `yaml:"workers" validate:"gte=0"` // 0 = GOMAXPROCS
}

// TraderConfig controls the trader-facing rule builder
type TraderConfig struct {
	TopN        int     `yaml:"top_n" validate:"gte=0"`
	MinCoverage float64 `yaml:"min_coverage" validate:"gte=0,lte=1"`
	Asset       string  `yaml:"asset" validate:"required"`
}

// CacheConfig configures the redis result cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr" validate:"required_if=Enabled true"`
	DB        int           `yaml:"db" validate:"gte=0"`
	TTL       time.Duration `yaml:"ttl" validate:"gte=0"`
	KeyPrefix string        `yaml:"key_prefix"`
}

// ServerConfig configures the read-only monitoring server
type ServerConfig struct {
	Host         string        `yaml:"host" validate:"required"`
	Port         int           `yaml:"port" validate:"gte=1,lte=65535"`
	RateLimitRPS float64       `yaml:"rate_limit_rps" validate:"gte=0"`
	RateBurst    int           `yaml:"rate_burst" validate:"gte=0"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Extraction: ExtractionConfig{
			MaxRules:   20,
			MinSamples: 10,
			TaskType:   "regression",
			TargetName: "Profit",
		},
		Trader: TraderConfig{
			TopN:        6,
			MinCoverage: 0.15,
			Asset:       "SPY",
		},
		Database: db.DefaultConfig(),
		Cache: CacheConfig{
			Addr:      "localhost:6379",
			TTL:       24 * time.Hour,
			KeyPrefix: "ruleforge:",
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         8088,
			RateLimitRPS: 10,
			RateBurst:    20,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// Load reads a YAML file on top of the defaults, then applies env overrides
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	ApplyEnv(&cfg)
	return &cfg, nil
}

// Save writes cfg as YAML, creating the parent directory if needed
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv applies PG_* and REDIS_ADDR overrides
func ApplyEnv(cfg *Config) {
	db.ApplyEnvOverrides(&cfg.Database)
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Cache.Addr = addr
		cfg.Cache.Enabled = true
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report yaml keys rather than Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every section; failures are *rules.ConfigurationError values joined together
func (c *Config) Validate() error {
	var errs []error

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, &rules.ConfigurationError{
				Field:  strings.TrimPrefix(fe.Namespace(), "Config."),
				Value:  fe.Value(),
				Reason: describeTag(fe),
			})
		}
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, &rules.ConfigurationError{Field: "database", Value: c.Database.Enabled, Reason: err.Error()})
	}

	return errors.Join(errs...)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_if":
		return "is required when " + strings.ReplaceAll(fe.Param(), " ", "=")
	case "oneof":
		return "must be one of " + fe.Param()
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	default:
		return "failed " + fe.Tag()
	}
}

// Flags holds command-line overrides for the extraction and trader sections
type Flags struct {
	MaxRules    int
	MinSamples  int
	TaskType    string
	TargetName  string
	Workers     int
	TopN        int
	MinCoverage float64
	Asset       string
}

// RegisterFlags adds the override flags to fs, seeded from the defaults
func (f *Flags) RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.IntVar(&f.MaxRules, "max-rules", d.Extraction.MaxRules, "number of ranked rules to keep (0 = all)")
	fs.IntVar(&f.MinSamples, "min-samples", d.Extraction.MinSamples, "rows below which a rule's importance is penalised")
	fs.StringVar(&f.TaskType, "task-type", d.Extraction.TaskType, "regression or classification")
	fs.StringVar(&f.TargetName, "target-name", d.Extraction.TargetName, "target label used in rule text")
	fs.IntVar(&f.Workers, "workers", d.Extraction.Workers, "parallel workers (0 = GOMAXPROCS)")
	fs.IntVar(&f.TopN, "top-n", d.Trader.TopN, "number of trader rules to emit (0 = all)")
	fs.Float64Var(&f.MinCoverage, "min-coverage", d.Trader.MinCoverage, "minimum coverage for a trader rule, in [0,1]")
	fs.StringVar(&f.Asset, "asset", d.Trader.Asset, "asset symbol printed in trader rules")
}

// ApplyFlags copies only the flags the user actually set onto cfg
func (f *Flags) ApplyFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.Visit(func(fl *pflag.Flag) {
		switch fl.Name {
		case "max-rules":
			cfg.Extraction.MaxRules = f.MaxRules
		case "min-samples":
			cfg.Extraction.MinSamples = f.MinSamples
		case "task-type":
			cfg.Extraction.TaskType = f.TaskType
		case "target-name":
			cfg.Extraction.TargetName = f.TargetName
		case "workers":
			cfg.Extraction.Workers = f.Workers
		case "top-n":
			cfg.Trader.TopN = f.TopN
		case "min-coverage":
			cfg.Trader.MinCoverage = f.MinCoverage
		case "asset":
			cfg.Trader.Asset = f.Asset
		}
	})
}
