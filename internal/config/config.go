// Package config resolves CLI settings from flags, environment variables
// prefixed with FS_MANIFEST_, and an optional YAML config file.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/adrg/xdg"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yuya-takeyama/fs-manifest/internal/s3client"
	"github.com/yuya-takeyama/fs-manifest/pkg/fingerprint"
)

// AppName names the config directory under $XDG_CONFIG_HOME
const AppName = "fs-manifest"

// EnvPrefix is prepended to every environment override
const EnvPrefix = "FS_MANIFEST"

// Defaults
const (
	DefaultChecksum        = fingerprint.StrategyNone
	DefaultIntegerChecksum = fingerprint.StrategySimple
	DefaultMaxRetries      = 3
)

// ErrInvalid is wrapped by every Validate failure
var ErrInvalid = errors.New("invalid configuration")

// AWSConfig selects credentials for s3:// locations.
type AWSConfig struct {
	Profile string `mapstructure:"profile"`
	Region  string `mapstructure:"region"`
}

// S3Config tunes the S3 client.
type S3Config struct {
	MaxRetries int `mapstructure:"max_retries"`
}

// Config holds the settings shared by fs-scan and fs-compare.
type Config struct {
	Checksum           string    `mapstructure:"checksum"`
	Exclude            []string  `mapstructure:"exclude"`
	RelativeToRoot     bool      `mapstructure:"relative_to_root"`
	IntegerChecksum    string    `mapstructure:"integer_checksum"`
	SeparateUnverified bool      `mapstructure:"separate_unverified"`
	BothDirections     bool      `mapstructure:"both_directions"`
	Verbose            int       `mapstructure:"verbose"`
	Workers            int       `mapstructure:"workers"`
	AWS                AWSConfig `mapstructure:"aws"`
	S3                 S3Config  `mapstructure:"s3"`
}

// flagKeys maps CLI flag names to config keys. Flags absent from a
// command's flag set are ignored. Flags naming the inputs and outputs of a
// single run (--entry-dir, --output, --this, --other, --dump) are read by
// the commands directly and have no config key.
var flagKeys = map[string]string{
	"checksum":            "checksum",
	"exclude":             "exclude",
	"relative-to-root":    "relative_to_root",
	"integer-checksum":    "integer_checksum",
	"separate-unverified": "separate_unverified",
	"both-directions":     "both_directions",
	"verbose":             "verbose",
	"workers":             "workers",
	"profile":             "aws.profile",
	"region":              "aws.region",
}

// Dir returns the directory searched for config.yaml when no file is given
func Dir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Load reads configuration. An explicit file must exist; otherwise
// config.yaml under Dir is used when present. Flags that were set on the
// command line take precedence over env, which beats the file.
func Load(file string, flags *pflag.FlagSet) (*Config, error) {
	return load(file, flags, Dir())
}

func load(file string, flags *pflag.FlagSet, searchDir string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(searchDir)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("checksum", DefaultChecksum)
	v.SetDefault("exclude", []string{})
	v.SetDefault("relative_to_root", false)
	v.SetDefault("integer_checksum", DefaultIntegerChecksum)
	v.SetDefault("separate_unverified", true)
	v.SetDefault("both_directions", false)
	v.SetDefault("verbose", 0)
	v.SetDefault("workers", 0)
	v.SetDefault("aws.profile", "")
	v.SetDefault("aws.region", "")
	v.SetDefault("s3.max_retries", DefaultMaxRetries)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated values and ranges
func (c *Config) Validate() error {
	if !slices.Contains(fingerprint.Names(), c.Checksum) {
		return fmt.Errorf("%w: checksum %q must be one of %v", ErrInvalid, c.Checksum, fingerprint.Names())
	}
	if c.IntegerChecksum != fingerprint.StrategySimple && c.IntegerChecksum != fingerprint.StrategySize {
		return fmt.Errorf("%w: integer_checksum %q must be %q or %q",
			ErrInvalid, c.IntegerChecksum, fingerprint.StrategySimple, fingerprint.StrategySize)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalid)
	}
	if c.S3.MaxRetries < 0 {
		return fmt.Errorf("%w: s3.max_retries must not be negative", ErrInvalid)
	}
	for _, p := range c.Exclude {
		if !doublestar.ValidatePattern(strings.TrimSuffix(p, "/")) {
			return fmt.Errorf("%w: exclude pattern %q is malformed", ErrInvalid, p)
		}
	}
	return nil
}

// Strategy returns the configured fingerprint strategy
func (c *Config) Strategy() (fingerprint.Strategy, error) {
	return fingerprint.ParseStrategy(c.Checksum)
}

// IntegerKind is the fingerprint kind bare JSON integers decode to
func (c *Config) IntegerKind() fingerprint.Kind {
	if c.IntegerChecksum == fingerprint.StrategySize {
		return fingerprint.KindSize
	}
	return fingerprint.KindWeak
}

// S3Options converts the AWS and S3 sections for s3client
func (c *Config) S3Options() s3client.Options {
	return s3client.Options{
		Profile:    c.AWS.Profile,
		Region:     c.AWS.Region,
		MaxRetries: c.S3.MaxRetries,
	}
}
