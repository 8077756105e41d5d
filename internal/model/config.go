package model

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// newValidator reports fields by their yaml key
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Config is the host configuration, read from ~/.nanoreport/config.yaml
type Config struct {
	HTTP    HTTPConfig    `yaml:"http" mapstructure:"http"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Profile ProfileConfig `yaml:"profile" mapstructure:"profile"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
}

// HTTPConfig controls the transport to nanopub servers
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gt=0"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts" validate:"min=1,max=10"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	HTTPProxy         string        `yaml:"http_proxy" mapstructure:"http_proxy" validate:"omitempty,url"`
	HTTPSProxy        string        `yaml:"https_proxy" mapstructure:"https_proxy" validate:"omitempty,url"`
	NoProxy           string        `yaml:"no_proxy" mapstructure:"no_proxy"`
	// ServerRates overrides RequestsPerSecond per server host
	ServerRates map[string]float64 `yaml:"server_rates,omitempty" mapstructure:"server_rates" validate:"omitempty,dive,keys,required,endkeys,gt=0"`
}

// ServerConfig selects the nanopub servers
type ServerConfig struct {
	Production string `yaml:"production" mapstructure:"production" validate:"required,url"`
	Test       string `yaml:"test" mapstructure:"test" validate:"required,url"`
}

// ProfileConfig points at the nanopub profile
type ProfileConfig struct {
	Path string `yaml:"path" mapstructure:"path"` // Empty means ~/.nanopub/profile.yml
}

// CacheConfig controls caching of fetched nanopubs
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" mapstructure:"enabled"`
	Memory  bool          `yaml:"memory" mapstructure:"memory"`
	Dir     string        `yaml:"dir" mapstructure:"dir"`
	TTL     time.Duration `yaml:"ttl" mapstructure:"ttl"`
}

// OutputConfig controls what the CLI prints
type OutputConfig struct {
	Verbose bool   `yaml:"verbose" mapstructure:"verbose"`
	Format  string `yaml:"format" mapstructure:"format" validate:"oneof=text json"`
}

// DefaultConfig returns the built-in configuration
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			UserAgent:         "nanoreport/0.1 (+https://github.com/ppiankov/nanoreport)",
			MaxBodyBytes:      2_000_000,
			MaxAttempts:       3,
			RequestsPerSecond: 2,
		},
		Server: ServerConfig{
			Production: "https://np.knowledgepixels.com/",
			Test:       "https://np.test.knowledgepixels.com/",
		},
		Cache: CacheConfig{
			Enabled: true,
			Memory:  true,
			TTL:     24 * time.Hour,
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}

// Validate checks the values the pipeline cannot work without
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fieldError(fe))
	}
	return errors.Join(errs...)
}

// fieldError names the failing key the way it appears in config.yaml
func fieldError(fe validator.FieldError) error {
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: must satisfy %s=%s, got %v", key, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s: must satisfy %s, got %v", key, fe.Tag(), fe.Value())
}
