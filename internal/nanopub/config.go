package nanopub

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Nanopublication servers
const (
	ProductionServer = "https://np.knowledgepixels.com/"
	TestServer       = "https://np.test.knowledgepixels.com/"
)

// ClientConfig holds the transport settings of a Client
type ClientConfig struct {
	ServerURL         string        `env:"NANOPUB_SERVER_URL" validate:"required,url"`
	TestServerURL     string        `env:"NANOPUB_TEST_SERVER_URL" validate:"required,url"`
	Timeout           time.Duration `env:"NANOPUB_TIMEOUT" validate:"gt=0"`
	UserAgent         string        `env:"NANOPUB_USER_AGENT"`
	MaxAttempts       int           `env:"NANOPUB_MAX_ATTEMPTS" validate:"min=1,max=10"`
	RequestsPerSecond float64       `env:"NANOPUB_RATE" validate:"gt=0"`
	MaxBodyBytes      int64         `env:"NANOPUB_MAX_BYTES" validate:"gt=0"`
	HTTPProxy         string        `env:"NANOPUB_HTTP_PROXY" validate:"omitempty,url"`
	HTTPSProxy        string        `env:"NANOPUB_HTTPS_PROXY" validate:"omitempty,url"`
	NoProxy           string        `env:"NANOPUB_NO_PROXY"`
	// ServerRates maps a server host to its own requests per second,
	// e.g. NANOPUB_SERVER_RATES=np.test.knowledgepixels.com:0.5
	ServerRates map[string]float64 `env:"NANOPUB_SERVER_RATES" validate:"omitempty,dive,keys,required,endkeys,gt=0"`
}

// DefaultClientConfig returns the built-in defaults
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		ServerURL:         ProductionServer,
		TestServerURL:     TestServer,
		Timeout:           30 * time.Second,
		UserAgent:         "nanoreport/0.1 (+https://github.com/ppiankov/nanoreport)",
		MaxAttempts:       3,
		RequestsPerSecond: 2,
		MaxBodyBytes:      2_000_000,
	}
}

// LoadClientConfig reads NANOPUB_* environment variables over the defaults
func LoadClientConfig() (ClientConfig, error) {
	return LoadClientConfigFrom(DefaultClientConfig())
}

// LoadClientConfigFrom reads NANOPUB_* environment variables over base.
// Fields whose variable is unset keep the base value.
func LoadClientConfigFrom(base ClientConfig) (ClientConfig, error) {
	cfg := base
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// Validate checks the configuration
func (c ClientConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}

// Server returns the server a publication with conf is sent to
func (c ClientConfig) Server(conf Conf) string {
	switch {
	case conf.ServerURL != "":
		return conf.ServerURL
	case conf.UseTestServer:
		return c.TestServerURL
	default:
		return c.ServerURL
	}
}
