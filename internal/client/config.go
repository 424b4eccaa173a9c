package client

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Defaults and environment overrides for the client connection.
const (
	DefaultAPIURL  = "http://localhost:8080"
	DefaultTimeout = 30 * time.Second

	EnvAPIURL  = "EMBEDQUEUE_CLIENT_API_URL"
	EnvTimeout = "EMBEDQUEUE_CLIENT_TIMEOUT"
)

// Config tells the client which API server to talk to and how long to
// wait for it. The URL must carry an http or https scheme.
type Config struct {
	APIURL  string
	Timeout time.Duration
}

// DefaultConfig returns the localhost defaults.
func DefaultConfig() Config {
	return Config{APIURL: DefaultAPIURL, Timeout: DefaultTimeout}
}

// LoadConfig reads EMBEDQUEUE_CLIENT_API_URL and EMBEDQUEUE_CLIENT_TIMEOUT
// from the environment, falling back to defaults for unset variables. A
// timeout variable that is set but empty, unparseable, or non-positive is
// an error rather than a silent fallback.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if apiURL := os.Getenv(EnvAPIURL); apiURL != "" {
		cfg.APIURL = apiURL
	}

	if timeoutStr, ok := os.LookupEnv(EnvTimeout); ok {
		if timeoutStr == "" {
			return nil, fmt.Errorf("environment variable %s is set but empty: timeout cannot be empty", EnvTimeout)
		}

		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout duration in %s: %w", EnvTimeout, err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("invalid timeout value in %s: timeout must be positive, got %v", EnvTimeout, timeout)
		}

		cfg.Timeout = timeout
	}

	return &cfg, nil
}

// Validate checks the URL scheme and timeout bounds.
func (c Config) Validate() error {
	if c.APIURL == "" {
		return errors.New("invalid configuration: API URL cannot be empty")
	}
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("invalid configuration: API URL must have http:// or https:// scheme, got %q", c.APIURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("invalid configuration: timeout must be positive, got %v", c.Timeout)
	}
	return nil
}
