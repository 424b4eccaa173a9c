package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Default retry policy constants.
const (
	DefaultMaxRetries         = 3
	DefaultBackoffBaseSeconds = 1
	DefaultBackoffCapMinutes  = 5
	MaxAllowedRetries         = 20
	BackoffMultiplier         = 2.0
)

// RetryPolicyConfig holds the retry and backoff policy applied to failed
// queue items. It can be loaded from the main config tree or from a
// standalone YAML policy file supplied by an operator.
type RetryPolicyConfig struct {
	MaxRetries  int           `mapstructure:"max_retries"  yaml:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"  yaml:"backoff_cap"`
}

// NewRetryPolicyConfig creates a RetryPolicyConfig from viper configuration,
// applying defaults for unset fields.
func NewRetryPolicyConfig(v *viper.Viper) (*RetryPolicyConfig, error) {
	config := &RetryPolicyConfig{
		MaxRetries:  DefaultMaxRetries,
		BackoffBase: DefaultBackoffBaseSeconds * time.Second,
		BackoffCap:  DefaultBackoffCapMinutes * time.Minute,
	}

	if v.IsSet("retry") {
		if err := v.UnmarshalKey("retry", config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal retry policy: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	return config, nil
}

// ParseRetryPolicyFromYAML parses a retry policy from a YAML document. The
// document uses the same keys as the "retry" block of the main config file.
func ParseRetryPolicyFromYAML(yamlContent string) (*RetryPolicyConfig, error) {
	var policyData map[string]interface{}
	if err := yaml.Unmarshal([]byte(yamlContent), &policyData); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	v := viper.New()
	v.Set("retry", policyData)

	return NewRetryPolicyConfig(v)
}

// BackoffFor returns the delay applied before the given retry attempt. The
// delay doubles with each attempt and is capped at BackoffCap.
func (c *RetryPolicyConfig) BackoffFor(retryCount int) time.Duration {
	delay := c.BackoffBase
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= c.BackoffCap {
			return c.BackoffCap
		}
	}
	if delay > c.BackoffCap {
		return c.BackoffCap
	}
	return delay
}

// Validate validates the retry policy configuration.
func (c *RetryPolicyConfig) Validate() error {
	var errors []string

	if c.MaxRetries < 1 {
		errors = append(errors, "max_retries must be at least 1")
	}

	if c.MaxRetries > MaxAllowedRetries {
		errors = append(errors, fmt.Sprintf("max_retries cannot exceed %d", MaxAllowedRetries))
	}

	if c.BackoffBase <= 0 {
		errors = append(errors, "backoff_base must be positive")
	}

	if c.BackoffCap < c.BackoffBase {
		errors = append(errors, "backoff_cap cannot be smaller than backoff_base")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}
