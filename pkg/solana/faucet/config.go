package faucet

import (
	"time"

	"github.com/BillArmsty/rusty-rocket/pkg/config"
	"github.com/BillArmsty/rusty-rocket/pkg/config/env"
	"github.com/BillArmsty/rusty-rocket/pkg/config/memory"
	"github.com/BillArmsty/rusty-rocket/pkg/config/wrapper"
)

const (
	envConfigPrefix = "FAUCET_"

	MaxAttemptsConfigEnvName = envConfigPrefix + "MAX_ATTEMPTS"
	defaultMaxAttempts       = 5

	RetryDelayConfigEnvName = envConfigPrefix + "RETRY_DELAY"
	defaultRetryDelay       = 5 * time.Second

	// RateLimitConfigEnvName is the number of airdrops per second allowed for
	// a single address. Zero disables limiting.
	RateLimitConfigEnvName = envConfigPrefix + "RATE_LIMIT"
	defaultRateLimit       = 0
)

type conf struct {
	maxAttempts config.Uint64
	retryDelay  config.Duration
	rateLimit   config.Float64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			maxAttempts: env.NewUint64Config(MaxAttemptsConfigEnvName, defaultMaxAttempts),
			retryDelay:  env.NewDurationConfig(RetryDelayConfigEnvName, defaultRetryDelay),
			rateLimit:   env.NewFloat64Config(RateLimitConfigEnvName, defaultRateLimit),
		}
	}
}

type testOverrides struct {
	maxAttempts uint64
	retryDelay  time.Duration
	rateLimit   float64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			maxAttempts: wrapper.NewUint64Config(memory.NewConfig(overrides.maxAttempts), defaultMaxAttempts),
			retryDelay:  wrapper.NewDurationConfig(memory.NewConfig(overrides.retryDelay), defaultRetryDelay),
			rateLimit:   wrapper.NewFloat64Config(memory.NewConfig(overrides.rateLimit), defaultRateLimit),
		}
	}
}
