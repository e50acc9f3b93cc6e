package vault

import (
	"github.com/BillArmsty/rusty-rocket/pkg/config"
	"github.com/BillArmsty/rusty-rocket/pkg/config/env"
	"github.com/BillArmsty/rusty-rocket/pkg/config/memory"
	"github.com/BillArmsty/rusty-rocket/pkg/config/wrapper"
)

const (
	envConfigPrefix = "VAULT_"

	LamportsConfigEnvName = envConfigPrefix + "LAMPORTS"
	DefaultLamports       = 10_000_000

	SizeConfigEnvName = envConfigPrefix + "SIZE"
	DefaultSize       = 16
)

type conf struct {
	lamports config.Uint64
	size     config.Uint64
}

// ConfigProvider defines how config values are pulled
type ConfigProvider func() *conf

// WithEnvConfigs returns configuration pulled from environment variables
func WithEnvConfigs() ConfigProvider {
	return func() *conf {
		return &conf{
			lamports: env.NewUint64Config(LamportsConfigEnvName, DefaultLamports),
			size:     env.NewUint64Config(SizeConfigEnvName, DefaultSize),
		}
	}
}

type testOverrides struct {
	lamports uint64
	size     uint64
}

func withManualTestOverrides(overrides *testOverrides) ConfigProvider {
	return func() *conf {
		return &conf{
			lamports: wrapper.NewUint64Config(memory.NewConfig(overrides.lamports), DefaultLamports),
			size:     wrapper.NewUint64Config(memory.NewConfig(overrides.size), DefaultSize),
		}
	}
}
