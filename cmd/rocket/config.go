package main

import (
	"crypto/ed25519"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/BillArmsty/rusty-rocket/pkg/app"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
)

const (
	flowSeed  = "seed"
	flowClose = "close"
	flowVault = "vault"
)

type config struct {
	// RPCEndpoint is the cluster to run against. An in-process localnet is
	// used when empty.
	RPCEndpoint string `mapstructure:"rpc_endpoint"`
	Commitment  string `mapstructure:"commitment"`

	Flows []string `mapstructure:"flows"`
	Seed  string   `mapstructure:"seed"`

	VaultProgramID  string `mapstructure:"vault_program_id"`
	CloserProgramID string `mapstructure:"closer_program_id"`

	// Localnet only
	LedgerPath    string `mapstructure:"ledger_path"`
	FaucetKeypair string `mapstructure:"faucet_keypair"`
}

var defaultConfig = config{
	Commitment: "confirmed",
	Flows:      []string{flowSeed, flowClose, flowVault},
	Seed:       "seed123",
}

func init() {
	_ = viper.BindEnv("app.rpc_endpoint", "RPC_ENDPOINT")
	_ = viper.BindEnv("app.commitment", "COMMITMENT")
	_ = viper.BindEnv("app.flows", "FLOWS")
	_ = viper.BindEnv("app.seed", "SEED")
	_ = viper.BindEnv("app.vault_program_id", "VAULT_PROGRAM_ID")
	_ = viper.BindEnv("app.closer_program_id", "CLOSER_PROGRAM_ID")
	_ = viper.BindEnv("app.ledger_path", "LEDGER_PATH")
	_ = viper.BindEnv("app.faucet_keypair", "FAUCET_KEYPAIR")
}

func decodeConfig(raw app.Config) (*config, error) {
	c := defaultConfig
	c.Flows = nil

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           &c,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]interface{}(raw)); err != nil {
		return nil, errors.Wrap(err, "invalid app config")
	}
	if len(c.Flows) == 0 {
		c.Flows = append([]string(nil), defaultConfig.Flows...)
	}

	for i, f := range c.Flows {
		c.Flows[i] = strings.ToLower(strings.TrimSpace(f))
		switch c.Flows[i] {
		case flowSeed, flowClose, flowVault:
		default:
			return nil, errors.Errorf("unknown flow: %q", f)
		}
	}

	if _, err := solana.ParseCommitment(c.Commitment); err != nil {
		return nil, err
	}

	if len(c.RPCEndpoint) > 0 {
		if c.needs(flowClose) && len(c.CloserProgramID) == 0 {
			return nil, errors.New("closer_program_id is required to run the close flow against a cluster")
		}
		if c.needs(flowVault) && len(c.VaultProgramID) == 0 {
			return nil, errors.New("vault_program_id is required to run the vault flow against a cluster")
		}
	}

	return &c, nil
}

func (c *config) needs(flow string) bool {
	for _, f := range c.Flows {
		if f == flow {
			return true
		}
	}
	return false
}

// programID decodes the configured program address, generating one when it
// isn't set.
func programID(value string) (ed25519.PublicKey, error) {
	if len(value) == 0 {
		pub, _, err := ed25519.GenerateKey(nil)
		return pub, err
	}

	b, err := base58.Decode(value)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid program id %q", value)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, errors.Errorf("invalid program id length: %d", len(b))
	}
	return b, nil
}
