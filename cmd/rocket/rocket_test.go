package main

import (
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/mr-tron/base58/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BillArmsty/rusty-rocket/pkg/app"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/localnet"
)

func TestDecodeConfig(t *testing.T) {
	c, err := decodeConfig(app.Config{})
	require.NoError(t, err)
	assert.Equal(t, defaultConfig.Flows, c.Flows)
	assert.Equal(t, "confirmed", c.Commitment)
	assert.Equal(t, "seed123", c.Seed)

	c, err = decodeConfig(app.Config{
		"flows":      "Seed, vault",
		"commitment": "finalized",
		"seed":       "other",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{flowSeed, flowVault}, c.Flows)
	assert.Equal(t, "finalized", c.Commitment)
	assert.Equal(t, "other", c.Seed)
}

func TestDecodeConfig_Invalid(t *testing.T) {
	for _, raw := range []app.Config{
		{"flows": "seed,unknown"},
		{"commitment": "eventually"},
		{"rpc_endpoint": "https://api.devnet.solana.com", "flows": "close"},
		{"rpc_endpoint": "https://api.devnet.solana.com", "flows": "vault"},
	} {
		_, err := decodeConfig(raw)
		assert.Error(t, err, "%v", raw)
	}

	c, err := decodeConfig(app.Config{"rpc_endpoint": "https://api.devnet.solana.com", "flows": "seed"})
	require.NoError(t, err)
	assert.Equal(t, []string{flowSeed}, c.Flows)
}

func TestProgramID(t *testing.T) {
	generated, err := programID("")
	require.NoError(t, err)
	assert.Len(t, generated, ed25519.PublicKeySize)

	parsed, err := programID(base58.Encode(generated))
	require.NoError(t, err)
	assert.EqualValues(t, generated, parsed)

	_, err = programID("abc")
	assert.Error(t, err)
	_, err = programID("0OIl")
	assert.Error(t, err)
}

func TestRocket_Localnet(t *testing.T) {
	dir := t.TempDir()

	_, faucetKey, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	keypairPath := filepath.Join(dir, "faucet.key")
	require.NoError(t, os.WriteFile(keypairPath, []byte(base58.Encode(faucetKey)), 0600))

	raw := app.Config{
		"ledger_path":    filepath.Join(dir, "ledger.db"),
		"faucet_keypair": keypairPath,
	}

	r := &rocket{}
	require.NoError(t, r.Init(raw, nil))

	client, ok := r.env.Client.(*localnet.Client)
	require.True(t, ok)
	assert.EqualValues(t, faucetKey.Public(), client.Faucet())

	require.NoError(t, r.Run(context.Background()))

	balance, err := client.GetBalance(client.Faucet())
	require.NoError(t, err)
	assert.Less(t, balance, uint64(localnet.DefaultFaucetLamports))

	r.Stop()
	r.Stop()

	// The ledger survives the process, so a second run continues from the
	// faucet's remaining balance.
	r = &rocket{}
	require.NoError(t, r.Init(raw, nil))
	defer r.Stop()

	client = r.env.Client.(*localnet.Client)
	reopened, err := client.GetBalance(client.Faucet())
	require.NoError(t, err)
	assert.Equal(t, balance, reopened)
}

func TestRocket_InvalidConfig(t *testing.T) {
	r := &rocket{}
	assert.Error(t, r.Init(app.Config{"faucet_keypair": filepath.Join(t.TempDir(), "missing")}, nil))
	assert.Error(t, r.Init(app.Config{"vault_program_id": "invalid"}, nil))
}
