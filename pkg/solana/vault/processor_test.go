package vault

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger/memory"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/system"
	"github.com/BillArmsty/rusty-rocket/pkg/testutil"
)

const payerBalance = 10 * solana.LamportsPerSol

type testEnv struct {
	ctx     context.Context
	bank    *runtime.Bank
	program ed25519.PublicKey
	payer   ed25519.PublicKey
}

func setup(t *testing.T, configProvider ConfigProvider) *testEnv {
	ctx := context.Background()

	bank, err := runtime.NewBank(ctx, memory.New(), system.SystemAccount, runtime.DefaultRent())
	require.NoError(t, err)

	keys := testutil.GenerateSolanaKeys(t, 2)
	program, payer := keys[0], keys[1]

	bank.RegisterProgram(system.SystemAccount, system.NewProcessor())
	bank.RegisterProgram(program, NewProcessor(system.SystemAccount, configProvider))

	require.NoError(t, bank.Genesis(ctx, &ledger.Account{
		Address:  payer,
		Owner:    system.SystemAccount,
		Lamports: payerBalance,
	}))

	return &testEnv{
		ctx:     ctx,
		bank:    bank,
		program: program,
		payer:   payer,
	}
}

func (e *testEnv) vault(t *testing.T) (ed25519.PublicKey, uint8) {
	address, bump, err := GetVaultAddress(&GetVaultAddressArgs{
		Program: e.program,
		Payer:   e.payer,
	})
	require.NoError(t, err)
	return address, bump
}

func (e *testEnv) createInstruction(vault ed25519.PublicKey, bump uint8) solana.Instruction {
	return NewCreateVaultInstruction(
		e.program,
		&CreateVaultInstructionAccounts{
			Payer:         e.payer,
			Vault:         vault,
			SystemProgram: system.SystemAccount,
		},
		&CreateVaultInstructionArgs{
			Bump: bump,
		},
	)
}

func TestGetVaultAddress(t *testing.T) {
	env := setup(t, WithEnvConfigs())

	address, bump := env.vault(t)
	assert.False(t, solana.IsOnCurve(address))

	expected, err := solana.CreateProgramAddress(env.program, VaultSeeds(env.payer, bump)...)
	require.NoError(t, err)
	assert.EqualValues(t, expected, address)

	again, againBump := env.vault(t)
	assert.EqualValues(t, address, again)
	assert.Equal(t, bump, againBump)
}

func TestNewCreateVaultInstruction(t *testing.T) {
	env := setup(t, WithEnvConfigs())
	address, bump := env.vault(t)

	ix := env.createInstruction(address, bump)
	assert.EqualValues(t, env.program, ix.Program)
	assert.Equal(t, []byte{bump}, ix.Data)

	require.Len(t, ix.Accounts, 3)
	assert.EqualValues(t, env.payer, ix.Accounts[0].PublicKey)
	assert.True(t, ix.Accounts[0].IsSigner)
	assert.True(t, ix.Accounts[0].IsWritable)
	assert.EqualValues(t, address, ix.Accounts[1].PublicKey)
	assert.False(t, ix.Accounts[1].IsSigner)
	assert.True(t, ix.Accounts[1].IsWritable)
	assert.EqualValues(t, system.SystemAccount, ix.Accounts[2].PublicKey)
	assert.False(t, ix.Accounts[2].IsSigner)
	assert.False(t, ix.Accounts[2].IsWritable)
}

func TestProcessor_CreateVault(t *testing.T) {
	env := setup(t, WithEnvConfigs())
	address, bump := env.vault(t)

	result, err := env.bank.ProcessInstructions(env.ctx, env.createInstruction(address, bump))
	require.NoError(t, err)
	require.NoError(t, result.Err)

	vault, err := env.bank.GetAccount(env.ctx, address)
	require.NoError(t, err)
	assert.EqualValues(t, env.program, vault.Owner)
	assert.Equal(t, make([]byte, DefaultSize), vault.Data)
	assert.EqualValues(t, DefaultLamports, vault.Lamports)
	assert.False(t, vault.Executable)

	payer, err := env.bank.GetAccount(env.ctx, env.payer)
	require.NoError(t, err)
	assert.EqualValues(t, payerBalance-DefaultLamports, payer.Lamports)

	// The nested create runs one level below the vault program.
	assert.Contains(t, result.Logs, "Program 11111111111111111111111111111111 invoke [2]")

	// Creating the same vault again must fail, since the vault is no longer
	// owned by the system program.
	result, err = env.bank.ProcessInstructions(env.ctx, env.createInstruction(address, bump))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, runtime.ErrInvalidAccountOwner)

	payer, err = env.bank.GetAccount(env.ctx, env.payer)
	require.NoError(t, err)
	assert.EqualValues(t, payerBalance-DefaultLamports, payer.Lamports)
}

func TestProcessor_SeedMismatch(t *testing.T) {
	env := setup(t, WithEnvConfigs())
	address, bump := env.vault(t)

	result, err := env.bank.ProcessInstructions(env.ctx, env.createInstruction(address, bump^1))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, runtime.ErrSeedMismatch)

	_, err = env.bank.GetAccount(env.ctx, address)
	assert.Equal(t, ledger.ErrAccountNotFound, err)
}

func TestProcessor_Preconditions(t *testing.T) {
	env := setup(t, WithEnvConfigs())
	address, bump := env.vault(t)

	others := testutil.GenerateSolanaKeys(t, 2)
	owned, notSystem := others[0], others[1]
	require.NoError(t, env.bank.Genesis(env.ctx, &ledger.Account{
		Address:  owned,
		Owner:    env.program,
		Lamports: 1_000_000,
	}))

	for _, tc := range []struct {
		name     string
		accounts []solana.AccountMeta
		data     []byte
		expected error
	}{
		{
			name: "missing accounts",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, true),
				solana.NewAccountMeta(address, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrMissingAccount,
		},
		{
			name: "payer not signer",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, false),
				solana.NewAccountMeta(address, false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrInvalidAccountRole,
		},
		{
			name: "payer readonly",
			accounts: []solana.AccountMeta{
				solana.NewReadonlyAccountMeta(env.payer, true),
				solana.NewAccountMeta(address, false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrInvalidAccountRole,
		},
		{
			name: "vault readonly",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, true),
				solana.NewReadonlyAccountMeta(address, false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrInvalidAccountRole,
		},
		{
			name: "vault not system owned",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, true),
				solana.NewAccountMeta(owned, false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrInvalidAccountOwner,
		},
		{
			name: "wrong system program",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, true),
				solana.NewAccountMeta(address, false),
				solana.NewReadonlyAccountMeta(notSystem, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrInvalidProgramReference,
		},
		{
			name: "empty payload",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, true),
				solana.NewAccountMeta(address, false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
			},
			expected: runtime.ErrInvalidInstructionData,
		},
		{
			name: "substituted vault",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, true),
				solana.NewAccountMeta(notSystem, false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrSeedMismatch,
		},
		{
			name: "conflicting roles",
			accounts: []solana.AccountMeta{
				solana.NewAccountMeta(env.payer, true),
				solana.NewAccountMeta(address, false),
				solana.NewReadonlyAccountMeta(system.SystemAccount, false),
				solana.NewReadonlyAccountMeta(address, false),
			},
			data:     []byte{bump},
			expected: runtime.ErrConflictingAccountRoles,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ix := solana.NewInstruction(env.program, tc.data, tc.accounts...)

			result, err := env.bank.ProcessInstructions(env.ctx, ix)
			require.NoError(t, err)
			testutil.AssertInstructionError(t, result.Err, 0, tc.expected)

			payer, err := env.bank.GetAccount(env.ctx, env.payer)
			require.NoError(t, err)
			assert.EqualValues(t, payerBalance, payer.Lamports)
		})
	}
}

func TestProcessor_ConfigOverrides(t *testing.T) {
	env := setup(t, withManualTestOverrides(&testOverrides{
		lamports: 2 * DefaultLamports,
		size:     64,
	}))
	address, bump := env.vault(t)

	result, err := env.bank.ProcessInstructions(env.ctx, env.createInstruction(address, bump))
	require.NoError(t, err)
	require.NoError(t, result.Err)

	vault, err := env.bank.GetAccount(env.ctx, address)
	require.NoError(t, err)
	assert.Len(t, vault.Data, 64)
	assert.EqualValues(t, 2*DefaultLamports, vault.Lamports)
}

func TestProcessor_InsufficientFunds(t *testing.T) {
	env := setup(t, withManualTestOverrides(&testOverrides{
		lamports: 2 * payerBalance,
		size:     DefaultSize,
	}))
	address, bump := env.vault(t)

	result, err := env.bank.ProcessInstructions(env.ctx, env.createInstruction(address, bump))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, runtime.ErrInsufficientFunds)
}
