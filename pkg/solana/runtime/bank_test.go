package runtime

import (
	"context"
	"crypto/ed25519"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger/memory"
	"github.com/BillArmsty/rusty-rocket/pkg/testutil"
)

type testEnv struct {
	ctx           context.Context
	bank          *Bank
	systemProgram ed25519.PublicKey
}

// setup returns a bank with a minimal transfer program installed as the
// system program. The transfer moves data[0] lamports from the first account
// to the second, and requires the first to sign.
func setup(t *testing.T) *testEnv {
	ctx := context.Background()
	systemProgram := testutil.GenerateSolanaKeys(t, 1)[0]

	bank, err := NewBank(ctx, memory.New(), systemProgram, DefaultRent())
	require.NoError(t, err)

	bank.RegisterProgram(systemProgram, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error {
		if len(accounts) < 2 {
			return ErrMissingAccount
		}
		if len(data) != 1 {
			return ErrInvalidInstructionData
		}
		if !accounts[0].IsSigner {
			return ErrMissingRequiredSignature
		}

		amount := uint64(data[0])
		if accounts[0].Lamports < amount {
			return ErrInsufficientFunds
		}

		accounts[0].Lamports -= amount
		accounts[1].Lamports += amount
		ctx.Log("transferred %d", amount)
		return nil
	}))

	return &testEnv{
		ctx:           ctx,
		bank:          bank,
		systemProgram: systemProgram,
	}
}

func (e *testEnv) fund(t *testing.T, owner ed25519.PublicKey, lamports uint64, data []byte) ed25519.PublicKey {
	address := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, e.bank.Genesis(e.ctx, &ledger.Account{
		Address:  address,
		Owner:    owner,
		Lamports: lamports,
		Data:     data,
	}))
	return address
}

func (e *testEnv) account(t *testing.T, address ed25519.PublicKey) *ledger.Account {
	account, err := e.bank.GetAccount(e.ctx, address)
	require.NoError(t, err)
	return account
}

func TestBank_VerifyAccountChanges(t *testing.T) {
	for _, tc := range []struct {
		name string

		// byOwner runs the mutation as the owner of the first account,
		// otherwise as the owner of the second.
		byOwner  bool
		readonly bool
		mutate   func(accounts []*AccountInfo)
		expected error
	}{
		{
			name: "external lamport spend",
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Lamports -= 10
				accounts[1].Lamports += 10
			},
			expected: ErrExternalAccountLamportSpend,
		},
		{
			name: "external credit",
			mutate: func(accounts []*AccountInfo) {
				accounts[1].Lamports -= 10
				accounts[0].Lamports += 10
			},
		},
		{
			name:     "readonly lamport change",
			byOwner:  true,
			readonly: true,
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Lamports -= 10
				accounts[1].Lamports += 10
			},
			expected: ErrReadonlyLamportChange,
		},
		{
			name:     "readonly data modified",
			byOwner:  true,
			readonly: true,
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Data[0] = 9
			},
			expected: ErrReadonlyDataModified,
		},
		{
			name: "external data modified",
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Data[0] = 9
			},
			expected: ErrExternalAccountDataModified,
		},
		{
			name: "external owner change",
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Owner = accounts[1].Owner
			},
			expected: ErrModifiedProgramID,
		},
		{
			name:    "owner change with data",
			byOwner: true,
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Owner = accounts[1].Owner
			},
			expected: ErrModifiedProgramID,
		},
		{
			name:    "owner change with zeroed data",
			byOwner: true,
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Data = make([]byte, len(accounts[0].Data))
				accounts[0].Owner = accounts[1].Owner
			},
		},
		{
			name:    "unbalanced",
			byOwner: true,
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Lamports += 1
			},
			expected: ErrUnbalancedInstruction,
		},
		{
			name:    "executable modified",
			byOwner: true,
			mutate: func(accounts []*AccountInfo) {
				accounts[0].Executable = true
			},
			expected: ErrExecutableModified,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := setup(t)
			programs := testutil.GenerateSolanaKeys(t, 2)

			for _, program := range programs {
				env.bank.RegisterProgram(program, ProgramFunc(func(_ *InvokeContext, accounts []*AccountInfo, _ []byte) error {
					tc.mutate(accounts)
					return nil
				}))
			}

			first := env.fund(t, programs[0], 1000, []byte{1, 2, 3})
			second := env.fund(t, programs[1], 1000, nil)

			program := programs[1]
			if tc.byOwner {
				program = programs[0]
			}

			firstMeta := solana.NewAccountMeta(first, false)
			if tc.readonly {
				firstMeta = solana.NewReadonlyAccountMeta(first, false)
			}

			result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(
				program,
				nil,
				firstMeta,
				solana.NewAccountMeta(second, false),
			))
			require.NoError(t, err)

			if tc.expected == nil {
				require.NoError(t, result.Err)
				return
			}

			testutil.AssertInstructionError(t, result.Err, 0, tc.expected)

			actual := env.account(t, first)
			assert.EqualValues(t, 1000, actual.Lamports)
			assert.Equal(t, []byte{1, 2, 3}, actual.Data)
			assert.EqualValues(t, programs[0], actual.Owner)
			assert.False(t, actual.Executable)
		})
	}
}

func TestBank_InvokeSigned(t *testing.T) {
	env := setup(t)
	program := testutil.GenerateSolanaKeys(t, 1)[0]

	pda, bump, err := solana.FindProgramAddressAndBump(program, []byte("vault"))
	require.NoError(t, err)
	other, otherBump, err := solana.FindProgramAddressAndBump(program, []byte("other"))
	require.NoError(t, err)
	require.NotEqual(t, pda, other)

	require.NoError(t, env.bank.Genesis(env.ctx, &ledger.Account{
		Address:  pda,
		Owner:    env.systemProgram,
		Lamports: 1000,
	}))
	destination := env.fund(t, env.systemProgram, 1, nil)

	var seeds [][][]byte
	var destinationWritable bool
	env.bank.RegisterProgram(program, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountInfo, _ []byte) error {
		ctx.Log("depth %d", ctx.Depth())

		return ctx.InvokeSigned(
			solana.NewInstruction(
				env.systemProgram,
				[]byte{100},
				solana.NewAccountMeta(pda, true),
				solana.AccountMeta{PublicKey: destination, IsWritable: destinationWritable},
			),
			seeds...,
		)
	}))

	execute := func(destinationWritableInCaller bool) *TransactionResult {
		destinationMeta := solana.NewReadonlyAccountMeta(destination, false)
		if destinationWritableInCaller {
			destinationMeta = solana.NewAccountMeta(destination, false)
		}

		result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(
			program,
			nil,
			solana.NewAccountMeta(pda, false),
			destinationMeta,
			solana.NewReadonlyAccountMeta(env.systemProgram, false),
		))
		require.NoError(t, err)
		return result
	}

	// No seeds presented for the derived address.
	destinationWritable = true
	testutil.AssertInstructionError(t, execute(true).Err, 0, ErrPrivilegeEscalation)

	// Seeds for a different derived address.
	seeds = [][][]byte{{[]byte("other"), {otherBump}}}
	testutil.AssertInstructionError(t, execute(true).Err, 0, ErrPrivilegeEscalation)

	// Seeds that can't derive an address.
	seeds = [][][]byte{{make([]byte, solana.MaxSeedLength+1)}}
	result := execute(true)
	testutil.AssertInstructionError(t, result.Err, 0, solana.ErrInvalidSeeds)
	assert.Equal(t, solana.InstructionErrorMaxSeedLengthExceeded, result.Err.(*solana.TransactionError).InstructionError().ErrorKey())

	// Writable escalation of an account the caller only holds as readonly.
	seeds = [][][]byte{{[]byte("vault"), {bump}}}
	testutil.AssertInstructionError(t, execute(false).Err, 0, ErrPrivilegeEscalation)

	assert.EqualValues(t, 1000, env.account(t, pda).Lamports)
	assert.EqualValues(t, 1, env.account(t, destination).Lamports)

	result = execute(true)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 900, env.account(t, pda).Lamports)
	assert.EqualValues(t, 101, env.account(t, destination).Lamports)

	var invoked []string
	for _, line := range result.Logs {
		if strings.Contains(line, "invoke [") {
			invoked = append(invoked, line)
		}
	}
	require.Len(t, invoked, 2)
	assert.True(t, strings.HasSuffix(invoked[0], "invoke [1]"))
	assert.True(t, strings.HasSuffix(invoked[1], "invoke [2]"))
	assert.Contains(t, result.Logs, "Program log: depth 1")
	assert.Contains(t, result.Logs, "Program log: transferred 100")
}

func TestBank_InvokeMissingProgramAccount(t *testing.T) {
	env := setup(t)
	program := testutil.GenerateSolanaKeys(t, 1)[0]
	payer := env.fund(t, env.systemProgram, 1000, nil)
	destination := testutil.GenerateSolanaKeys(t, 1)[0]

	env.bank.RegisterProgram(program, ProgramFunc(func(ctx *InvokeContext, accounts []*AccountInfo, _ []byte) error {
		return ctx.Invoke(solana.NewInstruction(
			env.systemProgram,
			[]byte{1},
			solana.NewAccountMeta(payer, true),
			solana.NewAccountMeta(destination, false),
		))
	}))

	result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(
		program,
		nil,
		solana.NewAccountMeta(payer, true),
		solana.NewAccountMeta(destination, false),
	))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, ErrMissingAccount)
}

func TestBank_CallDepth(t *testing.T) {
	env := setup(t)
	program := testutil.GenerateSolanaKeys(t, 1)[0]

	var maxDepth int
	env.bank.RegisterProgram(program, ProgramFunc(func(ctx *InvokeContext, _ []*AccountInfo, _ []byte) error {
		if ctx.Depth() > maxDepth {
			maxDepth = ctx.Depth()
		}

		return ctx.Invoke(solana.NewInstruction(program, nil, solana.NewReadonlyAccountMeta(program, false)))
	}))

	result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(program, nil, solana.NewReadonlyAccountMeta(program, false)))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, ErrCallDepth)
	assert.Equal(t, MaxInvokeDepth, maxDepth)
}

func TestBank_Reentrancy(t *testing.T) {
	env := setup(t)
	programs := testutil.GenerateSolanaKeys(t, 2)

	accounts := []solana.AccountMeta{
		solana.NewReadonlyAccountMeta(programs[0], false),
		solana.NewReadonlyAccountMeta(programs[1], false),
	}

	env.bank.RegisterProgram(programs[0], ProgramFunc(func(ctx *InvokeContext, _ []*AccountInfo, _ []byte) error {
		return ctx.Invoke(solana.NewInstruction(programs[1], nil, accounts...))
	}))
	env.bank.RegisterProgram(programs[1], ProgramFunc(func(ctx *InvokeContext, _ []*AccountInfo, _ []byte) error {
		return ctx.Invoke(solana.NewInstruction(programs[0], nil, accounts...))
	}))

	result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(programs[0], nil, accounts...))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, ErrReentrancyNotAllowed)
}

func TestBank_IgnoredInvokeFailure(t *testing.T) {
	env := setup(t)
	programs := testutil.GenerateSolanaKeys(t, 2)

	env.bank.RegisterProgram(programs[0], ProgramFunc(func(ctx *InvokeContext, _ []*AccountInfo, _ []byte) error {
		err := ctx.Invoke(solana.NewInstruction(programs[1], nil))
		assert.ErrorIs(t, err, ErrInvalidInstructionData)

		err = ctx.Invoke(solana.NewInstruction(programs[1], []byte{1}))
		assert.ErrorIs(t, err, ErrInvalidInstructionData)

		return nil
	}))
	env.bank.RegisterProgram(programs[1], ProgramFunc(func(_ *InvokeContext, _ []*AccountInfo, data []byte) error {
		if len(data) == 0 {
			return ErrInvalidInstructionData
		}
		return nil
	}))

	result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(
		programs[0],
		nil,
		solana.NewReadonlyAccountMeta(programs[1], false),
	))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, ErrInvalidInstructionData)
}

func TestBank_DuplicateAccounts(t *testing.T) {
	env := setup(t)
	program := testutil.GenerateSolanaKeys(t, 1)[0]
	account := env.fund(t, program, 1000, nil)

	env.bank.RegisterProgram(program, ProgramFunc(func(_ *InvokeContext, accounts []*AccountInfo, _ []byte) error {
		require.Len(t, accounts, 2)
		assert.True(t, accounts[0] == accounts[1])

		accounts[0].Lamports -= 10
		accounts[1].Lamports += 10
		return nil
	}))

	result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(
		program,
		nil,
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(account, false),
	))
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.EqualValues(t, 1000, env.account(t, account).Lamports)

	result, err = env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(
		program,
		nil,
		solana.NewAccountMeta(account, false),
		solana.NewReadonlyAccountMeta(account, false),
	))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, ErrConflictingAccountRoles)
}

func TestBank_ProgramErrors(t *testing.T) {
	env := setup(t)
	programs := testutil.GenerateSolanaKeys(t, 2)

	env.bank.RegisterProgram(programs[0], ProgramFunc(func(_ *InvokeContext, _ []*AccountInfo, _ []byte) error {
		return errors.New("boom")
	}))
	env.bank.RegisterProgram(programs[1], ProgramFunc(func(_ *InvokeContext, _ []*AccountInfo, _ []byte) error {
		return solana.CustomError(7)
	}))

	result, err := env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(programs[0], nil))
	require.NoError(t, err)
	var txErr *solana.TransactionError
	require.True(t, errors.As(result.Err, &txErr))
	assert.Equal(t, solana.InstructionErrorGenericError, txErr.InstructionError().ErrorKey())
	assert.Contains(t, txErr.Error(), "boom")

	result, err = env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(programs[1], nil))
	require.NoError(t, err)
	require.True(t, errors.As(result.Err, &txErr))
	require.NotNil(t, txErr.InstructionError().CustomError())
	assert.EqualValues(t, 7, *txErr.InstructionError().CustomError())

	raw, err := txErr.JSONString()
	require.NoError(t, err)
	assert.JSONEq(t, `{"InstructionError": [0, {"Custom": 7}]}`, raw)

	result, err = env.bank.ProcessInstructions(env.ctx, solana.NewInstruction(testutil.GenerateSolanaKeys(t, 1)[0], nil))
	require.NoError(t, err)
	testutil.AssertInstructionError(t, result.Err, 0, ErrUnsupportedProgramID)
}

func TestBank_ProcessTransaction(t *testing.T) {
	env := setup(t)

	payer := testutil.GenerateSolanaKeypair(t)
	require.NoError(t, env.bank.Genesis(env.ctx, &ledger.Account{
		Address:  payer.Public().(ed25519.PublicKey),
		Owner:    env.systemProgram,
		Lamports: 1000,
	}))
	destination := testutil.GenerateSolanaKeys(t, 1)[0]

	newTxn := func() solana.Transaction {
		txn := solana.NewTransaction(
			payer.Public().(ed25519.PublicKey),
			solana.NewInstruction(
				env.systemProgram,
				[]byte{5},
				solana.NewAccountMeta(payer.Public().(ed25519.PublicKey), true),
				solana.NewAccountMeta(destination, false),
			),
		)
		txn.SetBlockhash(solana.Blockhash{1})
		require.NoError(t, txn.Sign(payer))
		return txn
	}

	startSlot := env.bank.Slot()

	txn := newTxn()
	txn.Signatures[0][0] ^= 0xff
	result, err := env.bank.ProcessTransaction(env.ctx, txn)
	require.NoError(t, err)
	var txErr *solana.TransactionError
	require.True(t, errors.As(result.Err, &txErr))
	assert.Equal(t, solana.TransactionErrorSignatureFailure, txErr.ErrorKey())
	_, err = env.bank.GetAccount(env.ctx, destination)
	assert.Equal(t, ledger.ErrAccountNotFound, err)

	txn = newTxn()
	result, err = env.bank.ProcessTransaction(env.ctx, txn)
	require.NoError(t, err)
	require.NoError(t, result.Err)
	assert.Equal(t, txn.Signatures[0], result.Signature)
	assert.Equal(t, startSlot+1, result.Slot)
	assert.Equal(t, startSlot+1, env.bank.Slot())

	assert.EqualValues(t, 995, env.account(t, payer.Public().(ed25519.PublicKey)).Lamports)
	assert.EqualValues(t, 5, env.account(t, destination).Lamports)

	// Program accounts are never persisted by reading them.
	_, err = env.bank.GetAccount(env.ctx, env.systemProgram)
	assert.Equal(t, ledger.ErrAccountNotFound, err)
}

func TestBank_Genesis(t *testing.T) {
	env := setup(t)
	owner := testutil.GenerateSolanaKeys(t, 1)[0]

	address := env.fund(t, owner, 1000, nil)
	require.NoError(t, env.bank.Genesis(env.ctx, &ledger.Account{
		Address:  address,
		Owner:    owner,
		Lamports: 5,
	}))
	assert.EqualValues(t, 1000, env.account(t, address).Lamports)
}
