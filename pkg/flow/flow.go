// Package flow runs end-to-end account flows against a cluster: funding a fee
// payer, then creating (and closing) accounts derived from seeds or owned by
// programs.
package flow

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/metrics"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/closer"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/faucet"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/system"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/vault"
)

const (
	// FeePayerFunding is the amount airdropped to each flow's fee payer.
	FeePayerFunding = solana.LamportsPerSol

	// SeedAccountLamports funds accounts created with a seed.
	SeedAccountLamports = solana.LamportsPerSol / 10
)

// Environment is the cluster a flow runs against.
type Environment struct {
	Client     solana.Client
	Faucet     *faucet.Faucet
	Commitment solana.Commitment
}

const completedEventName = "AccountFlowCompleted"

var log = logrus.StandardLogger().WithField("type", "flow")

type SeedAccountResult struct {
	Signature solana.Signature
	FeePayer  ed25519.PublicKey
	Base      ed25519.PublicKey
	Address   ed25519.PublicKey
}

// CreateAccountWithSeed creates a system owned account at the address derived
// from a fresh base key and the seed.
func CreateAccountWithSeed(ctx context.Context, env *Environment, seed string) (*SeedAccountResult, error) {
	feePayer, err := newFundedKey(ctx, env)
	if err != nil {
		return nil, err
	}
	base, err := newKey()
	if err != nil {
		return nil, err
	}

	payer := feePayer.Public().(ed25519.PublicKey)
	basePub := base.Public().(ed25519.PublicKey)

	address, err := solana.CreateWithSeed(basePub, seed, system.SystemAccount)
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive address")
	}

	sig, err := submit(
		ctx,
		env,
		[]ed25519.PrivateKey{feePayer, base},
		system.CreateAccountWithSeed(payer, address, basePub, seed, system.SystemAccount, SeedAccountLamports, 0),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create account with seed")
	}

	completed(ctx, "CreateAccountWithSeed", "created account with seed", logrus.Fields{
		"signature": sig.String(),
		"address":   base58.Encode(address),
	})

	return &SeedAccountResult{
		Signature: sig,
		FeePayer:  payer,
		Base:      basePub,
		Address:   address,
	}, nil
}

type CloseAccountResult struct {
	CreateSignature solana.Signature
	CloseSignature  solana.Signature
	FeePayer        ed25519.PublicKey
	Address         ed25519.PublicKey
}

// CreateAndCloseAccount creates a rent exempt account owned by the closer
// program, then closes it back into the fee payer.
func CreateAndCloseAccount(ctx context.Context, env *Environment, program ed25519.PublicKey) (*CloseAccountResult, error) {
	feePayer, err := newFundedKey(ctx, env)
	if err != nil {
		return nil, err
	}
	account, err := newKey()
	if err != nil {
		return nil, err
	}

	payer := feePayer.Public().(ed25519.PublicKey)
	address := account.Public().(ed25519.PublicKey)

	lamports, err := env.Client.GetMinimumBalanceForRentExemption(0)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get rent exempt minimum")
	}

	createSig, err := submit(
		ctx,
		env,
		[]ed25519.PrivateKey{feePayer, account},
		system.CreateAccount(payer, address, program, lamports, 0),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create account")
	}

	closeSig, err := submit(
		ctx,
		env,
		[]ed25519.PrivateKey{feePayer},
		closer.NewCloseInstruction(program, address, payer),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to close account")
	}

	completed(ctx, "CreateAndCloseAccount", "created and closed account", logrus.Fields{
		"create":  createSig.String(),
		"close":   closeSig.String(),
		"address": base58.Encode(address),
	})

	return &CloseAccountResult{
		CreateSignature: createSig,
		CloseSignature:  closeSig,
		FeePayer:        payer,
		Address:         address,
	}, nil
}

type VaultResult struct {
	Signature solana.Signature
	FeePayer  ed25519.PublicKey
	Vault     ed25519.PublicKey
	Bump      uint8
}

// CreateVault creates the fee payer's vault through the vault program.
func CreateVault(ctx context.Context, env *Environment, program ed25519.PublicKey) (*VaultResult, error) {
	feePayer, err := newFundedKey(ctx, env)
	if err != nil {
		return nil, err
	}
	payer := feePayer.Public().(ed25519.PublicKey)

	address, bump, err := vault.GetVaultAddress(&vault.GetVaultAddressArgs{
		Program: program,
		Payer:   payer,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to derive vault address")
	}

	sig, err := submit(
		ctx,
		env,
		[]ed25519.PrivateKey{feePayer},
		vault.NewCreateVaultInstruction(
			program,
			&vault.CreateVaultInstructionAccounts{
				Payer:         payer,
				Vault:         address,
				SystemProgram: system.SystemAccount,
			},
			&vault.CreateVaultInstructionArgs{
				Bump: bump,
			},
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create vault")
	}

	completed(ctx, "CreateVault", "created vault", logrus.Fields{
		"signature": sig.String(),
		"vault":     base58.Encode(address),
		"bump":      bump,
	})

	return &VaultResult{
		Signature: sig,
		FeePayer:  payer,
		Vault:     address,
		Bump:      bump,
	}, nil
}

func newKey() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate key")
	}
	return key, nil
}

func newFundedKey(ctx context.Context, env *Environment) (ed25519.PrivateKey, error) {
	key, err := newKey()
	if err != nil {
		return nil, err
	}

	if _, err := env.Faucet.Fund(ctx, key.Public().(ed25519.PublicKey), FeePayerFunding, env.Commitment); err != nil {
		return nil, errors.Wrap(err, "failed to fund fee payer")
	}

	return key, nil
}

// submit signs the instructions with the first signer as fee payer, then
// sends them and waits for the environment's commitment.
func submit(ctx context.Context, env *Environment, signers []ed25519.PrivateKey, instructions ...solana.Instruction) (solana.Signature, error) {
	blockhash, err := env.Client.GetLatestBlockhash()
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to get latest blockhash")
	}

	txn := solana.NewTransaction(signers[0].Public().(ed25519.PublicKey), instructions...)
	txn.SetBlockhash(blockhash)
	if err := txn.Sign(signers...); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to sign transaction")
	}

	return solana.SendAndConfirmTransaction(ctx, env.Client, txn, env.Commitment)
}

func completed(ctx context.Context, method, msg string, fields logrus.Fields) {
	log.WithField("method", method).WithFields(fields).Info(msg)

	event := map[string]interface{}{"flow": method}
	for k, v := range fields {
		event[k] = v
	}
	metrics.RecordEvent(ctx, completedEventName, event)
}
