package vault

import (
	"crypto/ed25519"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
)

type CreateVaultInstructionAccounts struct {
	Payer         ed25519.PublicKey
	Vault         ed25519.PublicKey
	SystemProgram ed25519.PublicKey
}

type CreateVaultInstructionArgs struct {
	Bump uint8
}

// NewCreateVaultInstruction creates the payer's vault, funded by the payer.
//
// Accounts:
//  0. [WRITE, SIGNER] Payer
//  1. [WRITE] Vault
//  2. [] System program
//
// Data: the vault bump seed.
func NewCreateVaultInstruction(
	program ed25519.PublicKey,
	accounts *CreateVaultInstructionAccounts,
	args *CreateVaultInstructionArgs,
) solana.Instruction {
	return solana.NewInstruction(
		program,
		[]byte{args.Bump},
		solana.NewAccountMeta(accounts.Payer, true),
		solana.NewAccountMeta(accounts.Vault, false),
		solana.NewReadonlyAccountMeta(accounts.SystemProgram, false),
	)
}
