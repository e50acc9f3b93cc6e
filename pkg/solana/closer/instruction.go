package closer

import (
	"crypto/ed25519"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
)

// NewCloseInstruction moves every lamport held by account into destination,
// leaving account to be purged once the transaction commits.
//
// Accounts:
//  0. [WRITE] Account to close, owned by the program
//  1. [WRITE] Destination
//
// The payload is empty.
func NewCloseInstruction(program, account, destination ed25519.PublicKey) solana.Instruction {
	return solana.NewInstruction(
		program,
		nil,
		solana.NewAccountMeta(account, false),
		solana.NewAccountMeta(destination, false),
	)
}
