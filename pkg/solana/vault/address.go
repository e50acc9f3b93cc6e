package vault

import (
	"crypto/ed25519"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
)

var (
	vaultPrefix = []byte("vault")
)

type GetVaultAddressArgs struct {
	Program ed25519.PublicKey
	Payer   ed25519.PublicKey
}

// GetVaultAddress returns the payer's vault address and the bump seed that
// must accompany its creation.
func GetVaultAddress(args *GetVaultAddressArgs) (ed25519.PublicKey, uint8, error) {
	return solana.FindProgramAddressAndBump(
		args.Program,
		vaultPrefix,
		args.Payer,
	)
}

// VaultSeeds returns the full seed list, including the bump, of a payer's vault.
func VaultSeeds(payer ed25519.PublicKey, bump uint8) [][]byte {
	return [][]byte{
		vaultPrefix,
		payer,
		{bump},
	}
}
