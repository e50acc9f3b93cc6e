package ledger

import (
	"context"
	"crypto/ed25519"
)

type Store interface {
	// Get returns the account stored at the address.
	//
	// Returns ErrAccountNotFound if the account has never been written or has
	// been closed.
	Get(ctx context.Context, address ed25519.PublicKey) (*Account, error)

	// Commit atomically writes the updated accounts and removes the closed
	// addresses as of the provided slot. Either every change is applied or none
	// are.
	Commit(ctx context.Context, slot uint64, updated []*Account, closed []ed25519.PublicKey) error

	// Count returns the number of live accounts.
	Count(ctx context.Context) (uint64, error)

	// GetLatestSlot returns the slot of the most recent commit, or 0.
	GetLatestSlot(ctx context.Context) (uint64, error)
}
