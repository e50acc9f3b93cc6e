package ledger

import (
	"crypto/ed25519"

	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidAccount  = errors.New("invalid account")
)

// Account is the persisted state of a single address.
type Account struct {
	Address    ed25519.PublicKey
	Owner      ed25519.PublicKey
	Lamports   uint64
	Data       []byte
	Executable bool

	// Slot is the slot at which the account was last written.
	Slot uint64
}

func (a *Account) Validate() error {
	if len(a.Address) != ed25519.PublicKeySize {
		return errors.Wrap(ErrInvalidAccount, "address is required")
	}
	if len(a.Owner) != ed25519.PublicKeySize {
		return errors.Wrap(ErrInvalidAccount, "owner is required")
	}
	return nil
}

func (a *Account) Clone() Account {
	var cloned Account
	a.CopyTo(&cloned)
	return cloned
}

func (a *Account) CopyTo(dst *Account) {
	dst.Address = append(ed25519.PublicKey(nil), a.Address...)
	dst.Owner = append(ed25519.PublicKey(nil), a.Owner...)
	dst.Lamports = a.Lamports
	dst.Data = append([]byte(nil), a.Data...)
	dst.Executable = a.Executable
	dst.Slot = a.Slot
}
