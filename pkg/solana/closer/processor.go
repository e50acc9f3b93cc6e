package closer

import (
	"bytes"

	"github.com/mr-tron/base58/base58"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime"
)

// Processor closes accounts owned by the program it is registered under.
type Processor struct {
	log *logrus.Entry
}

func NewProcessor() *Processor {
	return &Processor{
		log: logrus.StandardLogger().WithField("type", "solana/closer/processor"),
	}
}

func (p *Processor) Process(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	if len(accounts) < 2 {
		return runtime.ErrMissingAccount
	}
	if len(accounts) > 2 {
		ctx.Log("expected 2 accounts, got %d", len(accounts))
		return runtime.ErrInvalidAccountRole
	}
	if len(data) > 0 {
		return runtime.ErrInvalidInstructionData
	}

	account, destination := accounts[0], accounts[1]

	if !account.IsWritable || !destination.IsWritable {
		ctx.Log("account and destination must be writable")
		return runtime.ErrInvalidAccountRole
	}

	if bytes.Equal(account.Address, destination.Address) {
		ctx.Log("cannot close %s into itself", base58.Encode(account.Address))
		return runtime.ErrConflictingAccountRoles
	}

	if !bytes.Equal(account.Owner, ctx.ProgramID()) {
		ctx.Log("account %s is owned by %s", base58.Encode(account.Address), base58.Encode(account.Owner))
		return runtime.ErrInvalidAccountOwner
	}

	if destination.Lamports+account.Lamports < destination.Lamports {
		return runtime.ErrArithmeticOverflow
	}

	ctx.Log("closing %s into %s", base58.Encode(account.Address), base58.Encode(destination.Address))
	p.log.WithFields(logrus.Fields{
		"method":   "Process",
		"account":  base58.Encode(account.Address),
		"lamports": account.Lamports,
	}).Debug("closing account")

	destination.Lamports += account.Lamports
	account.Lamports = 0
	account.Data = nil

	return nil
}
