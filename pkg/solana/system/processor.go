package system

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime"
)

// Processor executes system program instructions.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/runtime/src/system_instruction_processor.rs
type Processor struct {
	log *logrus.Entry
}

func NewProcessor() *Processor {
	return &Processor{
		log: logrus.StandardLogger().WithField("type", "solana/system/processor"),
	}
}

func (p *Processor) Process(ctx *runtime.InvokeContext, accounts []*runtime.AccountInfo, data []byte) error {
	if len(data) < 4 {
		return runtime.ErrInvalidInstructionData
	}

	command := binary.LittleEndian.Uint32(data)
	switch command {
	case commandCreateAccount:
		if len(data) != createAccountDataSize {
			return runtime.ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return runtime.ErrMissingAccount
		}

		lamports := binary.LittleEndian.Uint64(data[4:])
		size := binary.LittleEndian.Uint64(data[4+8:])
		owner := ed25519.PublicKey(data[4+2*8:])

		ctx.Log("Create: %s", base58.Encode(accounts[1].Address))
		return p.createAccount(ctx, accounts[0], accounts[1], accounts[1].IsSigner, lamports, size, owner)

	case commandCreateAccountWithSeed:
		args, err := decodeCreateAccountWithSeed(data)
		if err != nil {
			return errors.Wrap(runtime.ErrInvalidInstructionData, err.Error())
		}
		if len(accounts) < 2 {
			return runtime.ErrMissingAccount
		}

		expected, err := solana.CreateWithSeed(args.base, args.seed, args.owner)
		if err != nil {
			return err
		}
		if !bytes.Equal(expected, accounts[1].Address) {
			ctx.Log("Create: address %s does not match derived address %s", base58.Encode(accounts[1].Address), base58.Encode(expected))
			return runtime.ErrAddressWithSeedMismatch
		}

		ctx.Log("Create: %s with seed %q", base58.Encode(accounts[1].Address), args.seed)
		return p.createAccount(ctx, accounts[0], accounts[1], isSigner(accounts, args.base), args.lamports, args.size, args.owner)

	case commandAssign:
		if len(data) != 4+ed25519.PublicKeySize {
			return runtime.ErrInvalidInstructionData
		}
		if len(accounts) < 1 {
			return runtime.ErrMissingAccount
		}

		return p.assign(ctx, accounts[0], accounts[0].IsSigner, ed25519.PublicKey(data[4:]))

	case commandTransfer:
		if len(data) != 4+8 {
			return runtime.ErrInvalidInstructionData
		}
		if len(accounts) < 2 {
			return runtime.ErrMissingAccount
		}

		return p.transfer(ctx, accounts[0], accounts[1], binary.LittleEndian.Uint64(data[4:]))

	case commandAllocate:
		if len(data) != 4+8 {
			return runtime.ErrInvalidInstructionData
		}
		if len(accounts) < 1 {
			return runtime.ErrMissingAccount
		}

		return p.allocate(ctx, accounts[0], accounts[0].IsSigner, binary.LittleEndian.Uint64(data[4:]))

	default:
		p.log.WithField("command", command).Debug("unsupported system instruction")
		return errors.Wrapf(runtime.ErrInvalidInstructionData, "unsupported command %d", command)
	}
}

func (p *Processor) createAccount(ctx *runtime.InvokeContext, from, to *runtime.AccountInfo, authorized bool, lamports, size uint64, owner ed25519.PublicKey) error {
	if to.Lamports > 0 {
		ctx.Log("Create Account: account %s already in use", base58.Encode(to.Address))
		return runtime.ErrAccountAlreadyInUse
	}

	if !ctx.Rent().IsExempt(lamports, size) {
		ctx.Log("Create Account: %d lamports is below the rent exempt minimum of %d", lamports, ctx.Rent().MinimumBalance(size))
		return runtime.ErrAccountNotRentExempt
	}

	if err := p.allocate(ctx, to, authorized, size); err != nil {
		return err
	}
	if err := p.assign(ctx, to, authorized, owner); err != nil {
		return err
	}
	return p.transfer(ctx, from, to, lamports)
}

func (p *Processor) allocate(ctx *runtime.InvokeContext, account *runtime.AccountInfo, authorized bool, size uint64) error {
	if !authorized {
		ctx.Log("Allocate: 'to' account %s must sign", base58.Encode(account.Address))
		return runtime.ErrMissingRequiredSignature
	}

	if len(account.Data) > 0 || !bytes.Equal(account.Owner, ctx.ProgramID()) {
		ctx.Log("Allocate: account %s already in use", base58.Encode(account.Address))
		return runtime.ErrAccountAlreadyInUse
	}

	if size > runtime.MaxPermittedDataLength {
		ctx.Log("Allocate: requested %d, max allowed %d", size, runtime.MaxPermittedDataLength)
		return runtime.ErrInvalidAccountDataRealloc
	}

	account.Data = make([]byte, size)
	return nil
}

func (p *Processor) assign(ctx *runtime.InvokeContext, account *runtime.AccountInfo, authorized bool, owner ed25519.PublicKey) error {
	if bytes.Equal(account.Owner, owner) {
		return nil
	}

	if !authorized {
		ctx.Log("Assign: account %s must sign", base58.Encode(account.Address))
		return runtime.ErrMissingRequiredSignature
	}

	if !bytes.Equal(account.Owner, ctx.ProgramID()) {
		return runtime.ErrInvalidAccountOwner
	}

	account.Owner = append(ed25519.PublicKey(nil), owner...)
	return nil
}

func (p *Processor) transfer(ctx *runtime.InvokeContext, from, to *runtime.AccountInfo, lamports uint64) error {
	if !from.IsSigner {
		ctx.Log("Transfer: `from` account %s must sign", base58.Encode(from.Address))
		return runtime.ErrMissingRequiredSignature
	}

	if len(from.Data) > 0 {
		ctx.Log("Transfer: `from` must not carry data")
		return runtime.ErrInvalidAccountRole
	}

	if lamports > from.Lamports {
		ctx.Log("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return runtime.ErrInsufficientFunds
	}

	if to.Lamports+lamports < to.Lamports {
		return runtime.ErrArithmeticOverflow
	}

	from.Lamports -= lamports
	to.Lamports += lamports
	return nil
}

func isSigner(accounts []*runtime.AccountInfo, address ed25519.PublicKey) bool {
	for _, account := range accounts {
		if account.IsSigner && bytes.Equal(account.Address, address) {
			return true
		}
	}
	return false
}
