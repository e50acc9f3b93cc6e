package runtime

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"math/bits"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
)

// MaxInvokeDepth is the deepest an instruction may be nested, counting the
// top level instruction as depth 1.
const MaxInvokeDepth = 4

// Program is a native program executed by the runtime.
//
// Process may freely mutate the provided accounts. Once it returns, the
// runtime verifies the changes were permitted before they become visible to
// the rest of the transaction.
type Program interface {
	Process(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error
}

// ProgramFunc adapts a function to a Program.
type ProgramFunc func(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error

func (f ProgramFunc) Process(ctx *InvokeContext, accounts []*AccountInfo, data []byte) error {
	return f(ctx, accounts, data)
}

// AccountInfo is an account as seen by a single instruction. Entries that
// reference the same address share the underlying account.
type AccountInfo struct {
	*ledger.Account

	IsSigner   bool
	IsWritable bool
}

// InvokeContext is the execution context of a single (possibly nested)
// instruction.
type InvokeContext struct {
	txn       *transactionContext
	parent    *InvokeContext
	programID ed25519.PublicKey
	depth     int

	unique []*AccountInfo
	pre    []ledger.Account
}

func (c *InvokeContext) Context() context.Context {
	return c.txn.ctx
}

// ProgramID is the address of the executing program.
func (c *InvokeContext) ProgramID() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), c.programID...)
}

// Depth is the nesting depth of the executing instruction, starting at 1.
func (c *InvokeContext) Depth() int {
	return c.depth
}

func (c *InvokeContext) Rent() Rent {
	return c.txn.bank.rent
}

func (c *InvokeContext) SystemProgram() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), c.txn.bank.systemProgram...)
}

// Log appends a program log line to the transaction's logs.
func (c *InvokeContext) Log(format string, args ...interface{}) {
	c.txn.log("Program log: " + fmt.Sprintf(format, args...))
}

// Invoke executes a nested instruction with the caller's privileges.
func (c *InvokeContext) Invoke(ix solana.Instruction) error {
	return c.InvokeSigned(ix)
}

// InvokeSigned executes a nested instruction, additionally treating every
// program address derived from the executing program and one of the seed
// sets as a signer.
//
// Every account referenced by the nested instruction, including the program
// itself, must have been provided to the caller. The nested instruction may
// not request writable or signer privileges the caller doesn't hold, except
// for signatures proven by seeds.
func (c *InvokeContext) InvokeSigned(ix solana.Instruction, signerSeeds ...[][]byte) error {
	if c.txn.aborted != nil {
		return c.txn.aborted
	}

	signers := make(map[string]struct{})
	for _, seeds := range signerSeeds {
		address, err := solana.CreateProgramAddress(c.programID, seeds...)
		if err != nil {
			return withErrorKey(err)
		}
		signers[string(address)] = struct{}{}
	}

	if c.lookup(ix.Program) == nil {
		return errors.Wrapf(ErrMissingAccount, "program %s not provided", base58.Encode(ix.Program))
	}

	for _, meta := range ix.Accounts {
		caller := c.lookup(meta.PublicKey)
		if caller == nil {
			return errors.Wrapf(ErrMissingAccount, "account %s not provided", base58.Encode(meta.PublicKey))
		}

		if meta.IsWritable && !caller.IsWritable {
			return errors.Wrapf(ErrPrivilegeEscalation, "%s writable privilege escalated", base58.Encode(meta.PublicKey))
		}

		if meta.IsSigner && !caller.IsSigner {
			if _, ok := signers[string(meta.PublicKey)]; !ok {
				return errors.Wrapf(ErrPrivilegeEscalation, "%s signer privilege escalated", base58.Encode(meta.PublicKey))
			}
		}
	}

	// The caller's changes so far must be valid before the callee observes
	// them. The callee verifies its own changes, after which they become the
	// caller's new baseline.
	if err := c.verify(); err != nil {
		return err
	}

	if err := c.txn.execute(c, ix); err != nil {
		c.txn.aborted = err
		return err
	}

	c.pre = snapshot(c.unique)
	return nil
}

func (c *InvokeContext) lookup(address ed25519.PublicKey) *AccountInfo {
	for _, info := range c.unique {
		if bytes.Equal(info.Address, address) {
			return info
		}
	}
	return nil
}

func (c *InvokeContext) onStack(program ed25519.PublicKey) bool {
	for frame := c; frame != nil; frame = frame.parent {
		if bytes.Equal(frame.programID, program) {
			return true
		}
	}
	return false
}

// verify checks every change made to the instruction's accounts since the
// last baseline against the account ownership rules.
func (c *InvokeContext) verify() error {
	var preTotal, postTotal, carry uint64
	for i, post := range c.unique {
		pre := &c.pre[i]

		if err := verifyAccount(c.programID, pre, post); err != nil {
			return errors.Wrapf(err, "account %s", base58.Encode(pre.Address))
		}

		preTotal, carry = bits.Add64(preTotal, pre.Lamports, 0)
		if carry != 0 {
			return ErrArithmeticOverflow
		}
		postTotal, carry = bits.Add64(postTotal, post.Lamports, 0)
		if carry != 0 {
			return ErrArithmeticOverflow
		}
	}

	if preTotal != postTotal {
		return ErrUnbalancedInstruction
	}

	return nil
}

func verifyAccount(program ed25519.PublicKey, pre *ledger.Account, post *AccountInfo) error {
	isOwner := bytes.Equal(program, pre.Owner)

	// Only the owner may assign an account, and only once its data has been
	// zeroed.
	if !bytes.Equal(pre.Owner, post.Owner) {
		if !post.IsWritable || !isOwner || post.Executable || !isZeroed(post.Data) {
			return ErrModifiedProgramID
		}
	}

	if pre.Lamports != post.Lamports {
		if !post.IsWritable {
			return ErrReadonlyLamportChange
		}
		if post.Lamports < pre.Lamports && !isOwner {
			return ErrExternalAccountLamportSpend
		}
	}

	if !bytes.Equal(pre.Data, post.Data) {
		if !post.IsWritable {
			return ErrReadonlyDataModified
		}
		if !isOwner {
			return ErrExternalAccountDataModified
		}
	}

	if pre.Executable != post.Executable {
		return ErrExecutableModified
	}

	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

func snapshot(infos []*AccountInfo) []ledger.Account {
	pre := make([]ledger.Account, len(infos))
	for i, info := range infos {
		info.CopyTo(&pre[i])
	}
	return pre
}
