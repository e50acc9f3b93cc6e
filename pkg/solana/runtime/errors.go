package runtime

import (
	"github.com/pkg/errors"

	"github.com/BillArmsty/rusty-rocket/pkg/solana"
)

// Error is an instruction failure raised by the runtime or a native program.
// Every Error maps onto the instruction error key reported to clients.
type Error struct {
	key solana.InstructionErrorKey
	msg string
}

func newError(key solana.InstructionErrorKey, msg string) *Error {
	return &Error{key: key, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) ErrorKey() solana.InstructionErrorKey {
	return e.key
}

var (
	// Authority-delegated invocation preconditions.
	ErrMissingAccount          = newError(solana.InstructionErrorNotEnoughAccountKeys, "missing account")
	ErrInvalidAccountRole      = newError(solana.InstructionErrorInvalidArgument, "invalid account role")
	ErrInvalidAccountOwner     = newError(solana.InstructionErrorInvalidAccountOwner, "invalid account owner")
	ErrInvalidProgramReference = newError(solana.InstructionErrorIncorrectProgramID, "invalid program reference")
	ErrSeedMismatch            = newError(solana.InstructionErrorInvalidSeeds, "seed mismatch")
	ErrConflictingAccountRoles = newError(solana.InstructionErrorDuplicateAccountIndex, "conflicting account roles")

	ErrInvalidInstructionData   = newError(solana.InstructionErrorInvalidInstructionData, "invalid instruction data")
	ErrMissingRequiredSignature = newError(solana.InstructionErrorMissingRequiredSignature, "missing required signature")
	ErrPrivilegeEscalation      = newError(solana.InstructionErrorPrivilegeEscalation, "cross-program invocation with unauthorized signer or writable account")
	ErrCallDepth                = newError(solana.InstructionErrorCallDepth, "cross-program invocation call depth too deep")
	ErrReentrancyNotAllowed     = newError(solana.InstructionErrorReentrancyNotAllowed, "cross-program invocation reentrancy not allowed for this instruction")
	ErrUnsupportedProgramID     = newError(solana.InstructionErrorUnsupportedProgramID, "unsupported program id")
	ErrArithmeticOverflow       = newError(solana.InstructionErrorArithmeticOverflow, "arithmetic overflow")

	// Post-execution account checks.
	ErrModifiedProgramID           = newError(solana.InstructionErrorModifiedProgramID, "instruction illegally modified the program id of an account")
	ErrExternalAccountLamportSpend = newError(solana.InstructionErrorExternalAccountLamportSpend, "instruction spent from the balance of an account it does not own")
	ErrExternalAccountDataModified = newError(solana.InstructionErrorExternalAccountDataModified, "instruction modified data of an account it does not own")
	ErrReadonlyLamportChange       = newError(solana.InstructionErrorReadonlyLamportChange, "instruction changed the balance of a read-only account")
	ErrReadonlyDataModified        = newError(solana.InstructionErrorReadonlyDataModified, "instruction modified data of a read-only account")
	ErrExecutableModified          = newError(solana.InstructionErrorExecutableModified, "instruction changed executable bit of an account")
	ErrUnbalancedInstruction       = newError(solana.InstructionErrorUnbalancedInstruction, "sum of account balances before and after instruction do not match")

	// System program failures.
	ErrAccountAlreadyInUse       = newError(solana.InstructionErrorAccountAlreadyInitialized, "account already in use")
	ErrInsufficientFunds         = newError(solana.InstructionErrorInsufficientFunds, "insufficient funds for instruction")
	ErrAccountNotRentExempt      = newError(solana.InstructionErrorInsufficientFunds, "account would not be rent exempt")
	ErrInvalidAccountDataRealloc = newError(solana.InstructionErrorInvalidRealloc, "invalid account data realloc")
	ErrAddressWithSeedMismatch   = newError(solana.InstructionErrorInvalidSeeds, "provided address does not match addressed derived from seed")
)

// keyedError attaches an instruction error key to an error that doesn't carry
// one, keeping the original reachable through errors.Is.
type keyedError struct {
	key solana.InstructionErrorKey
	err error
}

func (e *keyedError) Error() string {
	return e.err.Error()
}

func (e *keyedError) ErrorKey() solana.InstructionErrorKey {
	return e.key
}

func (e *keyedError) Unwrap() error {
	return e.err
}

// withErrorKey ensures err resolves to an instruction error key. Derivation
// failures map to InvalidSeeds, custom program errors pass through, and
// anything else is reported as a GenericError.
func withErrorKey(err error) error {
	if err == nil {
		return nil
	}

	var keyed solana.KeyedError
	if errors.As(err, &keyed) {
		return err
	}

	var custom solana.CustomError
	if errors.As(err, &custom) {
		return custom
	}

	switch {
	case errors.Is(err, solana.ErrMaxSeedLengthExceeded):
		return &keyedError{key: solana.InstructionErrorMaxSeedLengthExceeded, err: err}
	case errors.Is(err, solana.ErrInvalidSeeds):
		return &keyedError{key: solana.InstructionErrorInvalidSeeds, err: err}
	case errors.Is(err, solana.ErrIllegalOwner):
		return &keyedError{key: solana.InstructionErrorIllegalOwner, err: err}
	case errors.Is(err, solana.ErrSeedTooLong):
		return &keyedError{key: solana.InstructionErrorMaxSeedLengthExceeded, err: err}
	}

	return &keyedError{key: solana.InstructionErrorGenericError, err: err}
}
