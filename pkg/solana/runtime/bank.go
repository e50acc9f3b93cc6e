package runtime

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/metrics"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
)

const (
	metricsStructName = "runtime.bank"

	transactionCountMetricName    = "Runtime/transactions"
	failedTransactionMetricName   = "Runtime/failed_transactions"
	transactionDurationMetricName = "Runtime/transaction_duration"
)

var (
	// NativeLoader owns the accounts of native programs.
	NativeLoader = mustDecode("NativeLoader1111111111111111111111111111111")
)

// TransactionResult is the outcome of a processed transaction.
type TransactionResult struct {
	Signature solana.Signature
	Slot      uint64
	Logs      []string

	// Err is a *solana.TransactionError when execution failed. Nothing is
	// committed for a failed transaction.
	Err error
}

// Bank executes transactions against a ledger, one at a time.
type Bank struct {
	log *logrus.Entry

	store         ledger.Store
	rent          Rent
	systemProgram ed25519.PublicKey

	mu       sync.Mutex
	programs map[string]Program
	slot     uint64
}

// NewBank returns a Bank that executes against the store. The system program
// is the default owner of accounts that don't exist yet.
func NewBank(ctx context.Context, store ledger.Store, systemProgram ed25519.PublicKey, rent Rent) (*Bank, error) {
	if len(systemProgram) != ed25519.PublicKeySize {
		return nil, errors.New("invalid system program")
	}

	slot, err := store.GetLatestSlot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load latest slot")
	}

	return &Bank{
		log:           logrus.StandardLogger().WithField("type", "solana/runtime/bank"),
		store:         store,
		rent:          rent,
		systemProgram: append(ed25519.PublicKey(nil), systemProgram...),
		programs:      make(map[string]Program),
		slot:          slot,
	}, nil
}

// RegisterProgram makes the program executable at the address.
func (b *Bank) RegisterProgram(address ed25519.PublicKey, program Program) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.programs[string(address)] = program
}

func (b *Bank) Rent() Rent {
	return b.rent
}

func (b *Bank) SystemProgram() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), b.systemProgram...)
}

// Slot returns the slot of the most recently processed transaction.
func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.slot
}

// GetAccount returns the committed state of the account.
//
// Returns ledger.ErrAccountNotFound if the account doesn't exist.
func (b *Bank) GetAccount(ctx context.Context, address ed25519.PublicKey) (*ledger.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.store.Get(ctx, address)
}

// Genesis writes the accounts that don't yet exist in the ledger. Existing
// accounts are left untouched.
func (b *Bank) Genesis(ctx context.Context, accounts ...*ledger.Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var missing []*ledger.Account
	for _, account := range accounts {
		_, err := b.store.Get(ctx, account.Address)
		if err == ledger.ErrAccountNotFound {
			missing = append(missing, account)
		} else if err != nil {
			return errors.Wrap(err, "failed to check genesis account")
		}
	}

	if len(missing) == 0 {
		return nil
	}

	return b.store.Commit(ctx, b.slot, missing, nil)
}

// ProcessTransaction verifies the transaction's signatures and executes its
// instructions atomically.
//
// Execution failures are reported through TransactionResult.Err. A non-nil
// error indicates the ledger could not be read or written.
func (b *Bank) ProcessTransaction(ctx context.Context, txn solana.Transaction) (*TransactionResult, error) {
	var sig solana.Signature
	if len(txn.Signatures) > 0 {
		sig = txn.Signatures[0]
	}

	if err := txn.VerifySignatures(); err != nil {
		b.log.WithError(err).WithField("method", "ProcessTransaction").Debug("signature verification failed")
		return &TransactionResult{
			Signature: sig,
			Slot:      b.Slot(),
			Err:       solana.NewTransactionError(solana.TransactionErrorSignatureFailure),
		}, nil
	}

	instructions, err := txn.Message.DecompileInstructions()
	if err != nil {
		return &TransactionResult{
			Signature: sig,
			Slot:      b.Slot(),
			Err:       solana.NewTransactionError(solana.TransactionErrorInvalidAccountIndex),
		}, nil
	}

	return b.process(ctx, sig, instructions)
}

// ProcessInstructions executes the instructions atomically using the signer
// and writable flags exactly as provided. No signatures are checked.
func (b *Bank) ProcessInstructions(ctx context.Context, instructions ...solana.Instruction) (*TransactionResult, error) {
	return b.process(ctx, solana.Signature{}, instructions)
}

func (b *Bank) process(ctx context.Context, sig solana.Signature, instructions []solana.Instruction) (*TransactionResult, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "process")
	defer tracer.End()
	tracer.AddAttribute("signature", sig.String())

	start := time.Now()
	defer func() {
		metrics.RecordDuration(ctx, transactionDurationMetricName, time.Since(start))
	}()

	log := b.log.WithFields(logrus.Fields{
		"method":    "process",
		"signature": sig.String(),
	})

	b.mu.Lock()
	defer b.mu.Unlock()

	txn := &transactionContext{
		ctx:      ctx,
		bank:     b,
		logger:   log,
		accounts: make(map[string]*ledger.Account),
		written:  make(map[string]struct{}),
	}
	if err := txn.preload(instructions); err != nil {
		tracer.OnError(err)
		return nil, err
	}

	b.slot++
	result := &TransactionResult{
		Signature: sig,
		Slot:      b.slot,
	}
	metrics.RecordCount(ctx, transactionCountMetricName, 1)

	for i, ix := range instructions {
		err := txn.execute(nil, ix)
		if err == nil {
			continue
		}

		txErr, err := solana.TransactionErrorFromInstructionError(&solana.InstructionError{
			Index: i,
			Err:   err,
		})
		if err != nil {
			tracer.OnError(err)
			return nil, errors.Wrap(err, "failed to build transaction error")
		}

		log.WithError(txErr).Debug("transaction failed")
		metrics.RecordCount(ctx, failedTransactionMetricName, 1)

		result.Logs = txn.logs
		result.Err = txErr
		return result, nil
	}

	updated, closed := txn.changes()
	if err := b.store.Commit(ctx, b.slot, updated, closed); err != nil {
		tracer.OnError(err)
		return nil, errors.Wrap(err, "failed to commit transaction")
	}

	result.Logs = txn.logs
	return result, nil
}

// transactionContext holds the working copies of every account a transaction
// may touch.
type transactionContext struct {
	ctx    context.Context
	bank   *Bank
	logger *logrus.Entry

	accounts map[string]*ledger.Account
	order    []string
	written  map[string]struct{}
	logs     []string

	// aborted is set once a nested instruction fails. The transaction fails
	// even if the calling program ignores the error.
	aborted error
}

func (t *transactionContext) preload(instructions []solana.Instruction) error {
	for _, ix := range instructions {
		addresses := []ed25519.PublicKey{ix.Program}
		for _, meta := range ix.Accounts {
			addresses = append(addresses, meta.PublicKey)
		}

		for _, address := range addresses {
			if _, ok := t.accounts[string(address)]; ok {
				continue
			}

			account, err := t.bank.store.Get(t.ctx, address)
			switch err {
			case nil:
			case ledger.ErrAccountNotFound:
				account = t.bank.emptyAccount(address)
			default:
				return errors.Wrapf(err, "failed to load account %s", base58.Encode(address))
			}

			t.accounts[string(address)] = account
			t.order = append(t.order, string(address))
		}
	}

	return nil
}

func (b *Bank) emptyAccount(address ed25519.PublicKey) *ledger.Account {
	account := &ledger.Account{
		Address: append(ed25519.PublicKey(nil), address...),
		Owner:   append(ed25519.PublicKey(nil), b.systemProgram...),
	}

	if _, ok := b.programs[string(address)]; ok {
		account.Owner = append(ed25519.PublicKey(nil), NativeLoader...)
		account.Lamports = 1
		account.Executable = true
	}

	return account
}

// execute runs the instruction as a child of the parent, or at the top level
// when parent is nil.
func (t *transactionContext) execute(parent *InvokeContext, ix solana.Instruction) error {
	depth := 1
	if parent != nil {
		depth = parent.depth + 1
	}
	if depth > MaxInvokeDepth {
		return ErrCallDepth
	}

	// A program may call itself, but may not be re-entered through another
	// program.
	if parent != nil && !bytes.Equal(parent.programID, ix.Program) && parent.onStack(ix.Program) {
		return ErrReentrancyNotAllowed
	}

	program, ok := t.bank.programs[string(ix.Program)]
	if !ok {
		return errors.Wrapf(ErrUnsupportedProgramID, "program %s", base58.Encode(ix.Program))
	}

	infos, unique, err := t.instructionAccounts(ix.Accounts)
	if err != nil {
		return err
	}

	ic := &InvokeContext{
		txn:       t,
		parent:    parent,
		programID: append(ed25519.PublicKey(nil), ix.Program...),
		depth:     depth,
		unique:    unique,
		pre:       snapshot(unique),
	}

	programName := base58.Encode(ix.Program)
	t.log("Program %s invoke [%d]", programName, depth)

	err = program.Process(ic, infos, ix.Data)
	if err == nil && t.aborted != nil {
		err = t.aborted
	}
	if err == nil {
		err = ic.verify()
	}
	if err != nil {
		t.log("Program %s failed: %v", programName, err)
		return withErrorKey(err)
	}

	t.log("Program %s success", programName)
	return nil
}

func (t *transactionContext) instructionAccounts(metas []solana.AccountMeta) (infos, unique []*AccountInfo, err error) {
	seen := make(map[string]*AccountInfo)
	for _, meta := range metas {
		account, ok := t.accounts[string(meta.PublicKey)]
		if !ok {
			return nil, nil, errors.Wrapf(ErrMissingAccount, "account %s not loaded", base58.Encode(meta.PublicKey))
		}

		if info, ok := seen[string(meta.PublicKey)]; ok {
			if info.IsSigner != meta.IsSigner || info.IsWritable != meta.IsWritable {
				return nil, nil, errors.Wrapf(ErrConflictingAccountRoles, "account %s", base58.Encode(meta.PublicKey))
			}

			infos = append(infos, info)
			continue
		}

		info := &AccountInfo{
			Account:    account,
			IsSigner:   meta.IsSigner,
			IsWritable: meta.IsWritable,
		}
		seen[string(meta.PublicKey)] = info
		infos = append(infos, info)
		unique = append(unique, info)

		if meta.IsWritable {
			t.written[string(meta.PublicKey)] = struct{}{}
		}
	}

	return infos, unique, nil
}

// changes returns the writable accounts to persist, purging any left without
// lamports.
func (t *transactionContext) changes() (updated []*ledger.Account, closed []ed25519.PublicKey) {
	for _, key := range t.order {
		if _, ok := t.written[key]; !ok {
			continue
		}

		account := t.accounts[key]
		if account.Lamports == 0 {
			closed = append(closed, account.Address)
			continue
		}

		updated = append(updated, account)
	}

	return updated, closed
}

func (t *transactionContext) log(format string, args ...interface{}) {
	line := format
	if len(args) > 0 {
		line = fmt.Sprintf(format, args...)
	}

	t.logs = append(t.logs, line)
	t.logger.Debug(line)
}

func mustDecode(s string) ed25519.PublicKey {
	b, err := base58.Decode(s)
	if err != nil {
		panic(err)
	}
	if len(b) != ed25519.PublicKeySize {
		panic("invalid public key length")
	}
	return b
}
