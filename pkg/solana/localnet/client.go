package localnet

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/rate"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/system"
)

// MaxRecentBlockhashes is the number of blockhashes a transaction may
// reference before it is considered expired.
const MaxRecentBlockhashes = 150

var (
	ErrAirdropTooLarge  = errors.New("airdrop request too large")
	ErrMissingSignature = errors.New("transaction has no signatures")
	ErrTooLarge         = errors.New("transaction too large")
)

// Client is an in-process solana.Client that executes transactions against a
// local runtime. Every landed transaction is immediately finalized.
type Client struct {
	log *logrus.Entry

	bank           *runtime.Bank
	faucet         ed25519.PrivateKey
	maxAirdrop     uint64
	airdropLimiter rate.Limiter

	mu          sync.Mutex
	blockhashes []solana.Blockhash
	statuses    map[solana.Signature]*solana.SignatureStatus
}

// New returns a Client over a bank with the system program registered and
// the faucet and rent sysvar accounts written at genesis.
func New(ctx context.Context, options ...Option) (*Client, error) {
	o := defaultOpts()
	for _, option := range options {
		option(o)
	}

	if o.faucet == nil {
		_, key, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, errors.Wrap(err, "failed to generate faucet key")
		}
		o.faucet = key
	}

	bank, err := runtime.NewBank(ctx, o.ledger(), system.SystemAccount, o.rent)
	if err != nil {
		return nil, err
	}

	bank.RegisterProgram(system.SystemAccount, system.NewProcessor())
	for _, p := range o.programs {
		bank.RegisterProgram(p.address, p.program)
	}

	faucet := o.faucet.Public().(ed25519.PublicKey)
	err = bank.Genesis(
		ctx,
		&ledger.Account{
			Address:  faucet,
			Owner:    system.SystemAccount,
			Lamports: o.faucetLamports,
		},
		system.NewRentSysvarAccount(o.rent),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to write genesis accounts")
	}

	c := &Client{
		log:            logrus.StandardLogger().WithField("type", "solana/localnet"),
		bank:           bank,
		faucet:         o.faucet,
		maxAirdrop:     o.maxAirdrop,
		airdropLimiter: o.airdropLimiter,
		statuses:       make(map[solana.Signature]*solana.SignatureStatus),
	}
	c.blockhashes = []solana.Blockhash{genesisBlockhash(bank.Slot())}

	c.log.WithFields(logrus.Fields{
		"faucet": base58.Encode(faucet),
		"slot":   bank.Slot(),
	}).Debug("localnet started")

	return c, nil
}

// Bank returns the runtime the client executes against.
func (c *Client) Bank() *runtime.Bank {
	return c.bank
}

// Faucet returns the address funding airdrops.
func (c *Client) Faucet() ed25519.PublicKey {
	return c.faucet.Public().(ed25519.PublicKey)
}

// RegisterProgram registers a native program at the address.
func (c *Client) RegisterProgram(address ed25519.PublicKey, program runtime.Program) {
	c.bank.RegisterProgram(address, program)
}

// GetAccountInfo implements solana.Client.GetAccountInfo.
func (c *Client) GetAccountInfo(address ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	account, err := c.bank.GetAccount(context.Background(), address)
	if err == ledger.ErrAccountNotFound {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	} else if err != nil {
		return solana.AccountInfo{}, errors.Wrap(err, "failed to get account")
	}

	return solana.AccountInfo{
		Data:       account.Data,
		Owner:      account.Owner,
		Lamports:   account.Lamports,
		Executable: account.Executable,
	}, nil
}

// GetBalance implements solana.Client.GetBalance.
func (c *Client) GetBalance(address ed25519.PublicKey) (uint64, error) {
	account, err := c.bank.GetAccount(context.Background(), address)
	if err == ledger.ErrAccountNotFound {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrap(err, "failed to get account")
	}

	return account.Lamports, nil
}

// GetMinimumBalanceForRentExemption implements
// solana.Client.GetMinimumBalanceForRentExemption using the rent sysvar.
func (c *Client) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	account, err := c.bank.GetAccount(context.Background(), system.RentSysVar)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rent sysvar")
	}

	rent, err := system.GetRentFromAccount(account.Data)
	if err != nil {
		return 0, err
	}

	return rent.MinimumBalance(size), nil
}

// GetLatestBlockhash implements solana.Client.GetLatestBlockhash.
func (c *Client) GetLatestBlockhash() (solana.Blockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.blockhashes[len(c.blockhashes)-1], nil
}

// GetSignatureStatuses implements solana.Client.GetSignatureStatuses. Unknown
// signatures have a nil status.
func (c *Client) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		if status, ok := c.statuses[sig]; ok {
			cloned := *status
			statuses[i] = &cloned
		}
	}

	return statuses, nil
}

// RequestAirdrop implements solana.Client.RequestAirdrop with a transfer from
// the faucet.
func (c *Client) RequestAirdrop(address ed25519.PublicKey, lamports uint64, commitment solana.Commitment) (solana.Signature, error) {
	log := c.log.WithFields(logrus.Fields{
		"method":   "RequestAirdrop",
		"address":  base58.Encode(address),
		"lamports": lamports,
	})

	if lamports > c.maxAirdrop {
		return solana.Signature{}, ErrAirdropTooLarge
	}

	if err := rate.Check(context.Background(), c.airdropLimiter, base58.Encode(address)); err != nil {
		log.Debug("airdrop rate limited")
		return solana.Signature{}, errors.Wrap(err, "requestAirdrop() failed to send request")
	}

	blockhash, err := c.GetLatestBlockhash()
	if err != nil {
		return solana.Signature{}, err
	}

	faucet := c.Faucet()
	txn := solana.NewTransaction(faucet, system.Transfer(faucet, address, lamports))
	txn.SetBlockhash(blockhash)
	if err := txn.Sign(c.faucet); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to sign airdrop")
	}

	return c.SubmitTransaction(txn, commitment)
}

// SubmitTransaction implements solana.Client.SubmitTransaction. The
// transaction is executed before returning. Execution failures are returned as
// a *solana.TransactionError, as a preflight check would report them.
func (c *Client) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	if len(txn.Signatures) == 0 {
		return solana.Signature{}, ErrMissingSignature
	}
	sig := txn.Signatures[0]

	if size := len(txn.Marshal()); size > solana.MaxTransactionSize {
		return sig, errors.Wrapf(ErrTooLarge, "%d bytes exceeds %d", size, solana.MaxTransactionSize)
	}

	log := c.log.WithFields(logrus.Fields{
		"method":    "SubmitTransaction",
		"signature": sig.String(),
	})

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.statuses[sig]; ok {
		return sig, solana.NewTransactionError(solana.TransactionErrorDuplicateSignature)
	}
	if !c.isRecent(txn.Message.RecentBlockhash) {
		return sig, solana.NewTransactionError(solana.TransactionErrorBlockhashNotFound)
	}

	result, err := c.bank.ProcessTransaction(context.Background(), txn)
	if err != nil {
		log.WithError(err).Warn("failed to process transaction")
		return sig, err
	}

	for _, line := range result.Logs {
		log.Trace(line)
	}

	var txErr *solana.TransactionError
	if result.Err != nil && !errors.As(result.Err, &txErr) {
		return sig, result.Err
	}
	if txErr != nil && txErr.ErrorKey() == solana.TransactionErrorSignatureFailure {
		return sig, txErr
	}

	c.statuses[sig] = &solana.SignatureStatus{
		Slot:               result.Slot,
		ErrorResult:        txErr,
		ConfirmationStatus: solana.CommitmentFinalized.Commitment,
	}
	c.advance(result.Slot)

	if txErr != nil {
		log.WithError(txErr).Debug("transaction failed")
		return sig, txErr
	}

	return sig, nil
}

func (c *Client) isRecent(blockhash solana.Blockhash) bool {
	for _, recent := range c.blockhashes {
		if recent == blockhash {
			return true
		}
	}
	return false
}

// advance produces the blockhash of the slot, retaining only the most recent
// MaxRecentBlockhashes.
func (c *Client) advance(slot uint64) {
	latest := c.blockhashes[len(c.blockhashes)-1]

	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)

	h := sha256.New()
	h.Write(latest[:])
	h.Write(buf[:])

	var next solana.Blockhash
	copy(next[:], h.Sum(nil))

	c.blockhashes = append(c.blockhashes, next)
	if len(c.blockhashes) > MaxRecentBlockhashes {
		c.blockhashes = c.blockhashes[len(c.blockhashes)-MaxRecentBlockhashes:]
	}
}

func genesisBlockhash(slot uint64) solana.Blockhash {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], slot)
	return sha256.Sum256(append([]byte("localnet"), buf[:]...))
}
