package localnet

import (
	"crypto/ed25519"

	"github.com/BillArmsty/rusty-rocket/pkg/rate"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger/memory"
)

const (
	// DefaultFaucetLamports is the faucet balance written at genesis.
	DefaultFaucetLamports = 1_000_000 * solana.LamportsPerSol
	defaultMaxAirdrop     = 5 * solana.LamportsPerSol
)

type program struct {
	address ed25519.PublicKey
	program runtime.Program
}

type opts struct {
	store          ledger.Store
	rent           runtime.Rent
	faucet         ed25519.PrivateKey
	faucetLamports uint64
	maxAirdrop     uint64
	airdropLimiter rate.Limiter
	programs       []program
}

func defaultOpts() *opts {
	return &opts{
		rent:           runtime.DefaultRent(),
		faucetLamports: DefaultFaucetLamports,
		maxAirdrop:     defaultMaxAirdrop,
		airdropLimiter: &rate.NoLimiter{},
	}
}

// Option configures a localnet client.
type Option func(o *opts)

// WithStore configures the ledger backing the client. Defaults to an in
// memory ledger.
func WithStore(store ledger.Store) Option {
	return func(o *opts) {
		o.store = store
	}
}

// WithRent configures the rent parameters written to the rent sysvar at
// genesis.
func WithRent(rent runtime.Rent) Option {
	return func(o *opts) {
		o.rent = rent
	}
}

// WithFaucet configures the key that funds airdrops, and the balance it
// receives at genesis. Defaults to a freshly generated key.
func WithFaucet(key ed25519.PrivateKey, lamports uint64) Option {
	return func(o *opts) {
		o.faucet = key
		o.faucetLamports = lamports
	}
}

// WithMaxAirdrop configures the largest amount a single airdrop may request.
func WithMaxAirdrop(lamports uint64) Option {
	return func(o *opts) {
		o.maxAirdrop = lamports
	}
}

// WithAirdropLimiter configures the limiter applied to airdrops, keyed by the
// recipient address.
func WithAirdropLimiter(limiter rate.Limiter) Option {
	return func(o *opts) {
		o.airdropLimiter = limiter
	}
}

// WithProgram registers a native program at the address.
func WithProgram(address ed25519.PublicKey, p runtime.Program) Option {
	return func(o *opts) {
		o.programs = append(o.programs, program{address: address, program: p})
	}
}

func (o *opts) ledger() ledger.Store {
	if o.store == nil {
		o.store = memory.New()
	}
	return o.store
}
