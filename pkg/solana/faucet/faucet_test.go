package faucet

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BillArmsty/rusty-rocket/pkg/rate"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/localnet"
	"github.com/BillArmsty/rusty-rocket/pkg/testutil"
)

// flakyClient fails the first failures airdrop requests, each with a
// distinct error.
type flakyClient struct {
	solana.Client

	sync.Mutex
	failures int
	calls    int
	errs     []error
}

func (c *flakyClient) RequestAirdrop(account ed25519.PublicKey, lamports uint64, commitment solana.Commitment) (solana.Signature, error) {
	c.Lock()
	defer c.Unlock()

	c.calls++
	if c.calls <= c.failures {
		err := errors.Errorf("transient failure %d", c.calls)
		c.errs = append(c.errs, err)
		return solana.Signature{}, err
	}

	var sig solana.Signature
	sig[0] = byte(c.calls)
	return sig, nil
}

func (c *flakyClient) Calls() int {
	c.Lock()
	defer c.Unlock()
	return c.calls
}

type result struct {
	sig solana.Signature
	err error
}

// requestAirdrop runs the request in the background, advancing the clock
// through every delay the faucet waits on.
func requestAirdrop(t *testing.T, f *Faucet, clock *clockwork.FakeClock, delays int) result {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	account := testutil.GenerateSolanaKeys(t, 1)[0]

	done := make(chan result, 1)
	go func() {
		sig, err := f.RequestAirdrop(ctx, account, solana.LamportsPerSol, solana.CommitmentConfirmed)
		done <- result{sig: sig, err: err}
	}()

	for i := 0; i < delays; i++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(defaultRetryDelay)
	}

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		require.FailNow(t, "airdrop request did not complete")
		return result{}
	}
}

func TestFaucet_SucceedsOnLastAttempt(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &flakyClient{failures: 4}
	f := New(client, WithEnvConfigs(), WithClock(clock))

	r := requestAirdrop(t, f, clock, 4)
	require.NoError(t, r.err)
	assert.EqualValues(t, 5, r.sig[0])
	assert.Equal(t, 5, client.Calls())
}

func TestFaucet_SurfacesLastError(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &flakyClient{failures: 5}
	f := New(client, WithEnvConfigs(), WithClock(clock))

	r := requestAirdrop(t, f, clock, 4)
	require.Error(t, r.err)
	assert.Equal(t, 5, client.Calls())

	// The last error is surfaced as is, not wrapped.
	require.Len(t, client.errs, 5)
	assert.Equal(t, client.errs[4], r.err)
}

func TestFaucet_ConfiguredAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &flakyClient{failures: 10}
	f := New(client, withManualTestOverrides(&testOverrides{
		maxAttempts: 2,
		retryDelay:  defaultRetryDelay,
	}), WithClock(clock))

	r := requestAirdrop(t, f, clock, 1)
	require.Error(t, r.err)
	assert.Equal(t, 2, client.Calls())
}

func TestFaucet_ContextCanceled(t *testing.T) {
	client := &flakyClient{failures: 10}
	f := New(client, WithEnvConfigs(), WithClock(clockwork.NewFakeClock()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.RequestAirdrop(ctx, testutil.GenerateSolanaKeys(t, 1)[0], 1, solana.CommitmentConfirmed)
	assert.Equal(t, context.Canceled, err)
	assert.Zero(t, client.Calls())
}

func TestFaucet_CancelDuringDelay(t *testing.T) {
	clock := clockwork.NewFakeClock()
	client := &flakyClient{failures: 10}
	f := New(client, WithEnvConfigs(), WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.RequestAirdrop(ctx, testutil.GenerateSolanaKeys(t, 1)[0], 1, solana.CommitmentConfirmed)
		done <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()

	assert.Equal(t, context.Canceled, <-done)
	assert.Equal(t, 1, client.Calls())
}

func TestFaucet_RateLimited(t *testing.T) {
	client := &flakyClient{}
	f := New(client, withManualTestOverrides(&testOverrides{
		maxAttempts: 1,
		retryDelay:  defaultRetryDelay,
		rateLimit:   0.001,
	}))

	account := testutil.GenerateSolanaKeys(t, 1)[0]

	_, err := f.RequestAirdrop(context.Background(), account, 1, solana.CommitmentConfirmed)
	require.NoError(t, err)

	_, err = f.RequestAirdrop(context.Background(), account, 1, solana.CommitmentConfirmed)
	assert.Equal(t, rate.ErrLimited, err)
	assert.Equal(t, 1, client.Calls())
}

func TestFaucet_FundLocalnet(t *testing.T) {
	ctx := context.Background()
	client, err := localnet.New(ctx)
	require.NoError(t, err)

	account := testutil.GenerateSolanaKeys(t, 1)[0]
	f := New(client, WithEnvConfigs())

	_, err = f.Fund(ctx, account, solana.LamportsPerSol, solana.CommitmentConfirmed)
	require.NoError(t, err)

	balance, err := client.GetBalance(account)
	require.NoError(t, err)
	assert.EqualValues(t, solana.LamportsPerSol, balance)
}
