package faucet

import (
	"context"
	"crypto/ed25519"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mr-tron/base58/base58"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/metrics"
	"github.com/BillArmsty/rusty-rocket/pkg/rate"
	"github.com/BillArmsty/rusty-rocket/pkg/retry"
	"github.com/BillArmsty/rusty-rocket/pkg/retry/backoff"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
)

const (
	metricsStructName = "solana.faucet"

	airdropAttemptMetricName = "Faucet/airdrop_attempts"
	airdropFailureMetricName = "Faucet/airdrop_failures"
)

// Option configures a Faucet.
type Option func(f *Faucet)

// WithClock configures the clock used to wait between attempts.
func WithClock(clock clockwork.Clock) Option {
	return func(f *Faucet) {
		f.clock = clock
	}
}

// Faucet funds accounts through a cluster's airdrop endpoint, retrying
// transient failures.
type Faucet struct {
	log     *logrus.Entry
	conf    *conf
	client  solana.Client
	limiter rate.Limiter
	clock   clockwork.Clock
}

func New(client solana.Client, configProvider ConfigProvider, opts ...Option) *Faucet {
	conf := configProvider()

	f := &Faucet{
		log:     logrus.StandardLogger().WithField("type", "solana/faucet"),
		conf:    conf,
		client:  client,
		limiter: rate.NewLimiterCtor()(conf.rateLimit.Get(context.Background())),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// RequestAirdrop requests lamports for the account, retrying every failure
// up to the configured number of attempts with a fixed delay between them.
// Once attempts are exhausted, the last error is returned as is. Context
// errors are never retried.
func (f *Faucet) RequestAirdrop(ctx context.Context, account ed25519.PublicKey, lamports uint64, commitment solana.Commitment) (solana.Signature, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "RequestAirdrop")
	defer tracer.End()

	key := base58.Encode(account)
	tracer.AddAttribute("account", key)
	log := f.log.WithFields(logrus.Fields{
		"method":   "RequestAirdrop",
		"account":  key,
		"lamports": lamports,
	})

	maxAttempts := f.conf.maxAttempts.Get(ctx)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	delay := f.conf.retryDelay.Get(ctx)

	var sig solana.Signature
	_, err := retry.RetryContext(
		ctx,
		func(ctx context.Context) error {
			metrics.RecordCount(ctx, airdropAttemptMetricName, 1)

			if err := rate.Check(ctx, f.limiter, key); err != nil {
				return err
			}

			var err error
			sig, err = f.client.RequestAirdrop(account, lamports, commitment)
			return err
		},
		retry.Limit(uint(maxAttempts)),
		retry.Notify(func(attempts uint, err error) {
			log.WithError(err).WithField("attempt", attempts).Warnf("airdrop request failed, retrying in %s", delay)
		}),
		retry.BackoffWithSleeper(f.sleeper(ctx), backoff.Constant(delay), delay),
	)
	if err != nil {
		metrics.RecordCount(ctx, airdropFailureMetricName, 1)
		tracer.OnError(err)
		return solana.Signature{}, err
	}

	log.WithField("signature", sig.String()).Debug("airdrop requested")
	return sig, nil
}

// Fund requests an airdrop and waits until it reaches the commitment level.
func (f *Faucet) Fund(ctx context.Context, account ed25519.PublicKey, lamports uint64, commitment solana.Commitment) (solana.Signature, error) {
	sig, err := f.RequestAirdrop(ctx, account, lamports, commitment)
	if err != nil {
		return sig, err
	}

	if _, err := solana.WaitForConfirmation(ctx, f.client, sig, commitment); err != nil {
		return sig, err
	}

	return sig, nil
}

// sleeper waits on the faucet's clock, returning early if the context is done.
func (f *Faucet) sleeper(ctx context.Context) retry.Sleeper {
	return retry.SleeperFunc(func(d time.Duration) {
		select {
		case <-ctx.Done():
		case <-f.clock.After(d):
		}
	})
}
