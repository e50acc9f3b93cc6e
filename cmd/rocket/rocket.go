package main

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58/base58"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BillArmsty/rusty-rocket/pkg/app"
	"github.com/BillArmsty/rusty-rocket/pkg/flow"
	"github.com/BillArmsty/rusty-rocket/pkg/solana"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/closer"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/faucet"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/localnet"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/runtime/ledger/bolt"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/system"
	"github.com/BillArmsty/rusty-rocket/pkg/solana/vault"
)

// rocket runs the configured account flows once and exits.
type rocket struct {
	log    *logrus.Entry
	config *config

	env    *flow.Environment
	vault  ed25519.PublicKey
	closer ed25519.PublicKey

	closeLedger func() error
}

func (r *rocket) Init(raw app.Config, _ *newrelic.Application) error {
	r.log = logrus.StandardLogger().WithField("type", "rocket")

	c, err := decodeConfig(raw)
	if err != nil {
		return err
	}
	r.config = c

	if r.vault, err = programID(c.VaultProgramID); err != nil {
		return err
	}
	if r.closer, err = programID(c.CloserProgramID); err != nil {
		return err
	}

	commitment, err := solana.ParseCommitment(c.Commitment)
	if err != nil {
		return err
	}

	var client solana.Client
	if len(c.RPCEndpoint) > 0 {
		r.log.WithField("endpoint", c.RPCEndpoint).Info("using rpc cluster")
		client = solana.New(c.RPCEndpoint)
	} else {
		client, err = r.newLocalnet(context.Background())
		if err != nil {
			return err
		}
	}

	r.env = &flow.Environment{
		Client:     client,
		Faucet:     faucet.New(client, faucet.WithEnvConfigs()),
		Commitment: commitment,
	}
	return nil
}

func (r *rocket) newLocalnet(ctx context.Context) (*localnet.Client, error) {
	opts := []localnet.Option{
		localnet.WithProgram(r.vault, vault.NewProcessor(system.SystemAccount, vault.WithEnvConfigs())),
		localnet.WithProgram(r.closer, closer.NewProcessor()),
	}

	if len(r.config.LedgerPath) > 0 {
		store, closeFn, err := bolt.Open(r.config.LedgerPath, false)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open ledger")
		}
		r.closeLedger = closeFn
		opts = append(opts, localnet.WithStore(store))
	}

	if len(r.config.FaucetKeypair) > 0 {
		b, err := app.LoadFile(r.config.FaucetKeypair)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load faucet keypair")
		}
		key, err := solana.ParseKeypair(b)
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse faucet keypair")
		}
		opts = append(opts, localnet.WithFaucet(key, localnet.DefaultFaucetLamports))
	}

	client, err := localnet.New(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start localnet")
	}

	r.log.WithFields(logrus.Fields{
		"faucet": base58.Encode(client.Faucet()),
		"vault":  base58.Encode(r.vault),
		"closer": base58.Encode(r.closer),
		"ledger": r.config.LedgerPath,
	}).Info("using localnet")

	return client, nil
}

func (r *rocket) Run(ctx context.Context) error {
	for _, f := range r.config.Flows {
		log := r.log.WithField("flow", f)

		switch f {
		case flowSeed:
			result, err := flow.CreateAccountWithSeed(ctx, r.env, r.config.Seed)
			if err != nil {
				return errors.Wrap(err, "seed flow failed")
			}
			log.WithFields(logrus.Fields{
				"signature": result.Signature.String(),
				"base":      base58.Encode(result.Base),
				"address":   base58.Encode(result.Address),
			}).Info("account created with seed")

		case flowClose:
			result, err := flow.CreateAndCloseAccount(ctx, r.env, r.closer)
			if err != nil {
				return errors.Wrap(err, "close flow failed")
			}
			log.WithFields(logrus.Fields{
				"create":  result.CreateSignature.String(),
				"close":   result.CloseSignature.String(),
				"address": base58.Encode(result.Address),
			}).Info("account created and closed")

		case flowVault:
			result, err := flow.CreateVault(ctx, r.env, r.vault)
			if err != nil {
				return errors.Wrap(err, "vault flow failed")
			}
			log.WithFields(logrus.Fields{
				"signature": result.Signature.String(),
				"vault":     base58.Encode(result.Vault),
				"bump":      result.Bump,
			}).Info("vault created")
		}
	}

	return nil
}

func (r *rocket) Stop() {
	if r.closeLedger == nil {
		return
	}

	if err := r.closeLedger(); err != nil {
		r.log.WithError(err).Warn("failed to close ledger")
	}
	r.closeLedger = nil
}
