package solana

import (
	"context"

	"github.com/pkg/errors"

	"github.com/BillArmsty/rusty-rocket/pkg/retry"
	"github.com/BillArmsty/rusty-rocket/pkg/retry/backoff"
)

var (
	ErrConfirmationsNotReached = errors.New("confirmations not reached")
)

// WaitForConfirmation polls the signature status until it reaches the
// commitment level. A failed transaction is returned as its TransactionError.
func WaitForConfirmation(ctx context.Context, c Client, sig Signature, commitment Commitment) (*SignatureStatus, error) {
	var status *SignatureStatus
	_, err := retry.RetryContext(
		ctx,
		func(_ context.Context) error {
			statuses, err := c.GetSignatureStatuses([]Signature{sig})
			if err != nil {
				return err
			}

			if len(statuses) == 0 || statuses[0] == nil {
				return ErrSignatureNotFound
			}

			status = statuses[0]
			if status.ErrorResult != nil {
				return status.ErrorResult
			}

			if !status.Reached(commitment) {
				return ErrConfirmationsNotReached
			}

			return nil
		},
		retry.RetriableErrors(ErrSignatureNotFound, ErrConfirmationsNotReached),
		retry.Limit(sigStatusPollLimit),
		retry.Backoff(backoff.Constant(PollRate), PollRate),
	)

	return status, err
}

// SendAndConfirmTransaction submits a signed transaction and blocks until it
// reaches the commitment level.
func SendAndConfirmTransaction(ctx context.Context, c Client, txn Transaction, commitment Commitment) (Signature, error) {
	sig, err := c.SubmitTransaction(txn, commitment)
	if err != nil {
		return sig, err
	}

	if _, err := WaitForConfirmation(ctx, c, sig, commitment); err != nil {
		return sig, err
	}

	return sig, nil
}
