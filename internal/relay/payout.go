package relay

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/mglescz/crosslane/internal/chain"
)

// PayoutResult reports a confirmed destination-chain payout.
type PayoutResult struct {
	TxHash common.Hash
	Block  uint64
}

// PayoutSubmitter submits the compensating payout for a pending transfer.
// Success means inclusion on the destination chain, not broadcast.
type PayoutSubmitter interface {
	Payout(ctx context.Context, id common.Hash, recipient common.Address, amount *big.Int) (PayoutResult, error)
}

// Submitter is the production PayoutSubmitter: it drives the escrow contract
// on the destination chain with bounded retry and exponential backoff.
type Submitter struct {
	sender *txSender
	escrow common.Address
	retry  *Retryer
	log    *slog.Logger
}

// NewSubmitter builds a payout submitter. attempts bounds the submission
// retries; delays between attempts follow ExponentialDelay(time.Second).
func NewSubmitter(client chain.TxClient, escrow common.Address, key *ecdsa.PrivateKey,
	gasLimit uint64, confirmTimeout time.Duration, attempts int, log *slog.Logger) *Submitter {
	s := &Submitter{
		sender: newTxSender(client, key, gasLimit, confirmTimeout),
		escrow: escrow,
		log:    log,
	}
	s.retry = NewRetryer(attempts, ExponentialDelay(time.Second)).
		OnRetry(func(attempt int, err error) {
			log.Warn("payout attempt failed, retrying",
				"attempt", attempt, "error", err)
		})
	return s
}

// OnRetry replaces the retry callback (used to feed metrics).
func (s *Submitter) OnRetry(fn func(attempt int, err error)) {
	s.retry.OnRetry(fn)
}

// Payout submits payout(transferId, recipient, bridgedAmount) and waits for
// confirmation. Exhausting all attempts is a terminal failure for this cycle;
// the caller leaves the record pending.
func (s *Submitter) Payout(ctx context.Context, id common.Hash, recipient common.Address, amount *big.Int) (PayoutResult, error) {
	data, err := chain.PackPayout(id, recipient, amount)
	if err != nil {
		return PayoutResult{}, err
	}

	var result PayoutResult
	err = s.retry.Do(ctx, func(ctx context.Context) error {
		receipt, err := s.sender.sendAndWait(ctx, s.escrow, data)
		if err != nil {
			return err
		}
		result = PayoutResult{
			TxHash: receipt.TxHash,
			Block:  receipt.BlockNumber.Uint64(),
		}
		return nil
	})
	if err != nil {
		return PayoutResult{}, err
	}

	s.log.Info("payout confirmed",
		"id", id.Hex(), "recipient", recipient.Hex(),
		"amount", amount.String(), "block", result.Block, "tx", result.TxHash.Hex())
	return result, nil
}
