package relay

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mglescz/crosslane/internal/chain"
)

// CompleteResult reports the outcome of the second-phase complete call.
// Skipped means the guard found the transfer already terminal; no chain or
// store write happened and none should.
type CompleteResult struct {
	Skipped   bool
	Signature []byte
	TxHash    common.Hash
	Block     uint64
}

// CompletionStage finalizes a paid-out transfer back on the source chain.
type CompletionStage interface {
	Complete(ctx context.Context, id common.Hash, recipient common.Address, amount *big.Int) (CompleteResult, error)
}

// Completer produces the authorization signature for a payout and submits
// complete(transferId, signatures, signers) on the source chain, where the
// contract verifies the signature against its authorized-signer set.
type Completer struct {
	sender *txSender
	oracle *chain.Oracle
	bridge common.Address
	escrow common.Address
	key    *ecdsa.PrivateKey
	signer common.Address
	log    *slog.Logger
}

// NewCompleter builds the completion stage. escrow is the destination
// contract address bound into the signed digest.
func NewCompleter(client chain.TxClient, oracle *chain.Oracle, bridge, escrow common.Address,
	key *ecdsa.PrivateKey, gasLimit uint64, confirmTimeout time.Duration, log *slog.Logger) *Completer {
	return &Completer{
		sender: newTxSender(client, key, gasLimit, confirmTimeout),
		oracle: oracle,
		bridge: bridge,
		escrow: escrow,
		key:    key,
		signer: crypto.PubkeyToAddress(key.PublicKey),
		log:    log,
	}
}

// CompletionDigest binds transfer identity, recipient, amount, and the
// destination contract into one hash. Field order is fixed; the contract
// recomputes the same digest during signature verification.
func CompletionDigest(id common.Hash, recipient common.Address, amount *big.Int, escrow common.Address) common.Hash {
	return crypto.Keccak256Hash(
		id.Bytes(),
		recipient.Bytes(),
		common.LeftPadBytes(amount.Bytes(), 32),
		escrow.Bytes(),
	)
}

// Complete re-checks the authoritative status, and if still pending signs the
// completion digest and submits the complete call.
func (c *Completer) Complete(ctx context.Context, id common.Hash, recipient common.Address, amount *big.Int) (CompleteResult, error) {
	state, err := c.oracle.GetTransfer(ctx, id)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("completion guard: %w", err)
	}

	switch state.Status {
	case chain.StatusPending:
		// fall through to submission
	case chain.StatusCompleted, chain.StatusRefunded:
		// Legitimate race with another completer or a previous run.
		c.log.Info("transfer already terminal, skipping completion",
			"id", id.Hex(), "status", state.Status.String())
		return CompleteResult{Skipped: true}, nil
	default:
		c.log.Warn("unexpected transfer status, skipping completion",
			"id", id.Hex(), "status", state.Status.String())
		return CompleteResult{Skipped: true}, nil
	}

	digest := CompletionDigest(id, recipient, amount, c.escrow)
	sig, err := crypto.Sign(digest.Bytes(), c.key)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("sign completion digest: %w", err)
	}
	// ecrecover-style contracts expect V in {27, 28}.
	sig[64] += 27

	data, err := chain.PackComplete(id, [][]byte{sig}, []common.Address{c.signer})
	if err != nil {
		return CompleteResult{}, err
	}

	receipt, err := c.sender.sendAndWait(ctx, c.bridge, data)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("submit complete: %w", err)
	}

	c.log.Info("completion submitted",
		"id", id.Hex(), "signer", c.signer.Hex(),
		"block", receipt.BlockNumber.Uint64(), "tx", receipt.TxHash.Hex())

	return CompleteResult{
		Signature: sig,
		TxHash:    receipt.TxHash,
		Block:     receipt.BlockNumber.Uint64(),
	}, nil
}
