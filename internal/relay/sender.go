package relay

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mglescz/crosslane/internal/chain"
)

const receiptPollInterval = 2 * time.Second

// txSender builds, signs, submits, and confirms legacy transactions from one
// account on one chain.
type txSender struct {
	client         chain.TxClient
	key            *ecdsa.PrivateKey
	from           common.Address
	gasLimit       uint64
	confirmTimeout time.Duration

	mu      sync.Mutex
	chainID *big.Int
}

func newTxSender(client chain.TxClient, key *ecdsa.PrivateKey, gasLimit uint64, confirmTimeout time.Duration) *txSender {
	return &txSender{
		client:         client,
		key:            key,
		from:           crypto.PubkeyToAddress(key.PublicKey),
		gasLimit:       gasLimit,
		confirmTimeout: confirmTimeout,
	}
}

func (s *txSender) getChainID(ctx context.Context) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chainID != nil {
		return s.chainID, nil
	}
	id, err := s.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	s.chainID = id
	return id, nil
}

// sendAndWait submits calldata to the contract and blocks until an inclusion
// receipt is observed or the confirmation timeout elapses. Submission is
// success only on inclusion, never on broadcast alone.
func (s *txSender) sendAndWait(ctx context.Context, to common.Address, data []byte) (*types.Receipt, error) {
	chainID, err := s.getChainID(ctx)
	if err != nil {
		return nil, err
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce for %s: %w", s.from.Hex(), err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      s.gasLimit,
		To:       &to,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		// Another submitter (or a previous run) may have broadcast the same
		// transaction. Ethereum nodes report this only as an error string.
		if !strings.Contains(err.Error(), "already known") {
			return nil, fmt.Errorf("send tx: %w", err)
		}
	}

	return s.waitMined(ctx, signed.Hash())
}

func (s *txSender) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(waitCtx, txHash)
		if err == nil && receipt != nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("tx %s reverted", txHash.Hex())
			}
			return receipt, nil
		}

		select {
		case <-waitCtx.Done():
			return nil, fmt.Errorf("tx %s not confirmed: %w", txHash.Hex(), waitCtx.Err())
		case <-ticker.C:
		}
	}
}
