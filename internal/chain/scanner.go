package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Scanner fetches and decodes bridge events over bounded block ranges.
// RPC endpoints cap the span of a single eth_getLogs call, so any requested
// range is split into fixed-size windows and the results concatenated in
// ascending block order. A failure in any window fails the whole scan; the
// caller must not advance its cursor past a failed range.
type Scanner struct {
	client LogClient
	bridge common.Address
	chunk  uint64
}

// NewScanner builds a scanner for the bridge contract. chunk is the maximum
// number of blocks per log query.
func NewScanner(client LogClient, bridge common.Address, chunk uint64) *Scanner {
	if chunk == 0 {
		chunk = 500
	}
	return &Scanner{client: client, bridge: bridge, chunk: chunk}
}

// Head returns the current chain head block number.
func (s *Scanner) Head(ctx context.Context) (uint64, error) {
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("block number: %w", err)
	}
	return head, nil
}

// ScanInitiations returns all Initiation events in [from, to], ascending.
func (s *Scanner) ScanInitiations(ctx context.Context, from, to uint64) ([]Initiation, error) {
	logs, err := s.scan(ctx, from, to, initiationTopic)
	if err != nil {
		return nil, err
	}
	out := make([]Initiation, 0, len(logs))
	for _, lg := range logs {
		ev, err := decodeInitiation(lg)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// ScanRefunds returns all Refund events in [from, to], ascending.
func (s *Scanner) ScanRefunds(ctx context.Context, from, to uint64) ([]Refund, error) {
	logs, err := s.scan(ctx, from, to, refundTopic)
	if err != nil {
		return nil, err
	}
	out := make([]Refund, 0, len(logs))
	for _, lg := range logs {
		ev, err := decodeRefund(lg)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func (s *Scanner) scan(ctx context.Context, from, to uint64, topic common.Hash) ([]types.Log, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}

	var all []types.Log
	for start := from; start <= to; start += s.chunk {
		end := start + s.chunk - 1
		if end > to {
			end = to
		}

		logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
			FromBlock: new(big.Int).SetUint64(start),
			ToBlock:   new(big.Int).SetUint64(end),
			Addresses: []common.Address{s.bridge},
			Topics:    [][]common.Hash{{topic}},
		})
		if err != nil {
			return nil, fmt.Errorf("filter logs [%d, %d]: %w", start, end, err)
		}
		all = append(all, logs...)
	}
	return all, nil
}
