package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Status is the authoritative on-chain lifecycle status of a transfer.
type Status uint8

const (
	StatusPending   Status = 0
	StatusCompleted Status = 1
	StatusRefunded  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusRefunded:
		return "refunded"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

const bridgeABIJSON = `[
  {"type":"event","name":"Initiation","inputs":[
    {"name":"sender","type":"address","indexed":true},
    {"name":"originalAmount","type":"uint256"},
    {"name":"bridgedAmount","type":"uint256"},
    {"name":"transferId","type":"bytes32","indexed":true},
    {"name":"timestamp","type":"uint256"}
  ]},
  {"type":"event","name":"Refund","inputs":[
    {"name":"transferId","type":"bytes32","indexed":true},
    {"name":"recipient","type":"address","indexed":true},
    {"name":"amount","type":"uint256"}
  ]},
  {"type":"function","name":"getTransfer","stateMutability":"view","inputs":[
    {"name":"transferId","type":"bytes32"}
  ],"outputs":[
    {"name":"user","type":"address"},
    {"name":"originalAmount","type":"uint256"},
    {"name":"bridgedAmount","type":"uint256"},
    {"name":"timestamp","type":"uint256"},
    {"name":"status","type":"uint8"}
  ]},
  {"type":"function","name":"complete","inputs":[
    {"name":"transferId","type":"bytes32"},
    {"name":"signatures","type":"bytes[]"},
    {"name":"signers","type":"address[]"}
  ],"outputs":[]}
]`

const escrowABIJSON = `[
  {"type":"function","name":"payout","inputs":[
    {"name":"transferId","type":"bytes32"},
    {"name":"recipient","type":"address"},
    {"name":"bridgedAmount","type":"uint256"}
  ],"outputs":[]}
]`

var (
	// BridgeABI describes the source-chain bridge contract.
	BridgeABI = mustParseABI(bridgeABIJSON)
	// EscrowABI describes the destination-chain escrow contract.
	EscrowABI = mustParseABI(escrowABIJSON)

	initiationTopic = BridgeABI.Events["Initiation"].ID
	refundTopic     = BridgeABI.Events["Refund"].ID
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Initiation is one decoded Initiation event from the bridge contract.
type Initiation struct {
	ID             common.Hash
	Sender         common.Address
	OriginalAmount *big.Int
	BridgedAmount  *big.Int
	Timestamp      *big.Int
	Block          uint64
	TxHash         common.Hash
}

// Refund is one decoded Refund event from the bridge contract.
type Refund struct {
	ID        common.Hash
	Recipient common.Address
	Amount    *big.Int
	Block     uint64
	TxHash    common.Hash
}

func decodeInitiation(lg types.Log) (Initiation, error) {
	if len(lg.Topics) != 3 {
		return Initiation{}, fmt.Errorf("initiation log %s: want 3 topics, got %d", lg.TxHash.Hex(), len(lg.Topics))
	}
	vals, err := BridgeABI.Events["Initiation"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return Initiation{}, fmt.Errorf("unpack initiation data: %w", err)
	}

	return Initiation{
		ID:             lg.Topics[2],
		Sender:         common.BytesToAddress(lg.Topics[1].Bytes()),
		OriginalAmount: vals[0].(*big.Int),
		BridgedAmount:  vals[1].(*big.Int),
		Timestamp:      vals[2].(*big.Int),
		Block:          lg.BlockNumber,
		TxHash:         lg.TxHash,
	}, nil
}

func decodeRefund(lg types.Log) (Refund, error) {
	if len(lg.Topics) != 3 {
		return Refund{}, fmt.Errorf("refund log %s: want 3 topics, got %d", lg.TxHash.Hex(), len(lg.Topics))
	}
	vals, err := BridgeABI.Events["Refund"].Inputs.NonIndexed().Unpack(lg.Data)
	if err != nil {
		return Refund{}, fmt.Errorf("unpack refund data: %w", err)
	}

	return Refund{
		ID:        lg.Topics[1],
		Recipient: common.BytesToAddress(lg.Topics[2].Bytes()),
		Amount:    vals[0].(*big.Int),
		Block:     lg.BlockNumber,
		TxHash:    lg.TxHash,
	}, nil
}

// PackPayout builds calldata for the destination-chain payout call.
func PackPayout(id common.Hash, recipient common.Address, bridgedAmount *big.Int) ([]byte, error) {
	data, err := EscrowABI.Pack("payout", [32]byte(id), recipient, bridgedAmount)
	if err != nil {
		return nil, fmt.Errorf("pack payout: %w", err)
	}
	return data, nil
}

// PackComplete builds calldata for the source-chain complete call.
func PackComplete(id common.Hash, signatures [][]byte, signers []common.Address) ([]byte, error) {
	data, err := BridgeABI.Pack("complete", [32]byte(id), signatures, signers)
	if err != nil {
		return nil, fmt.Errorf("pack complete: %w", err)
	}
	return data, nil
}
