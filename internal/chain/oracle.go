package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// TransferState is the bridge contract's authoritative view of a transfer.
type TransferState struct {
	User           common.Address
	OriginalAmount *big.Int
	BridgedAmount  *big.Int
	Timestamp      *big.Int
	Status         Status
}

// Oracle reads the authoritative transfer status from the bridge contract.
type Oracle struct {
	client ViewCaller
	bridge common.Address
}

// NewOracle builds an oracle against the bridge contract.
func NewOracle(client ViewCaller, bridge common.Address) *Oracle {
	return &Oracle{client: client, bridge: bridge}
}

// GetTransfer performs the getTransfer view call for one transfer id.
func (o *Oracle) GetTransfer(ctx context.Context, id common.Hash) (TransferState, error) {
	data, err := BridgeABI.Pack("getTransfer", [32]byte(id))
	if err != nil {
		return TransferState{}, fmt.Errorf("pack getTransfer: %w", err)
	}

	out, err := o.client.CallContract(ctx, ethereum.CallMsg{
		To:   &o.bridge,
		Data: data,
	}, nil)
	if err != nil {
		return TransferState{}, fmt.Errorf("call getTransfer %s: %w", id.Hex(), err)
	}

	vals, err := BridgeABI.Unpack("getTransfer", out)
	if err != nil {
		return TransferState{}, fmt.Errorf("unpack getTransfer: %w", err)
	}
	if len(vals) != 5 {
		return TransferState{}, fmt.Errorf("getTransfer: want 5 outputs, got %d", len(vals))
	}

	return TransferState{
		User:           vals[0].(common.Address),
		OriginalAmount: vals[1].(*big.Int),
		BridgedAmount:  vals[2].(*big.Int),
		Timestamp:      vals[3].(*big.Int),
		Status:         Status(vals[4].(uint8)),
	}, nil
}
