package health

import (
	"context"
	"math/big"

	"github.com/mglescz/crosslane/internal/chain"
)

// RPCChecker probes the chain RPC endpoints the reconciler depends on,
// keyed by role ("source", "destination").
type RPCChecker struct {
	clients map[string]chain.HeadClient
}

// NewRPCChecker creates a checker over named chain clients.
func NewRPCChecker(clients map[string]chain.HeadClient) *RPCChecker {
	return &RPCChecker{clients: clients}
}

// Status pings every configured endpoint and reports each result by name,
// so a healthy source chain is distinguishable from a down destination.
func (c *RPCChecker) Status(ctx context.Context) map[string]error {
	out := make(map[string]error, len(c.clients))
	for name, cli := range c.clients {
		_, err := cli.HeaderByNumber(ctx, big.NewInt(0))
		out[name] = err
	}
	return out
}
