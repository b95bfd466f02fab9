package relay

import (
	"context"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mglescz/crosslane/internal/chain"
)

var testBridge = common.HexToAddress("0x1111111111111111111111111111111111111111")

// fakeViewCaller returns a canned getTransfer response.
type fakeViewCaller struct {
	status chain.Status
	err    error
	calls  int
}

func (f *fakeViewCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out, err := chain.BridgeABI.Methods["getTransfer"].Outputs.Pack(
		testRecipient, big.NewInt(100), big.NewInt(99), big.NewInt(1700000000), uint8(f.status))
	if err != nil {
		panic(err)
	}
	return out, nil
}

func newTestCompleter(t *testing.T, tx *fakeTxClient, view *fakeViewCaller) *Completer {
	t.Helper()
	oracle := chain.NewOracle(view, testBridge)
	return NewCompleter(tx, oracle, testBridge, testEscrow, testKey(t), 300_000, time.Minute, testLogger())
}

func TestCompletionDigestDeterministic(t *testing.T) {
	a := CompletionDigest(testTransfer, testRecipient, big.NewInt(99), testEscrow)
	b := CompletionDigest(testTransfer, testRecipient, big.NewInt(99), testEscrow)
	if a != b {
		t.Fatalf("digest not deterministic")
	}
	// Any field change must change the digest.
	if a == CompletionDigest(testTransfer, testRecipient, big.NewInt(100), testEscrow) {
		t.Fatalf("amount not bound into digest")
	}
	if a == CompletionDigest(testTransfer, testRecipient, big.NewInt(99), testBridge) {
		t.Fatalf("destination contract not bound into digest")
	}
}

func TestCompleteSubmitsSignature(t *testing.T) {
	tx := &fakeTxClient{}
	view := &fakeViewCaller{status: chain.StatusPending}
	c := newTestCompleter(t, tx, view)

	res, err := c.Complete(context.Background(), testTransfer, testRecipient, big.NewInt(99))
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if res.Skipped {
		t.Fatalf("pending transfer should not be skipped")
	}
	if len(res.Signature) != 65 {
		t.Fatalf("unexpected signature length: %d", len(res.Signature))
	}
	if v := res.Signature[64]; v != 27 && v != 28 {
		t.Fatalf("recovery id not in ecrecover form: %d", v)
	}
	if to := tx.lastTx.To(); to == nil || *to != testBridge {
		t.Fatalf("complete not addressed to bridge: %v", to)
	}

	// The signature must recover to the configured signer.
	digest := CompletionDigest(testTransfer, testRecipient, big.NewInt(99), testEscrow)
	raw := make([]byte, 65)
	copy(raw, res.Signature)
	raw[64] -= 27
	pub, err := crypto.SigToPub(digest.Bytes(), raw)
	if err != nil {
		t.Fatalf("recover signer: %v", err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != crypto.PubkeyToAddress(testKey(t).PublicKey) {
		t.Fatalf("signature recovers to %s", got.Hex())
	}
}

func TestCompleteGuardSkipsTerminal(t *testing.T) {
	for _, status := range []chain.Status{chain.StatusCompleted, chain.StatusRefunded} {
		tx := &fakeTxClient{}
		view := &fakeViewCaller{status: status}
		c := newTestCompleter(t, tx, view)

		res, err := c.Complete(context.Background(), testTransfer, testRecipient, big.NewInt(99))
		if err != nil {
			t.Fatalf("guard skip should not error: %v", err)
		}
		if !res.Skipped {
			t.Fatalf("status %v should skip", status)
		}
		if tx.sends != 0 {
			t.Fatalf("guard skip must perform zero chain writes, got %d", tx.sends)
		}
	}
}

func TestCompleteGuardSkipsUnknownStatus(t *testing.T) {
	tx := &fakeTxClient{}
	view := &fakeViewCaller{status: chain.Status(7)}
	c := newTestCompleter(t, tx, view)

	res, err := c.Complete(context.Background(), testTransfer, testRecipient, big.NewInt(99))
	if err != nil || !res.Skipped {
		t.Fatalf("unexpected status must be skipped defensively, res=%+v err=%v", res, err)
	}
	if tx.sends != 0 {
		t.Fatalf("defensive skip must not submit")
	}
}
