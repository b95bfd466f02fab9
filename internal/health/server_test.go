package health

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/mglescz/crosslane/internal/chain"
)

func handlerFor(checker Checker) http.Handler {
	srv := Serve("127.0.0.1:0", checker)
	defer func() { _ = Shutdown(context.Background(), srv) }()
	return srv.Handler
}

type healthzBody struct {
	Status string            `json:"status"`
	Store  string            `json:"store"`
	Chains map[string]string `json:"chains"`
}

func getHealthz(t *testing.T, h http.Handler) (int, healthzBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body healthzBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return rec.Code, body
}

func TestHealthzAllOK(t *testing.T) {
	h := handlerFor(Checker{
		DBPing: func(ctx context.Context) error { return nil },
		RPCStatus: func(ctx context.Context) map[string]error {
			return map[string]error{"source": nil, "destination": nil}
		},
	})

	code, body := getHealthz(t, h)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Status != "ok" || body.Store != "ok" {
		t.Fatalf("unexpected body: %+v", body)
	}
	if body.Chains["source"] != "ok" || body.Chains["destination"] != "ok" {
		t.Fatalf("unexpected chains: %v", body.Chains)
	}
}

func TestHealthzDBFailure(t *testing.T) {
	h := handlerFor(Checker{
		DBPing: func(ctx context.Context) error { return errors.New("db closed") },
	})

	code, body := getHealthz(t, h)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if body.Status != "degraded" || body.Store != "db closed" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestHealthzNamesFailingChain(t *testing.T) {
	h := handlerFor(Checker{
		DBPing: func(ctx context.Context) error { return nil },
		RPCStatus: func(ctx context.Context) map[string]error {
			return map[string]error{
				"source":      nil,
				"destination": errors.New("dial refused"),
			}
		},
	})

	code, body := getHealthz(t, h)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", code)
	}
	if body.Chains["source"] != "ok" {
		t.Fatalf("source = %q, want ok", body.Chains["source"])
	}
	if body.Chains["destination"] != "dial refused" {
		t.Fatalf("destination = %q, want failure text", body.Chains["destination"])
	}
}

type fakeHeadClient struct {
	err error
}

func (f *fakeHeadClient) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &types.Header{Number: big.NewInt(0)}, nil
}

func TestRPCCheckerStatusPerChain(t *testing.T) {
	checker := NewRPCChecker(map[string]chain.HeadClient{
		"source":      &fakeHeadClient{},
		"destination": &fakeHeadClient{err: errors.New("dial refused")},
	})

	status := checker.Status(context.Background())
	if status["source"] != nil {
		t.Fatalf("source err = %v, want nil", status["source"])
	}
	if status["destination"] == nil {
		t.Fatalf("expected failure for destination")
	}
}
