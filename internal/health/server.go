package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Checker bundles the probes behind /healthz: the record store ping and the
// per-chain RPC status map keyed by chain role ("source", "destination").
type Checker struct {
	DBPing    func(ctx context.Context) error
	RPCStatus func(ctx context.Context) map[string]error
}

// response is the /healthz body. Each chains entry is "ok" or the failure
// text for that RPC endpoint, so an operator can tell which chain is down.
type response struct {
	Status string            `json:"status"`
	Store  string            `json:"store,omitempty"`
	Chains map[string]string `json:"chains,omitempty"`
}

// Serve starts the /healthz endpoint. Any failing probe degrades the overall
// status and the response code to 503.
func Serve(addr string, checker Checker) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		resp := response{Status: "ok"}
		code := http.StatusOK

		if checker.DBPing != nil {
			if err := checker.DBPing(ctx); err != nil {
				resp.Store = err.Error()
				resp.Status = "degraded"
				code = http.StatusServiceUnavailable
			} else {
				resp.Store = "ok"
			}
		}

		if checker.RPCStatus != nil {
			resp.Chains = map[string]string{}
			for name, err := range checker.RPCStatus(ctx) {
				if err != nil {
					resp.Chains[name] = err.Error()
					resp.Status = "degraded"
					code = http.StatusServiceUnavailable
				} else {
					resp.Chains[name] = "ok"
				}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(resp)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 3 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// Shutdown gracefully shuts down the health server.
func Shutdown(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
