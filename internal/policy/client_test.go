package policy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/refinelab/refinery/internal/gspo"
)

// policyServer is a scripted fake of the policy server.
type policyServer struct {
	requests map[string]int
	fail     map[string]int // path -> status code to return
}

func newPolicyServer(t *testing.T) (*policyServer, *httptest.Server) {
	t.Helper()
	ps := &policyServer{requests: make(map[string]int), fail: make(map[string]int)}
	srv := httptest.NewServer(ps)
	t.Cleanup(srv.Close)
	return ps, srv
}

func (ps *policyServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ps.requests[r.URL.Path]++
	if code, ok := ps.fail[r.URL.Path]; ok {
		http.Error(w, "scripted failure", code)
		return
	}

	switch r.URL.Path {
	case "/sample":
		var req struct {
			GroupSize int `json:"group_size"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		type sample struct {
			Tokens   []string  `json:"tokens"`
			LogProbs []float64 `json:"logprobs"`
		}
		samples := make([]sample, req.GroupSize)
		for i := range samples {
			samples[i] = sample{Tokens: []string{"a", "b"}, LogProbs: []float64{-0.5, -0.5}}
		}
		json.NewEncoder(w).Encode(map[string]any{"samples": samples})

	case "/ref_logprobs":
		var req struct {
			Tokens []string `json:"tokens"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		lps := make([]float64, len(req.Tokens))
		for i := range lps {
			lps[i] = -1.0
		}
		json.NewEncoder(w).Encode(map[string]any{"logprobs": lps})

	default:
		w.Write([]byte("{}"))
	}
}

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = url
	c, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("NewClient() error = nil, want error for empty base_url")
	}
}

func TestSample(t *testing.T) {
	_, srv := newPolicyServer(t)
	c := testClient(t, srv.URL)

	samples, err := c.Sample(context.Background(), "prompt", 4, 0.8)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if len(samples) != 4 {
		t.Fatalf("got %d samples, want 4", len(samples))
	}
	if len(samples[0].Tokens) != len(samples[0].LogProbs) {
		t.Error("tokens and logprobs are misaligned")
	}
}

func TestReferenceLogProbs(t *testing.T) {
	_, srv := newPolicyServer(t)
	c := testClient(t, srv.URL)

	lps, err := c.ReferenceLogProbs(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("ReferenceLogProbs() error = %v", err)
	}
	if len(lps) != 3 {
		t.Errorf("got %d logprobs, want 3", len(lps))
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	ps, srv := newPolicyServer(t)
	ps.fail["/update"] = http.StatusInternalServerError
	c := testClient(t, srv.URL)

	err := c.Update(context.Background(), []gspo.UpdateItem{{Tokens: []string{"a"}}})
	if err == nil {
		t.Fatal("Update() error = nil, want server error")
	}
}

func TestControlEndpoints(t *testing.T) {
	ps, srv := newPolicyServer(t)
	c := testClient(t, srv.URL)

	if err := c.SnapshotReference(); err != nil {
		t.Errorf("SnapshotReference() error = %v", err)
	}
	if err := c.RestoreSnapshot(); err != nil {
		t.Errorf("RestoreSnapshot() error = %v", err)
	}
	if err := c.ScaleLearningRate(0.5); err != nil {
		t.Errorf("ScaleLearningRate() error = %v", err)
	}

	for _, path := range []string{"/snapshot", "/restore", "/scale_lr"} {
		if ps.requests[path] != 1 {
			t.Errorf("%s hit %d times, want 1", path, ps.requests[path])
		}
	}
}

func TestMisalignedSampleRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"samples":[{"tokens":["a","b"],"logprobs":[-0.5]}]}`))
	}))
	t.Cleanup(srv.Close)
	c := testClient(t, srv.URL)

	if _, err := c.Sample(context.Background(), "p", 1, 0.8); err == nil {
		t.Error("Sample() error = nil, want misalignment error")
	}
}
