// Package policy talks to the external policy server that hosts the
// trainable generation model. The server owns the weights, gradients,
// and reference snapshots; this client only moves sequences, log
// probabilities, and update batches over HTTP.
package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/refinelab/refinery/internal/gspo"
)

// Config locates the policy server.
type Config struct {
	// BaseURL is the server root, e.g. http://localhost:8731.
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeout bounds each HTTP call. Sampling a whole group in
	// one call can take minutes on large prompts.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// Seed makes server-side sampling reproducible when non-zero.
	Seed int64 `mapstructure:"seed"`
}

// DefaultConfig returns policy client defaults.
func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:8731",
		RequestTimeout: 5 * time.Minute,
	}
}

// Client implements gspo.Policy over the policy server's JSON API.
type Client struct {
	baseURL string
	seed    int64
	http    *http.Client
}

var _ gspo.Policy = (*Client)(nil)

// NewClient creates a policy client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("policy server base_url is required")
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		seed:    cfg.Seed,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

type sampleRequest struct {
	Prompt      string  `json:"prompt"`
	GroupSize   int     `json:"group_size"`
	Temperature float64 `json:"temperature"`
	Seed        int64   `json:"seed,omitempty"`
}

type sampleResponse struct {
	Samples []struct {
		Tokens   []string  `json:"tokens"`
		LogProbs []float64 `json:"logprobs"`
	} `json:"samples"`
}

// Sample draws a candidate group from the server.
func (c *Client) Sample(ctx context.Context, prompt string, groupSize int, temperature float64) ([]gspo.Sampled, error) {
	req := sampleRequest{Prompt: prompt, GroupSize: groupSize, Temperature: temperature, Seed: c.seed}
	var resp sampleResponse
	if err := c.post(ctx, "/sample", req, &resp); err != nil {
		return nil, err
	}

	out := make([]gspo.Sampled, 0, len(resp.Samples))
	for i, s := range resp.Samples {
		if len(s.Tokens) != len(s.LogProbs) {
			return nil, fmt.Errorf("sample %d: %d tokens but %d logprobs", i, len(s.Tokens), len(s.LogProbs))
		}
		out = append(out, gspo.Sampled{Tokens: s.Tokens, LogProbs: s.LogProbs})
	}
	return out, nil
}

type refLogProbsRequest struct {
	Tokens []string `json:"tokens"`
}

type refLogProbsResponse struct {
	LogProbs []float64 `json:"logprobs"`
}

// ReferenceLogProbs scores tokens under the server's frozen reference.
func (c *Client) ReferenceLogProbs(ctx context.Context, tokens []string) ([]float64, error) {
	var resp refLogProbsResponse
	if err := c.post(ctx, "/ref_logprobs", refLogProbsRequest{Tokens: tokens}, &resp); err != nil {
		return nil, err
	}
	if len(resp.LogProbs) != len(tokens) {
		return nil, fmt.Errorf("reference logprobs: %d values for %d tokens", len(resp.LogProbs), len(tokens))
	}
	return resp.LogProbs, nil
}

type updateRequest struct {
	Batch []updateItem `json:"batch"`
}

type updateItem struct {
	Tokens    []string `json:"tokens"`
	Advantage float64  `json:"advantage"`
	Ratio     float64  `json:"ratio"`
	Objective float64  `json:"objective"`
}

// Update applies one gradient step on the server.
func (c *Client) Update(ctx context.Context, batch []gspo.UpdateItem) error {
	req := updateRequest{Batch: make([]updateItem, len(batch))}
	for i, item := range batch {
		req.Batch[i] = updateItem{
			Tokens:    item.Tokens,
			Advantage: item.Advantage,
			Ratio:     item.Ratio,
			Objective: item.Objective,
		}
	}
	return c.post(ctx, "/update", req, nil)
}

// SnapshotReference freezes the server's current weights as the new
// reference.
func (c *Client) SnapshotReference() error {
	return c.post(context.Background(), "/snapshot", struct{}{}, nil)
}

// RestoreSnapshot rolls the server back to the last reference
// snapshot.
func (c *Client) RestoreSnapshot() error {
	return c.post(context.Background(), "/restore", struct{}{}, nil)
}

type scaleLRRequest struct {
	Factor float64 `json:"factor"`
}

// ScaleLearningRate multiplies the server's learning rate by factor.
func (c *Client) ScaleLearningRate(factor float64) error {
	return c.post(context.Background(), "/scale_lr", scaleLRRequest{Factor: factor}, nil)
}

// post sends a JSON request and decodes the JSON response into out
// when out is non-nil. Non-2xx responses become errors carrying the
// body's first line.
func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("policy server %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("policy server %s: status %d: %s", path, resp.StatusCode, firstLine(string(msg)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
