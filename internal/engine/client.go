/*
PURPOSE:
  Client for the Ollama HTTP API.
  Handles availability probing, model discovery and non-streaming generation.

REQUIREMENTS:
  User-specified:
  - Non-stream inference returning timing stats (ns durations, token counts).
  - Probe the server before a sweep; fail fast when it is unreachable.
  - Detect models.

  Implementation-discovered:
  - Needs http.Client with timeouts. Model loading happens before the
    first response byte, so the header timeout must cover it.
  - Stats fields vary between server versions; decode them from the raw
    response map instead of a fixed struct.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Executor, Sweep), internal/cli
  - Uses: internal/config, internal/model, internal/output

ERROR HANDLING:
  - Generate retries transport errors up to MaxRetries with RetryDelay.
  - Non-2xx responses are not retried; the error carries status and body.
  - WaitForServer returns *model.ConnectivityError after all attempts.

IMPLEMENTATION RULES:
  - Use net/http.
  - Enforce timeouts through the request context.
  - Never log image payloads.

USAGE:
  c := engine.New(cfg)
  v, err := c.WaitForServer(ctx)
  resp, err := c.Generate(ctx, engine.GenerateRequest{...})

SELF-HEALING INSTRUCTIONS:
  - If Ollama API changes, update endpoints (/api/version, /api/tags, /api/ps, /api/generate).

RELATED FILES:
  - internal/config/config.go
  - internal/engine/executor.go

MAINTENANCE:
  - Update for new Ollama API features.
*/

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/mitchellh/mapstructure"

	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

// Client handles Ollama interactions for one host.
type Client struct {
	Host       string
	HTTP       *http.Client
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
	Probe      config.ProbeConfig
}

// GenerateRequest is one /api/generate call.
type GenerateRequest struct {
	Model       string
	Prompt      string
	Images      []string // base64
	Context     int
	NumPredict  int
	Temperature float64
	Seed        *int
}

// GenerateResponse is the decoded result of a generate call.
type GenerateResponse struct {
	Text  string
	Stats model.InferenceStats
	Raw   map[string]any
}

// rawStats mirrors the ns duration fields of a generate response.
type rawStats struct {
	TotalDuration      int64  `mapstructure:"total_duration"`
	LoadDuration       int64  `mapstructure:"load_duration"`
	PromptEvalCount    int    `mapstructure:"prompt_eval_count"`
	PromptEvalDuration int64  `mapstructure:"prompt_eval_duration"`
	EvalCount          int    `mapstructure:"eval_count"`
	EvalDuration       int64  `mapstructure:"eval_duration"`
	Response           string `mapstructure:"response"`
	Error              string `mapstructure:"error"`
}

// New creates a new Client.
func New(cfg *config.Config) *Client {
	// Connection setup and model loading are separated: ResponseHeaderTimeout
	// covers the wait for the first byte, which includes loading.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.Timeout

	retries := cfg.MaxRetries
	if retries < 1 {
		retries = 1
	}

	return &Client{
		Host: strings.TrimRight(cfg.Host, "/"),
		HTTP: &http.Client{
			Transport: transport,
		},
		Timeout:    cfg.Timeout,
		MaxRetries: retries,
		RetryDelay: cfg.RetryDelay,
		Probe:      cfg.Probe,
	}
}

func (c *Client) url(path string) string {
	return c.Host + path
}

// WaitForServer polls /api/version until the server answers or the
// attempts run out. It returns the reported server version.
func (c *Client) WaitForServer(ctx context.Context) (string, error) {
	attempts := c.Probe.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", &model.ConnectivityError{URL: c.Host, Attempts: i, Err: ctx.Err()}
			case <-time.After(c.Probe.Delay):
			}
		}

		v, err := c.serverVersion(ctx)
		if err == nil {
			if err := c.checkVersion(v); err != nil {
				return v, &model.ConnectivityError{URL: c.Host, Attempts: i + 1, Err: err}
			}
			output.Logger.Info("Ollama server reachable", "host", c.Host, "version", v, "attempt", i+1)
			return v, nil
		}
		lastErr = err
		output.Logger.Debug("Ollama not reachable yet", "host", c.Host, "attempt", i+1, "error", err)
	}

	return "", &model.ConnectivityError{URL: c.Host, Attempts: attempts, Err: lastErr}
}

func (c *Client) serverVersion(ctx context.Context) (string, error) {
	timeout := c.Probe.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/version"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	return payload.Version, nil
}

// checkVersion enforces Probe.MinServerVersion. Unparseable server
// versions (dev builds) are accepted with a warning.
func (c *Client) checkVersion(reported string) error {
	if c.Probe.MinServerVersion == "" {
		return nil
	}
	minimum, err := version.NewVersion(c.Probe.MinServerVersion)
	if err != nil {
		return fmt.Errorf("invalid min_server_version %q: %w", c.Probe.MinServerVersion, err)
	}
	got, err := version.NewVersion(reported)
	if err != nil {
		output.Logger.Warn("Cannot parse server version; skipping minimum check", "version", reported, "error", err)
		return nil
	}
	if got.LessThan(minimum) {
		return fmt.Errorf("server version %s is older than required %s", got, minimum)
	}
	return nil
}

// GetModels returns the models available on the host.
func (c *Client) GetModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/tags"), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	var names []string
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// GetRunningModelInfo retrieves memory stats for a running model from /api/ps.
// Both values are zero when the model is not loaded.
func (c *Client) GetRunningModelInfo(ctx context.Context, modelName string) (int64, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/api/ps"), nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, 0, fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload struct {
		Models []struct {
			Name     string `json:"name"`
			Size     int64  `json:"size"`
			SizeVRAM int64  `json:"size_vram"`
		} `json:"models"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, 0, err
	}

	for _, m := range payload.Models {
		// Loosely match model name or exact match
		if m.Name == modelName || strings.HasPrefix(m.Name, modelName) {
			return m.Size, m.SizeVRAM, nil
		}
	}

	return 0, 0, nil
}

// Generate runs one non-streaming generate call.
func (c *Client) Generate(ctx context.Context, gr GenerateRequest) (*GenerateResponse, error) {
	options := map[string]any{
		"num_ctx":     gr.Context,
		"temperature": gr.Temperature,
		"num_predict": gr.NumPredict,
	}
	payload := map[string]any{
		"model":   gr.Model,
		"prompt":  gr.Prompt,
		"stream":  false,
		"options": options,
	}
	if len(gr.Images) > 0 {
		payload["images"] = gr.Images
	}
	if gr.Seed != nil {
		options["seed"] = *gr.Seed
		payload["seed"] = *gr.Seed
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var lastErr error
	for i := 0; i < c.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.RetryDelay):
			}
			output.Logger.Info("Retrying inference...", "attempt", i+1)
		}

		resp, retry, err := c.generateOnce(ctx, gr.Model, reqBody)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retry || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// generateOnce performs a single attempt; retry reports whether the
// failure was a transport error worth another attempt.
func (c *Client) generateOnce(ctx context.Context, modelName string, reqBody []byte) (*GenerateResponse, bool, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	trace := &httptrace.ClientTrace{
		WroteRequest: func(httptrace.WroteRequestInfo) {
			output.Logger.Debug("Network: Request Sent. Waiting for model to load...", "model", modelName)
		},
		GotFirstResponseByte: func() {
			output.Logger.Debug("Network: First Byte Received", "model", modelName)
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/api/generate"), bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, false, fmt.Errorf("Ollama request timed out after %s: %w", c.Timeout, err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, false, err
		}
		if strings.Contains(err.Error(), "awaiting headers") {
			return nil, true, fmt.Errorf("Ollama Header Timeout (model loading?): %w", err)
		}
		return nil, true, fmt.Errorf("Network/Connection Error: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, false, fmt.Errorf("Ollama Server Error (%s): %s", resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	var raw map[string]any
	if err := json.Unmarshal(bodyBytes, &raw); err != nil {
		return nil, false, fmt.Errorf("Ollama returned invalid JSON: %w (Body: %s)", err, string(bodyBytes))
	}

	var stats rawStats
	if err := mapstructure.Decode(raw, &stats); err != nil {
		return nil, false, fmt.Errorf("failed to decode stats: %w", err)
	}
	if stats.Error != "" {
		return nil, false, fmt.Errorf("Ollama API Error: %s", stats.Error)
	}

	return &GenerateResponse{
		Text:  stats.Response,
		Stats: toInferenceStats(stats),
		Raw:   raw,
	}, false, nil
}

func toInferenceStats(s rawStats) model.InferenceStats {
	return model.InferenceStats{
		TotalDurationS:      nsToSeconds(s.TotalDuration),
		LoadDurationS:       nsToSeconds(s.LoadDuration),
		PromptEvalDurationS: nsToSeconds(s.PromptEvalDuration),
		EvalDurationS:       nsToSeconds(s.EvalDuration),
		PromptEvalCount:     s.PromptEvalCount,
		EvalCount:           s.EvalCount,
	}
}

func nsToSeconds(ns int64) float64 {
	return time.Duration(ns).Seconds()
}
