package engine

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daryltucker/ollama-sweep/internal/config"
	"github.com/daryltucker/ollama-sweep/internal/model"
	"github.com/daryltucker/ollama-sweep/internal/output"
)

func TestMain(m *testing.M) {
	output.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

func testConfig(host string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Host = host
	cfg.Timeout = 5 * time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.Probe.Delay = time.Millisecond
	cfg.Probe.Timeout = time.Second
	return cfg
}

func TestGenerateSendsPayloadAndDecodesStats(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"response":"hello world","done":true,"total_duration":3000000000,`+
			`"load_duration":500000000,"prompt_eval_count":20,"prompt_eval_duration":250000000,`+
			`"eval_count":100,"eval_duration":2000000000,"context":[1,2,3]}`)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL))
	resp, err := c.Generate(testContext(t), GenerateRequest{
		Model:       "llama3.2-vision:11b",
		Prompt:      "describe",
		Images:      []string{"aGVsbG8="},
		Context:     4096,
		NumPredict:  128,
		Temperature: 0.4,
		Seed:        lo.ToPtr(42),
	})
	require.NoError(t, err)

	assert.Equal(t, false, got["stream"])
	assert.Equal(t, []any{"aGVsbG8="}, got["images"])
	assert.Equal(t, 42.0, got["seed"])
	opts := got["options"].(map[string]any)
	assert.Equal(t, 4096.0, opts["num_ctx"])
	assert.Equal(t, 128.0, opts["num_predict"])
	assert.Equal(t, 0.4, opts["temperature"])
	assert.Equal(t, 42.0, opts["seed"])

	assert.Equal(t, "hello world", resp.Text)
	assert.InDelta(t, 3.0, resp.Stats.TotalDurationS, 1e-9)
	assert.InDelta(t, 0.5, resp.Stats.LoadDurationS, 1e-9)
	assert.InDelta(t, 2.0, resp.Stats.EvalDurationS, 1e-9)
	assert.Equal(t, 100, resp.Stats.EvalCount)
	require.NotNil(t, resp.Stats.DecodeTPS())
	assert.InDelta(t, 50.0, *resp.Stats.DecodeTPS(), 1e-9)
	assert.InDelta(t, 80.0, *resp.Stats.PrefillTPS(), 1e-9)
	assert.Contains(t, resp.Raw, "context")
}

func TestGenerateOmitsUnsetSeedAndImages(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	resp, err := New(testConfig(srv.URL)).Generate(testContext(t), GenerateRequest{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.NotContains(t, got, "seed")
	assert.NotContains(t, got, "images")
	assert.NotContains(t, got["options"], "seed")
	assert.Nil(t, resp.Stats.DecodeTPS())
}

func TestGenerateServerErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.MaxRetries = 3
	_, err := New(cfg).Generate(testContext(t), GenerateRequest{Model: "m", Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ollama Server Error (404 Not Found)")
	assert.Contains(t, err.Error(), "model not found")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateAPIErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error":"out of memory"}`)
	}))
	defer srv.Close()

	_, err := New(testConfig(srv.URL)).Generate(testContext(t), GenerateRequest{Model: "m", Prompt: "p"})
	assert.EqualError(t, err, "Ollama API Error: out of memory")
}

func TestGenerateRetriesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testConfig(url)
	cfg.MaxRetries = 2
	_, err := New(cfg).Generate(testContext(t), GenerateRequest{Model: "m", Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Network/Connection Error")
}

func TestWaitForServerRetriesUntilReachable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/version", r.URL.Path)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"version":"0.5.1"}`)
	}))
	defer srv.Close()

	v, err := New(testConfig(srv.URL)).WaitForServer(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, "0.5.1", v)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWaitForServerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	cfg := testConfig(url)
	cfg.Probe.Attempts = 2
	_, err := New(cfg).WaitForServer(testContext(t))

	var cerr *model.ConnectivityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Attempts)
	assert.Equal(t, url, cerr.URL)
}

func TestWaitForServerMinimumVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"version":"0.5.1"}`)
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Probe.MinServerVersion = "0.6.0"
	_, err := New(cfg).WaitForServer(testContext(t))
	var cerr *model.ConnectivityError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, err.Error(), "older than required")

	cfg.Probe.MinServerVersion = "0.5.0"
	_, err = New(cfg).WaitForServer(testContext(t))
	assert.NoError(t, err)
}

func TestGetModelsAndRunningInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			fmt.Fprint(w, `{"models":[{"name":"gpt-oss:20b"},{"name":"llama3.2-vision:11b"}]}`)
		case "/api/ps":
			fmt.Fprint(w, `{"models":[{"name":"gpt-oss:20b","size":2097152,"size_vram":1048576}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL + "/"))
	names, err := c.GetModels(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"gpt-oss:20b", "llama3.2-vision:11b"}, names)

	size, vram, err := c.GetRunningModelInfo(testContext(t), "gpt-oss:20b")
	require.NoError(t, err)
	assert.Equal(t, int64(2097152), size)
	assert.Equal(t, int64(1048576), vram)

	size, _, err = c.GetRunningModelInfo(testContext(t), "other")
	require.NoError(t, err)
	assert.Zero(t, size)
}
