package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// mxbai models want this prefix on query text (and only query text) for
// better retrieval performance.
const mxbaiQueryPrefix = "Represent this sentence for searching relevant passages: "

// OllamaConfig configures the Ollama embedding client.
type OllamaConfig struct {
	// BaseURL is the Ollama API endpoint.
	BaseURL string

	// Model is the embedding model name to use.
	Model string

	// RequestTimeout is the timeout for API requests.
	RequestTimeout time.Duration

	// InferenceTimeout is the timeout for embedding requests.
	InferenceTimeout time.Duration

	// AutoPullModel automatically pulls the model if not available.
	AutoPullModel bool
}

// DefaultOllamaConfig returns sensible defaults.
func DefaultOllamaConfig() *OllamaConfig {
	return &OllamaConfig{
		BaseURL:          "http://localhost:11434",
		Model:            "mxbai-embed-large",
		RequestTimeout:   30 * time.Second,
		InferenceTimeout: 120 * time.Second,
		AutoPullModel:    true,
	}
}

// OllamaEmbedder generates embeddings through a local Ollama instance.
//
// The loaded model is shared process-wide, so inference calls are serialized
// behind inferMu: Ollama queues requests anyway, and a single in-flight call
// keeps memory pressure predictable on consumer GPUs.
type OllamaEmbedder struct {
	config     *OllamaConfig
	httpClient *http.Client
	logger     *slog.Logger

	// Guards inference calls (single-owner access to the model).
	inferMu sync.Mutex

	// Guards initialization state.
	mu          sync.Mutex
	initialized bool
	loadedModel string
}

// NewOllamaEmbedder creates a new Ollama embedding client.
func NewOllamaEmbedder(config *OllamaConfig, logger *slog.Logger) *OllamaEmbedder {
	if config == nil {
		config = DefaultOllamaConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OllamaEmbedder{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: config.RequestTimeout,
		},
	}
}

// ModelID returns the configured model name.
func (e *OllamaEmbedder) ModelID() string {
	return e.config.Model
}

// Initialize verifies Ollama is reachable and the configured model is
// available, pulling it if AutoPullModel is set. Repeated calls are no-ops
// while the same model remains loaded.
func (e *OllamaEmbedder) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.initialized && e.loadedModel == e.config.Model {
		return nil
	}

	version, err := e.getVersion(ctx)
	if err != nil {
		return fmt.Errorf("%w: ollama not reachable at %s: %v", ErrModelUnavailable, e.config.BaseURL, err)
	}
	e.logger.Info("ollama available", "version", version, "model", e.config.Model)

	models, err := e.listModels(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to list models: %v", ErrModelUnavailable, err)
	}

	ready := false
	for _, name := range models {
		if strings.HasPrefix(name, strings.Split(e.config.Model, ":")[0]) {
			ready = true
			break
		}
	}

	if !ready {
		if !e.config.AutoPullModel {
			return fmt.Errorf("%w: model %q not found and auto-pull is disabled", ErrModelUnavailable, e.config.Model)
		}
		e.logger.Info("pulling embedding model", "model", e.config.Model)
		if err := e.pullModel(ctx); err != nil {
			return fmt.Errorf("%w: failed to pull model %q: %v", ErrModelUnavailable, e.config.Model, err)
		}
	}

	e.initialized = true
	e.loadedModel = e.config.Model
	return nil
}

// Embed returns the embedding vector for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string, kind InputKind) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text}, kind)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one embedding per input text, in input order.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string, kind InputKind) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	if err := e.Initialize(ctx); err != nil {
		return nil, err
	}

	input := texts
	if kind == InputQuery && strings.Contains(e.config.Model, "mxbai") {
		input = make([]string, len(texts))
		for i, t := range texts {
			input[i] = mxbaiQueryPrefix + t
		}
	}

	req := &embedRequest{
		Model: e.config.Model,
		Input: input,
	}

	e.inferMu.Lock()
	defer e.inferMu.Unlock()

	resp, err := e.doEmbed(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Embeddings))
	}

	return resp.Embeddings, nil
}

// embedRequest is the request body for the embed endpoint.
type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// embedResponse is the response from the embed endpoint.
type embedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float32 `json:"embeddings"`
}

// versionResponse is the response from the version endpoint.
type versionResponse struct {
	Version string `json:"version"`
}

// listModelsResponse is the response from listing models.
type listModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// doEmbed performs the embed API call.
func (e *OllamaEmbedder) doEmbed(ctx context.Context, req *embedRequest) (*embedResponse, error) {
	url := e.config.BaseURL + "/api/embed"

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	// Use inference timeout for embedding generation
	client := &http.Client{Timeout: e.config.InferenceTimeout}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embed failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &embedResp, nil
}

// pullModel pulls the configured model.
func (e *OllamaEmbedder) pullModel(ctx context.Context) error {
	url := e.config.BaseURL + "/api/pull"

	body, err := json.Marshal(map[string]interface{}{
		"name":   e.config.Model,
		"stream": false,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Use a longer timeout for model pull
	client := &http.Client{Timeout: 30 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("pull request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pull failed with status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return nil
}

// getVersion gets the Ollama version.
func (e *OllamaEmbedder) getVersion(ctx context.Context) (string, error) {
	url := e.config.BaseURL + "/api/version"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version check failed with status %d", resp.StatusCode)
	}

	var version versionResponse
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", err
	}

	return version.Version, nil
}

// listModels lists available model names.
func (e *OllamaEmbedder) listModels(ctx context.Context) ([]string, error) {
	url := e.config.BaseURL + "/api/tags"

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models failed with status %d", resp.StatusCode)
	}

	var models listModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(models.Models))
	for _, m := range models.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
