package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const (
	defaultDimensions = 256
	maxResponseBytes  = 8 << 20
)

// Config represents embedding configuration
type Config struct {
	Endpoint   string // external service; empty uses local embeddings only
	Dimensions int
}

// EmbeddingManager handles embedding generation for the search index
type EmbeddingManager struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEmbeddingManager creates a new embedding manager
func NewEmbeddingManager(config Config, logger *zap.Logger) *EmbeddingManager {
	if config.Dimensions <= 0 {
		config.Dimensions = defaultDimensions
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingManager{
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger.Named("embedding"),
	}
}

// ChromemFunc returns a chromem-compatible embedding function that calls the
// external service when configured and falls back to local embeddings.
func (em *EmbeddingManager) ChromemFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if em.config.Endpoint != "" {
			embeddings, err := em.external(ctx, []string{text})
			if err == nil && len(embeddings) == 1 && len(embeddings[0]) > 0 {
				return normalize(embeddings[0]), nil
			}
			em.logger.Warn("external embedding service failed, using local embeddings", zap.Error(err))
		}
		return LocalEmbedding(text, em.config.Dimensions), nil
	}
}

// external calls the embedding service: POST {"texts": [...]} returning
// {"success": true, "embeddings": [[...]]}.
func (em *EmbeddingManager) external(ctx context.Context, texts []string) ([][]float32, error) {
	jsonData, err := json.Marshal(map[string]interface{}{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, em.config.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := em.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call embedding service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read embedding response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, fmt.Errorf("embedding response exceeds %d bytes", maxResponseBytes)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var response struct {
		Success    bool        `json:"success"`
		Embeddings [][]float32 `json:"embeddings"`
		Error      string      `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}
	if !response.Success {
		return nil, fmt.Errorf("embedding service error: %s", response.Error)
	}
	return response.Embeddings, nil
}

// LocalEmbedding hashes lowercase word unigrams and bigrams into dim buckets
// with signed counts and returns the L2-normalized vector. Texts sharing
// vocabulary get a positive cosine similarity.
func LocalEmbedding(text string, dim int) []float32 {
	if dim <= 0 {
		dim = defaultDimensions
	}
	vec := make([]float32, dim)
	words := tokenize(text)
	add := func(term string) {
		h := fnv.New64a()
		h.Write([]byte(term))
		sum := h.Sum64()
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		vec[sum%uint64(dim)] += sign
	}
	for i, w := range words {
		add(w)
		if i > 0 {
			add(words[i-1] + " " + w)
		}
	}
	out := normalize(vec)
	if isZero(out) {
		out[0] = 1
	}
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
