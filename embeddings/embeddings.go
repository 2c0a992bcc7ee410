// Package embeddings abstracts the external embedding provider: a
// function from text to a fixed-dimension float vector.
package embeddings

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xrey167/molthub/config"
)

// Provider turns text into an embedding vector. Implementations must
// return vectors of a single consistent dimension.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ErrProviderUnavailable wraps transport or upstream failures.
var ErrProviderUnavailable = errors.New("embedding provider unavailable")

// New selects a provider from config.
func New(cfg config.EmbeddingsConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewHTTPProvider(cfg)
	case "local", "":
		return NewLocalProvider(cfg.Dimension), nil
	default:
		log.Warn().
			Str("provider", cfg.Provider).
			Msg("unknown embeddings provider, defaulting to local")

		return NewLocalProvider(cfg.Dimension), nil
	}
}

// HTTPProvider calls an OpenAI-compatible /v1/embeddings endpoint.
type HTTPProvider struct {
	client    *http.Client
	endpoint  string
	apiKey    string
	model     string
	dimension int
}

func NewHTTPProvider(cfg config.EmbeddingsConfig) (*HTTPProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint not configured", ErrProviderUnavailable)
	}

	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid embeddings timeout value: %w", err)
	}

	return &HTTPProvider{
		client:    &http.Client{Timeout: timeout},
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}, nil
}

func (p *HTTPProvider) Dimension() int { return p.dimension }

type embedRequest struct {
	Model      string `json:"model"`
	Input      string `json:"input"`
	Dimensions int    `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{
		Model:      p.model,
		Input:      text,
		Dimensions: p.dimension,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		p.endpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("failed to close embeddings response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf(
			"%w: status %d: %s",
			ErrProviderUnavailable,
			resp.StatusCode,
			string(payload),
		)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	if len(decoded.Data) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrProviderUnavailable)
	}

	vec := decoded.Data[0].Embedding
	if p.dimension > 0 && len(vec) != p.dimension {
		return nil, fmt.Errorf(
			"%w: got %d dimensions, expected %d",
			ErrProviderUnavailable,
			len(vec),
			p.dimension,
		)
	}

	return vec, nil
}

// LocalProvider derives a deterministic pseudo-embedding from token
// hashes. It carries no semantics beyond bag-of-words overlap and
// exists for development and tests.
type LocalProvider struct {
	dimension int
}

func NewLocalProvider(dimension int) *LocalProvider {
	if dimension <= 0 {
		dimension = 1536
	}

	return &LocalProvider{dimension: dimension}
}

func (p *LocalProvider) Dimension() int { return p.dimension }

func (p *LocalProvider) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)

	word := make([]byte, 0, 32)
	flush := func() {
		if len(word) == 0 {
			return
		}
		sum := sha256.Sum256(word)
		idx := binary.BigEndian.Uint32(sum[:4]) % uint32(p.dimension)
		vec[idx]++
		word = word[:0]
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') {
			word = append(word, c)
		} else if c >= 'A' && c <= 'Z' {
			word = append(word, c+('a'-'A'))
		} else {
			flush()
		}
	}
	flush()

	// L2-normalise so cosine distance behaves.
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}

	return vec, nil
}
