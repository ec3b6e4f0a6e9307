package openai

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
)

// EmbedderConfig holds the embedding provider settings. BaseURL may point
// at any OpenAI-compatible endpoint.
type EmbedderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Dim     int
}

// Embedder produces unit-length query vectors via the embeddings API.
// Construct once at startup and share across requests; the client is
// read-only after creation.
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
	dim    int
}

func NewEmbedder(cfg EmbedderConfig) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Embedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.Model),
		dim:    cfg.Dim,
	}
}

// Embed returns one L2-normalized vector per input text, in input order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          texts,
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrModelUnavailable, "create embeddings", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("create embeddings: %w: got %d vectors for %d texts",
			domain.ErrModelUnavailable, len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			return nil, fmt.Errorf("create embeddings: %w: vector index %d out of range",
				domain.ErrModelUnavailable, item.Index)
		}
		if e.dim > 0 && len(item.Embedding) != e.dim {
			return nil, fmt.Errorf("create embeddings: %w: vector dim %d, expected %d",
				domain.ErrModelUnavailable, len(item.Embedding), e.dim)
		}
		out[item.Index] = normalize(item.Embedding)
	}
	return out, nil
}

// normalize scales v to unit L2 length so cosine similarity reduces to a
// dot product. Zero vectors are returned unchanged.
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1 / math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}
