package ports

import (
	"context"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
)

// Embedder converts query text into unit-length vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore performs nearest-neighbor search and time-windowed reads
// against the anomaly collection.
type VectorStore interface {
	Search(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error)
	QueryRecent(ctx context.Context, limit, windowHours int, filter domain.RecentFilter) ([]domain.Candidate, error)
	Stats(ctx context.Context) (domain.CollectionStats, error)
}

// Reranker reorders retrieved candidates by relevance. It never fails:
// any upstream problem degrades to the original vector-similarity order.
type Reranker interface {
	// Rerank returns indices into candidates, at most min(k, len(candidates)).
	Rerank(ctx context.Context, query string, candidates []domain.Candidate, k int) []int
	// Mode reports the configured ranking mode ("llm" or "fallback").
	Mode() string
}

// QueryLog persists an audit record per served search.
type QueryLog interface {
	Insert(ctx context.Context, entry domain.QueryLogEntry) error
}

// EventPublisher emits served-query events to the message bus.
type EventPublisher interface {
	PublishQueryServed(ctx context.Context, event domain.QueryServedEvent) error
}
