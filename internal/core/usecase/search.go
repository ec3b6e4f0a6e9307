package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/guard"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/ports"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 1000
)

// SearchUseCase owns the end-to-end query pipeline:
// sanitize -> rate limit -> clamp bounds -> embed -> vector search ->
// rerank -> map ranked indices back to candidates.
type SearchUseCase struct {
	sanitizer *guard.Sanitizer
	limiter   *guard.RateLimiter
	embedder  ports.Embedder
	store     ports.VectorStore
	reranker  ports.Reranker

	// Optional sinks, both best-effort and off the error path.
	queryLog ports.QueryLog
	events   ports.EventPublisher
}

func NewSearchUseCase(
	sanitizer *guard.Sanitizer,
	limiter *guard.RateLimiter,
	embedder ports.Embedder,
	store ports.VectorStore,
	reranker ports.Reranker,
) *SearchUseCase {
	return &SearchUseCase{
		sanitizer: sanitizer,
		limiter:   limiter,
		embedder:  embedder,
		store:     store,
		reranker:  reranker,
	}
}

// WithQueryLog attaches an audit sink for served searches.
func (uc *SearchUseCase) WithQueryLog(queryLog ports.QueryLog) *SearchUseCase {
	uc.queryLog = queryLog
	return uc
}

// WithEventPublisher attaches a served-query event sink.
func (uc *SearchUseCase) WithEventPublisher(events ports.EventPublisher) *SearchUseCase {
	uc.events = events
	return uc
}

func (uc *SearchUseCase) Search(ctx context.Context, clientKey string, req domain.SearchRequest) (*domain.SearchResult, error) {
	query, err := uc.sanitizer.Sanitize(req.Query)
	if err != nil {
		return nil, err
	}
	if !uc.limiter.Allow(clientKey) {
		return nil, fmt.Errorf("%w: client %s", domain.ErrRateLimited, clientKey)
	}

	topK := clamp(req.TopK, 1, domain.MaxTopK)
	returnK := clamp(req.ReturnK, 1, topK)

	start := time.Now()

	vectors, err := uc.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: %w: empty result", domain.ErrModelUnavailable)
	}

	candidates, err := uc.store.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("search vector store: %w", err)
	}

	order := uc.reranker.Rerank(ctx, query, candidates, returnK)

	hits := make([]domain.Candidate, 0, len(order))
	for _, idx := range order {
		if idx < 0 || idx >= len(candidates) {
			continue
		}
		hits = append(hits, candidates[idx])
	}

	result := &domain.SearchResult{Query: query, Hits: hits}
	uc.recordServed(ctx, result, topK, returnK, time.Since(start))
	return result, nil
}

// Recent is the secondary read path over the anomaly collection: a
// time-windowed filtered scan, not a similarity search.
func (uc *SearchUseCase) Recent(ctx context.Context, limit, windowHours int, filter domain.RecentFilter) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	limit = clamp(limit, 1, maxRecentLimit)
	if windowHours <= 0 {
		windowHours = 24
	}

	candidates, err := uc.store.QueryRecent(ctx, limit, windowHours, filter)
	if err != nil {
		return nil, fmt.Errorf("query recent anomalies: %w", err)
	}
	return candidates, nil
}

// recordServed feeds the audit log and event bus. Failures are logged
// and never affect the response.
func (uc *SearchUseCase) recordServed(ctx context.Context, result *domain.SearchResult, topK, returnK int, duration time.Duration) {
	mode := uc.reranker.Mode()

	if uc.queryLog != nil {
		entry := domain.QueryLogEntry{
			Query:      result.Query,
			TopK:       topK,
			ReturnK:    returnK,
			HitCount:   len(result.Hits),
			RerankMode: mode,
			Duration:   duration,
		}
		if err := uc.queryLog.Insert(ctx, entry); err != nil {
			slog.Warn("query_log_insert_failed", "error", err)
		}
	}

	if uc.events != nil {
		event := domain.QueryServedEvent{
			Query:      result.Query,
			HitCount:   len(result.Hits),
			RerankMode: mode,
		}
		if err := uc.events.PublishQueryServed(ctx, event); err != nil {
			slog.Warn("query_event_publish_failed", "error", err)
		}
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
