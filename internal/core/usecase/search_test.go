package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/guard"
)

type embedderFake struct {
	calls int
	err   error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type storeFake struct {
	calls      int
	topK       int
	candidates []domain.Candidate
	err        error
}

func (f *storeFake) Search(_ context.Context, _ []float32, topK int) ([]domain.Candidate, error) {
	f.calls++
	f.topK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

func (f *storeFake) QueryRecent(context.Context, int, int, domain.RecentFilter) ([]domain.Candidate, error) {
	return f.candidates, f.err
}

func (f *storeFake) Stats(context.Context) (domain.CollectionStats, error) {
	return domain.CollectionStats{}, f.err
}

type rerankerFake struct {
	k int
}

func (f *rerankerFake) Rerank(_ context.Context, _ string, candidates []domain.Candidate, k int) []int {
	f.k = k
	if k > len(candidates) {
		k = len(candidates)
	}
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	return order
}

func (f *rerankerFake) Mode() string { return "fallback" }

func makeCandidates(n int) []domain.Candidate {
	out := make([]domain.Candidate, n)
	for i := range out {
		out[i] = domain.Candidate{
			Score:       1.0 - float64(i)*0.01,
			EventHour:   fmt.Sprintf("2025-08-27T%02d:00", i%24),
			CountryCode: "SG",
			DocText:     fmt.Sprintf("anomaly %d", i),
		}
	}
	return out
}

func newTestUseCase(embedder *embedderFake, store *storeFake, reranker *rerankerFake) *SearchUseCase {
	return NewSearchUseCase(
		guard.NewSanitizer(300),
		guard.NewRateLimiter(100),
		embedder,
		store,
		reranker,
	)
}

func TestSearchReturnsTopSliceInOriginalOrder(t *testing.T) {
	embedder := &embedderFake{}
	store := &storeFake{candidates: makeCandidates(20)}
	reranker := &rerankerFake{}
	uc := newTestUseCase(embedder, store, reranker)

	result, err := uc.Search(context.Background(), "1.2.3.4", domain.SearchRequest{
		Query:   "Why did RTT spike?",
		TopK:    20,
		ReturnK: 5,
	})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Hits) != 5 {
		t.Fatalf("expected 5 hits, got %d", len(result.Hits))
	}
	for i, hit := range result.Hits {
		if hit.DocText != store.candidates[i].DocText || hit.Score != store.candidates[i].Score {
			t.Fatalf("hit %d not mapped from candidate %d: %+v", i, i, hit)
		}
	}
}

func TestSearchClampsBounds(t *testing.T) {
	cases := []struct {
		topK, returnK         int
		wantTopK, wantReturnK int
	}{
		{topK: 0, returnK: 0, wantTopK: 1, wantReturnK: 1},
		{topK: -3, returnK: 99, wantTopK: 1, wantReturnK: 1},
		{topK: 200, returnK: 80, wantTopK: 50, wantReturnK: 50},
		{topK: 20, returnK: 6, wantTopK: 20, wantReturnK: 6},
		{topK: 10, returnK: 30, wantTopK: 10, wantReturnK: 10},
	}

	for _, tc := range cases {
		store := &storeFake{candidates: makeCandidates(50)}
		reranker := &rerankerFake{}
		uc := newTestUseCase(&embedderFake{}, store, reranker)

		_, err := uc.Search(context.Background(), "key", domain.SearchRequest{
			Query:   "q",
			TopK:    tc.topK,
			ReturnK: tc.returnK,
		})
		if err != nil {
			t.Fatalf("Search(topK=%d) error = %v", tc.topK, err)
		}
		if store.topK != tc.wantTopK {
			t.Fatalf("topK=%d: store received %d, want %d", tc.topK, store.topK, tc.wantTopK)
		}
		if reranker.k != tc.wantReturnK {
			t.Fatalf("returnK=%d: reranker received %d, want %d", tc.returnK, reranker.k, tc.wantReturnK)
		}
	}
}

func TestSearchEmptyQuerySkipsDownstream(t *testing.T) {
	embedder := &embedderFake{}
	store := &storeFake{}
	uc := newTestUseCase(embedder, store, &rerankerFake{})

	_, err := uc.Search(context.Background(), "key", domain.SearchRequest{Query: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
	if embedder.calls != 0 || store.calls != 0 {
		t.Fatalf("guard rejection must not reach embedder (%d) or store (%d)", embedder.calls, store.calls)
	}
}

func TestSearchRateLimited(t *testing.T) {
	uc := NewSearchUseCase(
		guard.NewSanitizer(300),
		guard.NewRateLimiter(1),
		&embedderFake{},
		&storeFake{candidates: makeCandidates(3)},
		&rerankerFake{},
	)

	if _, err := uc.Search(context.Background(), "key", domain.SearchRequest{Query: "q", TopK: 3, ReturnK: 1}); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}
	_, err := uc.Search(context.Background(), "key", domain.SearchRequest{Query: "q", TopK: 3, ReturnK: 1})
	if !domain.IsKind(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limited error, got %v", err)
	}
}

func TestSearchRetrievalErrorPropagates(t *testing.T) {
	store := &storeFake{err: domain.WrapError(domain.ErrRetrieval, "search", errors.New("connection refused"))}
	uc := newTestUseCase(&embedderFake{}, store, &rerankerFake{})

	_, err := uc.Search(context.Background(), "key", domain.SearchRequest{Query: "q", TopK: 5, ReturnK: 2})
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
}

func TestSearchEmbedErrorPropagates(t *testing.T) {
	embedder := &embedderFake{err: domain.WrapError(domain.ErrModelUnavailable, "embed", errors.New("model load failed"))}
	uc := newTestUseCase(embedder, &storeFake{}, &rerankerFake{})

	_, err := uc.Search(context.Background(), "key", domain.SearchRequest{Query: "q", TopK: 5, ReturnK: 2})
	if !domain.IsKind(err, domain.ErrModelUnavailable) {
		t.Fatalf("expected model unavailable error, got %v", err)
	}
}

type queryLogFake struct {
	entries []domain.QueryLogEntry
	err     error
}

func (f *queryLogFake) Insert(_ context.Context, entry domain.QueryLogEntry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

type publisherFake struct {
	events []domain.QueryServedEvent
	err    error
}

func (f *publisherFake) PublishQueryServed(_ context.Context, event domain.QueryServedEvent) error {
	f.events = append(f.events, event)
	return f.err
}

func TestSearchRecordsServedQuery(t *testing.T) {
	store := &storeFake{candidates: makeCandidates(10)}
	queryLog := &queryLogFake{}
	publisher := &publisherFake{}
	uc := newTestUseCase(&embedderFake{}, store, &rerankerFake{}).
		WithQueryLog(queryLog).
		WithEventPublisher(publisher)

	result, err := uc.Search(context.Background(), "key", domain.SearchRequest{Query: "q", TopK: 10, ReturnK: 4})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	if len(queryLog.entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(queryLog.entries))
	}
	entry := queryLog.entries[0]
	if entry.Query != "q" || entry.TopK != 10 || entry.ReturnK != 4 || entry.HitCount != len(result.Hits) {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
	if entry.RerankMode != "fallback" {
		t.Fatalf("expected fallback mode recorded, got %q", entry.RerankMode)
	}
	if len(publisher.events) != 1 || publisher.events[0].HitCount != len(result.Hits) {
		t.Fatalf("unexpected events: %+v", publisher.events)
	}
}

func TestSearchSinkFailuresDoNotFailTheSearch(t *testing.T) {
	store := &storeFake{candidates: makeCandidates(5)}
	uc := newTestUseCase(&embedderFake{}, store, &rerankerFake{}).
		WithQueryLog(&queryLogFake{err: errors.New("db down")}).
		WithEventPublisher(&publisherFake{err: errors.New("broker down")})

	result, err := uc.Search(context.Background(), "key", domain.SearchRequest{Query: "q", TopK: 5, ReturnK: 2})
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(result.Hits))
	}
}

func TestRecentDefaultsAndClamp(t *testing.T) {
	store := &storeFake{candidates: makeCandidates(3)}
	uc := newTestUseCase(&embedderFake{}, store, &rerankerFake{})

	got, err := uc.Recent(context.Background(), 0, 0, domain.RecentFilter{})
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
}
