package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
	"github.com/karenmasterson/dns-gpt-backend/internal/infrastructure/resilience"
)

const (
	defaultRerankBaseURL = "https://api.openai.com/v1"
	defaultRerankTimeout = 30 * time.Second
	docTextLimit         = 800
)

type RerankerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Enabled bool
	Timeout time.Duration
}

// Reranker reorders candidates with a chat-completion call. Availability
// beats rank quality here: every LLM-path failure degrades to the
// original vector order and the caller never sees an error.
type Reranker struct {
	cfg        RerankerConfig
	httpClient *http.Client
	executor   *resilience.Executor

	rerankTotal   *prometheus.CounterVec
	degradedTotal prometheus.Counter
}

func NewReranker(cfg RerankerConfig) *Reranker {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultRerankBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRerankTimeout
	}
	return &Reranker{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// WithExecutor adds a circuit breaker around the completion call so a
// dead provider stops costing latency. An open circuit is just another
// degrade cause.
func (r *Reranker) WithExecutor(executor *resilience.Executor) *Reranker {
	r.executor = executor
	return r
}

// WithMetrics attaches counters: rerankTotal with a "mode" label and a
// plain degraded counter. Both are optional.
func (r *Reranker) WithMetrics(rerankTotal *prometheus.CounterVec, degradedTotal prometheus.Counter) *Reranker {
	r.rerankTotal = rerankTotal
	r.degradedTotal = degradedTotal
	return r
}

func (r *Reranker) Mode() string {
	if r.cfg.Enabled && r.cfg.APIKey != "" {
		return "llm"
	}
	return "fallback"
}

// Rerank returns indices into candidates, at most min(k, len(candidates)),
// in relevance order. It never fails and never panics.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.Candidate, k int) []int {
	if k > len(candidates) {
		k = len(candidates)
	}
	if k <= 0 {
		return nil
	}

	if r.Mode() != "llm" {
		r.countMode("fallback")
		return identityOrder(k)
	}

	order, err := r.rerankLLM(ctx, query, candidates, k)
	if err != nil {
		slog.Warn("rerank_degraded", "error", err, "candidates", len(candidates))
		if r.degradedTotal != nil {
			r.degradedTotal.Inc()
		}
		r.countMode("fallback")
		return identityOrder(k)
	}
	r.countMode("llm")
	return order
}

// rerankItem is the compact candidate projection sent to the model.
type rerankItem struct {
	Idx          int     `json:"idx"`
	Score        float64 `json:"score"`
	DocText      string  `json:"doc_text"`
	EventHour    string  `json:"event_hour,omitempty"`
	RdataTrimmed string  `json:"rdata_trimmed,omitempty"`
	CountryCode  string  `json:"country_code,omitempty"`
	AnomalyType  string  `json:"anomaly_type,omitempty"`
}

func (r *Reranker) rerankLLM(ctx context.Context, query string, candidates []domain.Candidate, k int) ([]int, error) {
	items := make([]rerankItem, 0, len(candidates))
	for i, c := range candidates {
		items = append(items, rerankItem{
			Idx:          i,
			Score:        math.Round(c.Score*1e4) / 1e4,
			DocText:      truncate(c.DocText, docTextLimit),
			EventHour:    c.EventHour,
			RdataTrimmed: c.RdataTrimmed,
			CountryCode:  c.CountryCode,
			AnomalyType:  c.AnomalyType,
		})
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal rerank candidates: %w", err)
	}
	content := buildRerankPrompt(query, k) + "\n\nCANDIDATES:\n" + string(payload)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	var completion string
	call := func(ctx context.Context) error {
		var callErr error
		completion, callErr = r.complete(ctx, content)
		return callErr
	}
	if r.executor != nil {
		err = r.executor.Execute(ctx, "openai.rerank", call, classifyRerankError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, err
	}

	return parseRerankOrder(completion, len(candidates), k)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatCompletionRequest keeps temperature without omitempty so the
// deterministic 0 is explicit on the wire.
type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

func (r *Reranker) complete(ctx context.Context, content string) (string, error) {
	body, err := json.Marshal(chatCompletionRequest{
		Model:       r.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: content}},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &HTTPStatusError{
			Operation:  "rerank",
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(respBody),
		}
	}

	var completionResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&completionResp); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(completionResp.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return completionResp.Choices[0].Message.Content, nil
}

// parseRerankOrder expects the completion text to contain a JSON array of
// {idx, final} objects. Indices are bounds-checked and de-duplicated; the
// returned order is the array order truncated to k.
func parseRerankOrder(text string, n, k int) ([]int, error) {
	var entries []struct {
		Idx   *int    `json:"idx"`
		Final float64 `json:"final"`
	}
	if err := json.Unmarshal([]byte(extractJSONArray(text)), &entries); err != nil {
		return nil, fmt.Errorf("parse rerank completion: %w", err)
	}

	seen := make(map[int]bool, len(entries))
	order := make([]int, 0, k)
	for _, entry := range entries {
		if entry.Idx == nil {
			return nil, fmt.Errorf("parse rerank completion: entry missing idx")
		}
		idx := *entry.Idx
		if idx < 0 || idx >= n {
			return nil, fmt.Errorf("parse rerank completion: idx %d out of range [0,%d)", idx, n)
		}
		if seen[idx] {
			continue
		}
		seen[idx] = true
		order = append(order, idx)
		if len(order) == k {
			break
		}
	}
	return order, nil
}

func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}

func identityOrder(k int) []int {
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	return order
}

// truncate caps s at limit characters without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func (r *Reranker) countMode(mode string) {
	if r.rerankTotal != nil {
		r.rerankTotal.WithLabelValues(mode).Inc()
	}
}
