// Package httpadapter exposes the retrieval pipeline over HTTP.
package httpadapter

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/karenmasterson/dns-gpt-backend/internal/config"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/ports"
	"github.com/karenmasterson/dns-gpt-backend/internal/core/usecase"
	"github.com/karenmasterson/dns-gpt-backend/internal/observability/metrics"
)

const serviceName = "api"

type Router struct {
	searchUC *usecase.SearchUseCase
	store    ports.VectorStore
	cfg      config.Config
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	searchUC *usecase.SearchUseCase,
	store ports.VectorStore,
	cfg config.Config,
	serverMetrics *metrics.HTTPServerMetrics,
) *Router {
	return &Router{
		searchUC: searchUC,
		store:    store,
		cfg:      cfg,
		metrics:  serverMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", rt.health)
	mux.HandleFunc("/ready", rt.ready)
	mux.HandleFunc("/search", rt.search)
	mux.HandleFunc("/ask", rt.search)
	mux.HandleFunc("/recent", rt.recent)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	if rt.cfg.APIMaxInFlight > 0 {
		handler = backpressureMiddleware(handler, rt.cfg.APIMaxInFlight, backpressureWait)
	}
	if rt.cfg.APIRateLimitRPS > 0 {
		handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	}
	if rt.cfg.CORSAllowedOrigins != "" {
		handler = corsMiddleware(handler, rt.cfg.CORSAllowedOrigins)
	}
	handler = accessLogMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// ready reports whether the collection behind the service is reachable
// and loaded. Any stats failure is "not ready" (503), never a plain
// server error, so orchestrators keep the instance out of rotation
// instead of restarting it.
func (rt *Router) ready(w http.ResponseWriter, r *http.Request) {
	stats, err := rt.store.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"ok":         false,
			"error":      err.Error(),
			"request_id": requestIDFromContext(r.Context()),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"collection": stats.Name,
		"entities":   stats.Entities,
	})
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req struct {
		Query   string `json:"query"`
		TopK    *int   `json:"top_k"`
		ReturnK *int   `json:"return_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	topK := rt.cfg.TopK
	if req.TopK != nil {
		topK = *req.TopK
	}
	returnK := rt.cfg.ReturnK
	if req.ReturnK != nil {
		returnK = *req.ReturnK
	}

	start := time.Now()
	result, err := rt.searchUC.Search(r.Context(), clientIP(r), domain.SearchRequest{
		Query:   req.Query,
		TopK:    topK,
		ReturnK: returnK,
	})
	if err != nil {
		rt.countRejection(err)
		rt.recordSearch("error", 0, 0)
		writeError(w, r, err)
		return
	}

	rt.recordSearch("success", len(result.Hits), time.Since(start))
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) recent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	hours, _ := strconv.Atoi(q.Get("hours"))
	knownOnly, _ := strconv.ParseBool(q.Get("known_only"))

	candidates, err := rt.searchUC.Recent(r.Context(), limit, hours, domain.RecentFilter{
		CountryCode:  strings.ToUpper(strings.TrimSpace(q.Get("country"))),
		RdataTrimmed: strings.TrimSpace(q.Get("rdata")),
		AnomalyType:  strings.TrimSpace(q.Get("anomaly_type")),
		KnownOnly:    knownOnly,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"anomalies": candidates})
}

func (rt *Router) recordSearch(status string, hits int, duration time.Duration) {
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, "/search", status, hits, duration)
	}
}

func (rt *Router) countRejection(err error) {
	if rt.metrics == nil {
		return
	}
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		rt.metrics.RecordRejectedQuery(serviceName, "guard")
	case domain.IsKind(err, domain.ErrRateLimited):
		rt.metrics.RecordRejectedQuery(serviceName, "rate_limit")
	}
}

// clientIP keys per-client rate limiting. Behind a proxy the first
// X-Forwarded-For hop is the caller; otherwise the socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": requestIDFromContext(r.Context()),
	})
}
