package domain

import "time"

// MaxTopK caps the candidate pool a single search may request from the
// vector store. Requested values above it are clamped, not rejected.
const MaxTopK = 50

// Candidate is one retrieved anomaly record with its cosine similarity
// score. Numeric metadata is optional in the collection, hence pointers.
type Candidate struct {
	Score         float64  `json:"score"`
	EventHour     string   `json:"event_hour,omitempty"`
	PrbID         *int64   `json:"prb_id,omitempty"`
	RdataTrimmed  string   `json:"rdata_trimmed,omitempty"`
	CountryCode   string   `json:"country_code,omitempty"`
	AnomalyType   string   `json:"anomaly_type,omitempty"`
	MedianRTTHour *float64 `json:"median_rtt_hour,omitempty"`
	P95RTTHour    *float64 `json:"p95_rtt_hour,omitempty"`
	ErrorRateHour *float64 `json:"error_rate_hour,omitempty"`
	RobustZRTT    *float64 `json:"robust_z_rtt,omitempty"`
	DocText       string   `json:"doc_text,omitempty"`
}

// SearchRequest carries a sanitized-or-not user question plus the
// requested pool and result sizes. Both sizes are clamped downstream.
type SearchRequest struct {
	Query   string
	TopK    int
	ReturnK int
}

type SearchResult struct {
	Query string      `json:"query"`
	Hits  []Candidate `json:"hits"`
}

// RecentFilter narrows the time-windowed scan over the anomaly collection.
type RecentFilter struct {
	CountryCode  string
	RdataTrimmed string
	AnomalyType  string
	// KnownOnly keeps only rows with a labeled anomaly type.
	KnownOnly bool
}

type CollectionStats struct {
	Name     string
	Entities int64
}

// QueryLogEntry is the audit record written after a served search.
type QueryLogEntry struct {
	Query      string
	TopK       int
	ReturnK    int
	HitCount   int
	RerankMode string
	Duration   time.Duration
}

// QueryServedEvent is published to the message bus after a served search.
type QueryServedEvent struct {
	Query      string `json:"query"`
	HitCount   int    `json:"hit_count"`
	RerankMode string `json:"rerank_mode"`
}
