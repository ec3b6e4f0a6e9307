package milvus

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
)

// eventHourLayout is zero-padded and fixed-width, so lexicographic
// comparison on the string-typed column matches chronological order.
const eventHourLayout = "2006-01-02T15:04"

// recentScanCeiling bounds how many rows a windowed scan may pull before
// sorting in memory.
const recentScanCeiling = 5000

var outputFields = []string{
	"doc_text", "event_hour", "prb_id", "rdata_trimmed",
	"country_code", "anomaly_type", "median_rtt_hour",
	"p95_rtt_hour", "error_rate_hour", "robust_z_rtt",
}

// Search runs a single-vector nearest-neighbor query, cosine metric,
// and returns at most topK candidates in the store's descending
// similarity order.
func (c *Client) Search(ctx context.Context, vector []float32, topK int) ([]domain.Candidate, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"collectionName": c.cfg.Collection,
		"data":           [][]float32{vector},
		"annsField":      c.cfg.VectorField,
		"limit":          topK,
		"outputFields":   outputFields,
		"searchParams": map[string]any{
			"metricType": "COSINE",
			"params":     map[string]any{"ef": c.cfg.SearchEffort},
		},
	}

	var rows []map[string]any
	if err := c.post(ctx, "/entities/search", reqBody, &rows, "search"); err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "vector search", err)
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, candidateFromRow(row, asFloat(row["distance"])))
	}
	return candidates, nil
}

// QueryRecent scans the collection behind a time cutoff and optional
// equality filters, then orders by recency and anomaly strength. Rows
// with missing or malformed numeric metadata sort as if the value were
// 0.0; they never fail the call.
func (c *Client) QueryRecent(ctx context.Context, limit, windowHours int, filter domain.RecentFilter) ([]domain.Candidate, error) {
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	cutoff := c.now().UTC().
		Add(-time.Duration(windowHours) * time.Hour).
		Truncate(time.Hour).
		Format(eventHourLayout)

	exprs := []string{fmt.Sprintf("event_hour >= %q", cutoff)}
	if filter.CountryCode != "" {
		exprs = append(exprs, fmt.Sprintf("country_code == %q", filter.CountryCode))
	}
	if filter.RdataTrimmed != "" {
		exprs = append(exprs, fmt.Sprintf("rdata_trimmed == %q", filter.RdataTrimmed))
	}
	if filter.AnomalyType != "" {
		exprs = append(exprs, fmt.Sprintf("anomaly_type == %q", filter.AnomalyType))
	}
	if filter.KnownOnly {
		exprs = append(exprs, `anomaly_type != ""`)
	}

	reqBody := map[string]any{
		"collectionName": c.cfg.Collection,
		"filter":         strings.Join(exprs, " and "),
		"limit":          recentScanCeiling,
		"outputFields":   outputFields,
	}

	var rows []map[string]any
	if err := c.post(ctx, "/entities/query", reqBody, &rows, "query"); err != nil {
		return nil, domain.WrapError(domain.ErrRetrieval, "query recent", err)
	}

	candidates := make([]domain.Candidate, 0, len(rows))
	for _, row := range rows {
		candidates = append(candidates, candidateFromRow(row, 0))
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.EventHour != b.EventHour {
			return a.EventHour > b.EventHour
		}
		if az, bz := floatOrZero(a.RobustZRTT), floatOrZero(b.RobustZRTT); az != bz {
			return az > bz
		}
		return floatOrZero(a.ErrorRateHour) > floatOrZero(b.ErrorRateHour)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func candidateFromRow(row map[string]any, score float64) domain.Candidate {
	return domain.Candidate{
		Score:         score,
		EventHour:     asString(row["event_hour"]),
		PrbID:         asIntPtr(row["prb_id"]),
		RdataTrimmed:  asString(row["rdata_trimmed"]),
		CountryCode:   asString(row["country_code"]),
		AnomalyType:   asString(row["anomaly_type"]),
		MedianRTTHour: asFloatPtr(row["median_rtt_hour"]),
		P95RTTHour:    asFloatPtr(row["p95_rtt_hour"]),
		ErrorRateHour: asFloatPtr(row["error_rate_hour"]),
		RobustZRTT:    asFloatPtr(row["robust_z_rtt"]),
		DocText:       asString(row["doc_text"]),
	}
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func asFloatPtr(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return nil
		}
		return &f
	default:
		return nil
	}
}

func asIntPtr(v any) *int64 {
	switch n := v.(type) {
	case float64:
		i := int64(n)
		return &i
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return nil
		}
		return &i
	default:
		return nil
	}
}

func floatOrZero(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
