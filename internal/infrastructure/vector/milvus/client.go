// Package milvus is a thin client for the Milvus / Zilliz Cloud v2 REST
// API, scoped to read-and-query access over the anomaly collection.
package milvus

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/karenmasterson/dns-gpt-backend/internal/core/domain"
)

const (
	apiBase = "/v2/vectordb"

	defaultVectorField  = "embedding"
	defaultTimeout      = 15 * time.Second
	defaultSearchEffort = 64
)

type Config struct {
	URI        string
	Token      string
	Collection string

	VectorField string
	Dim         int
	// Timeout bounds every call to the store; an unreachable endpoint
	// must not hang request handlers.
	Timeout time.Duration
	// SearchEffort is the approximate-search ef knob.
	SearchEffort int
}

// Client is the process-wide collection handle: connected and validated
// once, then shared read-only across requests.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	connectOnce sync.Once
	connectErr  error
}

func New(cfg Config) *Client {
	cfg.URI = strings.TrimRight(cfg.URI, "/")
	if cfg.VectorField == "" {
		cfg.VectorField = defaultVectorField
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.SearchEffort <= 0 {
		cfg.SearchEffort = defaultSearchEffort
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

// Connect validates configuration, resolves the collection, checks the
// declared vector dimensionality against the embedder's, and loads the
// collection. Repeated calls return the cached result without
// reconnecting.
func (c *Client) Connect(ctx context.Context) error {
	c.connectOnce.Do(func() {
		c.connectErr = c.connect(ctx)
	})
	return c.connectErr
}

func (c *Client) connect(ctx context.Context) error {
	if c.cfg.URI == "" || c.cfg.Token == "" {
		return fmt.Errorf("%w: vector store URI and token are required", domain.ErrConfiguration)
	}

	var has struct {
		Has bool `json:"has"`
	}
	if err := c.post(ctx, "/collections/has", c.collectionBody(), &has, "has collection"); err != nil {
		return domain.WrapError(domain.ErrRetrieval, "check collection", err)
	}
	if !has.Has {
		return fmt.Errorf("%w: %q", domain.ErrCollectionNotFound, c.cfg.Collection)
	}

	dim, err := c.vectorFieldDim(ctx)
	if err != nil {
		return err
	}
	if dim != c.cfg.Dim {
		return fmt.Errorf("%w: collection dim %d, embedding dim %d", domain.ErrSchemaMismatch, dim, c.cfg.Dim)
	}

	if err := c.post(ctx, "/collections/load", c.collectionBody(), nil, "load collection"); err != nil {
		return domain.WrapError(domain.ErrRetrieval, "load collection", err)
	}
	return nil
}

func (c *Client) vectorFieldDim(ctx context.Context) (int, error) {
	var described struct {
		Fields []struct {
			Name   string `json:"name"`
			Params []struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			} `json:"params"`
		} `json:"fields"`
	}
	if err := c.post(ctx, "/collections/describe", c.collectionBody(), &described, "describe collection"); err != nil {
		return 0, domain.WrapError(domain.ErrRetrieval, "describe collection", err)
	}

	for _, field := range described.Fields {
		if field.Name != c.cfg.VectorField {
			continue
		}
		for _, param := range field.Params {
			if param.Key != "dim" {
				continue
			}
			dim, err := strconv.Atoi(param.Value)
			if err != nil {
				return 0, fmt.Errorf("%w: field %q declares dim %q", domain.ErrSchemaMismatch, field.Name, param.Value)
			}
			return dim, nil
		}
	}
	return 0, fmt.Errorf("%w: vector field %q not found in collection schema", domain.ErrSchemaMismatch, c.cfg.VectorField)
}

// Stats reports the live entity count. Cheap enough for readiness probes.
func (c *Client) Stats(ctx context.Context) (domain.CollectionStats, error) {
	if err := c.Connect(ctx); err != nil {
		return domain.CollectionStats{}, err
	}

	var stats struct {
		RowCount any `json:"rowCount"`
	}
	if err := c.post(ctx, "/collections/get_stats", c.collectionBody(), &stats, "collection stats"); err != nil {
		return domain.CollectionStats{}, domain.WrapError(domain.ErrRetrieval, "collection stats", err)
	}

	return domain.CollectionStats{
		Name:     c.cfg.Collection,
		Entities: int64(asFloat(stats.RowCount)),
	}, nil
}

func (c *Client) collectionBody() map[string]any {
	return map[string]any{"collectionName": c.cfg.Collection}
}

func (c *Client) post(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URI+apiBase+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("milvus %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(respBody)); msg != "" {
			return fmt.Errorf("milvus %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("milvus %s status: %s", operation, resp.Status)
	}

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	if envelope.Code != 0 {
		return fmt.Errorf("milvus %s: code %d: %s", operation, envelope.Code, envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode %s data: %w", operation, err)
		}
	}
	return nil
}
