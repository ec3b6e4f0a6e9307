package config

import "testing"

func TestLoadRetrievalDefaults(t *testing.T) {
	t.Setenv("COLLECTION_NAME", "")
	t.Setenv("EMBED_MODEL", "")
	t.Setenv("EMBED_DIM", "")
	t.Setenv("TOP_K", "")
	t.Setenv("RETURN_K", "")
	t.Setenv("MAX_QUERY_CHARS", "")
	t.Setenv("RATE_LIMIT_QPM", "")
	t.Setenv("MILVUS_TIMEOUT_SECONDS", "")

	cfg := Load()
	if cfg.CollectionName != "dns_gpt_anomalies_v1" {
		t.Fatalf("expected default collection, got %q", cfg.CollectionName)
	}
	if cfg.EmbedModel != "sentence-transformers/all-MiniLM-L6-v2" {
		t.Fatalf("expected default embed model, got %q", cfg.EmbedModel)
	}
	if cfg.EmbedDim != 384 {
		t.Fatalf("expected default embed dim 384, got %d", cfg.EmbedDim)
	}
	if cfg.TopK != 20 || cfg.ReturnK != 6 {
		t.Fatalf("expected default pool sizes 20/6, got %d/%d", cfg.TopK, cfg.ReturnK)
	}
	if cfg.MaxQueryChars != 300 {
		t.Fatalf("expected default max query chars 300, got %d", cfg.MaxQueryChars)
	}
	if cfg.RateLimitQPM != 30 {
		t.Fatalf("expected default rate limit 30 qpm, got %d", cfg.RateLimitQPM)
	}
	if cfg.MilvusTimeoutSeconds != 15 {
		t.Fatalf("expected default milvus timeout 15s, got %d", cfg.MilvusTimeoutSeconds)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("TOP_K", "35")
	t.Setenv("RETURN_K", "10")
	t.Setenv("RERANK_ENABLED", "false")
	t.Setenv("RATE_LIMIT_QPM", "5")
	t.Setenv("API_RATE_LIMIT_RPS", "50")
	t.Setenv("API_RATE_LIMIT_BURST", "100")

	cfg := Load()
	if cfg.TopK != 35 || cfg.ReturnK != 10 {
		t.Fatalf("expected pool size overrides 35/10, got %d/%d", cfg.TopK, cfg.ReturnK)
	}
	if cfg.RerankEnabled {
		t.Fatalf("expected rerank disabled")
	}
	if cfg.RateLimitQPM != 5 {
		t.Fatalf("expected rate limit override 5, got %d", cfg.RateLimitQPM)
	}
	if cfg.APIRateLimitRPS != 50 || cfg.APIRateLimitBurst != 100 {
		t.Fatalf("expected global rps 50 burst 100, got %d/%d", cfg.APIRateLimitRPS, cfg.APIRateLimitBurst)
	}
}

func TestLoadMalformedIntFallsBack(t *testing.T) {
	t.Setenv("EMBED_DIM", "not-a-number")

	cfg := Load()
	if cfg.EmbedDim != 384 {
		t.Fatalf("expected fallback dim 384, got %d", cfg.EmbedDim)
	}
}
