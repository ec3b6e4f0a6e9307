package config

import (
	"os"
	"strconv"
)

type Config struct {
	APIPort  string
	LogLevel string

	ZillizURI            string
	ZillizToken          string
	CollectionName       string
	VectorField          string
	MilvusTimeoutSeconds int
	SearchEffort         int

	EmbedBaseURL string
	EmbedAPIKey  string
	EmbedModel   string
	EmbedDim     int

	TopK    int
	ReturnK int

	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	RerankEnabled        bool
	RerankTimeoutSeconds int

	MaxQueryChars     int
	RateLimitQPM      int
	APIRateLimitRPS   int
	APIRateLimitBurst int
	APIMaxInFlight    int

	CORSAllowedOrigins string

	PostgresDSN string

	NATSURL     string
	NATSSubject string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		ZillizURI:            mustEnv("ZILLIZ_URI", ""),
		ZillizToken:          mustEnv("ZILLIZ_TOKEN", ""),
		CollectionName:       mustEnv("COLLECTION_NAME", "dns_gpt_anomalies_v1"),
		VectorField:          mustEnv("VECTOR_FIELD", "embedding"),
		MilvusTimeoutSeconds: mustEnvInt("MILVUS_TIMEOUT_SECONDS", 15),
		SearchEffort:         mustEnvInt("SEARCH_EF", 64),

		EmbedBaseURL: mustEnv("EMBED_BASE_URL", ""),
		EmbedAPIKey:  mustEnv("EMBED_API_KEY", ""),
		EmbedModel:   mustEnv("EMBED_MODEL", "sentence-transformers/all-MiniLM-L6-v2"),
		EmbedDim:     mustEnvInt("EMBED_DIM", 384),

		TopK:    mustEnvInt("TOP_K", 20),
		ReturnK: mustEnvInt("RETURN_K", 6),

		OpenAIAPIKey:         mustEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:        mustEnv("OPENAI_BASE_URL", ""),
		OpenAIModel:          mustEnv("OPENAI_MODEL", "gpt-4o-mini"),
		RerankEnabled:        mustEnvBool("RERANK_ENABLED", true),
		RerankTimeoutSeconds: mustEnvInt("RERANK_TIMEOUT_SECONDS", 30),

		MaxQueryChars:     mustEnvInt("MAX_QUERY_CHARS", 300),
		RateLimitQPM:      mustEnvInt("RATE_LIMIT_QPM", 30),
		APIRateLimitRPS:   mustEnvInt("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst: mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:    mustEnvInt("API_MAX_IN_FLIGHT", 0),

		CORSAllowedOrigins: mustEnv("CORS_ALLOWED_ORIGINS", "*"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "dnsgpt.queries.served"),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
