// Package config loads the engine's configuration from environment
// variables with hardcoded defaults, then applies an optional YAML overlay.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"ragmemory/internal/logging"
)

// Config holds every tunable the engine reads at startup. Values are read
// from the environment, with a hardcoded default for anything unset or
// unparseable; an optional YAML overlay is applied last and overrides
// every field it sets, including values that came from the environment.
type Config struct {
	Port     int
	CacheDir string

	OpenAIAPIKey string
	DatabaseURL  string

	RerankerEnabled     bool
	QueryRewriteEnabled bool
	GraphEnabled        bool
	DecomposeEnabled    bool

	ChunkSize       int
	ChunkOverlap    int
	EmbeddingModel  string
	RerankOverfetch int

	ExtractorConcurrency int
	ExtractionBatchSize  int
	FactSearchLimit      int
	SessionBoost         float64
	VectorDim            int

	RedisURL string
	LockDir  string

	LogLevel string
}

// yamlOverlay mirrors the subset of Config fields an operator may want to
// set via a checked-in file instead of the environment.
type yamlOverlay struct {
	Port                 *int     `yaml:"port"`
	CacheDir             *string  `yaml:"cacheDir"`
	ChunkSize            *int     `yaml:"chunkSize"`
	ChunkOverlap         *int     `yaml:"chunkOverlap"`
	EmbeddingModel       *string  `yaml:"embeddingModel"`
	RerankOverfetch      *int     `yaml:"rerankOverfetch"`
	ExtractorConcurrency *int     `yaml:"extractorConcurrency"`
	ExtractionBatchSize  *int     `yaml:"extractionBatchSize"`
	FactSearchLimit      *int     `yaml:"factSearchLimit"`
	SessionBoost         *float64 `yaml:"sessionBoost"`
	VectorDim            *int     `yaml:"vectorDim"`
}

// Load reads .env (best-effort), then the process environment, then an
// optional YAML overlay at yamlPath (ignored if empty or missing), and
// returns the resolved Config. Load does not validate OpenAIAPIKey's
// presence — callers that require it should check explicitly so that
// tests can construct a Config without a live key.
func Load(yamlPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Log.Debugf("config: no .env file loaded: %v", err)
	}

	cfg := &Config{
		Port:                 parseInt(os.Getenv("RAG_PORT"), 3847),
		CacheDir:             firstNonEmpty(os.Getenv("RAG_CACHE_DIR"), "./data/cache/rag"),
		OpenAIAPIKey:         os.Getenv("OPENAI_API_KEY"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		RerankerEnabled:      parseBool(os.Getenv("RAG_RERANKER"), false),
		QueryRewriteEnabled:  parseBool(os.Getenv("RAG_QUERY_REWRITE"), false),
		GraphEnabled:         parseBool(os.Getenv("RAG_GRAPH"), true),
		DecomposeEnabled:     parseBool(os.Getenv("RAG_DECOMPOSE"), true),
		ChunkSize:            parseInt(os.Getenv("RAG_CHUNK_SIZE"), 1600),
		ChunkOverlap:         parseInt(os.Getenv("RAG_CHUNK_OVERLAP"), 320),
		EmbeddingModel:       firstNonEmpty(os.Getenv("RAG_EMBEDDING_MODEL"), "text-embedding-3-large"),
		RerankOverfetch:      parseInt(os.Getenv("RAG_RERANK_OVERFETCH"), 10),
		ExtractorConcurrency: parseInt(os.Getenv("RAG_EXTRACTOR_CONCURRENCY"), 300),
		ExtractionBatchSize:  parseInt(os.Getenv("RAG_EXTRACTION_BATCH_SIZE"), 10),
		FactSearchLimit:      parseInt(os.Getenv("RAG_FACT_SEARCH_LIMIT"), 30),
		SessionBoost:         parseFloat(os.Getenv("RAG_SESSION_BOOST"), 0.1),
		VectorDim:            parseInt(os.Getenv("RAG_VECTOR_DIM"), 3072),
		RedisURL:             os.Getenv("RAG_REDIS_URL"),
		LogLevel:             firstNonEmpty(os.Getenv("RAG_LOG_LEVEL"), os.Getenv("LOG_LEVEL")),
	}
	cfg.LockDir = firstNonEmpty(os.Getenv("RAG_LOCK_DIR"), cfg.CacheDir+"/.locks")

	if yamlPath != "" {
		if data, err := os.ReadFile(yamlPath); err == nil {
			var overlay yamlOverlay
			if err := yaml.Unmarshal(data, &overlay); err != nil {
				logging.Log.Warnf("config: failed to parse yaml overlay %s: %v", yamlPath, err)
			} else {
				applyOverlay(cfg, overlay)
			}
		}
	}

	return cfg, nil
}

func applyOverlay(cfg *Config, o yamlOverlay) {
	if o.Port != nil {
		cfg.Port = *o.Port
	}
	if o.CacheDir != nil {
		cfg.CacheDir = *o.CacheDir
	}
	if o.ChunkSize != nil {
		cfg.ChunkSize = *o.ChunkSize
	}
	if o.ChunkOverlap != nil {
		cfg.ChunkOverlap = *o.ChunkOverlap
	}
	if o.EmbeddingModel != nil {
		cfg.EmbeddingModel = *o.EmbeddingModel
	}
	if o.RerankOverfetch != nil {
		cfg.RerankOverfetch = *o.RerankOverfetch
	}
	if o.ExtractorConcurrency != nil {
		cfg.ExtractorConcurrency = *o.ExtractorConcurrency
	}
	if o.ExtractionBatchSize != nil {
		cfg.ExtractionBatchSize = *o.ExtractionBatchSize
	}
	if o.FactSearchLimit != nil {
		cfg.FactSearchLimit = *o.FactSearchLimit
	}
	if o.SessionBoost != nil {
		cfg.SessionBoost = *o.SessionBoost
	}
	if o.VectorDim != nil {
		cfg.VectorDim = *o.VectorDim
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func parseBool(s string, def bool) bool {
	if s == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return b
}
