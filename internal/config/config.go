package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port             int                 `json:"port"`
	JWTSecret        string              `json:"jwt_secret"`
	LogConfig        logger.LogConfig    `json:"log_config"`
	Database         DatabaseConfig      `json:"database"`
	DocumentStore    DocumentStoreConfig `json:"document_store"`
	DatasetStore     DatasetStoreConfig  `json:"dataset_store"`
	VectorIndex      VectorIndexConfig   `json:"vector_index"`
	AI               AIConfig            `json:"ai"`
	NER              NERConfig           `json:"ner"`
	Retrieval        RetrievalConfig     `json:"retrieval"`
	Reasoning        ReasoningConfig     `json:"reasoning"`
	Indexing         IndexingConfig      `json:"indexing"`
	CORSAllowlist    []string            `json:"cors_allowlist"`
	RateLimitSeconds int                 `json:"rate_limit_seconds"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type DocumentStoreConfig struct {
	Type  string      `json:"type"`
	Mongo MongoConfig `json:"mongo"`
}

type MongoConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// DatasetStoreConfig locates the patient datasets read by the load command.
type DatasetStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type VectorIndexConfig struct {
	Type string `json:"type"`
}

type AIConfig struct {
	Provider             string      `json:"provider"`
	Data                 interface{} `json:"data"`
	Model                string      `json:"model"`
	EmbedProvider        string      `json:"embed_provider"`
	EmbedData            interface{} `json:"embed_data"`
	EmbedModel           string      `json:"embed_model"`
	EmbedDim             int         `json:"embed_dim"`
	EmbedCacheSize       int         `json:"embed_cache_size"`
	EmbedCacheTTLSeconds int         `json:"embed_cache_ttl_seconds"`
	EmbedDBCache         bool        `json:"embed_db_cache"`
	EmbedCacheMaxAgeDays int         `json:"embed_cache_max_age_days"`
}

type NERConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

type RetrievalConfig struct {
	TopK                int `json:"top_k"`
	CohortTopK          int `json:"cohort_top_k"`
	CohortOverfetch     int `json:"cohort_overfetch"`
	PostFilterOverfetch int `json:"post_filter_overfetch"`
	SearchTimeoutMs     int `json:"search_timeout_ms"`
	RetryBackoffMs      int `json:"retry_backoff_ms"`
	ContextTokenLimit   int `json:"context_token_limit"`
}

type ReasoningConfig struct {
	StepsTimeoutSeconds  int `json:"steps_timeout_seconds"`
	AnswerTimeoutSeconds int `json:"answer_timeout_seconds"`
	MaxInputChars        int `json:"max_input_chars"`
}

type IndexingConfig struct {
	Cron             string `json:"cron"`
	CacheCleanupCron string `json:"cache_cleanup_cron"`
	BatchSize        int    `json:"batch_size"`
	Parallelism      int    `json:"parallelism"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	cfg.DocumentStore.Type = strings.ToLower(strings.TrimSpace(cfg.DocumentStore.Type))
	switch cfg.DocumentStore.Type {
	case "":
		cfg.DocumentStore.Type = "postgres"
	case "postgres":
	case "mongo":
		if cfg.DocumentStore.Mongo.URI == "" {
			return fmt.Errorf("document_store.mongo.uri is required for mongo store")
		}
		if cfg.DocumentStore.Mongo.Database == "" {
			cfg.DocumentStore.Mongo.Database = "clinrag"
		}
	default:
		return fmt.Errorf("document_store.type must be postgres or mongo")
	}

	cfg.DatasetStore.Type = strings.ToLower(strings.TrimSpace(cfg.DatasetStore.Type))
	if cfg.DatasetStore.Type == "" {
		cfg.DatasetStore.Type = "local"
	}

	cfg.VectorIndex.Type = strings.ToLower(strings.TrimSpace(cfg.VectorIndex.Type))
	switch cfg.VectorIndex.Type {
	case "":
		cfg.VectorIndex.Type = "pgvector"
	case "pgvector", "memory":
	default:
		return fmt.Errorf("vector_index.type must be pgvector or memory")
	}

	if cfg.NeedPostgres() && cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}

	if cfg.AI.Provider == "" {
		return fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.EmbedProvider == "" {
		return fmt.Errorf("ai.embed_provider is required")
	}
	if cfg.AI.EmbedCacheTTLSeconds == 0 {
		cfg.AI.EmbedCacheTTLSeconds = 600
	}
	if cfg.AI.EmbedCacheMaxAgeDays <= 0 {
		cfg.AI.EmbedCacheMaxAgeDays = 30
	}
	if cfg.AI.EmbedDBCache && !cfg.NeedPostgres() {
		return fmt.Errorf("ai.embed_db_cache needs a postgres backend")
	}

	if cfg.NER.TimeoutSeconds == 0 {
		cfg.NER.TimeoutSeconds = 30
	}

	r := &cfg.Retrieval
	if r.TopK <= 0 {
		r.TopK = 5
	}
	if r.CohortTopK <= 0 {
		r.CohortTopK = 100
	}
	if r.CohortOverfetch <= 0 {
		r.CohortOverfetch = 4
	}
	if r.PostFilterOverfetch <= 0 {
		r.PostFilterOverfetch = 10
	}
	if r.SearchTimeoutMs <= 0 {
		r.SearchTimeoutMs = 5000
	}
	if r.RetryBackoffMs <= 0 {
		r.RetryBackoffMs = 200
	}
	if r.ContextTokenLimit <= 0 {
		r.ContextTokenLimit = 6000
	}

	rs := &cfg.Reasoning
	if rs.StepsTimeoutSeconds == 0 {
		rs.StepsTimeoutSeconds = 60
	}
	if rs.AnswerTimeoutSeconds == 0 {
		rs.AnswerTimeoutSeconds = 120
	}
	if rs.StepsTimeoutSeconds < 60 || rs.StepsTimeoutSeconds > 180 {
		return fmt.Errorf("reasoning.steps_timeout_seconds must be within [60, 180]")
	}
	if rs.AnswerTimeoutSeconds < 60 || rs.AnswerTimeoutSeconds > 180 {
		return fmt.Errorf("reasoning.answer_timeout_seconds must be within [60, 180]")
	}
	if rs.MaxInputChars <= 0 {
		rs.MaxInputChars = 4000
	}

	if cfg.Indexing.BatchSize <= 0 {
		cfg.Indexing.BatchSize = 64
	}
	if cfg.Indexing.Parallelism <= 0 {
		cfg.Indexing.Parallelism = 4
	}
	if cfg.AI.EmbedDBCache && cfg.Indexing.CacheCleanupCron == "" {
		cfg.Indexing.CacheCleanupCron = "0 3 * * *"
	}
	return nil
}

// NeedPostgres reports whether any configured component lives in Postgres.
func (cfg *Config) NeedPostgres() bool {
	return cfg.DocumentStore.Type == "postgres" || cfg.VectorIndex.Type == "pgvector"
}
