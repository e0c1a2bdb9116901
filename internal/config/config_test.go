package config

import "testing"

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 0},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingDatabaseAddrs(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{},
		},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for missing database addrs")
	}
}

func TestValidate_MinSimilarityAboveOne(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
		Retrieval: RetrievalConfig{MinSimilarity: 1.5},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for min_similarity above 1")
	}
}

func TestValidate_Valid(t *testing.T) {
	cfg := Config{
		HTTP: HTTPConfig{Port: 8080},
		Database: DatabaseConfig{
			Addrs: []string{"localhost:6379"},
		},
		Retrieval: RetrievalConfig{MinSimilarity: 0.7},
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default embedding model, got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 1536 {
		t.Errorf("expected Dimensions=1536, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Embedding.ChunkTokens != 2000 {
		t.Errorf("expected ChunkTokens=2000, got %d", cfg.Embedding.ChunkTokens)
	}
	if cfg.Embedding.OverlapChars != 200 {
		t.Errorf("expected OverlapChars=200, got %d", cfg.Embedding.OverlapChars)
	}
	if cfg.Embedding.CacheTTLSec != 300 {
		t.Errorf("expected CacheTTLSec=300, got %d", cfg.Embedding.CacheTTLSec)
	}
	if cfg.Embedding.CacheEntries != 1000 {
		t.Errorf("expected CacheEntries=1000, got %d", cfg.Embedding.CacheEntries)
	}
	if cfg.Retrieval.MinSimilarity != 0.7 {
		t.Errorf("expected MinSimilarity=0.7, got %f", cfg.Retrieval.MinSimilarity)
	}
	if cfg.Retrieval.SnippetChars != 500 {
		t.Errorf("expected SnippetChars=500, got %d", cfg.Retrieval.SnippetChars)
	}
	if cfg.Retrieval.SearchTimeoutSec != 5 {
		t.Errorf("expected SearchTimeoutSec=5, got %d", cfg.Retrieval.SearchTimeoutSec)
	}
	if cfg.Retrieval.RerankTimeoutSec != 10 {
		t.Errorf("expected RerankTimeoutSec=10, got %d", cfg.Retrieval.RerankTimeoutSec)
	}
	if cfg.Index.HNSWM != 32 {
		t.Errorf("expected HNSWM=32, got %d", cfg.Index.HNSWM)
	}
	if cfg.Index.HNSWEFConstruct != 400 {
		t.Errorf("expected HNSWEFConstruct=400, got %d", cfg.Index.HNSWEFConstruct)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:  DatabaseConfig{ReadinessTimeout: 15},
		Embedding: EmbeddingConfig{Model: "custom-model", Dimensions: 768, ChunkTokens: 1000},
		Retrieval: RetrievalConfig{MinSimilarity: 0.5, SnippetChars: 200},
		Index:     IndexConfig{HNSWM: 16, HNSWEFConstruct: 200},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Embedding.Model != "custom-model" {
		t.Errorf("expected Model='custom-model', got %q", cfg.Embedding.Model)
	}
	if cfg.Embedding.Dimensions != 768 {
		t.Errorf("expected Dimensions=768, got %d", cfg.Embedding.Dimensions)
	}
	if cfg.Retrieval.MinSimilarity != 0.5 {
		t.Errorf("expected MinSimilarity=0.5, got %f", cfg.Retrieval.MinSimilarity)
	}
	if cfg.Index.HNSWM != 16 {
		t.Errorf("expected HNSWM=16, got %d", cfg.Index.HNSWM)
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("DOCRANK_TEST_VAR", "from-env")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"set variable", "key: ${DOCRANK_TEST_VAR}", "key: from-env"},
		{"unset variable", "key: ${DOCRANK_TEST_UNSET}", "key: "},
		{"unset with default", "key: ${DOCRANK_TEST_UNSET:-fallback}", "key: fallback"},
		{"set ignores default", "key: ${DOCRANK_TEST_VAR:-fallback}", "key: from-env"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(expandEnvVars([]byte(tt.in))); got != tt.want {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
