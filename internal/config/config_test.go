package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepvista-rag/internal/ragerr"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  type: memory
`))
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.VectorIndex.Type)
	assert.Equal(t, "gemini", cfg.EmbedLLM.Provider)
	assert.Equal(t, "text-embedding-004", cfg.EmbedLLM.Model)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 5, cfg.RAG.BatchSize)
	assert.Equal(t, time.Second, cfg.RAG.BatchDelay)
	assert.Equal(t, 0.5, cfg.RAG.MinSimilarity)
	assert.Equal(t, 5, cfg.RAG.MaxContextChunks)
	assert.Equal(t, 30*time.Second, cfg.RAG.ComposeTimeout)
	assert.Equal(t, 3, cfg.RAG.Retry.MaxAttempts)
}

func TestParseDurationsAndEnv(t *testing.T) {
	t.Setenv("RAG_TEST_DSN", "file::memory:?cache=shared")

	cfg, err := Parse([]byte(`
database:
  type: sqlite
  dsn: ${RAG_TEST_DSN}
rag:
  batch_delay: 250ms
  search_timeout: 3s
`))
	require.NoError(t, err)

	assert.Equal(t, "file::memory:?cache=shared", cfg.Database.DSN)
	assert.Equal(t, "chromem", cfg.VectorIndex.Type)
	assert.Equal(t, 250*time.Millisecond, cfg.RAG.BatchDelay)
	assert.Equal(t, 3*time.Second, cfg.RAG.SearchTimeout)
}

func TestParseKeepsExplicitZeros(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  type: memory
inference_llm:
  temperature: 0
rag:
  chunk_size: 100
  chunk_overlap: 0
  min_similarity: 0
  batch_delay: 0s
`))
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.RAG.ChunkSize)
	assert.Zero(t, cfg.RAG.ChunkOverlap)
	assert.Zero(t, cfg.RAG.MinSimilarity)
	assert.Zero(t, cfg.RAG.BatchDelay)
	assert.Zero(t, cfg.InferenceLLM.Temperature)
	assert.Equal(t, "gemini", cfg.InferenceLLM.Provider)
	assert.Equal(t, 5, cfg.RAG.BatchSize)
	assert.Equal(t, 0.9, cfg.RAG.DedupeSimilarity)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"overlap not below size", "database: {type: memory}\nrag: {chunk_size: 100, chunk_overlap: 100}"},
		{"too many context chunks", "database: {type: memory}\nrag: {max_context_chunks: 11}"},
		{"postgres without dsn", "database: {type: postgres}"},
		{"pgvector on sqlite", "database: {type: sqlite, dsn: x.db}\nvector_index: {type: pgvector}"},
		{"unknown database", "database: {type: mongo}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("database: {type: memory}\nrag: {chunk_size: 100, chunk_overlap: 150}"))
	assert.ErrorIs(t, err, ragerr.ErrInvalidChunkConfig)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  type: memory\nrag:\n  chunk_size: 500\n  chunk_overlap: 50\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.RAG.ChunkSize)
	assert.Equal(t, 50, cfg.RAG.ChunkOverlap)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Database.Type)
}
