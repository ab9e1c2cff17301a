package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.toml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.Ingest.MinTextLength)
	assert.Equal(t, "eng", cfg.Ingest.OCRLanguage)
	assert.True(t, cfg.Ingest.EnableOCR)
	assert.True(t, cfg.Ingest.SkipImageOnlyPages)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, 3*time.Second, cfg.Ingest.PollInterval.Duration)
	assert.Equal(t, 10, cfg.Ingest.PollAttempts)
	assert.Equal(t, "chat-", cfg.Retrieval.NamespacePrefix)
	assert.Equal(t, 12000, cfg.Retrieval.MaxContextChars)
	assert.Equal(t, VectorStoreQdrant, cfg.VectorStore.Backend)
	assert.Equal(t, "0.0.0.0:8080", cfg.HTTPAddr())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeConfig(t, `
[app]
port = 9090

[ingest]
chunk_size = 800
chunk_overlap = 100
poll_interval = "500ms"
ocr_language = "deu"

[embedding]
dimension = 768
retry_delay = "1s"

[vectorstore]
backend = "chromem"
`)
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("INGEST_OCR_LANGUAGE", "fra")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("EMBEDDING_API_KEY", "")
	t.Setenv("APP_PORT", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, 800, cfg.Ingest.ChunkSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Ingest.PollInterval.Duration)
	assert.Equal(t, "fra", cfg.Ingest.OCRLanguage)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, time.Second, cfg.Embedding.RetryDelay.Duration)
	assert.Equal(t, VectorStoreChromem, cfg.VectorStore.Backend)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	// Untouched sections keep their defaults.
	assert.Equal(t, "document.ingest", cfg.RabbitMQ.IngestQueue)
}

func TestLoadRejectsBadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", writeConfig(t, "[ingest]\npoll_interval = \"soon\"\n"))
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize
	cfg.Embedding.Dimension = 0
	cfg.VectorStore.Backend = "pinecone"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk_overlap")
	assert.Contains(t, err.Error(), "embedding.dimension")
	assert.Contains(t, err.Error(), "pinecone")
}

func TestMySQLDSN(t *testing.T) {
	cfg := Default()
	cfg.MySQL.Password = "secret"
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/pdfquiz?parseTime=true&loc=Local&charset=utf8mb4", cfg.MySQLDSN())
}
