package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("RELAY_MODE", "")
	t.Setenv("SESSION_POLICY", "")
	t.Setenv("INGESTION_POLL_INTERVAL", "")
	t.Setenv("INDEX_MAX_ATTEMPTS", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, RelayModeLambda, cfg.Relay.Mode)
	assert.Equal(t, SessionPolicyDownstream, cfg.Relay.SessionPolicy)
	assert.Equal(t, 40*time.Second, cfg.Ingestion.PollInterval)
	assert.Equal(t, 30, cfg.Index.MaxAttempts)
	assert.Equal(t, DefaultModelID, cfg.Gateway.ModelID)
	assert.Equal(t, "BedrockKbId", cfg.Gateway.KBExportName)
}

func TestLoadServerConfigAcceptsHostPort(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")
	server, err := loadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", server.Addr)
}

func TestLoadServerConfigRejectsSpaces(t *testing.T) {
	t.Setenv("PORT", "80 80")
	_, err := loadServerConfig()
	assert.Error(t, err)
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("INGESTION_POLL_INTERVAL", "15")
	got, err := parseDurationEnv("INGESTION_POLL_INTERVAL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Second, got)

	t.Setenv("INGESTION_POLL_INTERVAL", "250ms")
	got, err = parseDurationEnv("INGESTION_POLL_INTERVAL", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, got)

	t.Setenv("INGESTION_POLL_INTERVAL", "soon")
	_, err = parseDurationEnv("INGESTION_POLL_INTERVAL", time.Minute)
	assert.Error(t, err)
}

func TestRelayValidate(t *testing.T) {
	cfg := RelayConfig{Mode: RelayModeLambda, SessionPolicy: SessionPolicyDownstream}
	assert.Error(t, cfg.Validate(), "lambda mode needs a function name")

	cfg.LambdaFunctionName = "invoke-bedrock"
	assert.NoError(t, cfg.Validate())

	cfg.SessionPolicy = "sticky"
	assert.Error(t, cfg.Validate())

	local := RelayConfig{Mode: RelayModeLocal, SessionPolicy: SessionPolicyClient}
	assert.NoError(t, local.Validate())
}

func TestIndexValidate(t *testing.T) {
	assert.Error(t, IndexConfig{IndexName: "kb-docs"}.Validate())
	assert.Error(t, IndexConfig{CollectionEndpoint: "abc.us-east-1.aoss.amazonaws.com"}.Validate())
	assert.NoError(t, IndexConfig{CollectionEndpoint: "abc.us-east-1.aoss.amazonaws.com", IndexName: "kb-docs"}.Validate())
}

func TestLoadIngestionConfigClampsPolls(t *testing.T) {
	t.Setenv("INGESTION_MAX_POLLS", "0")
	cfg, err := loadIngestionConfig()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.MaxPolls)
}

func TestLoadAdminDefaultsMissingFile(t *testing.T) {
	got, err := LoadAdminDefaults(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultAdminDefaults(), got)
}

func TestLoadAdminDefaultsOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbadmin.toml")
	content := "bucket_name = \"my-docs\"\nchunk_max_tokens = 512\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	got, err := LoadAdminDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, "my-docs", got.BucketName)
	assert.Equal(t, int32(512), got.ChunkMaxTokens)
	assert.Equal(t, "kb-docs", got.IndexName, "unset keys keep defaults")
}

func TestLoadAdminDefaultsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbadmin.toml")
	require.NoError(t, os.WriteFile(path, []byte("bucket_name = "), 0o600))

	_, err := LoadAdminDefaults(path)
	assert.Error(t, err)
}
