package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg := New()
	require.Equal(t, 10000, cfg.Ingest.MaxMessageLength)
	require.Equal(t, 100, cfg.Ingest.MaxFieldsCount)
	require.Equal(t, 24, cfg.UEBA.MinObservedHours)
	require.Equal(t, "default_cim_v1", cfg.Rule.MappingProfile)
	require.Equal(t, "rule-runners", cfg.Stream.ConsumerGroup)
}

func TestLoadFromFile_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := []byte("ingest:\n  max_message_length: 20000\nrule:\n  mapping_profile: custom_v2\n")
	require.NoError(t, os.WriteFile(path, yamlContent, 0o644))

	cfg := New()
	require.NoError(t, loadFromFile(path, cfg))

	require.Equal(t, 20000, cfg.Ingest.MaxMessageLength)
	require.Equal(t, "custom_v2", cfg.Rule.MappingProfile)
	require.Equal(t, 100, cfg.Ingest.MaxFieldsCount)
}

func TestLoadFromFile_MissingIsNotError(t *testing.T) {
	cfg := New()
	require.NoError(t, loadFromFile("/nonexistent/path/config.yaml", cfg))
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("CONFIG_FILE", "/nonexistent/path/config.yaml")
	t.Setenv("INGEST_MAX_MESSAGE_LENGTH", "5000")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 5000, cfg.Ingest.MaxMessageLength)
}
