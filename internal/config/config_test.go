package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"port": 8080,
		"jwt_secret": "j",
		"secret_key": "s",
		"database": {"driver": "sqlite", "dsn": "/tmp/catai.db"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 72, cfg.JWTTTLHours)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, "local", cfg.FileStore.Type)
	require.Equal(t, "openai", cfg.AI.Provider)
	require.Equal(t, "gpt-4o-mini", cfg.AI.Model)
	require.NotEmpty(t, cfg.AI.Instructions)
	require.Equal(t, cfg.AI.Prompt, cfg.Direct.Prompt)
	require.Equal(t, int64(10*1024*1024), cfg.Upload.MaxBytes)
	require.Contains(t, cfg.Upload.AllowedExt, ".pdf")
	require.Equal(t, 4, cfg.Schedule.ResumeConcurrency)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing jwt secret", body: `{"port": 1, "secret_key": "s", "database": {"driver": "sqlite", "dsn": "x"}}`},
		{name: "missing secret key", body: `{"port": 1, "jwt_secret": "j", "database": {"driver": "sqlite", "dsn": "x"}}`},
		{name: "missing port", body: `{"jwt_secret": "j", "secret_key": "s", "database": {"driver": "sqlite", "dsn": "x"}}`},
		{name: "bad driver", body: `{"port": 1, "jwt_secret": "j", "secret_key": "s", "database": {"driver": "mysql"}}`},
		{name: "sqlite without dsn", body: `{"port": 1, "jwt_secret": "j", "secret_key": "s", "database": {"driver": "sqlite"}}`},
		{name: "postgres without host", body: `{"port": 1, "jwt_secret": "j", "secret_key": "s"}`},
		{name: "broken json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}
}

func TestAIProviderArgs(t *testing.T) {
	cfg := AIConfig{RequestTimeoutMs: 30000, Data: map[string]interface{}{"api_key": "k"}}
	args := cfg.ProviderArgs()
	require.Equal(t, "k", args["api_key"])
	require.Equal(t, int64(30000), args["timeout_ms"])

	cfg.Data = map[string]interface{}{"timeout_ms": 5}
	require.Equal(t, float64(5), cfg.ProviderArgs()["timeout_ms"])

	require.Equal(t, map[string]interface{}{}, AIConfig{}.ProviderArgs())
}
