package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TUTOR_CONFIG", "PORT", "OLLAMA_BASE_URL", "OLLAMA_MODEL", "OLLAMA_TEMPERATURE",
		"OLLAMA_TOP_P", "OLLAMA_TOP_K", "OLLAMA_REPEAT_PENALTY", "OLLAMA_NUM_PREDICT",
		"CHAT_HISTORY_LIMIT", "STORE_DRIVER", "CHATS_FILE", "CHATS_SQLITE_PATH",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8000", cfg.Server.Addr)
	require.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	require.Equal(t, "gemma3n", cfg.Ollama.Model)
	require.Equal(t, StoreDriverFile, cfg.Store.Driver)
	require.Equal(t, "data/chats.json", cfg.Store.File)
	require.Equal(t, zerolog.InfoLevel, cfg.Log.ZerologLevel())

	opts := cfg.Ollama.Options()
	require.Equal(t, 0.7, opts["temperature"])
	require.Equal(t, 0.9, opts["top_p"])
	require.Equal(t, 40, opts["top_k"])
	require.Equal(t, 1.1, opts["repeat_penalty"])
	require.Equal(t, 512, opts["num_predict"])
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("OLLAMA_BASE_URL", "http://gpu-box:11434/")
	t.Setenv("OLLAMA_MODEL", "llama3.2")
	t.Setenv("OLLAMA_TEMPERATURE", "0.2")
	t.Setenv("OLLAMA_NUM_PREDICT", "1024")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	require.Equal(t, "http://gpu-box:11434", cfg.Ollama.BaseURL)
	require.Equal(t, "llama3.2", cfg.Ollama.Model)
	require.Equal(t, 0.2, cfg.Ollama.Temperature)
	require.Equal(t, 1024, cfg.Ollama.NumPredict)
	require.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	require.Equal(t, zerolog.DebugLevel, cfg.Log.ZerologLevel())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"port":   {"PORT", "80 80"},
		"float":  {"OLLAMA_TOP_P", "high"},
		"int":    {"OLLAMA_TOP_K", "many"},
		"driver": {"STORE_DRIVER", "postgres"},
		"url":    {"OLLAMA_BASE_URL", "localhost"},
		"level":  {"LOG_LEVEL", "loud"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadYAMLFileWithEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "tutor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":7000"
ollama:
  model: phi3
  topK: 20
store:
  driver: sqlite
  sqlitePath: /var/lib/tutor/chats.db
log:
  format: console
`), 0o644))
	t.Setenv("TUTOR_CONFIG", path)
	t.Setenv("OLLAMA_TOP_K", "64")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.Server.Addr)
	require.Equal(t, "phi3", cfg.Ollama.Model)
	require.Equal(t, 64, cfg.Ollama.TopK)
	require.Equal(t, 0.7, cfg.Ollama.Temperature)
	require.Equal(t, StoreDriverSQLite, cfg.Store.Driver)
	require.Equal(t, "/var/lib/tutor/chats.db", cfg.Store.SQLitePath)
	require.True(t, cfg.Log.Console())
}
