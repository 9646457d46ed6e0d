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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "server:\n  port: 8080\n"))
		require.NoError(t, err)

		assert.True(t, cfg.Privacy.Enabled)
		assert.Equal(t, []string{"all"}, cfg.Privacy.Detectors)
		assert.False(t, cfg.Privacy.StrictNames)
		assert.True(t, cfg.Review.Interactive)
		assert.Equal(t, 50, cfg.Review.ContextWindow)
		assert.Equal(t, "memory", cfg.SessionStore.Type)
	})

	t.Run("FileOverrides", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, `
server:
  port: 9090
  read_timeout: 5s
privacy:
  detectors: [dates, phones]
  strict_names: true
  extra_protected_terms: [双極症]
review:
  interactive: false
logging:
  level: debug
  format: console
`))
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, []string{"dates", "phones"}, cfg.Privacy.Detectors)
		assert.True(t, cfg.Privacy.StrictNames)
		assert.Equal(t, []string{"双極症"}, cfg.Privacy.ExtraProtectedTerms)
		assert.False(t, cfg.Review.Interactive)
		assert.Equal(t, "console", cfg.Logging.Format)
		// untouched sections keep their defaults
		assert.Equal(t, 120*time.Second, cfg.Server.WriteTimeout)
	})

	t.Run("LegacyEnvironmentVariables", func(t *testing.T) {
		t.Setenv("AI_PROVIDER", "openai")
		t.Setenv("OPENAI_API_KEY", "sk-test")

		cfg, err := Load(writeConfig(t, "logging:\n  level: info\n"))
		require.NoError(t, err)

		assert.Equal(t, "openai", cfg.Summarizer.Provider)
		assert.Equal(t, "sk-test", cfg.Summarizer.APIKey())
	})

	t.Run("InvalidValues", func(t *testing.T) {
		cases := map[string]string{
			"port":     "server:\n  port: 0\n",
			"level":    "logging:\n  level: trace\n",
			"format":   "logging:\n  format: xml\n",
			"provider": "summarizer:\n  provider: gemini\n",
			"store":    "session_store:\n  type: etcd\n",
			"audit":    "audit:\n  enabled: true\n  driver: mysql\n",
		}
		for name, body := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := Load(writeConfig(t, body))
				assert.Error(t, err)
			})
		}
	})
}
