// ABOUTME: Tests for YAML config loading, env expansion, and validation.
// ABOUTME: Uses temp files per case, matching the distinct-port constraint.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validYAML = `
logging:
  level: debug
  format: json
backend:
  base_url: https://api.mechita.example
  token: secret
  timeout: 5s
telegram:
  enabled: true
  token: tg-token
  relay_addr: ":8081"
whatsapp:
  enabled: true
  store_path: whatsapp.db
  relay_addr: ":8082"
dedupe:
  ttl: 2m
  max_size: 500
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "https://api.mechita.example", cfg.Backend.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, ":8081", cfg.Telegram.RelayAddr)
	assert.Equal(t, ":8082", cfg.WhatsApp.RelayAddr)
	assert.Equal(t, 2*time.Minute, cfg.Dedupe.TTL)
	assert.Equal(t, 500, cfg.Dedupe.MaxSize)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
backend:
  base_url: https://api.mechita.example
telegram:
  enabled: true
  token: tg-token
  relay_addr: ":8081"
`))
	require.NoError(t, err)

	assert.Equal(t, "/chat", cfg.Telegram.StartCommand)
	assert.Equal(t, "/endchat", cfg.Telegram.EndCommand)
	assert.Equal(t, "chat", cfg.WhatsApp.StartCommand)
	assert.Equal(t, "end chat", cfg.WhatsApp.EndCommand)
	assert.Equal(t, 10*time.Minute, cfg.Dedupe.TTL)
	assert.Equal(t, 10000, cfg.Dedupe.MaxSize)
	assert.Equal(t, 10*time.Second, cfg.Backend.Timeout)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_TG_TOKEN", "expanded-token")

	cfg, err := Load(writeConfig(t, `
backend:
  base_url: https://api.mechita.example
telegram:
  enabled: true
  token: ${TEST_TG_TOKEN}
  relay_addr: ":8081"
`))
	require.NoError(t, err)
	assert.Equal(t, "expanded-token", cfg.Telegram.Token)
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	_, err := Load(writeConfig(t, `
backend:
  base_url: https://api.mechita.example
telegram:
  enabled: true
  token: ${DEFINITELY_NOT_SET_VAR_12345}
  relay_addr: ":8081"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram.token")
}

func TestLoad_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "no platform enabled",
			yaml: `
backend:
  base_url: https://api.mechita.example
`,
			wantErr: "at least one platform",
		},
		{
			name: "missing backend url",
			yaml: `
telegram:
  enabled: true
  token: t
  relay_addr: ":8081"
`,
			wantErr: "backend.base_url",
		},
		{
			name: "missing whatsapp store",
			yaml: `
backend:
  base_url: https://api.mechita.example
whatsapp:
  enabled: true
  relay_addr: ":8082"
`,
			wantErr: "whatsapp.store_path",
		},
		{
			name: "same relay address",
			yaml: `
backend:
  base_url: https://api.mechita.example
telegram:
  enabled: true
  token: t
  relay_addr: ":8081"
whatsapp:
  enabled: true
  store_path: wa.db
  relay_addr: ":8081"
`,
			wantErr: "must differ",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_BadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, `
backend:
  base_url: https://api.mechita.example
  timeout: not-a-duration
telegram:
  enabled: true
  token: t
  relay_addr: ":8081"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}
