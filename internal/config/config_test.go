package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Equal(t, 2, cfg.MailWorkers)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
currency: "USD"
mail_workers: 5
admin_token: "from-file"
`), 0o600))

	t.Setenv("ATELIER_ADMIN_TOKEN", "from-env")
	t.Setenv("ATELIER_MAIL_WORKERS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "USD", cfg.Currency)
	// Environment beats the file.
	assert.Equal(t, "from-env", cfg.AdminToken)
	assert.Equal(t, 7, cfg.MailWorkers)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestDecodeMasterKey(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.DecodeMasterKey()
	assert.Error(t, err, "unset key must fail")

	cfg.VaultMasterKey = "not-hex"
	_, err = cfg.DecodeMasterKey()
	assert.Error(t, err)

	cfg.VaultMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
	key, err := cfg.DecodeMasterKey()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}
