package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
	assert.True(t, cfg.Matcher.FuzzyEnabled)
	assert.Equal(t, 1, cfg.Matcher.FuzzyMaxDistance)
	assert.Equal(t, 1000, cfg.Detect.MaxMessageLength)
}

func TestParse_YAMLOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
matcher:
  case_sensitive: true
  fuzzy_max_distance: 2
  placeholder: "<redacted>"
store:
  driver: postgres
  dsn: postgres://localhost/msgguard?sslmode=disable
batch:
  flush_interval: 250ms
log:
  level: debug
  format: json
`))
	require.NoError(t, err)
	assert.True(t, cfg.Matcher.CaseSensitive)
	assert.Equal(t, 2, cfg.Matcher.FuzzyMaxDistance)
	assert.True(t, cfg.Matcher.FuzzyEnabled, "untouched keys keep defaults")
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.FlushInterval)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.Equal(t, "json", cfg.Log.Format)

	opts := cfg.Matcher.Options()
	assert.True(t, opts.CaseSensitive)
	assert.Equal(t, "<redacted>", opts.Placeholder)
}

func TestParse_EnvOverridesYAML(t *testing.T) {
	t.Setenv("MSGGUARD_MATCHER_FUZZY_ENABLED", "false")
	t.Setenv("MSGGUARD_STORE_DSN", "/tmp/other.db")
	t.Setenv("MSGGUARD_BATCH_SIZE", "50")
	t.Setenv("MSGGUARD_SERVER_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Parse([]byte("store:\n  dsn: from-file.db\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Matcher.FuzzyEnabled)
	assert.Equal(t, "/tmp/other.db", cfg.Store.DSN)
	assert.Equal(t, 50, cfg.Batch.Size)
	assert.Equal(t, "127.0.0.1:9100", cfg.Server.MetricsAddr)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestParse_Invalid(t *testing.T) {
	for _, doc := range []string{
		"store:\n  driver: mysql\n",
		"matcher:\n  fuzzy_max_distance: -1\n",
		"batch:\n  size: 0\n",
		"log:\n  format: xml\n",
		"matcher: [unclosed",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, doc)
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "msgguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  path: ./rules\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "./rules", cfg.Rules.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "batch.flush_interval", envKey("MSGGUARD_BATCH_FLUSH_INTERVAL"))
	assert.Equal(t, "matcher.max_fuzzy_input", envKey("MSGGUARD_MATCHER_MAX_FUZZY_INPUT"))
}
