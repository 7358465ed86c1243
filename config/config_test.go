package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/recipe-costing/formula"
	"github.com/warp/recipe-costing/generic"
)

func TestRead_Defaults(t *testing.T) {
	cfg, err := Read(New(), "")

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "costing.db", cfg.Store.SQLitePath)
	assert.Equal(t, PriceDriverSQLite, cfg.Prices.Driver)
	assert.Equal(t, formula.DefaultLimits(), cfg.Formula)
	assert.Equal(t, 3, cfg.Suggest.DefaultTopN)
	assert.Equal(t, LoggingConfig{Level: "info", Format: "console"}, cfg.Logging)
}

func TestRead_EnvironmentOverridesFile(t *testing.T) {
	// GIVEN: a config file and an env override for one of its keys
	path := filepath.Join(t.TempDir(), "costing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
  cors_origins: ["https://a.example"]
suggest:
  default_top_n: 5
logging:
  format: json
`), 0o600))
	t.Setenv("COSTING_SERVER_PORT", "9100")
	t.Setenv("COSTING_STORE_SQLITE_PATH", ":memory:")

	// WHEN
	cfg, err := Read(New(), path)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, []string{"https://a.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ":memory:", cfg.Store.SQLitePath)
	assert.Equal(t, 5, cfg.Suggest.DefaultTopN)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestRead_CommaSeparatedOrigins(t *testing.T) {
	t.Setenv("COSTING_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Read(New(), "")

	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestRead_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		env   map[string]string
		field string
	}{
		{"port", map[string]string{"COSTING_SERVER_PORT": "70000"}, "server.port"},
		{"driver", map[string]string{"COSTING_PRICES_DRIVER": "mysql"}, "prices.driver"},
		{"postgres without url", map[string]string{"COSTING_PRICES_DRIVER": "postgres"}, "prices.database_url"},
		{"formula limits", map[string]string{"COSTING_FORMULA_MAX_STEPS": "0"}, "formula"},
		{"top n", map[string]string{"COSTING_SUGGEST_DEFAULT_TOP_N": "-1"}, "suggest.default_top_n"},
		{"level", map[string]string{"COSTING_LOGGING_LEVEL": "loud"}, "logging.level"},
		{"format", map[string]string{"COSTING_LOGGING_FORMAT": "xml"}, "logging.format"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := Read(New(), "")

			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(New(), filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	log.Warn().Str("ref_key", "PIPE").Msg("price missing")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"ref_key":"PIPE"`)
	assert.Contains(t, out, `"level":"warn"`)

	_, err = newLogger(LoggingConfig{Level: "info", Format: "xml"}, &buf)
	assert.Error(t, err)
}
