package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "date", c.Range.DateColumn)
	assert.Equal(t, "", c.Range.Format)
	assert.Equal(t, "warn", c.Log.Level)
	assert.Equal(t, "console", c.Log.Encoding)
	assert.False(t, c.Decoder.DisableDecompress)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
decoder:
  disable_decompress: true
range:
  date_column: open_time
  format: parquet
log:
  level: debug
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.Decoder.DisableDecompress)
	assert.Equal(t, "open_time", c.Range.DateColumn)
	assert.Equal(t, "parquet", c.Range.Format)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, "console", c.Log.Encoding)
}

func TestLoad_Invalid(t *testing.T) {
	tests := map[string]string{
		"format":   "range:\n  format: csv\n",
		"level":    "log:\n  level: chatty\n",
		"encoding": "log:\n  encoding: xml\n",
		"yaml":     "range: [unterminated\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadUnchecked_SkipsDefaultsAndValidation(t *testing.T) {
	c, err := LoadUnchecked(writeConfig(t, "range:\n  format: csv\n"))
	require.NoError(t, err)
	assert.Equal(t, "csv", c.Range.Format)
	assert.Equal(t, "", c.Range.DateColumn)
	assert.Error(t, c.Validate())
}

func TestMerge(t *testing.T) {
	base := *Default()
	out := Merge(base, Config{Range: RangeConfig{Format: "json"}, Log: LogConfig{Level: "error"}})
	assert.Equal(t, "json", out.Range.Format)
	assert.Equal(t, "date", out.Range.DateColumn)
	assert.Equal(t, "error", out.Log.Level)
	assert.Equal(t, "console", out.Log.Encoding)

	assert.Equal(t, base, Merge(base, Config{}))
}
