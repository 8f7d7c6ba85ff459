package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pt "backtest-artifacts/internal/unpickle/pickletest"
)

type runner func(prog string, args []string, stdout, stderr io.Writer) int

func run(fn runner, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := fn("test", args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunDecode_Pickle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.pickle")
	require.NoError(t, os.WriteFile(path, pt.Write(func(b *pt.Builder) {
		b.Items(pt.S("loss"), pt.F(-0.5), pt.S("is_best"), func(b *pt.Builder) { b.Bool(true) })
	}), 0o644))

	code, stdout, stderr := run(RunDecode, path)
	assert.Equal(t, 0, code)
	assert.Equal(t, `{"loss":-0.5,"is_best":true}`+"\n", stdout)
	assert.Empty(t, stderr)
}

func TestRunDecode_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"a", "b"}} {
		code, stdout, stderr := run(RunDecode, args...)
		assert.Equal(t, 1, code)
		assert.Empty(t, stdout)
		assert.Equal(t, "Usage: test <path_to_pickle_file>\n", stderr)
	}
}

func TestRunDecode_FileNotFound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.pickle")
	code, stdout, stderr := run(RunDecode, path)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Equal(t, "Error: File not found at "+path+"\n", stderr)
}

func TestRunDecode_FatalError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "binary.bin")
	require.NoError(t, os.WriteFile(path, []byte{0xff, 0x00, 0xfe}, 0o644))
	code, stdout, stderr := run(RunDecode, path)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "An error occurred: ")
}

func TestRunDecode_ConfigAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: debug\n"), 0o644))
	path := filepath.Join(dir, "trials.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"a\":1}\n{\"a\":2}\n"), 0o644))

	code, stdout, stderr := run(RunDecode, "--config", cfg, path)
	assert.Equal(t, 0, code)
	assert.Equal(t, `[{"a":1},{"a":2}]`+"\n", stdout)
	assert.Contains(t, stderr, "not a pickle")

	code, _, stderr = run(RunDecode, "--log-level", "chatty", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "An error occurred: ")
}

func TestRunRange_JSONCandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "BTC_USDT-1h.json")
	require.NoError(t, os.WriteFile(path, []byte(`[[1704067200000,1,1,1,1,1],[1704423600000,1,1,1,1,1]]`), 0o644))

	code, stdout, stderr := run(RunRange, path)
	assert.Equal(t, 0, code)
	assert.Empty(t, stderr)
	assert.Equal(t, `{"startTime":"2024-01-01T00:00:00+00:00","endTime":"2024-01-05T03:00:00+00:00"}`+"\n", stdout)
}

func TestRunRange_Errors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`[]`), 0o644))
	missing := filepath.Join(dir, "missing.feather")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "usage", args: nil, want: "Usage: test <file_path>"},
		{name: "empty", args: []string{empty}, want: "File is empty or 'date' column is missing"},
		{name: "missing", args: []string{missing}, want: missing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, stdout, stderr := run(RunRange, tt.args...)
			assert.Equal(t, 1, code)
			assert.Empty(t, stdout)
			var res errorResult
			require.NoError(t, json.Unmarshal([]byte(stderr), &res))
			assert.Contains(t, res.Error, tt.want)
		})
	}
}

func TestRunScan(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "binance")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "BTC_USDT-1h.json"), []byte(`[[1704067200000,1,1,1,1,1]]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ETH_USDT-1h.feather"), []byte("broken"), 0o644))

	code, stdout, stderr := run(RunScan, "--datadir", root, "--ranges")
	require.Equal(t, 0, code, stderr)

	var files []struct {
		Filename   string            `json:"filename"`
		Pair       string            `json:"pair"`
		Range      map[string]string `json:"range"`
		RangeError string            `json:"rangeError"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &files))
	require.Len(t, files, 2)
	assert.Equal(t, "BTC/USDT", files[0].Pair)
	assert.Equal(t, "2024-01-01T00:00:00+00:00", files[0].Range["startTime"])
	assert.Empty(t, files[0].RangeError)
	assert.Equal(t, "ETH_USDT-1h.feather", files[1].Filename)
	assert.Nil(t, files[1].Range)
	assert.NotEmpty(t, files[1].RangeError)
}

func TestRunScan_Usage(t *testing.T) {
	code, _, stderr := run(RunScan)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--datadir")
}

func TestRunHelp(t *testing.T) {
	code, stdout, _ := run(RunDecode, "--help")
	assert.Equal(t, 0, code)
	assert.Empty(t, stdout)
}
