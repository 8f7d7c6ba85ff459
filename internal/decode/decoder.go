// Package decode turns a backtest artifact file into a single JSON value.
//
// A file is first unpickled. When that fails it is read as JSON lines, then
// as one JSON document, then as raw text. Compressed files are expanded
// before any of these steps.
package decode

import (
	"fmt"
	"os"
	"unicode/utf8"

	"go.uber.org/zap"

	"backtest-artifacts/internal/config"
	"backtest-artifacts/internal/model"
	"backtest-artifacts/internal/unpickle"
)

// Source names the step of the fallback chain that produced a value.
type Source string

const (
	SourcePickle    Source = "pickle"
	SourceJSONLines Source = "jsonl"
	SourceJSON      Source = "json"
	SourceRawText   Source = "raw_text"
)

type Decoder struct {
	cfg config.DecoderConfig
	log *zap.Logger
}

func New(cfg config.DecoderConfig, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{cfg: cfg, log: log}
}

// DecodeFile reads path and decodes its content. A missing file yields an
// error matching fs.ErrNotExist.
func (d *Decoder) DecodeFile(path string) (any, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	v, src, err := d.Decode(content)
	if err != nil {
		return nil, err
	}
	d.log.Debug("decoded artifact", zap.String("path", path), zap.String("source", string(src)))
	return v, nil
}

// Decode runs the fallback chain over content and normalizes the result.
func (d *Decoder) Decode(content []byte) (any, Source, error) {
	content = d.expand(content)

	raw, pickleErr := unpickle.Loads(content)
	if pickleErr == nil {
		v, err := normalize(raw)
		return v, SourcePickle, err
	}
	d.log.Debug("not a pickle, trying JSON lines", zap.Error(pickleErr))

	docs, err := parseJSONLines(content)
	if err == nil {
		v, err := normalize(docs)
		return v, SourceJSONLines, err
	}
	d.log.Debug("not JSON lines, trying a single document", zap.Error(err))

	doc, err := parseJSON(content)
	if err == nil {
		v, err := normalize(doc)
		return v, SourceJSON, err
	}
	d.log.Debug("not a JSON document, trying raw text", zap.Error(err))

	if !utf8.Valid(content) {
		return nil, "", fmt.Errorf("unpickling failed: %w", pickleErr)
	}
	m := model.NewMapping()
	m.Set("raw_text", string(content))
	return m, SourceRawText, nil
}

// expand removes one layer of compression. Content that only looks compressed
// is returned unchanged.
func (d *Decoder) expand(content []byte) []byte {
	if d.cfg.DisableDecompress {
		return content
	}
	c, ok := sniff(content)
	if !ok {
		return content
	}
	out, err := c.decompress(content)
	if err != nil {
		d.log.Warn("decompression failed, decoding content as is", zap.String("codec", c.name), zap.Error(err))
		return content
	}
	d.log.Debug("decompressed artifact", zap.String("codec", c.name), zap.Int("from", len(content)), zap.Int("to", len(out)))
	return out
}
