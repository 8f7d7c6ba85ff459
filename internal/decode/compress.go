package decode

import (
	"bytes"
	"compress/bzip2"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

// codec is one compression format recognised by its leading bytes.
type codec struct {
	name  string
	match func(b []byte) bool
	open  func(r io.Reader) (io.Reader, error)
}

var codecs = []codec{
	{
		name:  "gzip",
		match: prefix(0x1f, 0x8b),
		open:  func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) },
	},
	{
		name:  "zstd",
		match: prefix(0x28, 0xb5, 0x2f, 0xfd),
		open: func(r io.Reader) (io.Reader, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		},
	},
	{
		name:  "xz",
		match: prefix(0xfd, '7', 'z', 'X', 'Z', 0x00),
		open:  func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) },
	},
	{
		name:  "lz4",
		match: prefix(0x04, 0x22, 0x4d, 0x18),
		open:  func(r io.Reader) (io.Reader, error) { return lz4.NewReader(r), nil },
	},
	{
		name:  "snappy",
		match: prefix(0xff, 0x06, 0x00, 0x00, 's', 'N', 'a', 'P', 'p', 'Y'),
		open:  func(r io.Reader) (io.Reader, error) { return snappy.NewReader(r), nil },
	},
	{
		name:  "bzip2",
		match: func(b []byte) bool { return len(b) >= 4 && bytes.HasPrefix(b, []byte("BZh")) && b[3] >= '1' && b[3] <= '9' },
		open:  func(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil },
	},
	{
		name:  "zlib",
		match: isZlib,
		open:  func(r io.Reader) (io.Reader, error) { return zlib.NewReader(r) },
	},
}

func prefix(magic ...byte) func([]byte) bool {
	return func(b []byte) bool { return bytes.HasPrefix(b, magic) }
}

// isZlib checks the two-byte zlib header: deflate method, 32K window and a
// header checksum divisible by 31.
func isZlib(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x78 && (uint16(b[0])<<8|uint16(b[1]))%31 == 0
}

// sniff returns the codec whose magic bytes start b, if any.
func sniff(b []byte) (codec, bool) {
	for _, c := range codecs {
		if c.match(b) {
			return c, true
		}
	}
	return codec{}, false
}

// decompress fully expands b with c.
func (c codec) decompress(b []byte) ([]byte, error) {
	r, err := c.open(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	return out, nil
}
