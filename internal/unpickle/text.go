package unpickle

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
)

// Protocol 0 writes str through the UNICODE opcode, whose line argument is
// raw-unicode-escape text: latin-1 bytes plus \uXXXX and \UXXXXXXXX escapes.
// gopickle pushes that line as is, so streams without a PROTO header have
// each UNICODE rewritten into the equivalent BINUNICODE before loading.

const (
	opProto      = 0x80
	opStop       = '.'
	opUnicode    = 'V'
	opBinUnicode = 'X'
)

var (
	// opcodes taking a newline-terminated argument, by line count
	lineArgs = map[byte]int{'I': 1, 'L': 1, 'F': 1, 'S': 1, 'V': 1, 'P': 1, 'g': 1, 'p': 1, 'c': 2, 'i': 2}
	// opcodes taking a fixed-width argument
	fixedArgs = map[byte]int{'J': 4, 'K': 1, 'M': 2, 'G': 8, 'h': 1, 'j': 4, 'q': 1, 'r': 4}
	// opcodes prefixed by their argument length
	countedArgs = map[byte]int{'T': 4, 'U': 1, 'X': 4}
	bareOps     = "()]}N.012QRabdelostu"
)

// binaryText returns b with every protocol 0 UNICODE opcode replaced by
// BINUNICODE. Streams it cannot walk are returned unchanged.
func binaryText(b []byte) []byte {
	if len(b) == 0 || b[0] == opProto || !bytes.Contains(b, []byte{opUnicode}) {
		return b
	}
	out := make([]byte, 0, len(b))
	for i := 0; i < len(b); {
		op := b[i]
		switch {
		case op == opUnicode:
			end := bytes.IndexByte(b[i+1:], '\n')
			if end < 0 {
				return b
			}
			text := rawUnicodeEscape(b[i+1 : i+1+end])
			out = append(out, opBinUnicode)
			out = binary.LittleEndian.AppendUint32(out, uint32(len(text)))
			out = append(out, text...)
			i += end + 2
		case lineArgs[op] > 0:
			j := i + 1
			for n := 0; n < lineArgs[op]; n++ {
				end := bytes.IndexByte(b[j:], '\n')
				if end < 0 {
					return b
				}
				j += end + 1
			}
			out = append(out, b[i:j]...)
			i = j
		case fixedArgs[op] > 0:
			j := i + 1 + fixedArgs[op]
			if j > len(b) {
				return b
			}
			out = append(out, b[i:j]...)
			i = j
		case countedArgs[op] > 0:
			w := countedArgs[op]
			if i+1+w > len(b) {
				return b
			}
			n := int(b[i+1])
			if w == 4 {
				n = int(binary.LittleEndian.Uint32(b[i+1:]))
			}
			j := i + 1 + w + n
			if n < 0 || j > len(b) {
				return b
			}
			out = append(out, b[i:j]...)
			i = j
		case strings.IndexByte(bareOps, op) >= 0:
			out = append(out, op)
			i++
			if op == opStop {
				return append(out, b[i:]...)
			}
		default:
			return b
		}
	}
	return out
}

// rawUnicodeEscape decodes Python's raw-unicode-escape codec.
func rawUnicodeEscape(b []byte) string {
	var sb strings.Builder
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c == '\\' && i+1 < len(b) && (b[i+1] == 'u' || b[i+1] == 'U') {
			n := 4
			if b[i+1] == 'U' {
				n = 8
			}
			if i+2+n <= len(b) {
				if r, err := strconv.ParseUint(string(b[i+2:i+2+n]), 16, 32); err == nil {
					sb.WriteRune(rune(r))
					i += 1 + n
					continue
				}
			}
		}
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
