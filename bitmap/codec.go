package bitmap

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// CodecError is returned by Decode when the encoded string is not a
// well-formed codeword sequence.
var CodecError = errors.New("bitmap: malformed codec string")

// Encode produces the on-disk run-length encoding of b: the bit string
// b[0..Len()) with a sentinel 1 appended, walked run-by-run. Each run of
// z >= 0 zeros followed by a 1 is written as the Elias-gamma-style
// codeword: (k-1) literal 1s, a 0, then the k-bit binary encoding of z
// (z=0 encodes as the single bit "0", so k=1 in that case). The result is
// an ASCII string of '0'/'1' characters — the simple, portable form used
// by the on-disk metadata format.
func (b *Bitmap) Encode() string {
	var out strings.Builder
	zeroRun := uint64(0)
	emit := func(afterOne bool) {
		body := strconv.FormatUint(zeroRun, 2)
		k := len(body)
		out.WriteString(strings.Repeat("1", k-1))
		out.WriteByte('0')
		out.WriteString(body)
		zeroRun = 0
	}
	for pos := uint64(0); pos < b.length; pos++ {
		if b.testUnchecked(pos) {
			emit(true)
		} else {
			zeroRun++
		}
	}
	// trailing sentinel bit is always a 1
	emit(true)
	return out.String()
}

// Decode reconstructs a Bitmap from its Encode-produced form. The decoded
// bitmap's length is derived from the encoding itself (the position of the
// sentinel 1 determines it), matching the reference codec's self-describing
// framing rather than requiring the caller to pass a redundant length.
func Decode(encoded string) (*Bitmap, error) {
	var decoded strings.Builder
	i, n := 0, len(encoded)
	for i < n {
		start := i
		for i < n && encoded[i] == '1' {
			i++
		}
		if i >= n {
			return nil, errors.Wrap(CodecError, "unterminated unary prefix")
		}
		// encoded[i] == '0': consume it, completing the prefix
		i++
		prefixLen := i - start // k-1 ones + the terminating 0 == k characters
		if i+prefixLen > n {
			return nil, errors.Wrap(CodecError, "truncated codeword body")
		}
		body := encoded[i : i+prefixLen]
		z, err := strconv.ParseUint(body, 2, 64)
		if err != nil {
			return nil, errors.Wrapf(CodecError, "invalid codeword body %q", body)
		}
		i += prefixLen
		decoded.WriteString(strings.Repeat("0", int(z)))
		decoded.WriteByte('1')
	}
	bits := decoded.String()
	if len(bits) == 0 {
		return nil, errors.Wrap(CodecError, "empty decode result")
	}
	bits = bits[:len(bits)-1] // strip the trailing sentinel
	bm := New(uint64(len(bits)))
	for pos, c := range bits {
		if c == '1' {
			if err := bm.SetBit(uint64(pos)); err != nil {
				return nil, err
			}
		}
	}
	return bm, nil
}
