// Package bitmap implements a fixed-length, resizable bit vector with the
// set/clear/test, bitwise AND/OR/NOT, population count and ascending-order
// iteration operations the bitmap index layer is built on, plus the
// run-length codec used to persist bitmaps to the metadata file.
package bitmap

import (
	"math/bits"

	"github.com/pkg/errors"
)

const wordBits = 64

// OutOfRange is returned whenever a bit position >= the bitmap's length is
// addressed by SetBit, ClearBit or Test.
var OutOfRange = errors.New("bitmap: position out of range")

// Bitmap is a fixed-length bit vector backed by 64-bit words.
//
// count is a cache maintained by SetBit/ClearBit; it is only authoritative
// immediately after a sequence of SetBit/ClearBit calls or a Resize (which
// recomputes it). Any raw word operation (And, Or, Not) invalidates it —
// callers that need an accurate count after those must call PopCount, which
// always recomputes from the backing words.
type Bitmap struct {
	words  []uint64
	length uint64
	count  uint64
}

// New creates a Bitmap of the given logical bit length, all bits clear.
func New(length uint64) *Bitmap {
	return &Bitmap{
		words:  make([]uint64, wordCount(length)),
		length: length,
	}
}

func wordCount(length uint64) uint64 {
	return (length + wordBits - 1) / wordBits
}

// Len returns the logical bit length L.
func (b *Bitmap) Len() uint64 { return b.length }

// Resize grows or shrinks the backing store to ceil(newLength/64) words,
// preserving existing bits. Growth is expected one bit at a time in steady
// use (spec.md §4.1); shrinking truncates and clears any now out-of-range
// trailing bits.
func (b *Bitmap) Resize(newLength uint64) {
	newWordCount := wordCount(newLength)
	if newWordCount != uint64(len(b.words)) {
		words := make([]uint64, newWordCount)
		copy(words, b.words)
		b.words = words
	}
	b.length = newLength
	b.maskTail()
	b.count = b.PopCount()
}

// maskTail clears any bits at positions >= length within the last word, so
// that stray high bits never leak into PopCount or iteration.
func (b *Bitmap) maskTail() {
	if len(b.words) == 0 {
		return
	}
	validBitsInLastWord := b.length % wordBits
	if validBitsInLastWord == 0 {
		return
	}
	mask := (uint64(1) << validBitsInLastWord) - 1
	b.words[len(b.words)-1] &= mask
}

func (b *Bitmap) checkRange(pos uint64) error {
	if pos >= b.length {
		return errors.Wrapf(OutOfRange, "bitmap length is %d, requested index is %d", b.length, pos)
	}
	return nil
}

// SetBit sets bit pos to 1, incrementing the cached count if it was
// previously 0. Returns OutOfRange if pos >= Len().
func (b *Bitmap) SetBit(pos uint64) error {
	if err := b.checkRange(pos); err != nil {
		return err
	}
	word, mask := pos/wordBits, uint64(1)<<(pos%wordBits)
	if b.words[word]&mask == 0 {
		b.count++
	}
	b.words[word] |= mask
	return nil
}

// ClearBit sets bit pos to 0, decrementing the cached count if it was
// previously 1. Returns OutOfRange if pos >= Len().
func (b *Bitmap) ClearBit(pos uint64) error {
	if err := b.checkRange(pos); err != nil {
		return err
	}
	word, mask := pos/wordBits, uint64(1)<<(pos%wordBits)
	if b.words[word]&mask != 0 {
		b.count--
	}
	b.words[word] &^= mask
	return nil
}

// Test returns whether bit pos is set. Returns OutOfRange if pos >= Len().
func (b *Bitmap) Test(pos uint64) (bool, error) {
	if err := b.checkRange(pos); err != nil {
		return false, err
	}
	return b.testUnchecked(pos), nil
}

func (b *Bitmap) testUnchecked(pos uint64) bool {
	return b.words[pos/wordBits]&(uint64(1)<<(pos%wordBits)) != 0
}

// CachedCount returns the bit count maintained incrementally by SetBit and
// ClearBit and recomputed by Resize. It is only authoritative when no
// And/Or/Not has run since; use PopCount for a guaranteed-accurate
// count after algebraic operations.
func (b *Bitmap) CachedCount() uint64 { return b.count }

// PopCount sums the hardware popcount of every backing word. Always
// authoritative.
func (b *Bitmap) PopCount() uint64 {
	var total uint64
	for _, w := range b.words {
		total += uint64(bits.OnesCount64(w))
	}
	return total
}

// FirstClear returns the position of the lowest clear bit, or (0, false)
// if every bit is set (used by the index manager to find a reclaimable
// RID, spec.md §4.6).
func (b *Bitmap) FirstClear() (uint64, bool) {
	for i, w := range b.words {
		complement := ^w
		if complement == 0 {
			continue
		}
		pos := uint64(i)*wordBits + uint64(bits.TrailingZeros64(complement))
		if pos >= b.length {
			return 0, false
		}
		return pos, true
	}
	return 0, false
}

// Clone returns an independent copy of b.
func (b *Bitmap) Clone() *Bitmap {
	words := make([]uint64, len(b.words))
	copy(words, b.words)
	return &Bitmap{words: words, length: b.length, count: b.count}
}

// requireSameLength returns an error if a and b don't share a logical
// length; AND/OR only make sense over bitmaps of identical length.
func requireSameLength(a, b *Bitmap) error {
	if a.length != b.length {
		return errors.Errorf("bitmap: length mismatch %d != %d", a.length, b.length)
	}
	return nil
}

// And performs an in-place AND= with other.
func (b *Bitmap) And(other *Bitmap) error {
	if err := requireSameLength(b, other); err != nil {
		return err
	}
	for i := range b.words {
		b.words[i] &= other.words[i]
	}
	return nil
}

// Or performs an in-place OR= with other.
func (b *Bitmap) Or(other *Bitmap) error {
	if err := requireSameLength(b, other); err != nil {
		return err
	}
	for i := range b.words {
		b.words[i] |= other.words[i]
	}
	return nil
}

// Not returns a new bitmap that is the bitwise complement of b, the same
// length as b, with out-of-range trailing bits masked off.
func (b *Bitmap) Not() *Bitmap {
	result := b.Clone()
	for i := range result.words {
		result.words[i] = ^result.words[i]
	}
	result.maskTail()
	return result
}

// And returns a new bitmap that is the bitwise AND of a and b.
func And(a, b *Bitmap) (*Bitmap, error) {
	if err := requireSameLength(a, b); err != nil {
		return nil, err
	}
	result := a.Clone()
	_ = result.And(b)
	return result, nil
}

// Or returns a new bitmap that is the bitwise OR of a and b.
func Or(a, b *Bitmap) (*Bitmap, error) {
	if err := requireSameLength(a, b); err != nil {
		return nil, err
	}
	result := a.Clone()
	_ = result.Or(b)
	return result, nil
}

// Iterator yields the positions of set bits in ascending order. Behavior
// is undefined if the underlying bitmap is mutated during iteration.
type Iterator struct {
	bm       *Bitmap
	wordIdx  int
	curWord  uint64
	wordBase uint64
}

// Bits returns an iterator over b's set bit positions, ascending.
func (b *Bitmap) Bits() *Iterator {
	it := &Iterator{bm: b}
	if len(b.words) > 0 {
		it.curWord = b.words[0]
	}
	return it
}

// Next returns the next ascending set-bit position, or (0, false) when
// exhausted.
func (it *Iterator) Next() (uint64, bool) {
	for it.wordIdx < len(it.bm.words) {
		if it.curWord == 0 {
			it.wordIdx++
			it.wordBase = uint64(it.wordIdx) * wordBits
			if it.wordIdx < len(it.bm.words) {
				it.curWord = it.bm.words[it.wordIdx]
			}
			continue
		}
		tz := bits.TrailingZeros64(it.curWord)
		pos := it.wordBase + uint64(tz)
		it.curWord &= it.curWord - 1 // clear lowest set bit
		if pos >= it.bm.length {
			return 0, false
		}
		return pos, true
	}
	return 0, false
}
