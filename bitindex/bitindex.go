// Package bitindex implements the per-attribute bitmap index (spec.md C2):
// an ordered value -> bitmap mapping plus a not-null bitmap, supporting all
// comparison predicates used by the index manager's postfix evaluator.
package bitindex

import (
	"github.com/google/btree"

	"github.com/takoyaki-db/bitmapdb/bitmap"
)

// Operator names the comparison predicates a BitmapIndex can evaluate.
type Operator int

const (
	Equal Operator = iota
	NotEqual
	GreaterThan
	GreaterOrEqual
	LessThan
	LessOrEqual
	IsNull
	IsNotNull
)

// btreeDegree matches the default degree used by most google/btree
// consumers; the index's key space (distinct attribute values) is rarely
// large enough to make this a tuning concern.
const btreeDegree = 32

// entry is the btree.Item stored per distinct attribute value.
type entry struct {
	value  string
	bitmap *bitmap.Bitmap
}

func (e entry) Less(than btree.Item) bool {
	return e.value < than.(entry).value
}

// BitmapIndex is an ordered map from attribute value to the bitmap of RIDs
// holding that value, plus a not-null bitmap tracking which RIDs have any
// value at all for this attribute.
type BitmapIndex struct {
	values  *btree.BTree
	notNull *bitmap.Bitmap
	length  uint64
}

// New creates an empty BitmapIndex whose bitmaps have logical length
// length.
func New(length uint64) *BitmapIndex {
	return &BitmapIndex{
		values:  btree.New(btreeDegree),
		notNull: bitmap.New(length),
		length:  length,
	}
}

// Resize grows every value bitmap and the not-null bitmap to newLength.
func (idx *BitmapIndex) Resize(newLength uint64) {
	idx.length = newLength
	idx.notNull.Resize(newLength)
	idx.values.Ascend(func(i btree.Item) bool {
		i.(entry).bitmap.Resize(newLength)
		return true
	})
}

// exists reports whether value has an associated bitmap.
func (idx *BitmapIndex) exists(value string) (*bitmap.Bitmap, bool) {
	item := idx.values.Get(entry{value: value})
	if item == nil {
		return nil, false
	}
	return item.(entry).bitmap, true
}

// Set ensures a bitmap exists for value (creating one of length idx.length
// if needed), sets bit pos in it, and sets the not-null bit at pos.
func (idx *BitmapIndex) Set(value string, pos uint64) error {
	bm, ok := idx.exists(value)
	if !ok {
		bm = bitmap.New(idx.length)
		idx.values.ReplaceOrInsert(entry{value: value, bitmap: bm})
	}
	if err := bm.SetBit(pos); err != nil {
		return err
	}
	return idx.notNull.SetBit(pos)
}

// LoadValue installs bm as the bitmap for value, ORing it into the
// not-null bitmap. Used when restoring a BitmapIndex from its persisted
// metadata-file form (spec.md §6), where the bitmap for each value arrives
// already decoded rather than built bit-by-bit via Set.
func (idx *BitmapIndex) LoadValue(value string, bm *bitmap.Bitmap) error {
	idx.values.ReplaceOrInsert(entry{value: value, bitmap: bm})
	return idx.notNull.Or(bm)
}

// ClearAll clears bit pos in every value bitmap, removing any bitmap whose
// popcount drops to zero, and clears the not-null bit at pos.
func (idx *BitmapIndex) ClearAll(pos uint64) error {
	var toRemove []entry
	var clearErr error
	idx.values.Ascend(func(i btree.Item) bool {
		e := i.(entry)
		if err := e.bitmap.ClearBit(pos); err != nil {
			clearErr = err
			return false
		}
		if e.bitmap.PopCount() == 0 {
			toRemove = append(toRemove, e)
		}
		return true
	})
	if clearErr != nil {
		return clearErr
	}
	for _, e := range toRemove {
		idx.values.Delete(e)
	}
	return idx.notNull.ClearBit(pos)
}

// Evaluate resolves a single comparison predicate to a bitmap of length
// idx.length. Key ordering for GT/GE/LT/LE is lexicographic over the raw
// value strings (spec.md §4.2); numeric attributes must be zero-padded by
// the caller.
func (idx *BitmapIndex) Evaluate(op Operator, value string) (*bitmap.Bitmap, error) {
	switch op {
	case IsNull:
		return idx.notNull.Not(), nil
	case IsNotNull:
		return idx.notNull.Clone(), nil
	case Equal:
		if bm, ok := idx.exists(value); ok {
			return bm.Clone(), nil
		}
		return bitmap.New(idx.length), nil
	case NotEqual:
		if bm, ok := idx.exists(value); ok {
			result := bm.Not()
			if err := result.And(idx.notNull); err != nil {
				return nil, err
			}
			return result, nil
		}
		result := bitmap.New(idx.length)
		idx.values.Ascend(func(i btree.Item) bool {
			_ = result.Or(i.(entry).bitmap)
			return true
		})
		return result, nil
	case GreaterThan:
		return idx.orWhile(func(e entry) bool { return e.value > value }, value, true)
	case GreaterOrEqual:
		return idx.orWhile(func(e entry) bool { return e.value >= value }, value, true)
	case LessThan:
		return idx.orWhile(func(e entry) bool { return e.value < value }, value, false)
	case LessOrEqual:
		return idx.orWhile(func(e entry) bool { return e.value <= value }, value, false)
	default:
		return bitmap.New(idx.length), nil
	}
}

// orWhile ORs together every value bitmap whose key satisfies keep,
// traversing from the pivot forward (ascending) or from the start
// (ascending with early exit) depending on ascendFromPivot.
func (idx *BitmapIndex) orWhile(keep func(entry) bool, pivot string, ascendFromPivot bool) (*bitmap.Bitmap, error) {
	result := bitmap.New(idx.length)
	var orErr error
	visit := func(i btree.Item) bool {
		e := i.(entry)
		if !keep(e) {
			// Starting from the pivot, only a key equal to the pivot can
			// fail a ">" test, and every later key passes, so keep going.
			// For "<"/"<=" from the start, once a key fails every later
			// key fails too (sorted order), so stop.
			return ascendFromPivot
		}
		if err := result.Or(e.bitmap); err != nil {
			orErr = err
			return false
		}
		return true
	}
	if ascendFromPivot {
		idx.values.AscendGreaterOrEqual(entry{value: pivot}, visit)
	} else {
		idx.values.Ascend(visit)
	}
	if orErr != nil {
		return nil, orErr
	}
	return result, nil
}

// Len reports the number of distinct values currently indexed.
func (idx *BitmapIndex) Len() int { return idx.values.Len() }

// Values calls fn for every (value, bitmap) pair in ascending value order,
// stopping early if fn returns false. Used by metadata persistence (§6).
func (idx *BitmapIndex) Values(fn func(value string, bm *bitmap.Bitmap) bool) {
	idx.values.Ascend(func(i btree.Item) bool {
		e := i.(entry)
		return fn(e.value, e.bitmap)
	})
}
