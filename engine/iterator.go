package engine

import "github.com/takoyaki-db/bitmapdb/bitmap"

// RecordIterator lazily materializes records from a result bitmap (spec.md
// C7/§4.7). It snapshots every set-bit RID at construction time, so it is
// never invalidated by subsequent Insert/Update/Remove calls — it may,
// however, yield RIDs that have since been deleted, in which case the
// returned bytes are whatever the heap now holds at that slot. Iteration
// order is unspecified; callers must not depend on it.
type RecordIterator struct {
	manager *IndexManager
	rids    []uint64
	pos     int
}

func newRecordIterator(m *IndexManager, result *bitmap.Bitmap) *RecordIterator {
	var rids []uint64
	it := result.Bits()
	for {
		rid, ok := it.Next()
		if !ok {
			break
		}
		rids = append(rids, rid)
	}
	return &RecordIterator{manager: m, rids: rids}
}

// HasNext reports whether Next has at least one more record to yield.
func (r *RecordIterator) HasNext() bool {
	return r.pos < len(r.rids)
}

// Next returns the raw record bytes for the next RID in the snapshot,
// fetching its page, copying the slot out, and unpinning clean.
func (r *RecordIterator) Next() ([]byte, error) {
	rid := r.rids[r.pos]
	r.pos++
	return r.manager.readRecord(rid)
}

// Remaining reports how many RIDs are left to yield.
func (r *RecordIterator) Remaining() int {
	return len(r.rids) - r.pos
}
