// Package engine implements the bitmap-indexed single-table storage engine
// (spec.md C6/C7): a schema-generic IndexManager over a buffer pool, plus
// the lazy RecordIterator it hands back from Select.
//
// IndexManager is NOT thread-safe: its bitmaps, maps and RID counter mutate
// without synchronization. Callers must serialize every call into a given
// IndexManager themselves; only the underlying buffer pool is internally
// concurrent.
package engine

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/takoyaki-db/bitmapdb/bitindex"
	"github.com/takoyaki-db/bitmapdb/bitmap"
	"github.com/takoyaki-db/bitmapdb/storage/buffer"
	"github.com/takoyaki-db/bitmapdb/storage/page"
)

// MisuseUnpin is returned when the buffer pool reports an unpin on a frame
// whose pin count was already zero — a bug inside IndexManager's own
// fetch/unpin pairing, never a caller-triggerable condition.
var MisuseUnpin = errors.New("engine: unpin called on a non-pinned frame")

// MalformedConditions is returned by evaluate when a postfix condition
// list does not reduce to exactly one bitmap (e.g. a dangling operand or a
// leading operator).
var MalformedConditions = errors.New("engine: malformed postfix condition list")

// IndexManager is the bitmap-indexed, single-table engine of spec.md
// §4.6/§4.7. Construct it with Open and release it with Close.
type IndexManager struct {
	tableName string
	schema    Schema
	pool      *buffer.Manager
	log       *zap.SugaredLogger

	recordsPerPage int
	nextRecordID   uint64
	existence      *bitmap.Bitmap

	// attrNames preserves insertion order so the metadata file round-trips
	// with a stable attribute ordering (spec.md §6).
	attrNames []string
	indexes   map[string]*bitindex.BitmapIndex
}

// Open restores an IndexManager from tableName's metadata file if one
// exists, or starts empty otherwise (spec.md §4.6 Open).
func Open(tableName string, schema Schema, pool *buffer.Manager, logger *zap.SugaredLogger) (*IndexManager, error) {
	m := &IndexManager{
		tableName:      tableName,
		schema:         schema,
		pool:           pool,
		log:            logger,
		recordsPerPage: page.Size / schema.RecordSize(),
		indexes:        make(map[string]*bitindex.BitmapIndex),
		existence:      bitmap.New(0),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

// Close persists the metadata file (spec.md §4.6 Close). It does not flush
// the buffer pool; callers that want a fully durable checkpoint should call
// the pool's FlushAllPages separately.
func (m *IndexManager) Close() error {
	if m.log != nil {
		m.log.Debugw("closing index manager", "table", m.tableName, "records", m.nextRecordID)
	}
	return m.save()
}

// Insert adds one record (spec.md §4.6 insert).
func (m *IndexManager) Insert(attrs []Attribute) error {
	rid, reclaimed := m.existence.FirstClear()
	if !reclaimed {
		if m.nextRecordID%uint64(m.recordsPerPage) == 0 {
			pageID := page.ID(m.nextRecordID / uint64(m.recordsPerPage))
			if _, err := m.pool.AppendNewPage(page.Table, pageID); err != nil {
				return err
			}
			if !m.pool.UnpinPage(page.Table, pageID, false) {
				return MisuseUnpin
			}
		}
		rid = m.nextRecordID
		m.nextRecordID++
		m.existence.Resize(m.nextRecordID)
		for _, name := range m.attrNames {
			m.indexes[name].Resize(m.nextRecordID)
		}
	}

	for _, a := range attrs {
		idx, ok := m.indexes[a.Name]
		if !ok {
			idx = bitindex.New(m.nextRecordID)
			m.indexes[a.Name] = idx
			m.attrNames = append(m.attrNames, a.Name)
		}
		if err := idx.Set(a.Value, rid); err != nil {
			return err
		}
	}

	if err := m.writeRecord(rid, attrs); err != nil {
		return err
	}
	return m.existence.SetBit(rid)
}

// Update rewrites every matching record's given attributes, returning the
// number of affected records (spec.md §4.6 update).
func (m *IndexManager) Update(conditions []ConditionItem, attrs []Attribute) (uint64, error) {
	match, err := m.evaluate(conditions)
	if err != nil {
		return 0, err
	}

	it := match.Bits()
	for {
		rid, ok := it.Next()
		if !ok {
			break
		}
		for _, a := range attrs {
			idx, exists := m.indexes[a.Name]
			if !exists {
				idx = bitindex.New(m.nextRecordID)
				m.indexes[a.Name] = idx
				m.attrNames = append(m.attrNames, a.Name)
			}
			if err := idx.ClearAll(rid); err != nil {
				return 0, err
			}
			if err := idx.Set(a.Value, rid); err != nil {
				return 0, err
			}
		}
		if err := m.writeRecord(rid, attrs); err != nil {
			return 0, err
		}
	}
	return match.PopCount(), nil
}

// Remove clears every matching record from every index and the existence
// bitmap, returning the number of affected records. The heap page is not
// reclaimed; the slot becomes reclaimable via the existence bitmap (spec.md
// §4.6 remove).
func (m *IndexManager) Remove(conditions []ConditionItem) (uint64, error) {
	match, err := m.evaluate(conditions)
	if err != nil {
		return 0, err
	}

	it := match.Bits()
	for {
		rid, ok := it.Next()
		if !ok {
			break
		}
		for _, name := range m.attrNames {
			if err := m.indexes[name].ClearAll(rid); err != nil {
				return 0, err
			}
		}
		if err := m.existence.ClearBit(rid); err != nil {
			return 0, err
		}
	}
	return match.PopCount(), nil
}

// Count returns the number of records matching conditions (spec.md §4.6
// count).
func (m *IndexManager) Count(conditions []ConditionItem) (uint64, error) {
	bm, err := m.evaluate(conditions)
	if err != nil {
		return 0, err
	}
	return bm.PopCount(), nil
}

// Select returns a lazy iterator over every record matching conditions
// (spec.md §4.6 select / §4.7).
func (m *IndexManager) Select(conditions []ConditionItem) (*RecordIterator, error) {
	bm, err := m.evaluate(conditions)
	if err != nil {
		return nil, err
	}
	return newRecordIterator(m, bm), nil
}

// AttributeStats reports, for every attribute that has been written at
// least once, the number of distinct values currently indexed for it.
func (m *IndexManager) AttributeStats() map[string]int {
	stats := make(map[string]int, len(m.attrNames))
	for _, name := range m.attrNames {
		stats[name] = m.indexes[name].Len()
	}
	return stats
}

// evaluate runs the postfix bitmap-stack evaluator of spec.md §4.6.1. Every
// item is consumed unconditionally — the reference source's early-break on
// the first leaf (spec.md §9) is deliberately NOT replicated.
func (m *IndexManager) evaluate(conditions []ConditionItem) (*bitmap.Bitmap, error) {
	if len(conditions) == 0 {
		return m.existence.Clone(), nil
	}

	var stack []*bitmap.Bitmap
	for _, item := range conditions {
		if item.Leaf != nil {
			bm, err := m.evaluateLeaf(item.Leaf)
			if err != nil {
				return nil, err
			}
			stack = append(stack, bm)
			continue
		}
		if len(stack) < 2 {
			return nil, MalformedConditions
		}
		right := stack[len(stack)-1]
		left := stack[len(stack)-2]
		stack = stack[:len(stack)-2]

		var combined *bitmap.Bitmap
		var err error
		switch item.Op {
		case And:
			combined, err = bitmap.And(left, right)
		case Or:
			combined, err = bitmap.Or(left, right)
		default:
			err = errors.Errorf("engine: unknown logical operator %d", item.Op)
		}
		if err != nil {
			return nil, err
		}
		stack = append(stack, combined)
	}
	if len(stack) != 1 {
		return nil, MalformedConditions
	}

	result := stack[0]
	if err := result.And(m.existence); err != nil {
		return nil, err
	}
	return result, nil
}

func (m *IndexManager) evaluateLeaf(leaf *LeafCondition) (*bitmap.Bitmap, error) {
	idx, ok := m.indexes[leaf.Attribute]
	if !ok {
		idx = bitindex.New(m.nextRecordID)
	}
	return idx.Evaluate(leaf.Comparator, leaf.Value)
}

// writeRecord applies attrs onto rid's slot via fetch -> mutate -> unpin
// dirty (spec.md §4.6 step 3).
func (m *IndexManager) writeRecord(rid uint64, attrs []Attribute) error {
	pageID, offset := m.location(rid)
	pg, err := m.pool.FetchPage(page.Table, pageID)
	if err != nil {
		return err
	}
	record := pg.Data[offset : offset+m.schema.RecordSize()]
	for _, a := range attrs {
		if err := m.schema.PutAttribute(record, a.Name, a.Value); err != nil {
			m.pool.UnpinPage(page.Table, pageID, true)
			return err
		}
	}
	if !m.pool.UnpinPage(page.Table, pageID, true) {
		return MisuseUnpin
	}
	return nil
}

// readRecord copies rid's slot bytes out via fetch -> copy -> unpin clean.
func (m *IndexManager) readRecord(rid uint64) ([]byte, error) {
	pageID, offset := m.location(rid)
	pg, err := m.pool.FetchPage(page.Table, pageID)
	if err != nil {
		return nil, err
	}
	record := make([]byte, m.schema.RecordSize())
	copy(record, pg.Data[offset:offset+m.schema.RecordSize()])
	if !m.pool.UnpinPage(page.Table, pageID, false) {
		return nil, MisuseUnpin
	}
	return record, nil
}

func (m *IndexManager) location(rid uint64) (page.ID, int) {
	pageID := page.ID(rid / uint64(m.recordsPerPage))
	slot := int(rid % uint64(m.recordsPerPage))
	return pageID, slot * m.schema.RecordSize()
}
