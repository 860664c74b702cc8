package engine

import (
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takoyaki-db/bitmapdb/bitindex"
	"github.com/takoyaki-db/bitmapdb/storage/buffer"
	"github.com/takoyaki-db/bitmapdb/storage/filestore"
	"github.com/takoyaki-db/bitmapdb/storage/replacer"
)

// fakeSchema is a minimal two-field test schema: "a" and "b", each a
// 4-byte string field zero-padded on the right, for a fixed 8-byte record.
type fakeSchema struct{}

func (fakeSchema) RecordSize() int { return 8 }

func (fakeSchema) PutAttribute(record []byte, name, value string) error {
	var offset int
	switch name {
	case "a":
		offset = 0
	case "b":
		offset = 4
	default:
		return errors.Errorf("fakeSchema: unknown attribute %q", name)
	}
	var field [4]byte
	copy(field[:], value)
	copy(record[offset:offset+4], field[:])
	return nil
}

func newTestManager(t *testing.T, poolSize int) *IndexManager {
	t.Helper()
	store := filestore.OpenMemory()
	t.Cleanup(func() { store.Close() })
	pool := buffer.New(buffer.Config{
		PoolSize: poolSize,
		Store:    store,
		Replacer: replacer.NewLRU(),
	})
	tableName := filepath.Join(t.TempDir(), "orders")
	m, err := Open(tableName, fakeSchema{}, pool, nil)
	require.NoError(t, err)
	return m
}

func TestInsertAndSelectAll(t *testing.T) {
	m := newTestManager(t, 4)

	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}, {Name: "b", Value: "y001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x002"}, {Name: "b", Value: "y002"}}))

	it, err := m.Select(nil)
	require.NoError(t, err)
	var records [][]byte
	for it.HasNext() {
		rec, err := it.Next()
		require.NoError(t, err)
		records = append(records, rec)
	}
	assert.Len(t, records, 2)
}

func TestCountWithEqualityCondition(t *testing.T) {
	m := newTestManager(t, 4)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x002"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}}))

	count, err := m.Count([]ConditionItem{LeafItem("a", bitindex.Equal, "x001")})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestAndOrConditionsMultiLeaf(t *testing.T) {
	m := newTestManager(t, 4)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}, {Name: "b", Value: "y001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}, {Name: "b", Value: "y002"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x002"}, {Name: "b", Value: "y001"}}))

	// (a = x001) AND (b = y001) -> postfix: a=x001, b=y001, AND
	count, err := m.Count([]ConditionItem{
		LeafItem("a", bitindex.Equal, "x001"),
		LeafItem("b", bitindex.Equal, "y001"),
		OpItem(And),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)

	// (a = x002) OR (b = y002) -> matches record 2 and 3
	count, err = m.Count([]ConditionItem{
		LeafItem("a", bitindex.Equal, "x002"),
		LeafItem("b", bitindex.Equal, "y002"),
		OpItem(Or),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)
}

func TestEveryPostfixItemIsConsumed(t *testing.T) {
	// A 3-leaf, 2-operator condition list exercises the full stack
	// evaluator; the reference source's early-break bug would short-circuit
	// on the first leaf and produce a wrong (too-small) result here.
	m := newTestManager(t, 4)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}, {Name: "b", Value: "y001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x002"}, {Name: "b", Value: "y002"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x003"}, {Name: "b", Value: "y003"}}))

	// (a=x001 OR a=x002) OR b=y003 -> all three.
	count, err := m.Count([]ConditionItem{
		LeafItem("a", bitindex.Equal, "x001"),
		LeafItem("a", bitindex.Equal, "x002"),
		OpItem(Or),
		LeafItem("b", bitindex.Equal, "y003"),
		OpItem(Or),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), count)
}

func TestUpdateRewritesAttributesAndReturnsCount(t *testing.T) {
	m := newTestManager(t, 4)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}}))

	n, err := m.Update(
		[]ConditionItem{LeafItem("a", bitindex.Equal, "x001")},
		[]Attribute{{Name: "a", Value: "zzzz"}},
	)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)

	count, err := m.Count([]ConditionItem{LeafItem("a", bitindex.Equal, "zzzz")})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	count, err = m.Count([]ConditionItem{LeafItem("a", bitindex.Equal, "x001")})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), count)
}

func TestRemoveClearsExistenceAndIndexes(t *testing.T) {
	m := newTestManager(t, 4)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x002"}}))

	n, err := m.Remove([]ConditionItem{LeafItem("a", bitindex.Equal, "x001")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)

	total, err := m.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), total)
}

func TestRemoveReclaimsRIDOnNextInsert(t *testing.T) {
	m := newTestManager(t, 4)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x002"}}))
	_, err := m.Remove([]ConditionItem{LeafItem("a", bitindex.Equal, "x001")})
	require.NoError(t, err)

	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x003"}}))

	// nextRecordID must not have grown: the reclaimed RID 0 was reused.
	assert.Equal(t, uint64(2), m.nextRecordID)
	total, err := m.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), total)
}

func TestMetadataPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	tableName := filepath.Join(dir, "orders")

	store := filestore.OpenMemory()
	pool := buffer.New(buffer.Config{PoolSize: 4, Store: store, Replacer: replacer.NewLRU()})

	m, err := Open(tableName, fakeSchema{}, pool, nil)
	require.NoError(t, err)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x001"}, {Name: "b", Value: "y001"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "x002"}, {Name: "b", Value: "y002"}}))
	require.NoError(t, m.Close())
	require.NoError(t, store.Close())

	store2 := filestore.OpenMemory() // heap contents don't need to survive for this assertion
	pool2 := buffer.New(buffer.Config{PoolSize: 4, Store: store2, Replacer: replacer.NewLRU()})
	reopened, err := Open(tableName, fakeSchema{}, pool2, nil)
	require.NoError(t, err)

	count, err := reopened.Count([]ConditionItem{LeafItem("a", bitindex.Equal, "x002")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, uint64(2), reopened.nextRecordID)
}
