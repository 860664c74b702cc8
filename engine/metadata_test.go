package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takoyaki-db/bitmapdb/bitindex"
	"github.com/takoyaki-db/bitmapdb/storage/buffer"
	"github.com/takoyaki-db/bitmapdb/storage/filestore"
	"github.com/takoyaki-db/bitmapdb/storage/replacer"
)

func TestOpenWithMissingMetadataStartsEmpty(t *testing.T) {
	m := newTestManager(t, 4)
	total, err := m.Count(nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), total)
	assert.Equal(t, uint64(0), m.nextRecordID)
}

func TestOpenWithMalformedMetadataFails(t *testing.T) {
	dir := t.TempDir()
	tableName := filepath.Join(dir, "broken")
	require.NoError(t, os.WriteFile(tableName+".txt", []byte("not-a-number 1 00"), 0o644))

	store := filestore.OpenMemory()
	pool := buffer.New(buffer.Config{PoolSize: 4, Store: store, Replacer: replacer.NewLRU()})

	_, err := Open(tableName, fakeSchema{}, pool, nil)
	assert.ErrorIs(t, err, MalformedMetadata)
}

func TestMetadataRoundTripPreservesAttributeOrderAndValues(t *testing.T) {
	dir := t.TempDir()
	tableName := filepath.Join(dir, "people")

	store := filestore.OpenMemory()
	pool := buffer.New(buffer.Config{PoolSize: 4, Store: store, Replacer: replacer.NewLRU()})
	m, err := Open(tableName, fakeSchema{}, pool, nil)
	require.NoError(t, err)
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "v1"}, {Name: "b", Value: "w1"}}))
	require.NoError(t, m.Insert([]Attribute{{Name: "a", Value: "v2"}, {Name: "b", Value: "w2"}}))
	require.NoError(t, m.save())

	data, err := os.ReadFile(m.metadataPath())
	require.NoError(t, err)
	assert.Contains(t, string(data), "a 2")
	assert.Contains(t, string(data), "b 2")

	store2 := filestore.OpenMemory()
	pool2 := buffer.New(buffer.Config{PoolSize: 4, Store: store2, Replacer: replacer.NewLRU()})
	reloaded, err := Open(tableName, fakeSchema{}, pool2, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reloaded.attrNames)

	count, err := reloaded.Count([]ConditionItem{LeafItem("a", bitindex.Equal, "v2")})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
