package buffer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/takoyaki-db/bitmapdb/storage/filestore"
	"github.com/takoyaki-db/bitmapdb/storage/page"
	"github.com/takoyaki-db/bitmapdb/storage/replacer"
)

func newTestPool(t *testing.T, poolSize int, wait bool) *Manager {
	t.Helper()
	store := filestore.OpenMemory()
	t.Cleanup(func() { store.Close() })
	return New(Config{
		PoolSize:         poolSize,
		Store:            store,
		Replacer:         replacer.NewLRU(),
		WaitOnExhaustion: wait,
	})
}

func TestFetchAppendedPageRoundTrips(t *testing.T) {
	pool := newTestPool(t, 2, false)

	fr, err := pool.AppendNewPage(page.Table, 0)
	require.NoError(t, err)
	fr.Data[0] = 0x42
	require.True(t, pool.UnpinPage(page.Table, 0, true))

	fetched, err := pool.FetchPage(page.Table, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0x42), fetched.Data[0])
	assert.Equal(t, 1, fetched.PinCount)
}

func TestFetchSamePageTwiceSharesFrame(t *testing.T) {
	pool := newTestPool(t, 2, false)
	_, err := pool.AppendNewPage(page.Table, 0)
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(page.Table, 0, false))

	a, err := pool.FetchPage(page.Table, 0)
	require.NoError(t, err)
	b, err := pool.FetchPage(page.Table, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, a.PinCount)
	assert.Same(t, a, b)
}

func TestUnpinUnderflowFails(t *testing.T) {
	pool := newTestPool(t, 2, false)
	_, err := pool.AppendNewPage(page.Table, 0)
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(page.Table, 0, false))
	assert.False(t, pool.UnpinPage(page.Table, 0, false))
}

func TestUnpinNonResidentIsNoOp(t *testing.T) {
	pool := newTestPool(t, 2, false)
	assert.True(t, pool.UnpinPage(page.Table, 99, false))
}

func TestEvictionWritesBackDirtyVictim(t *testing.T) {
	pool := newTestPool(t, 1, false)

	fr0, err := pool.AppendNewPage(page.Table, 0)
	require.NoError(t, err)
	fr0.Data[0] = 0xAA
	require.True(t, pool.UnpinPage(page.Table, 0, true))

	// Only one frame: appending page 1 must evict page 0, writing it back.
	_, err = pool.AppendNewPage(page.Table, 1)
	require.NoError(t, err)
	require.True(t, pool.UnpinPage(page.Table, 1, false))

	fetched0, err := pool.FetchPage(page.Table, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAA), fetched0.Data[0], "dirty victim must be written back before eviction")
}

func TestPoolExhaustedWithoutWait(t *testing.T) {
	pool := newTestPool(t, 1, false)
	_, err := pool.AppendNewPage(page.Table, 0)
	require.NoError(t, err)
	// page 0 remains pinned; pool has no free frame and nothing evictable.
	_, err = pool.FetchPage(page.Table, 1)
	assert.ErrorIs(t, err, PoolExhausted)
}

func TestFlushPageClearsDirty(t *testing.T) {
	pool := newTestPool(t, 2, false)
	fr, err := pool.AppendNewPage(page.Table, 0)
	require.NoError(t, err)
	fr.Data[0] = 0x7
	require.True(t, pool.UnpinPage(page.Table, 0, true))

	require.NoError(t, pool.FlushPage(page.Table, 0))
	assert.False(t, fr.Dirty)
}

func TestWaitOnExhaustionUnblocksAfterUnpin(t *testing.T) {
	pool := newTestPool(t, 1, true)
	_, err := pool.AppendNewPage(page.Table, 0)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_, err := pool.AppendNewPage(page.Table, 1)
		assert.NoError(t, err)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("append should have blocked while page 0 is pinned")
	case <-time.After(50 * time.Millisecond):
	}

	require.True(t, pool.UnpinPage(page.Table, 0, false))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("append did not unblock after unpin")
	}
}
