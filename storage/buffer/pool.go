// Package buffer implements the fixed-size buffer pool / page cache
// (spec.md C5): a frame table backed by an injected replacer.Replacer and
// filestore.FileStore, with pin/unpin discipline and dirty write-back.
package buffer

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/takoyaki-db/bitmapdb/storage/filestore"
	"github.com/takoyaki-db/bitmapdb/storage/page"
	"github.com/takoyaki-db/bitmapdb/storage/replacer"
)

// PoolExhausted is returned by FetchPage/AppendNewPage when every frame is
// pinned and WaitOnExhaustion is disabled (spec.md §9 precondition
// violation — callers must treat it as fatal).
var PoolExhausted = errors.New("buffer: pool exhausted")

// key identifies a resident page within the frame table.
type key struct {
	fileType page.FileType
	pageID   page.ID
}

// Manager is the fixed-size buffer pool of spec.md §4.5. All exported
// methods are safe for concurrent use; they serialize on a single mutex,
// matching the reference source's single-lock design (no per-frame
// latches).
type Manager struct {
	mu               sync.Mutex
	cond             *sync.Cond
	waitOnExhaustion bool

	store    *filestore.FileStore
	replacer replacer.Replacer
	log      *zap.SugaredLogger

	frames   []page.Page
	table    map[key]page.FrameID
	freeList []page.FrameID
}

// Config configures a Manager (spec.md §4.5: poolSize, fileStore,
// waitOnExhaustion). Logger may be nil, in which case the pool logs
// nothing.
type Config struct {
	PoolSize         int
	Store            *filestore.FileStore
	Replacer         replacer.Replacer
	WaitOnExhaustion bool
	Logger           *zap.SugaredLogger
}

// New allocates a pool of cfg.PoolSize frames, all initially on the free
// list.
func New(cfg Config) *Manager {
	m := &Manager{
		waitOnExhaustion: cfg.WaitOnExhaustion,
		store:            cfg.Store,
		replacer:         cfg.Replacer,
		log:              cfg.Logger,
		frames:           make([]page.Page, cfg.PoolSize),
		table:            make(map[key]page.FrameID, cfg.PoolSize),
		freeList:         make([]page.FrameID, cfg.PoolSize),
	}
	for i := range m.freeList {
		m.freeList[i] = page.FrameID(i)
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// victim picks a frame to reuse: the free list first, then the replacer.
// Must be called with mu held. Blocks on cond when WaitOnExhaustion is set
// and nothing is available; otherwise returns (0, false).
func (m *Manager) victim() (page.FrameID, bool) {
	for {
		if n := len(m.freeList); n > 0 {
			fid := m.freeList[n-1]
			m.freeList = m.freeList[:n-1]
			return fid, true
		}
		if fid, ok := m.replacer.Victim(); ok {
			return fid, true
		}
		if !m.waitOnExhaustion {
			return 0, false
		}
		m.cond.Wait()
	}
}

// evict prepares frameID to host a new page: writes it back if dirty and
// removes its old table entry. Must be called with mu held.
func (m *Manager) evict(frameID page.FrameID) error {
	fr := &m.frames[frameID]
	if fr.PinCount > 0 {
		return nil
	}
	if fr.Dirty {
		if m.log != nil {
			m.log.Debugw("evicting dirty frame", "fileType", fr.FileType, "pageID", fr.PageID)
		}
		if err := m.store.WriteRawPage(fr.FileType, fr.PageID, &fr.Data); err != nil {
			return err
		}
		fr.Dirty = false
	}
	if fr.FileType != page.Invalid {
		delete(m.table, key{fr.FileType, fr.PageID})
	}
	return nil
}

// FetchPage returns the frame hosting (fileType, pageID), loading it from
// disk if necessary, with its pin count incremented (spec.md §4.5
// fetchPage). The returned *page.Page is only valid while pinned.
func (m *Manager) FetchPage(fileType page.FileType, pageID page.ID) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{fileType, pageID}
	if frameID, resident := m.table[k]; resident {
		fr := &m.frames[frameID]
		if fr.PinCount == 0 {
			m.replacer.Pin(frameID)
		}
		fr.PinCount++
		return fr, nil
	}

	frameID, ok := m.victim()
	if !ok {
		if m.log != nil {
			m.log.Warnw("pool exhausted", "fileType", fileType, "pageID", pageID)
		}
		return nil, PoolExhausted
	}
	if err := m.evict(frameID); err != nil {
		return nil, err
	}

	fr := &m.frames[frameID]
	fr.Reset()
	fr.FileType = fileType
	fr.PageID = pageID
	m.table[k] = frameID
	if err := m.store.ReadRawPage(fileType, pageID, &fr.Data); err != nil {
		delete(m.table, k)
		m.freeList = append(m.freeList, frameID)
		return nil, err
	}
	fr.PinCount = 1
	return fr, nil
}

// UnpinPage decrements the pin count of a resident page, ORing in isDirty.
// It returns true if the page was not resident (no-op success) or the
// unpin succeeded; it returns false if the page is resident but already
// unpinned (spec.md §4.5 unpinPage misuse case).
func (m *Manager) UnpinPage(fileType page.FileType, pageID page.ID, isDirty bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, resident := m.table[key{fileType, pageID}]
	if !resident {
		return true
	}
	fr := &m.frames[frameID]
	if isDirty {
		fr.Dirty = true
	}
	if fr.PinCount <= 0 {
		return false
	}
	fr.PinCount--
	if fr.PinCount == 0 {
		m.replacer.Unpin(frameID)
		if m.waitOnExhaustion {
			m.cond.Signal()
		}
	}
	return true
}

// FlushPage writes a resident page back to disk unconditionally and clears
// its dirty flag. It is a no-op if the page is not resident.
func (m *Manager) FlushPage(fileType page.FileType, pageID page.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, resident := m.table[key{fileType, pageID}]
	if !resident {
		return nil
	}
	fr := &m.frames[frameID]
	if err := m.store.WriteRawPage(fr.FileType, fr.PageID, &fr.Data); err != nil {
		return err
	}
	fr.Dirty = false
	return nil
}

// FlushAllPages flushes every resident frame.
func (m *Manager) FlushAllPages() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, frameID := range m.table {
		fr := &m.frames[frameID]
		if err := m.store.WriteRawPage(k.fileType, k.pageID, &fr.Data); err != nil {
			return err
		}
		fr.Dirty = false
	}
	return nil
}

// AppendNewPage obtains a victim frame as FetchPage would, installs it as
// (fileType, pageID) with pin count 1, zeroes its data, and writes it to
// disk immediately so later reads of that page are defined (spec.md §4.5
// appendNewPage).
func (m *Manager) AppendNewPage(fileType page.FileType, pageID page.ID) (*page.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	frameID, ok := m.victim()
	if !ok {
		return nil, PoolExhausted
	}
	if err := m.evict(frameID); err != nil {
		return nil, err
	}

	fr := &m.frames[frameID]
	fr.Reset()
	fr.FileType = fileType
	fr.PageID = pageID
	fr.PinCount = 1
	if err := m.store.WriteRawPage(fileType, pageID, &fr.Data); err != nil {
		fr.Reset()
		m.freeList = append(m.freeList, frameID)
		return nil, err
	}
	m.table[key{fileType, pageID}] = frameID
	return fr, nil
}
