package replacer

import (
	"container/list"
	"sync"

	"github.com/takoyaki-db/bitmapdb/storage/page"
)

// LRU tracks unpinned frames in least-recently-used order (spec.md §4.3):
// the front of the list is most-recently-unpinned, the back is the next
// victim. Grounded on the pack's own container/list-backed buffer pool
// (mnohosten-laura-db) rather than a hand-rolled linked list.
type LRU struct {
	mu       sync.Mutex
	order    *list.List
	position map[page.FrameID]*list.Element
}

// NewLRU creates an empty LRU replacer.
func NewLRU() *LRU {
	return &LRU{
		order:    list.New(),
		position: make(map[page.FrameID]*list.Element),
	}
}

// Unpin pushes frameID to the front (most-recently-used end) of the
// tracked list. A frame already tracked is left untouched (spec.md: "if
// already tracked, no-op").
func (l *LRU) Unpin(frameID page.FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, tracked := l.position[frameID]; tracked {
		return
	}
	l.position[frameID] = l.order.PushFront(frameID)
}

// Pin removes frameID from the tracked set, if present.
func (l *LRU) Pin(frameID page.FrameID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remove(frameID)
}

func (l *LRU) remove(frameID page.FrameID) {
	elem, tracked := l.position[frameID]
	if !tracked {
		return
	}
	l.order.Remove(elem)
	delete(l.position, frameID)
}

// Victim pops the back (least-recently-used) frame, if any.
func (l *LRU) Victim() (page.FrameID, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	back := l.order.Back()
	if back == nil {
		return 0, false
	}
	frameID := back.Value.(page.FrameID)
	l.remove(frameID)
	return frameID, true
}

// Size reports the number of currently evictable frames.
func (l *LRU) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}

var _ Replacer = (*LRU)(nil)
