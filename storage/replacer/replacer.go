// Package replacer implements the buffer pool eviction policy contract
// (spec.md C3): a Replacer tracks which frames are currently unpinned and
// picks a victim among them.
package replacer

import "github.com/takoyaki-db/bitmapdb/storage/page"

// Replacer is modeled as a capability so alternative eviction policies
// (clock, 2Q) can be substituted at BufferPoolManager construction without
// touching the buffer pool itself (spec.md §9).
type Replacer interface {
	// Victim removes and returns the frame the policy would evict next,
	// or (0, false) if no frame is currently evictable.
	Victim() (page.FrameID, bool)
	// Pin removes frameID from the evictable set, if tracked.
	Pin(frameID page.FrameID)
	// Unpin adds frameID to the evictable set. Re-unpinning an already
	// tracked frame is a no-op.
	Unpin(frameID page.FrameID)
	// Size reports how many frames are currently evictable.
	Size() int
}
