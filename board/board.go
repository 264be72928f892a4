package board

import (
	"sync"
	"time"
)

// Board owns the active and pinned tile sets. All operations are safe for
// concurrent use; expiry timers re-check state under the same lock, so a
// tile dismissed before its timer fires is never dismissed twice.
type Board struct {
	mu       sync.Mutex
	width    float64
	height   float64
	tiles    []*Tile
	pinned   map[string]*Tile
	pinOrder []string
	timers   map[string]*time.Timer

	expired func(Tile) // notified after an expiry dismissal, outside the lock
}

func New(width, height float64) *Board {
	return &Board{
		width:  width,
		height: height,
		pinned: make(map[string]*Tile),
		timers: make(map[string]*time.Timer),
	}
}

// OnExpired registers a callback invoked whenever a tile is removed by its
// expiry timer. Must be set before tiles are added.
func (b *Board) OnExpired(fn func(Tile)) {
	b.mu.Lock()
	b.expired = fn
	b.mu.Unlock()
}

func (b *Board) Size() (width, height float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.width, b.height
}

// Resize updates the board dimensions used for placement.
func (b *Board) Resize(width, height float64) {
	b.mu.Lock()
	b.width, b.height = width, height
	b.mu.Unlock()
}

// PlaceNew returns coordinates for a tile not yet on the board.
func (b *Board) PlaceNew() (float64, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Place(b.snapshotLocked(), b.width, b.height)
}

// Add puts the tile on top of the stack: its z-order becomes
// max(existing)+1. Unpinned tiles with a finite duration get an expiry
// timer immediately.
func (b *Board) Add(t Tile) Tile {
	b.mu.Lock()
	t.Z = b.maxZLocked() + 1
	tc := t
	b.tiles = append(b.tiles, &tc)
	b.scheduleLocked(&tc, tc.Life.Duration)
	b.mu.Unlock()
	return tc
}

// BringToFront re-promotes the tile to the top. Already-on-top unpinned
// tiles are left alone to avoid z-order churn; pinned tiles are always
// eligible.
func (b *Board) BringToFront(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.findLocked(id)
	if t == nil {
		return
	}
	maxZ := b.maxZLocked()
	if t.Z == maxZ && len(b.tiles) > 1 && !t.Pinned {
		return
	}
	t.Z = maxZ + 1
}

// Move sets the position directly. Bounds are the caller's problem; the
// drag interaction clamps via Clamp before calling.
func (b *Board) Move(id string, x, y float64) {
	b.mu.Lock()
	if t := b.findLocked(id); t != nil {
		t.X, t.Y = x, y
	}
	b.mu.Unlock()
}

// Pin makes the tile permanent: duration becomes Forever, the expiry timer
// is dropped, and the tile joins the pinned set. Re-pinning is a no-op.
func (b *Board) Pin(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.findLocked(id)
	if t == nil {
		return
	}
	t.Pinned = true
	t.Life.Duration = Forever
	b.cancelLocked(id)
	if _, ok := b.pinned[id]; !ok {
		tc := *t
		b.pinned[id] = &tc
		b.pinOrder = append(b.pinOrder, id)
	}
}

// Dismiss removes the tile from both the active and pinned sets. Unknown
// ids are ignored.
func (b *Board) Dismiss(id string) {
	b.mu.Lock()
	b.removeLocked(id)
	b.mu.Unlock()
}

// ClearUnpinned removes every active tile that is not in the pinned set.
func (b *Board) ClearUnpinned() {
	b.mu.Lock()
	kept := b.tiles[:0]
	for _, t := range b.tiles {
		if _, ok := b.pinned[t.ID]; ok {
			kept = append(kept, t)
		} else {
			b.cancelLocked(t.ID)
		}
	}
	b.tiles = kept
	b.mu.Unlock()
}

// Tiles returns a snapshot of the active set in insertion order.
func (b *Board) Tiles() []Tile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

// Pinned returns a snapshot of the pinned set in pin order. This is the
// export surface handed to the download collaborator.
func (b *Board) Pinned() []Tile {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Tile, 0, len(b.pinOrder))
	for _, id := range b.pinOrder {
		if t, ok := b.pinned[id]; ok {
			out = append(out, *t)
		}
	}
	return out
}

func (b *Board) snapshotLocked() []Tile {
	out := make([]Tile, len(b.tiles))
	for i, t := range b.tiles {
		out[i] = *t
	}
	return out
}

func (b *Board) findLocked(id string) *Tile {
	for _, t := range b.tiles {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (b *Board) maxZLocked() int {
	max := 0
	for _, t := range b.tiles {
		if t.Z > max {
			max = t.Z
		}
	}
	return max
}

func (b *Board) removeLocked(id string) {
	b.cancelLocked(id)
	for i, t := range b.tiles {
		if t.ID == id {
			b.tiles = append(b.tiles[:i], b.tiles[i+1:]...)
			break
		}
	}
	if _, ok := b.pinned[id]; ok {
		delete(b.pinned, id)
		for i, pid := range b.pinOrder {
			if pid == id {
				b.pinOrder = append(b.pinOrder[:i], b.pinOrder[i+1:]...)
				break
			}
		}
	}
}
