package board

import "time"

// scheduleLocked arms an expiry timer for the tile. No timer is armed for
// pinned tiles or Forever durations.
func (b *Board) scheduleLocked(t *Tile, d time.Duration) {
	if t.Pinned || d == Forever || d <= 0 {
		return
	}
	id := t.ID
	b.cancelLocked(id)
	b.timers[id] = time.AfterFunc(d, func() { b.expire(id) })
}

func (b *Board) cancelLocked(id string) {
	if tm, ok := b.timers[id]; ok {
		tm.Stop()
		delete(b.timers, id)
	}
}

// expire fires from the timer goroutine. The tile may have been dismissed
// or pinned since the timer was armed, so everything is re-checked under
// the lock before removal.
func (b *Board) expire(id string) {
	b.mu.Lock()
	delete(b.timers, id)
	t := b.findLocked(id)
	if t == nil || t.Pinned {
		b.mu.Unlock()
		return
	}
	tc := *t
	b.removeLocked(id)
	fn := b.expired
	b.mu.Unlock()

	if fn != nil {
		fn(tc)
	}
}

// HoverStart pauses the countdown of a hoverable unpinned tile by dropping
// its timer.
func (b *Board) HoverStart(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.findLocked(id)
	if t == nil || t.Pinned || !t.Life.PauseOnHover {
		return
	}
	b.cancelLocked(id)
}

// HoverEnd restarts the countdown at half the original duration. This is a
// grace restart, not a resume: the observed product behavior is half the
// full duration regardless of how much time had elapsed before the hover.
func (b *Board) HoverEnd(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.findLocked(id)
	if t == nil || t.Pinned || !t.Life.PauseOnHover || t.Life.Duration == Forever {
		return
	}
	if _, pending := b.timers[id]; pending {
		return
	}
	b.scheduleLocked(t, t.Life.Duration/2)
}
