//go:build linux

package engine

import "github.com/VincentDu2021/uring-sync/internal/platform"

// arena owns the FileContexts a single Worker is driving, indexed by the
// small integer handle carried as ring user-data (§9: "re-express [raw
// context pointers] as an arena of contexts indexed by a small integer
// handle ... handle reuse is bounded by the ring depth"). This eliminates
// the lifetime hazards of tagging completions with a raw pointer while
// keeping dispatch O(1).
type arena struct {
	slots []*FileContext
	free  []platform.Handle
}

func newArena(depth int) *arena {
	a := &arena{
		slots: make([]*FileContext, depth),
		free:  make([]platform.Handle, depth),
	}
	for i := 0; i < depth; i++ {
		a.free[depth-1-i] = platform.Handle(i)
	}
	return a
}

// alloc claims a free slot and stores ctx there, or ok=false if the arena
// (bounded by ring depth) is full.
func (a *arena) alloc(ctx *FileContext) (platform.Handle, bool) {
	if len(a.free) == 0 {
		return 0, false
	}
	h := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	a.slots[h] = ctx
	ctx.handle = h
	return h, true
}

func (a *arena) get(h platform.Handle) *FileContext {
	if int(h) < 0 || int(h) >= len(a.slots) {
		return nil
	}
	return a.slots[h]
}

func (a *arena) release(h platform.Handle) {
	if int(h) < 0 || int(h) >= len(a.slots) {
		return
	}
	a.slots[h] = nil
	a.free = append(a.free, h)
}

func (a *arena) inFlight() int {
	return len(a.slots) - len(a.free)
}
