package window

import (
	"fmt"
	"sync"

	"scrapinghorse/internal/config"
)

// Slot is a non-overlapping screen placement for one browser window.
// The set of slots is fixed at allocator creation; a slot value is stable
// across lease/release cycles.
type Slot struct {
	Index  int
	X      int
	Y      int
	Width  int
	Height int
}

// PositionFlag returns the Chromium --window-position value for the slot.
func (s Slot) PositionFlag() string {
	return fmt.Sprintf("%d,%d", s.X, s.Y)
}

// SizeFlag returns the Chromium --window-size value for the slot.
func (s Slot) SizeFlag() string {
	return fmt.Sprintf("%d,%d", s.Width, s.Height)
}

// Allocator owns the fixed set of window slots and is the sole authority
// over which slots are leased. All state transitions happen under one lock.
type Allocator struct {
	mu     sync.Mutex
	slots  []Slot
	leased []bool
}

// NewAllocator computes a deterministic grid of `count` slots that tile the
// configured screen without overlap. Windows are placed row by row,
// separated by the configured margin; rows that run past the bottom of the
// screen wrap back to the top with a small diagonal offset so windows still
// do not fully cover one another.
func NewAllocator(count int, cfg *config.Config) *Allocator {
	w := cfg.Window
	cols := (w.ScreenWidth - w.Margin) / (w.WindowWidth + w.Margin)
	if cols < 1 {
		cols = 1
	}
	rows := (w.ScreenHeight - w.Margin) / (w.WindowHeight + w.Margin)
	if rows < 1 {
		rows = 1
	}

	slots := make([]Slot, count)
	for i := 0; i < count; i++ {
		col := i % cols
		row := (i / cols) % rows
		wrap := i / (cols * rows) // how many times the grid has been filled

		slots[i] = Slot{
			Index:  i,
			X:      w.Margin + col*(w.WindowWidth+w.Margin) + wrap*w.Margin,
			Y:      w.Margin + row*(w.WindowHeight+w.Margin) + wrap*w.Margin,
			Width:  w.WindowWidth,
			Height: w.WindowHeight,
		}
	}

	return &Allocator{
		slots:  slots,
		leased: make([]bool, count),
	}
}

// Lease returns an unused slot and marks it leased. ok is false when every
// slot is already held, which only happens if the pool tries to run more
// workers than it was configured for.
func (a *Allocator) Lease() (Slot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, taken := range a.leased {
		if !taken {
			a.leased[i] = true
			return a.slots[i], true
		}
	}
	return Slot{}, false
}

// Release marks a slot free again. Releasing an already-free or unknown
// slot is a no-op.
func (a *Allocator) Release(s Slot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if s.Index < 0 || s.Index >= len(a.leased) {
		return
	}
	a.leased[s.Index] = false
}

// LeasedCount returns the number of currently leased slots.
func (a *Allocator) LeasedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, taken := range a.leased {
		if taken {
			n++
		}
	}
	return n
}

// Size returns the total number of slots.
func (a *Allocator) Size() int {
	return len(a.slots)
}
