package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scrapinghorse/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Window.ScreenWidth = 3000
	cfg.Window.ScreenHeight = 2000
	cfg.Window.WindowWidth = 1280
	cfg.Window.WindowHeight = 900
	cfg.Window.Margin = 40
	return cfg
}

func TestAllocatorLeaseAll(t *testing.T) {
	a := NewAllocator(4, testConfig(t))

	seen := make(map[int]bool)
	for i := 0; i < 4; i++ {
		slot, ok := a.Lease()
		require.True(t, ok, "lease %d should succeed", i)
		assert.False(t, seen[slot.Index], "slot %d leased twice", slot.Index)
		seen[slot.Index] = true
	}

	_, ok := a.Lease()
	assert.False(t, ok, "allocator should be exhausted after leasing all slots")
	assert.Equal(t, 4, a.LeasedCount())
}

func TestAllocatorSlotsDoNotOverlap(t *testing.T) {
	a := NewAllocator(4, testConfig(t))

	var slots []Slot
	for i := 0; i < 4; i++ {
		slot, ok := a.Lease()
		require.True(t, ok)
		slots = append(slots, slot)
	}

	for i := 0; i < len(slots); i++ {
		for j := i + 1; j < len(slots); j++ {
			a, b := slots[i], slots[j]
			overlapX := a.X < b.X+b.Width && b.X < a.X+a.Width
			overlapY := a.Y < b.Y+b.Height && b.Y < a.Y+a.Height
			assert.False(t, overlapX && overlapY,
				"slots %d and %d overlap: %+v vs %+v", a.Index, b.Index, a, b)
		}
	}
}

func TestAllocatorReleaseAndRelease(t *testing.T) {
	a := NewAllocator(2, testConfig(t))

	first, ok := a.Lease()
	require.True(t, ok)
	_, ok = a.Lease()
	require.True(t, ok)

	a.Release(first)
	assert.Equal(t, 1, a.LeasedCount())

	// The slot set is fixed, so re-leasing yields the same coordinates.
	again, ok := a.Lease()
	require.True(t, ok)
	assert.Equal(t, first, again)
}

func TestAllocatorDoubleReleaseIsIdempotent(t *testing.T) {
	a := NewAllocator(2, testConfig(t))

	slot, ok := a.Lease()
	require.True(t, ok)

	a.Release(slot)
	a.Release(slot)
	assert.Equal(t, 0, a.LeasedCount())

	// Double release must not have produced a second free entry for the
	// same slot.
	_, ok = a.Lease()
	require.True(t, ok)
	_, ok = a.Lease()
	require.True(t, ok)
	_, ok = a.Lease()
	assert.False(t, ok)
}

func TestAllocatorReleaseUnknownSlot(t *testing.T) {
	a := NewAllocator(1, testConfig(t))

	a.Release(Slot{Index: 42})
	a.Release(Slot{Index: -1})
	assert.Equal(t, 0, a.LeasedCount())
}

func TestAllocatorPositionFlags(t *testing.T) {
	a := NewAllocator(1, testConfig(t))

	slot, ok := a.Lease()
	require.True(t, ok)
	assert.Equal(t, "40,40", slot.PositionFlag())
	assert.Equal(t, "1280,900", slot.SizeFlag())
}
