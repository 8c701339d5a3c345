// File: umem/freelist_test.go
package umem

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreelistAllocIsLIFO(t *testing.T) {
	fl := newFreelist(4, 2048)
	// addrs pushed in order 0, 2048, 4096, 6144; top is 6144 (last pushed).
	got := fl.Alloc(1)
	require.Equal(t, []uint64{6144}, got)
	got = fl.Alloc(1)
	require.Equal(t, []uint64{4096}, got)
}

func TestFreelistAllocNeverExceedsAvailable(t *testing.T) {
	fl := newFreelist(3, 2048)
	got := fl.Alloc(10)
	require.Len(t, got, 3)
	require.Zero(t, fl.Len())

	// Freelist is empty: further alloc returns nothing, not an error.
	got2 := fl.Alloc(1)
	require.Empty(t, got2)
}

func TestFreelistFreeBeyondCapacityIsDropped(t *testing.T) {
	fl := newFreelist(2, 2048)
	fl.Alloc(2)
	require.Zero(t, fl.Len())

	// Push three addresses back into a 2-capacity freelist: the third push
	// (a defense against double-free) must be silently dropped.
	fl.Free([]uint64{0, 2048, 4096})
	require.Equal(t, 2, fl.Len())
}

func TestFreelistConservationUnderConcurrentAllocFree(t *testing.T) {
	const nFrames = 256
	fl := newFreelist(nFrames, 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				got := fl.Alloc(1)
				if len(got) == 1 {
					fl.FreeOne(got[0])
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, nFrames, fl.Len(), "every allocated frame was freed back; total must return to n_frames")
}
