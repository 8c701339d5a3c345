// File: umem/pool.go
// FramePool backs the UMEM memory region: one anonymous, private mapping of
// n_frames*frame_size bytes, partitioned into equal-sized frames addressed
// by byte offset from the mapping base. This is the C1 component.
package umem

import (
	"fmt"
	"unsafe"

	"github.com/cloudshift/xdpfwd/internal/xsksys"
	"github.com/cloudshift/xdpfwd/pool"
)

// unsafePtr returns the address of a mmap'd slice's backing array. Pointer
// indirection here satisfies go vet's unsafeptr checker the same way
// go-ublk's pointerFromMmap does for mmap'd descriptor memory.
//
//go:noinline
func unsafePtr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

// FramePool owns the raw UMEM backing memory and the addressing arithmetic
// over it. It does not track which frames are free — that is Freelist's job
// — it only knows how to turn a frame address into the byte slice backing
// that frame's packet data.
type FramePool struct {
	mem       []byte
	frameSize uint32
	headroom  uint32
	nFrames   uint32

	numaAlloc pool.NUMAAllocator // non-nil when mem came from a NUMA-local allocation
}

// newFramePool obtains nFrames*frameSize bytes of backing memory for the
// UMEM. With numaNode < 0 it anonymously mmaps the region (hugepages
// requests MAP_HUGETLB backing); with numaNode >= 0 it instead asks the
// platform NUMAAllocator (pool.NewNUMAAllocator, libnuma-backed on Linux)
// for memory local to that node, trading the hugepage option for NUMA
// locality — both are page-grade allocations the kernel can pin for UMEM
// registration. The caller must have already raised RLIMIT_MEMLOCK.
func newFramePool(nFrames, frameSize, headroom uint32, hugepages bool, numaNode int) (*FramePool, error) {
	if nFrames == 0 || frameSize == 0 {
		return nil, fmt.Errorf("umem: nFrames and frameSize must be positive")
	}
	total := int(nFrames) * int(frameSize)

	if numaNode >= 0 {
		alloc := pool.NewNUMAAllocator()
		mem, err := alloc.Alloc(total, numaNode)
		if err != nil || mem == nil {
			return nil, fmt.Errorf("umem: numa frame pool alloc (node %d): %w", numaNode, err)
		}
		return &FramePool{mem: mem, frameSize: frameSize, headroom: headroom, nFrames: nFrames, numaAlloc: alloc}, nil
	}

	mem, err := xsksys.MmapAnon(total, hugepages)
	if err != nil {
		return nil, fmt.Errorf("umem: frame pool mmap: %w", err)
	}
	return &FramePool{mem: mem, frameSize: frameSize, headroom: headroom, nFrames: nFrames}, nil
}

// close releases the backing memory, via munmap or the NUMAAllocator that
// produced it. The caller must guarantee no Port or worker still
// references any frame in this pool.
func (p *FramePool) close() error {
	if p.numaAlloc != nil {
		p.numaAlloc.Free(p.mem)
		return nil
	}
	return xsksys.Munmap(p.mem)
}

// BaseAddr returns the uintptr of the UMEM mapping's base, used when
// registering the UMEM with the kernel.
func (p *FramePool) BaseAddr() uintptr {
	if len(p.mem) == 0 {
		return 0
	}
	return uintptr(unsafePtr(p.mem))
}

// TotalSize is the full mapping length in bytes (n_frames * frame_size).
func (p *FramePool) TotalSize() uint64 {
	return uint64(p.nFrames) * uint64(p.frameSize)
}

// NumFrames returns the fixed frame count.
func (p *FramePool) NumFrames() uint32 { return p.nFrames }

// FrameSize returns the fixed per-frame byte size.
func (p *FramePool) FrameSize() uint32 { return p.frameSize }

// Valid reports whether addr is a legal frame address: a multiple of
// frame_size within [0, n_frames*frame_size) — invariant "address validity".
func (p *FramePool) Valid(addr uint64) bool {
	if addr%uint64(p.frameSize) != 0 {
		return false
	}
	return addr < p.TotalSize()
}

// PacketData returns the byte slice of length l starting at the packet-data
// offset of frame addr (i.e. past the configured headroom). Implementers of
// the MAC-swap transform mutate through this slice.
func (p *FramePool) PacketData(addr uint64, l uint32) []byte {
	start := addr + uint64(p.headroom)
	return p.mem[start : start+uint64(l) : start+uint64(l)]
}
