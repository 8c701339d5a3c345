// File: xskring/setup.go
// Construction helpers that turn a negotiated ring size plus the kernel's
// reported xdp_mmap_offsets into a mmap'd Layout and then a typed ring.
// Mirrors ehrlich-b-go-iouring's Ring.mapRings: compute the region size from
// the offsets, mmap at the ABI-defined page offset, then slice typed views
// over the raw bytes.
package xskring

import (
	"github.com/cloudshift/xdpfwd/internal/xskabi"
	"github.com/cloudshift/xdpfwd/internal/xsksys"
)

// regionSize returns the number of bytes to mmap for a ring of nDescs
// elements of elemSize bytes, given where its descriptor array starts.
func regionSize(off xskabi.RingOffset, nDescs uint32, elemSize uintptr) int {
	return int(off.Desc) + int(nDescs)*int(elemSize)
}

// MmapAddrRing mmaps and wraps a Fill or Completion ring.
func MmapAddrRing(fd int, pgoff int64, off xskabi.RingOffset, nDescs uint32) (*AddrRing, error) {
	size := regionSize(off, nDescs, xskabi.SizeofAddr)
	mem, err := xsksys.MmapRing(fd, pgoff, size)
	if err != nil {
		return nil, err
	}
	return NewAddrRing(Layout{Mem: mem, Offsets: off, NumDescs: nDescs, ElemSize: xskabi.SizeofAddr}), nil
}

// MmapDescRing mmaps and wraps an RX or TX ring.
func MmapDescRing(fd int, pgoff int64, off xskabi.RingOffset, nDescs uint32) (*DescRing, error) {
	size := regionSize(off, nDescs, xskabi.SizeofDesc)
	mem, err := xsksys.MmapRing(fd, pgoff, size)
	if err != nil {
		return nil, err
	}
	return NewDescRing(Layout{Mem: mem, Offsets: off, NumDescs: nDescs, ElemSize: xskabi.SizeofDesc}), nil
}

// Unmap releases the backing region of an AddrRing.
func (r *AddrRing) Unmap() error { return xsksys.Munmap(r.mem) }

// Unmap releases the backing region of a DescRing.
func (r *DescRing) Unmap() error { return xsksys.Munmap(r.mem) }
