// File: xskring/ring.go
// Package xskring implements the four mmap-backed SPSC rings of the AF_XDP
// ABI (RX, TX, Fill, Completion) behind a small peek/reserve/release/submit
// API, plus the "needs-wakeup" discipline that decides when a syscall kick
// is actually required.
//
// The shape mirrors ehrlich-b-go-iouring's Ring: producer/consumer cursors
// are plain uint32s living inside a shared mmap region, advanced with
// atomic loads/stores and published with a store-release on Submit/Release.
// Unlike the teacher's pool.RingBuffer / core/concurrency.RingBuffer (which
// are pure user-space lock-free structures with their own backing array),
// these rings' backing array and cursors live in kernel-shared memory — the
// mmap regions obtained from internal/xsksys — so producer and consumer
// sides run in different address spaces (user vs kernel), not just
// different goroutines.
package xskring

import (
	"sync/atomic"
	"unsafe"

	"github.com/cloudshift/xdpfwd/internal/xskabi"
)

// Layout describes where, within a ring's mmap region, the producer,
// consumer, flags and descriptor-array fields live, and how many elements
// the ring holds. It is derived from xskabi.RingOffset plus the negotiated
// ring size.
type Layout struct {
	Mem      []byte
	Offsets  xskabi.RingOffset
	NumDescs uint32
	ElemSize uintptr // xskabi.SizeofAddr or xskabi.SizeofDesc
}

func (l Layout) ptrAt(off uint64) unsafe.Pointer {
	return unsafe.Pointer(&l.Mem[off])
}

// AddrRing is a Fill or Completion ring: producer/consumer of bare frame
// addresses (uint64).
type AddrRing struct {
	mem        []byte
	mask       uint32
	producer   *uint32
	consumer   *uint32
	flags      *uint32
	descs      []uint64
	cachedProd uint32
	cachedCons uint32
}

// NewAddrRing builds an AddrRing view over an already-mmap'd region.
func NewAddrRing(l Layout) *AddrRing {
	r := &AddrRing{
		mem:      l.Mem,
		mask:     l.NumDescs - 1,
		producer: (*uint32)(l.ptrAt(l.Offsets.Producer)),
		consumer: (*uint32)(l.ptrAt(l.Offsets.Consumer)),
		flags:    (*uint32)(l.ptrAt(l.Offsets.Flags)),
	}
	base := l.ptrAt(l.Offsets.Desc)
	r.descs = unsafe.Slice((*uint64)(base), l.NumDescs)
	r.cachedProd = atomic.LoadUint32(r.producer)
	r.cachedCons = atomic.LoadUint32(r.consumer)
	return r
}

// NeedsWakeup reports whether the kernel will not make further progress on
// this ring without an explicit poll/sendto kick.
func (r *AddrRing) NeedsWakeup() bool {
	return atomic.LoadUint32(r.flags)&xskabi.RingFlagNeedWakeup != 0
}

// Free reports the current number of unreserved producer slots, refreshing
// the cached consumer cursor first — the same accounting
// xsk_prod_nb_free does against the kernel-owned consumer index.
func (r *AddrRing) Free() uint32 {
	r.cachedCons = atomic.LoadUint32(r.consumer)
	return (r.cachedCons + uint32(len(r.descs))) - r.cachedProd
}

// ReserveProducer reserves up to n free slots for writing (Fill ring side).
// Returns the starting index and the number actually reserved, which may be
// less than n (never blocks).
func (r *AddrRing) ReserveProducer(n uint32) (idx, got uint32) {
	free := (r.cachedCons + uint32(len(r.descs))) - r.cachedProd
	if free < n {
		r.cachedCons = atomic.LoadUint32(r.consumer)
		free = (r.cachedCons + uint32(len(r.descs))) - r.cachedProd
	}
	got = n
	if got > free {
		got = free
	}
	idx = r.cachedProd
	r.cachedProd += got
	return idx, got
}

// WriteAddr writes a frame address into a slot returned by ReserveProducer.
func (r *AddrRing) WriteAddr(idx uint32, addr uint64) {
	r.descs[idx&r.mask] = addr
}

// SubmitProducer publishes all slots reserved so far to the kernel.
func (r *AddrRing) SubmitProducer() {
	atomic.StoreUint32(r.producer, r.cachedProd)
}

// PeekConsumer returns up to n unread slots (Completion ring side); got may
// be less than n or zero.
func (r *AddrRing) PeekConsumer(n uint32) (idx, got uint32) {
	avail := r.cachedProd - r.cachedCons
	if avail < n {
		r.cachedProd = atomic.LoadUint32(r.producer)
		avail = r.cachedProd - r.cachedCons
	}
	got = n
	if got > avail {
		got = avail
	}
	idx = r.cachedCons
	return idx, got
}

// ReadAddr reads a frame address from a slot returned by PeekConsumer.
func (r *AddrRing) ReadAddr(idx uint32) uint64 {
	return r.descs[idx&r.mask]
}

// ReleaseConsumer advances the consumer cursor past n peeked slots and
// publishes it to the kernel.
func (r *AddrRing) ReleaseConsumer(n uint32) {
	r.cachedCons += n
	atomic.StoreUint32(r.consumer, r.cachedCons)
}

// DescRing is an RX or TX ring: producer/consumer of (addr, len) packet
// descriptors.
type DescRing struct {
	mem        []byte
	mask       uint32
	producer   *uint32
	consumer   *uint32
	flags      *uint32
	descs      []xskabi.Desc
	cachedProd uint32
	cachedCons uint32
}

// NewDescRing builds a DescRing view over an already-mmap'd region.
func NewDescRing(l Layout) *DescRing {
	r := &DescRing{
		mem:      l.Mem,
		mask:     l.NumDescs - 1,
		producer: (*uint32)(l.ptrAt(l.Offsets.Producer)),
		consumer: (*uint32)(l.ptrAt(l.Offsets.Consumer)),
		flags:    (*uint32)(l.ptrAt(l.Offsets.Flags)),
	}
	base := l.ptrAt(l.Offsets.Desc)
	r.descs = unsafe.Slice((*xskabi.Desc)(base), l.NumDescs)
	r.cachedProd = atomic.LoadUint32(r.producer)
	r.cachedCons = atomic.LoadUint32(r.consumer)
	return r
}

// NeedsWakeup reports whether the kernel will not make further progress on
// this ring without an explicit poll/sendto kick.
func (r *DescRing) NeedsWakeup() bool {
	return atomic.LoadUint32(r.flags)&xskabi.RingFlagNeedWakeup != 0
}

// ReserveProducer reserves up to n free slots for writing (TX ring side).
func (r *DescRing) ReserveProducer(n uint32) (idx, got uint32) {
	free := (r.cachedCons + uint32(len(r.descs))) - r.cachedProd
	if free < n {
		r.cachedCons = atomic.LoadUint32(r.consumer)
		free = (r.cachedCons + uint32(len(r.descs))) - r.cachedProd
	}
	got = n
	if got > free {
		got = free
	}
	idx = r.cachedProd
	r.cachedProd += got
	return idx, got
}

// WriteDesc writes a descriptor into a slot returned by ReserveProducer.
func (r *DescRing) WriteDesc(idx uint32, d xskabi.Desc) {
	r.descs[idx&r.mask] = d
}

// SubmitProducer publishes all slots reserved so far to the kernel.
func (r *DescRing) SubmitProducer() {
	atomic.StoreUint32(r.producer, r.cachedProd)
}

// PeekConsumer returns up to n unread slots (RX ring side); got may be less
// than n or zero — an empty RX ring is a routine condition, not an error.
func (r *DescRing) PeekConsumer(n uint32) (idx, got uint32) {
	avail := r.cachedProd - r.cachedCons
	if avail < n {
		r.cachedProd = atomic.LoadUint32(r.producer)
		avail = r.cachedProd - r.cachedCons
	}
	got = n
	if got > avail {
		got = avail
	}
	idx = r.cachedCons
	return idx, got
}

// ReadDesc reads a descriptor from a slot returned by PeekConsumer.
func (r *DescRing) ReadDesc(idx uint32) xskabi.Desc {
	return r.descs[idx&r.mask]
}

// ReleaseConsumer advances the consumer cursor past n peeked slots and
// publishes it to the kernel.
func (r *DescRing) ReleaseConsumer(n uint32) {
	r.cachedCons += n
	atomic.StoreUint32(r.consumer, r.cachedCons)
}
