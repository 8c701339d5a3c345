// File: internal/xskabi/xskabi.go
// Package xskabi mirrors the wire layout and socket-option numbers of the
// Linux AF_XDP ABI (linux/if_xdp.h, linux/if_link.h XDP bits). It holds no
// behavior, only the constants and on-the-wire structs that internal/xsksys
// and xskring need to talk to the kernel without a cgo dependency on the
// kernel headers themselves.
//
// Values below are transcribed from the UAPI headers; see
// https://docs.kernel.org/networking/af_xdp.html for the protocol they encode.
package xskabi

// Socket domain/level, mirroring AF_XDP / SOL_XDP.
const (
	AFXDP  = 44
	SOLXDP = 283
)

// Socket options for setsockopt/getsockopt on an AF_XDP socket.
const (
	OptUmemReg            = 4
	OptUmemFillRing       = 5
	OptUmemCompletionRing = 6
	OptRxRing             = 2
	OptTxRing             = 3
	OptUmemRegOffsets     = 1 // XDP_MMAP_OFFSETS
	OptStatistics         = 7
)

// mmap page offsets used to select which ring a given mmap() targets.
const (
	PgoffRxRing             = 0
	PgoffTxRing             = 0x80000000
	PgoffUmemFillRing       = 0x100000000
	PgoffUmemCompletionRing = 0x180000000
)

// Bind flags (struct sockaddr_xdp.sxdp_flags).
const (
	FlagSharedUmem    = 1 << 0
	FlagCopy          = 1 << 1
	FlagZeroCopy      = 1 << 2
	FlagUseNeedWakeup = 1 << 3
)

// Per-ring producer/flags bit indicating the kernel needs an explicit kick
// (poll/sendto) before it will make further progress on that ring.
const RingFlagNeedWakeup = 1 << 0

// Desc is a single RX/TX descriptor: struct xdp_desc.
type Desc struct {
	Addr    uint64
	Len     uint32
	Options uint32
}

// SizeofDesc is the on-wire size of Desc (16 bytes).
const SizeofDesc = 16

// SizeofAddr is the on-wire size of a Fill/Completion ring element (a bare
// frame address).
const SizeofAddr = 8

// UmemReg is struct xdp_umem_reg, passed via setsockopt(XDP_UMEM_REG).
type UmemReg struct {
	Addr      uint64
	Len       uint64
	Size      uint32 // chunk (frame) size
	Headroom  uint32
	Flags     uint32
	_         uint32 // pad to match kernel struct alignment
}

// RingOffset is struct xdp_ring_offset: byte offsets of producer, consumer,
// descriptor array and flags within a ring's mmap region.
type RingOffset struct {
	Producer uint64
	Consumer uint64
	Desc     uint64
	Flags    uint64
}

// MmapOffsets is struct xdp_mmap_offsets, fetched via
// getsockopt(XDP_MMAP_OFFSETS) and used to locate each of the four rings
// inside their respective mmap regions.
type MmapOffsets struct {
	Rx RingOffset
	Tx RingOffset
	Fr RingOffset
	Cr RingOffset
}

// SockaddrXDP is struct sockaddr_xdp, used to bind(2) an AF_XDP socket to an
// (interface, queue) pair, optionally sharing another socket's UMEM.
type SockaddrXDP struct {
	Family       uint16
	Flags        uint16
	Ifindex      uint32
	QueueID      uint32
	SharedUmemFD uint32
}
