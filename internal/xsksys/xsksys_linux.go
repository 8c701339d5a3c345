//go:build linux
// +build linux

// File: internal/xsksys/xsksys_linux.go
// Package xsksys wraps the raw syscalls an AF_XDP socket needs: socket
// creation, UMEM registration, ring mmap, wakeup kicks and the memlock
// rlimit bump. Modeled on the same layering as ehrlich-b-go-iouring's
// internal/sys package — one small file of unsafe syscall plumbing behind a
// typed Go API, so the higher layers (xskring, umem, port) pass plain Go
// values to these syscalls; their own unsafe use is limited to viewing
// mapped memory (xskring's ring views, umem's base address).
package xsksys

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/cloudshift/xdpfwd/internal/xskabi"
)

// RaiseMemlockUnlimited raises RLIMIT_MEMLOCK to unlimited for the calling
// process, required before the kernel will pin UMEM pages for DMA.
func RaiseMemlockUnlimited() error {
	lim := unix.Rlimit{Cur: unix.RLIM_INFINITY, Max: unix.RLIM_INFINITY}
	if err := unix.Setrlimit(unix.RLIMIT_MEMLOCK, &lim); err != nil {
		return fmt.Errorf("xsksys: setrlimit(RLIMIT_MEMLOCK): %w", err)
	}
	return nil
}

// MmapAnon maps an anonymous, private region of the given size for UMEM
// backing memory. hugepages requests MAP_HUGETLB.
func MmapAnon(size int, hugepages bool) ([]byte, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if hugepages {
		flags |= unix.MAP_HUGETLB
	}
	b, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, fmt.Errorf("xsksys: mmap(%d bytes): %w", size, err)
	}
	return b, nil
}

// Munmap releases a region obtained from MmapAnon or MmapRing.
func Munmap(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Munmap(b)
}

// NewXDPSocket opens a raw AF_XDP socket.
func NewXDPSocket() (int, error) {
	fd, err := unix.Socket(xskabi.AFXDP, unix.SOCK_RAW, 0)
	if err != nil {
		return -1, fmt.Errorf("xsksys: socket(AF_XDP): %w", err)
	}
	return fd, nil
}

// RegisterUmem performs setsockopt(XDP_UMEM_REG) to associate a mapped
// memory region with the socket as its UMEM.
func RegisterUmem(fd int, addr uintptr, length uint64, frameSize, headroom uint32) error {
	reg := xskabi.UmemReg{
		Addr:     uint64(addr),
		Len:      length,
		Size:     frameSize,
		Headroom: headroom,
	}
	return setsockoptRaw(fd, xskabi.OptUmemReg, unsafe.Pointer(&reg), uint32(unsafe.Sizeof(reg)))
}

// SetRingSize performs setsockopt(XDP_{UMEM_FILL,UMEM_COMPLETION,RX,TX}_RING)
// to request a ring of the given descriptor count.
func SetRingSize(fd, optname int, nDescs uint32) error {
	return setsockoptRaw(fd, optname, unsafe.Pointer(&nDescs), 4)
}

// GetMmapOffsets performs getsockopt(XDP_MMAP_OFFSETS), returning the byte
// offsets of each ring's producer/consumer/desc/flags fields.
func GetMmapOffsets(fd int) (xskabi.MmapOffsets, error) {
	var off xskabi.MmapOffsets
	sz := uint32(unsafe.Sizeof(off))
	_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(fd), uintptr(xskabi.SOLXDP), uintptr(xskabi.OptUmemRegOffsets),
		uintptr(unsafe.Pointer(&off)), uintptr(unsafe.Pointer(&sz)), 0)
	if errno != 0 {
		return off, fmt.Errorf("xsksys: getsockopt(XDP_MMAP_OFFSETS): %w", errno)
	}
	return off, nil
}

// MmapRing maps one of the four ring regions at the given fd/pgoff.
func MmapRing(fd int, pgoff int64, size int) ([]byte, error) {
	b, err := unix.Mmap(fd, pgoff, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return nil, fmt.Errorf("xsksys: mmap(ring @%#x, %d bytes): %w", pgoff, size, err)
	}
	return b, nil
}

// Bind binds an AF_XDP socket to an interface/queue, optionally sharing the
// UMEM of sharedFD (the socket that originally registered it).
func Bind(fd int, ifindex, queueID uint32, flags uint16, sharedFD int) error {
	addr := xskabi.SockaddrXDP{
		Family:  xskabi.AFXDP,
		Flags:   flags,
		Ifindex: ifindex,
		QueueID: queueID,
	}
	if sharedFD >= 0 {
		addr.Flags |= xskabi.FlagSharedUmem
		addr.SharedUmemFD = uint32(sharedFD)
	}
	_, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd),
		uintptr(unsafe.Pointer(&addr)), uintptr(unsafe.Sizeof(addr)))
	if errno != 0 {
		return fmt.Errorf("xsksys: bind(ifindex=%d queue=%d): %w", ifindex, queueID, errno)
	}
	return nil
}

// CloseSocket closes an AF_XDP socket fd.
func CloseSocket(fd int) error {
	return unix.Close(fd)
}

// InterfaceIndex resolves an interface name to its kernel ifindex.
func InterfaceIndex(name string) (uint32, error) {
	iface, err := unix.IfNametoindex(name)
	if err != nil {
		return 0, fmt.Errorf("xsksys: if_nametoindex(%s): %w", name, err)
	}
	return iface, nil
}

// PollInput performs a non-blocking (timeoutMs==0 is typical) readiness
// poll on fd for POLLIN, used to ask the kernel to service the Fill ring.
func PollInput(fd int, timeoutMs int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	_, err := unix.Poll(fds, timeoutMs)
	return err
}

// PollOutput is the POLLOUT counterpart of PollInput, used to nudge TX
// completion processing.
func PollOutput(fd int, timeoutMs int) error {
	fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	_, err := unix.Poll(fds, timeoutMs)
	return err
}

// KickTX issues a zero-length sendto(2) on the socket, the standard AF_XDP
// idiom for waking a kernel that is waiting on the TX ring's need-wakeup bit.
func KickTX(fd int) error {
	err := unix.Sendto(fd, nil, unix.MSG_DONTWAIT, nil)
	if err != nil && err != unix.EAGAIN && err != unix.EBUSY && err != unix.ENOBUFS {
		return fmt.Errorf("xsksys: sendto(kick): %w", err)
	}
	return nil
}

func setsockoptRaw(fd, optname int, val unsafe.Pointer, optlen uint32) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT,
		uintptr(fd), uintptr(xskabi.SOLXDP), uintptr(optname),
		uintptr(val), uintptr(optlen), 0)
	if errno != 0 {
		return fmt.Errorf("xsksys: setsockopt(opt=%d): %w", optname, errno)
	}
	return nil
}
