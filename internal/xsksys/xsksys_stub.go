//go:build !linux
// +build !linux

// File: internal/xsksys/xsksys_stub.go
// Stub implementation for non-Linux platforms: AF_XDP is a Linux-only ABI,
// so every entry point here reports unavailability the same way
// affinity_stub.go and reactor_stub.go do for their platform-specific
// concerns.
package xsksys

import (
	"errors"

	"github.com/cloudshift/xdpfwd/internal/xskabi"
)

// ErrNotSupported is returned by every function in this file.
var ErrNotSupported = errors.New("xsksys: AF_XDP is only supported on linux")

func RaiseMemlockUnlimited() error { return ErrNotSupported }

func MmapAnon(size int, hugepages bool) ([]byte, error) { return nil, ErrNotSupported }

func Munmap(b []byte) error { return ErrNotSupported }

func NewXDPSocket() (int, error) { return -1, ErrNotSupported }

func RegisterUmem(fd int, addr uintptr, length uint64, frameSize, headroom uint32) error {
	return ErrNotSupported
}

func SetRingSize(fd, optname int, nDescs uint32) error { return ErrNotSupported }

func GetMmapOffsets(fd int) (xskabi.MmapOffsets, error) {
	return xskabi.MmapOffsets{}, ErrNotSupported
}

func MmapRing(fd int, pgoff int64, size int) ([]byte, error) { return nil, ErrNotSupported }

func Bind(fd int, ifindex, queueID uint32, flags uint16, sharedFD int) error {
	return ErrNotSupported
}

func CloseSocket(fd int) error { return ErrNotSupported }

func InterfaceIndex(name string) (uint32, error) { return 0, ErrNotSupported }

func PollInput(fd int, timeoutMs int) error { return ErrNotSupported }

func PollOutput(fd int, timeoutMs int) error { return ErrNotSupported }

func KickTX(fd int) error { return ErrNotSupported }
