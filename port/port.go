// File: port/port.go
// Package port implements C4: a user-space socket bound to one
// (interface, queue-id) pair, sharing a umem.Manager's UMEM and Fill/
// Completion rings while owning its own RX (consumer) and TX (producer)
// rings and kernel socket handle.
package port

import (
	"fmt"

	"github.com/cloudshift/xdpfwd/internal/xskabi"
	"github.com/cloudshift/xdpfwd/internal/xsksys"
	"github.com/cloudshift/xdpfwd/umem"
	"github.com/cloudshift/xdpfwd/xskring"
)

// UmemHandle is the subset of *umem.Manager a Port needs: its registration
// fd (for SharedUmemFD) and its backing frame pool (for packet-data access).
type UmemHandle interface {
	Fd() int
	Pool() *umem.FramePool
}

// Config carries a single Port's construction parameters.
type Config struct {
	Interface string
	QueueID   uint32
	RxSize    uint32
	TxSize    uint32
	// NeedWakeup requests XDP_USE_NEED_WAKEUP, letting the forwarder elide
	// syscall kicks whenever the kernel hasn't asked for one.
	NeedWakeup bool
	ZeroCopy   bool
}

// Port is one AF_XDP socket sharing a umem.Manager's UMEM. n_pkts_rx/
// n_pkts_tx are owned exclusively by whichever Forwarder goroutine this
// Port is assigned to; nothing else may read or write them while the
// forwarder runs (stats printing takes a snapshot only after shutdown, or
// accepts a torn read as an explicit statistics-only concession — see
// spec.md §4.4).
type Port struct {
	cfg  Config
	mgr  UmemHandle
	fd   int
	rx   *xskring.DescRing
	tx   *xskring.DescRing

	NPktsRx uint64
	NPktsTx uint64
}

// New binds a new AF_XDP socket to cfg.Interface/cfg.QueueID, sharing mgr's
// UMEM, and mmaps this socket's RX/TX rings.
func New(mgr UmemHandle, cfg Config) (p *Port, err error) {
	ifindex, err := xsksys.InterfaceIndex(cfg.Interface)
	if err != nil {
		return nil, err
	}

	fd, err := xsksys.NewXDPSocket()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = xsksys.CloseSocket(fd)
		}
	}()

	if err = xsksys.SetRingSize(fd, xskabi.OptRxRing, cfg.RxSize); err != nil {
		return nil, fmt.Errorf("port %s/%d: size rx ring: %w", cfg.Interface, cfg.QueueID, err)
	}
	if err = xsksys.SetRingSize(fd, xskabi.OptTxRing, cfg.TxSize); err != nil {
		return nil, fmt.Errorf("port %s/%d: size tx ring: %w", cfg.Interface, cfg.QueueID, err)
	}

	var flags uint16
	if cfg.NeedWakeup {
		flags |= xskabi.FlagUseNeedWakeup
	}
	if cfg.ZeroCopy {
		flags |= xskabi.FlagZeroCopy
	} else {
		flags |= xskabi.FlagCopy
	}
	if err = xsksys.Bind(fd, ifindex, cfg.QueueID, flags, mgr.Fd()); err != nil {
		return nil, fmt.Errorf("port %s/%d: bind: %w", cfg.Interface, cfg.QueueID, err)
	}

	offsets, err := xsksys.GetMmapOffsets(fd)
	if err != nil {
		return nil, fmt.Errorf("port %s/%d: mmap offsets: %w", cfg.Interface, cfg.QueueID, err)
	}

	rx, err := xskring.MmapDescRing(fd, xskabi.PgoffRxRing, offsets.Rx, cfg.RxSize)
	if err != nil {
		return nil, fmt.Errorf("port %s/%d: mmap rx ring: %w", cfg.Interface, cfg.QueueID, err)
	}
	defer func() {
		if err != nil {
			_ = rx.Unmap()
		}
	}()

	tx, err := xskring.MmapDescRing(fd, xskabi.PgoffTxRing, offsets.Tx, cfg.TxSize)
	if err != nil {
		return nil, fmt.Errorf("port %s/%d: mmap tx ring: %w", cfg.Interface, cfg.QueueID, err)
	}

	return &Port{cfg: cfg, mgr: mgr, fd: fd, rx: rx, tx: tx}, nil
}

// Name is the bound interface name.
func (p *Port) Name() string { return p.cfg.Interface }

// QueueID is the bound queue id.
func (p *Port) QueueID() uint32 { return p.cfg.QueueID }

// Fd is the socket file descriptor, usable with poll(2)/sendto(2).
func (p *Port) Fd() int { return p.fd }

// RX exposes the RX consumer ring.
func (p *Port) RX() *xskring.DescRing { return p.rx }

// TX exposes the TX producer ring.
func (p *Port) TX() *xskring.DescRing { return p.tx }

// PacketData returns the mutable byte slice of a received packet's payload.
func (p *Port) PacketData(addr uint64, l uint32) []byte {
	return p.mgr.Pool().PacketData(addr, l)
}

// IncRx bumps the received-packet counter. Called only by the forwarder
// goroutine this port is assigned to; see the Port doc comment.
func (p *Port) IncRx() { p.NPktsRx++ }

// IncTx bumps the transmitted-packet counter. Called only by the forwarder
// goroutine this port is assigned to.
func (p *Port) IncTx() { p.NPktsTx++ }

// Close unmaps this port's rings and closes its socket. Must only be called
// after the assigned forwarder has stopped using the port.
func (p *Port) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(p.tx.Unmap())
	record(p.rx.Unmap())
	record(xsksys.CloseSocket(p.fd))
	return firstErr
}
