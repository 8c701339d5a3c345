// File: umem/manager.go
// Manager is the C3 component: the process-wide singleton that owns the
// UMEM memory mapping, the kernel UMEM registration, the Fill/Completion
// rings, and the freelist that bridges them to the per-packet allocation
// path. Construction is all-or-nothing (each step's failure unwinds every
// prior step), matching xdp_fwd2_refactored.c's umem_mgr_create.
//
// Concurrency: per the design note on the Fill/Completion single-producer/
// consumer constraint, this Manager resolves it by extending the freelist's
// own mutex to also guard every Fill/Completion ring operation. There is
// deliberately no second, unsynchronized path to fillRing/compRing — every
// method that reserves, submits, peeks or releases on them takes
// freelist.mu first. FillNeedsWakeup only loads the kernel-written flags
// word atomically and does not take the lock; Close runs after all users
// have stopped.
package umem

import (
	"fmt"
	"log"

	"github.com/cloudshift/xdpfwd/internal/xskabi"
	"github.com/cloudshift/xdpfwd/internal/xsksys"
	"github.com/cloudshift/xdpfwd/xskring"
)

// Config carries the construction-time parameters for a Manager. These are
// fixed for the lifetime of the process run — there is no dynamic
// reconfiguration of frame count or ring sizes.
type Config struct {
	NFrames       uint32
	FrameSize     uint32
	FrameHeadroom uint32
	FillSize      uint32
	CompSize      uint32
	Hugepages     bool
	// UseNUMA selects NUMA-local allocation (via pool.NUMAAllocator) for
	// the UMEM backing memory instead of an anonymous mmap; NUMANode then
	// picks which node.
	UseNUMA  bool
	NUMANode int
}

const defaultDrainBatch = 64

// Manager owns UMEM memory, the kernel UMEM handle, and the Fill/Completion
// rings, guarded by the Freelist's mutex.
type Manager struct {
	cfg      Config
	pool     *FramePool
	freelist *Freelist
	fd       int
	fillRing *xskring.AddrRing
	compRing *xskring.AddrRing

	fillInitialized bool

	logger *log.Logger
}

// New constructs a Manager, performing every setup step of §4.3 in order
// and unwinding in reverse on the first failure.
func New(cfg Config, logger *log.Logger) (mgr *Manager, err error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.FillSize == 0 || cfg.CompSize == 0 {
		return nil, fmt.Errorf("umem: FillSize and CompSize must be positive")
	}

	if err = xsksys.RaiseMemlockUnlimited(); err != nil {
		return nil, err
	}

	numaNode := -1
	if cfg.UseNUMA {
		numaNode = cfg.NUMANode
	}
	pool, err := newFramePool(cfg.NFrames, cfg.FrameSize, cfg.FrameHeadroom, cfg.Hugepages, numaNode)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = pool.close()
		}
	}()

	fd, err := xsksys.NewXDPSocket()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = xsksys.CloseSocket(fd)
		}
	}()

	if err = xsksys.RegisterUmem(fd, pool.BaseAddr(), pool.TotalSize(), cfg.FrameSize, cfg.FrameHeadroom); err != nil {
		return nil, fmt.Errorf("umem: register umem: %w", err)
	}
	if err = xsksys.SetRingSize(fd, xskabi.OptUmemFillRing, cfg.FillSize); err != nil {
		return nil, fmt.Errorf("umem: size fill ring: %w", err)
	}
	if err = xsksys.SetRingSize(fd, xskabi.OptUmemCompletionRing, cfg.CompSize); err != nil {
		return nil, fmt.Errorf("umem: size completion ring: %w", err)
	}

	offsets, err := xsksys.GetMmapOffsets(fd)
	if err != nil {
		return nil, fmt.Errorf("umem: mmap offsets: %w", err)
	}

	fillRing, err := xskring.MmapAddrRing(fd, xskabi.PgoffUmemFillRing, offsets.Fr, cfg.FillSize)
	if err != nil {
		return nil, fmt.Errorf("umem: mmap fill ring: %w", err)
	}
	defer func() {
		if err != nil {
			_ = fillRing.Unmap()
		}
	}()

	compRing, err := xskring.MmapAddrRing(fd, xskabi.PgoffUmemCompletionRing, offsets.Cr, cfg.CompSize)
	if err != nil {
		return nil, fmt.Errorf("umem: mmap completion ring: %w", err)
	}

	freelist := newFreelist(int(cfg.NFrames), uint64(cfg.FrameSize))

	return &Manager{
		cfg:      cfg,
		pool:     pool,
		freelist: freelist,
		fd:       fd,
		fillRing: fillRing,
		compRing: compRing,
		logger:   logger,
	}, nil
}

// Fd returns the UMEM registration socket, shared by every Port via
// bind(2)'s sxdp_shared_umem_fd.
func (m *Manager) Fd() int { return m.fd }

// Pool exposes the backing FramePool for read access to packet data.
func (m *Manager) Pool() *FramePool { return m.pool }

// InitFill pops up to fill_size frames from the freelist and submits them
// to the Fill ring. Idempotent: a second call is a no-op that returns 0 and
// no error, matching xdp_fwd2_refactored.c's fq_initialized guard.
func (m *Manager) InitFill() (int, error) {
	m.freelist.mu.Lock()
	defer m.freelist.mu.Unlock()

	if m.fillInitialized {
		return 0, nil
	}

	want := int(m.cfg.FillSize)
	n := m.fillLocked(want)
	if n <= 0 {
		return 0, fmt.Errorf("umem: failed to initialize fill ring with %d frames", want)
	}
	m.fillInitialized = true
	return n, nil
}

// DrainCompletion moves up to defaultDrainBatch finished TX frame addresses
// from the Completion ring back onto the freelist. Never blocks.
func (m *Manager) DrainCompletion() int {
	m.freelist.mu.Lock()
	defer m.freelist.mu.Unlock()
	return m.drainCompletionLocked(defaultDrainBatch)
}

func (m *Manager) drainCompletionLocked(batch uint32) int {
	idx, got := m.compRing.PeekConsumer(batch)
	if got == 0 {
		return 0
	}
	for i := uint32(0); i < got; i++ {
		addr := m.compRing.ReadAddr(idx + i)
		// The kernel is the only writer of Completion entries, but a
		// misbehaving or out-of-sync driver is exactly what invariant I3
		// (address validity) guards against — never hand a frame the pool
		// doesn't recognize back onto the freelist.
		if !m.pool.Valid(addr) {
			m.logger.Printf("umem: completion ring returned invalid frame address %#x, dropping", addr)
			continue
		}
		m.freelist.freeLocked([]uint64{addr})
	}
	m.compRing.ReleaseConsumer(got)
	return int(got)
}

// RefillFill pops up to target frames from the freelist and submits them to
// the Fill ring. If the ring cannot accept them all, the unclaimed frames
// are returned to the freelist rather than lost.
func (m *Manager) RefillFill(target int) int {
	m.freelist.mu.Lock()
	defer m.freelist.mu.Unlock()
	return m.fillLocked(target)
}

// fillLocked is the shared body of InitFill/RefillFill; caller holds
// freelist.mu.
func (m *Manager) fillLocked(want int) int {
	if want <= 0 {
		return 0
	}
	frames := m.freelist.allocLocked(want)
	if len(frames) == 0 {
		return 0
	}
	idx, got := m.fillRing.ReserveProducer(uint32(len(frames)))
	if int(got) < len(frames) {
		// Ring could not take them all (or any): return the unused tail.
		m.freelist.freeLocked(frames[got:])
	}
	for i := uint32(0); i < got; i++ {
		m.fillRing.WriteAddr(idx+i, frames[i])
	}
	if got > 0 {
		m.fillRing.SubmitProducer()
	}
	return int(got)
}

// FillNeedsWakeup reports the Fill ring's need-wakeup bit, consulted by the
// forwarder before issuing an RX poll kick.
func (m *Manager) FillNeedsWakeup() bool { return m.fillRing.NeedsWakeup() }

// FillFreeSlots reports the Fill ring's current free producer slot count,
// consulted by the forwarder's low-watermark refill gate.
func (m *Manager) FillFreeSlots() uint32 {
	m.freelist.mu.Lock()
	defer m.freelist.mu.Unlock()
	return m.fillRing.Free()
}

// Freelist exposes the shared freelist for direct Alloc/Free by Port/
// Forwarder code outside the ring-locked paths above.
func (m *Manager) Freelist() *Freelist { return m.freelist }

// Close tears the Manager down in the reverse order of New: unmap
// Completion, unmap Fill, close the UMEM socket, unmap UMEM memory. The
// caller must guarantee no Port or worker still references this Manager.
func (m *Manager) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(m.compRing.Unmap())
	record(m.fillRing.Unmap())
	record(xsksys.CloseSocket(m.fd))
	record(m.pool.close())
	return firstErr
}
