// File: forward/forwarder.go
// Package forward implements C5, the forwarding worker loop: a CPU-pinned,
// single-threaded cooperative loop over a thread cohort that pumps RX->TX,
// recycles TX completions, refills the Fill ring, and issues syscall
// wakeup kicks only when ring state requires it.
//
// The control flow below is a direct, line-for-line port of pump_once in
// original_source/xdp/xdp_fwd2_refactored.c, adapted to the ring topology
// spec.md §3/§4.5 specifies (TX for cohort slot i is cohort[(i+1) mod n],
// not the original's O(n^2) all-pairs loop).
package forward

import (
	"context"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cloudshift/xdpfwd/affinity"
	"github.com/cloudshift/xdpfwd/internal/xsksys"
	"github.com/cloudshift/xdpfwd/reactor"
	"github.com/cloudshift/xdpfwd/xskring"
)

const txReserveYield = 50 * time.Microsecond

// Port is the subset of *port.Port a Forwarder needs. Defined here (rather
// than imported from package port) so tests can supply an in-memory fake
// without a real AF_XDP socket; *port.Port already satisfies it.
type Port interface {
	Name() string
	Fd() int
	RX() *xskring.DescRing
	TX() *xskring.DescRing
	PacketData(addr uint64, l uint32) []byte
}

// UmemOps is the subset of *umem.Manager the forwarder drives on its hot
// path. *umem.Manager already satisfies it.
type UmemOps interface {
	DrainCompletion() int
	RefillFill(target int) int
	FillNeedsWakeup() bool
	FillFreeSlots() uint32
}

// Mutator edits a packet's bytes in place between RX peek and TX submit. It
// must not reallocate or retain the slice past return.
type Mutator func([]byte) error

// Config configures one Forwarder worker.
type Config struct {
	CPU      int
	Cohort   []Port
	Mutate   Mutator
	FillSize uint32
	// FillWatermark is the free-slot threshold above which replenishFill
	// posts a batch back to the Fill ring. Zero (the default) selects
	// FillSize/2, matching xdp_fwd2_refactored.c's fq_free > fill_size/2.
	FillWatermark uint32
	PollTimeoutMs int
	Logger        *log.Logger
	// Idle, when set, multiplexes all cohort fds behind a single epoll
	// wait for the empty-RX branch instead of a per-port blocking poll
	// call — worthwhile once a cohort holds more than one port.
	Idle reactor.Reactor
}

// Forwarder is one CPU-pinned worker cycling through its cohort.
type Forwarder struct {
	cpu            int
	cohort         []Port
	mgr            UmemOps
	mutate         Mutator
	fillSize       uint32
	fillWatermark  uint32
	pollTimeoutMs  int
	logger         *log.Logger
	idle           reactor.Reactor
	idleRegistered bool

	quit     atomic.Bool
	errCount atomic.Uint64
}

// New builds a Forwarder bound to mgr's shared Fill/Completion rings.
func New(mgr UmemOps, cfg Config) *Forwarder {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	mutate := cfg.Mutate
	if mutate == nil {
		mutate = func([]byte) error { return nil }
	}
	watermark := cfg.FillWatermark
	if watermark == 0 {
		watermark = cfg.FillSize / 2
	}
	return &Forwarder{
		cpu:           cfg.CPU,
		cohort:        cfg.Cohort,
		mgr:           mgr,
		mutate:        mutate,
		fillSize:      cfg.FillSize,
		fillWatermark: watermark,
		pollTimeoutMs: cfg.PollTimeoutMs,
		logger:        logger,
		idle:          cfg.Idle,
	}
}

// registerIdle wires every cohort port's fd into the idle reactor once, so
// the empty-RX branch can block on the whole cohort with a single Poll
// call. Callbacks are no-ops: Poll returning at all is the only signal
// pumpOnce needs before it re-peeks every ring on the next pass.
func (f *Forwarder) registerIdle() {
	if f.idle == nil || f.idleRegistered {
		return
	}
	for _, p := range f.cohort {
		if err := f.idle.Register(uintptr(p.Fd()), reactor.EventRead, func(uintptr, reactor.FDEventType) {}); err != nil {
			f.logger.Printf("forward: idle reactor register %s: %v", p.Name(), err)
		}
	}
	f.idleRegistered = true
}

// Quit sets the cooperative shutdown flag; Run exits within one pump cycle.
func (f *Forwarder) Quit() { f.quit.Store(true) }

// ErrorCount reports the running count of fatal-but-non-panicking
// kernel-ring errors observed on this worker's ports.
func (f *Forwarder) ErrorCount() uint64 { return f.errCount.Load() }

// Run pins the calling OS thread to f.cpu and cycles the cohort until Quit
// is called. It must be invoked on its own goroutine with
// runtime.LockOSThread semantics owned by this call.
func (f *Forwarder) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if f.cpu >= 0 {
		if err := affinity.SetAffinity(f.cpu); err != nil {
			f.logger.Printf("forward: cpu pin failed (cpu=%d): %v", f.cpu, err)
		}
	}

	n := len(f.cohort)
	if n == 0 {
		return
	}
	i := 0
	for !f.quit.Load() {
		select {
		case <-ctx.Done():
			return
		default:
		}
		rx := f.cohort[i]
		tx := f.cohort[(i+1)%n]
		f.pumpOnce(rx, tx)
		i = (i + 1) % n
	}
}

// pumpOnce executes one RX->TX hand-off for the (rx, tx) pair, per
// spec.md §4.5. It never leaks a frame: every early-return path has either
// taken no frame from the freelist or pushed back any frame it took.
func (f *Forwarder) pumpOnce(rx, tx Port) int {
	// 1. Drain TX completions back onto the shared freelist.
	f.mgr.DrainCompletion()

	// 2. Peek exactly one RX descriptor.
	rxRing := rx.RX()
	idx, got := rxRing.PeekConsumer(1)
	if got == 0 {
		if f.mgr.FillNeedsWakeup() {
			f.waitRxReady(rx)
		}
		return 0
	}

	// 3. Extract (addr, len).
	desc := rxRing.ReadDesc(idx)

	// 4. Release the RX slot; the frame is now In-RX, still referencing addr.
	rxRing.ReleaseConsumer(1)

	// 5. Mutate the packet in place (MAC swap by default).
	pkt := rx.PacketData(desc.Addr, desc.Len)
	if err := f.mutate(pkt); err != nil {
		f.logger.Printf("forward: mutate on %s: %v", rx.Name(), err)
		f.errCount.Add(1)
		// The frame must not be dropped in user space: still forward it
		// unmutated rather than leaking it.
	}

	// 6/7. Reserve a TX slot, kicking and retrying until it succeeds.
	txRing := tx.TX()
	var tidx uint32
	for {
		var tgot uint32
		tidx, tgot = txRing.ReserveProducer(1)
		if tgot == 1 {
			break
		}
		if txRing.NeedsWakeup() {
			if err := xsksys.KickTX(tx.Fd()); err != nil {
				f.logger.Printf("forward: tx kick on %s: %v", tx.Name(), err)
				f.errCount.Add(1)
			}
			// Wait for the kernel to actually drain some TX completions
			// before spinning again, rather than a blind fixed sleep.
			if err := xsksys.PollOutput(tx.Fd(), f.pollTimeoutMs); err != nil {
				f.logger.Printf("forward: tx poll kick on %s: %v", tx.Name(), err)
				f.errCount.Add(1)
			}
			continue
		}
		time.Sleep(txReserveYield)
	}
	txRing.WriteDesc(tidx, desc)
	txRing.SubmitProducer()
	if txRing.NeedsWakeup() {
		if err := xsksys.KickTX(tx.Fd()); err != nil {
			f.logger.Printf("forward: tx kick on %s: %v", tx.Name(), err)
			f.errCount.Add(1)
		}
	}

	incrPort(rx, tx)

	// 8. Replenish the Fill ring from the freelist, once it has drained
	// past the watermark.
	f.replenishFill(rx)

	return 1
}

// waitRxReady blocks until rx.Fd() (or, with an idle reactor configured,
// any fd in the cohort) is readable or f.pollTimeoutMs elapses.
func (f *Forwarder) waitRxReady(rx Port) {
	if f.idle != nil {
		f.registerIdle()
		if err := f.idle.Poll(f.pollTimeoutMs); err != nil {
			f.logger.Printf("forward: idle reactor poll: %v", err)
			f.errCount.Add(1)
		}
		return
	}
	if err := xsksys.PollInput(rx.Fd(), f.pollTimeoutMs); err != nil {
		f.logger.Printf("forward: rx poll kick on %s: %v", rx.Name(), err)
		f.errCount.Add(1)
	}
}

// replenishFill posts frames back to the Fill ring in a batch once its free
// slot count exceeds f.fillWatermark, rather than one frame per packet — the
// same fq_free > fill_size/2 gate as xdp_fwd2_refactored.c's thread_func. A
// shortfall (freelist momentarily exhausted) is retried via Completion drain
// plus a zero-timeout RX poll; that is backpressure from the NIC, not an
// error condition.
func (f *Forwarder) replenishFill(rx Port) {
	free := f.mgr.FillFreeSlots()
	if free <= f.fillWatermark {
		return
	}
	if f.mgr.RefillFill(int(free)) > 0 {
		return
	}
	for {
		f.mgr.DrainCompletion()
		_ = xsksys.PollInput(rx.Fd(), 0)
		if f.mgr.RefillFill(int(free)) > 0 {
			return
		}
		if f.quit.Load() {
			return
		}
	}
}

// incrPort bumps the per-port counters. Defined as a free function (rather
// than a Port interface method) because the counters are owned by concrete
// *port.Port fields, not part of the minimal Port contract forwarders need.
func incrPort(rx, tx Port) {
	if c, ok := rx.(interface{ IncRx() }); ok {
		c.IncRx()
	}
	if c, ok := tx.(interface{ IncTx() }); ok {
		c.IncTx()
	}
}
