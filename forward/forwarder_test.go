// File: forward/forwarder_test.go
package forward

import (
	"context"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudshift/xdpfwd/internal/xskabi"
	"github.com/cloudshift/xdpfwd/xskring"
)

// fakeUmem is an in-memory UmemOps double: DrainCompletion/RefillFill are
// counted and always succeed once armed, mirroring a freelist that is
// never truly exhausted for the duration of a single pumpOnce call.
type fakeUmem struct {
	drainCalls  int
	refillCalls int
	refillOK    bool
	wakeup      bool
	freeSlots   uint32
}

func (f *fakeUmem) DrainCompletion() int {
	f.drainCalls++
	return 0
}

func (f *fakeUmem) RefillFill(target int) int {
	f.refillCalls++
	if f.refillOK {
		return target
	}
	return 0
}

func (f *fakeUmem) FillNeedsWakeup() bool { return f.wakeup }

func (f *fakeUmem) FillFreeSlots() uint32 { return f.freeSlots }

// fakePort backs RX/TX with plain-memory rings (same trick as
// xskring.ring_test.go and umem.manager_test.go) and a byte arena standing
// in for UMEM frame memory.
type fakePort struct {
	name     string
	fd       int
	rx, tx   *xskring.DescRing
	arena    []byte
	rxCount  int
	txCount  int
}

func newFakePort(t *testing.T, name string, n uint32) *fakePort {
	t.Helper()
	mkRing := func() *xskring.DescRing {
		mem := make([]byte, 64+int(n)*int(xskabi.SizeofDesc))
		l := xskring.Layout{
			Mem: mem,
			Offsets: xskabi.RingOffset{
				Producer: 0,
				Consumer: 4,
				Flags:    8,
				Desc:     64,
			},
			NumDescs: n,
			ElemSize: xskabi.SizeofDesc,
		}
		return xskring.NewDescRing(l)
	}
	return &fakePort{
		name:  name,
		rx:    mkRing(),
		tx:    mkRing(),
		arena: make([]byte, 4096),
	}
}

func (p *fakePort) Name() string                  { return p.name }
func (p *fakePort) Fd() int                        { return p.fd }
func (p *fakePort) RX() *xskring.DescRing          { return p.rx }
func (p *fakePort) TX() *xskring.DescRing          { return p.tx }
func (p *fakePort) IncRx()                         { p.rxCount++ }
func (p *fakePort) IncTx()                         { p.txCount++ }
func (p *fakePort) PacketData(addr uint64, l uint32) []byte {
	return p.arena[addr : addr+uint64(l)]
}

func ethFrame(dst, src byte) []byte {
	pkt := make([]byte, 18)
	for i := 0; i < 6; i++ {
		pkt[i] = dst
		pkt[6+i] = src
	}
	pkt[12], pkt[13] = 0x08, 0x00
	copy(pkt[14:], []byte{1, 2, 3, 4})
	return pkt
}

func TestPumpOnceNoRxDescriptorIsANoop(t *testing.T) {
	mgr := &fakeUmem{}
	rx := newFakePort(t, "rx0", 4)
	tx := newFakePort(t, "tx0", 4)

	f := New(mgr, Config{Logger: log.New(testWriter{}, "", 0)})

	n := f.pumpOnce(rx, tx)
	require.Zero(t, n)
	require.Equal(t, 1, mgr.drainCalls)
}

func TestPumpOnceForwardsAndMutatesOneDescriptor(t *testing.T) {
	mgr := &fakeUmem{refillOK: true, freeSlots: 1}
	rx := newFakePort(t, "rx0", 4)
	tx := newFakePort(t, "tx0", 4)

	copy(rx.arena[0:18], ethFrame(0xbb, 0xaa))
	ridx, got := rx.rx.ReserveProducer(1)
	require.Equal(t, uint32(1), got)
	rx.rx.WriteDesc(ridx, xskabi.Desc{Addr: 0, Len: 18})
	rx.rx.SubmitProducer()

	f := New(mgr, Config{
		Mutate: func(pkt []byte) error {
			// Matches transform.SwapEthernetMACs without importing it, to
			// keep this test package import-light; behavior is identical.
			var tmp [6]byte
			copy(tmp[:], pkt[0:6])
			copy(pkt[0:6], pkt[6:12])
			copy(pkt[6:12], tmp[:])
			return nil
		},
		Logger: log.New(testWriter{}, "", 0),
	})

	n := f.pumpOnce(rx, tx)
	require.Equal(t, 1, n)
	require.Equal(t, 1, rx.rxCount)
	require.Equal(t, 1, tx.txCount)
	require.Equal(t, byte(0xaa), rx.arena[0])
	require.Equal(t, byte(0xbb), rx.arena[6])

	tidx, tgot := tx.tx.PeekConsumer(1)
	require.Equal(t, uint32(1), tgot)
	d := tx.tx.ReadDesc(tidx)
	require.Equal(t, uint64(0), d.Addr)
	require.Equal(t, uint32(18), d.Len)
	require.Equal(t, 1, mgr.refillCalls)
}

func TestReplenishFillGatesOnWatermark(t *testing.T) {
	rx := newFakePort(t, "rx0", 4)

	below := &fakeUmem{refillOK: true, freeSlots: 2}
	f := New(below, Config{FillSize: 8, Logger: log.New(testWriter{}, "", 0)})
	require.Equal(t, uint32(4), f.fillWatermark)
	f.replenishFill(rx)
	require.Zero(t, below.refillCalls, "free slots (2) at or below watermark (4) must not trigger a refill")

	above := &fakeUmem{refillOK: true, freeSlots: 5}
	f = New(above, Config{FillSize: 8, Logger: log.New(testWriter{}, "", 0)})
	f.replenishFill(rx)
	require.Equal(t, 1, above.refillCalls, "free slots (5) above watermark (4) must trigger a batch refill")
}

func TestRunExitsPromptlyAfterQuit(t *testing.T) {
	mgr := &fakeUmem{refillOK: true, freeSlots: 1}
	rx := newFakePort(t, "rx0", 4)
	tx := newFakePort(t, "tx0", 4)

	f := New(mgr, Config{
		CPU:    -1, // skip affinity pinning under test
		Cohort: []Port{rx, tx},
		Logger: log.New(testWriter{}, "", 0),
	})

	done := make(chan struct{})
	go func() {
		f.Run(context.Background())
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	f.Quit()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after Quit")
	}
}

// testWriter discards everything; avoids wiring *testing.T into *log.Logger.
type testWriter struct{}

func (testWriter) Write(p []byte) (int, error) { return len(p), nil }
