// control/debug.go
// Author: momentics <momentics@gmail.com>
//
// Runtime debug handler and probe reflector for internal inspection.

package control

import (
	"sync"

	"github.com/eapache/queue"
)

// DebugProbes holds registered probe functions.
type DebugProbes struct {
	mu     sync.RWMutex
	probes map[string]func() any
}

// NewDebugProbes creates a probe registry.
func NewDebugProbes() *DebugProbes {
	return &DebugProbes{
		probes: make(map[string]func() any),
	}
}

// RegisterProbe inserts a named debug hook.
func (dp *DebugProbes) RegisterProbe(name string, fn func() any) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.probes[name] = fn
}

// DumpState returns output of all probes.
func (dp *DebugProbes) DumpState() map[string]any {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	out := make(map[string]any)
	for k, fn := range dp.probes {
		out[k] = fn()
	}
	return out
}

// StatsHistory is a bounded ring of past DumpState snapshots, backed by
// eapache/queue the same way the teacher's pool package buffers pending
// work items. The stats-tick loop pushes one snapshot per interval; Push
// drops the oldest once capacity is exceeded.
type StatsHistory struct {
	mu       sync.Mutex
	q        *queue.Queue
	capacity int
}

// NewStatsHistory creates a history ring holding at most capacity snapshots.
func NewStatsHistory(capacity int) *StatsHistory {
	return &StatsHistory{q: queue.New(), capacity: capacity}
}

// Push appends a snapshot, evicting the oldest entry if over capacity.
func (h *StatsHistory) Push(snapshot map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.q.Add(snapshot)
	for h.q.Length() > h.capacity {
		h.q.Remove()
	}
}

// Recent returns the buffered snapshots, oldest first.
func (h *StatsHistory) Recent() []map[string]any {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]map[string]any, 0, h.q.Length())
	for i := 0; i < h.q.Length(); i++ {
		out = append(out, h.q.Get(i).(map[string]any))
	}
	return out
}
