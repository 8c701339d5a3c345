// File: supervisor/stats.go
package supervisor

import (
	"context"
	"fmt"
	"time"
)

type portSample struct {
	name       string
	rx, tx     uint64
}

// runStatsLoop prints the stats table once per cfg.StatsInterval, reading
// the torn n_pkts_rx/n_pkts_tx snapshot spec.md §4.4 explicitly permits,
// and folds each tick's per-port counters into the metrics registry and
// the debug-probe snapshot into the bounded history ring for any future
// machine-readable sink.
func (s *Supervisor) runStatsLoop(ctx context.Context) {
	interval := s.cfg.StatsInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	prev := s.sample()
	prevAt := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur := s.sample()
		now := time.Now()
		elapsedNs := float64(now.Sub(prevAt).Nanoseconds())

		s.printTable(prev, cur, elapsedNs)

		snapshot := s.debug.DumpState()
		s.history.Push(snapshot)
		for _, c := range cur {
			s.metrics.Set(c.name+".rx", c.rx)
			s.metrics.Set(c.name+".tx", c.tx)
		}

		prev = cur
		prevAt = now
	}
}

func (s *Supervisor) sample() []portSample {
	out := make([]portSample, len(s.ports))
	for i, p := range s.ports {
		out[i] = portSample{name: p.Name(), rx: p.NPktsRx, tx: p.NPktsTx}
	}
	return out
}

func (s *Supervisor) printTable(prev, cur []portSample, elapsedNs float64) {
	fmt.Println("| Port | RX packets | RX rate (pps) | TX packets | TX rate (pps) |")
	for i, c := range cur {
		rxRate, txRate := rates(prev[i], c, elapsedNs)
		fmt.Printf("| %s | %d | %.0f | %d | %.0f |\n", c.name, c.rx, rxRate, c.tx, txRate)
	}
}

// rates computes (current - previous) * 1e9 / elapsedNs per spec.md §6,
// using a monotonic-clock-derived elapsedNs. A non-positive elapsedNs
// reports zero rather than dividing by zero.
func rates(prev, cur portSample, elapsedNs float64) (rx, tx float64) {
	if elapsedNs <= 0 {
		return 0, 0
	}
	rx = float64(cur.rx-prev.rx) * 1e9 / elapsedNs
	tx = float64(cur.tx-prev.tx) * 1e9 / elapsedNs
	return rx, tx
}
