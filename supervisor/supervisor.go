// File: supervisor/supervisor.go
package supervisor

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/cloudshift/xdpfwd/control"
	"github.com/cloudshift/xdpfwd/forward"
	"github.com/cloudshift/xdpfwd/port"
	"github.com/cloudshift/xdpfwd/reactor"
	"github.com/cloudshift/xdpfwd/transform"
	"github.com/cloudshift/xdpfwd/umem"
)

// Supervisor owns the UMEM Manager, every Port, and one Forwarder per
// cohort. It is the only component that constructs or tears down any of
// them; per spec.md §4.6, nothing else touches Port/Manager lifetime.
type Supervisor struct {
	cfg    Config
	logger *log.Logger

	mgr        *umem.Manager
	ports      []*port.Port
	forwarders []*forward.Forwarder
	idles      []reactor.Reactor

	metrics *control.MetricsRegistry
	debug   *control.DebugProbes
	history *control.StatsHistory
	config  *control.ConfigStore

	wg sync.WaitGroup
}

// New builds and wires the whole pipeline: UMEM, Ports, cohorts,
// Forwarders. On any failure it unwinds everything already constructed, in
// reverse order, before returning — spec.md §7's resource-exhaustion policy.
func New(cfg Config, logger *log.Logger) (s *Supervisor, err error) {
	if logger == nil {
		logger = log.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sup := &Supervisor{
		cfg:     cfg,
		logger:  logger,
		metrics: control.NewMetricsRegistry(),
		debug:   control.NewDebugProbes(),
		history: control.NewStatsHistory(60),
		config:  control.NewConfigStore(),
	}
	sup.config.SetConfig(map[string]any{
		"log-level":      cfg.LogLevel,
		"stats-interval": cfg.StatsInterval.String(),
		"frames":         cfg.NFrames,
	})
	control.RegisterPlatformProbes(sup.debug)

	sup.mgr, err = umem.New(umem.Config{
		NFrames:       cfg.NFrames,
		FrameSize:     cfg.FrameSize,
		FrameHeadroom: 0,
		FillSize:      cfg.FillSize,
		CompSize:      cfg.CompSize,
		Hugepages:     cfg.Hugepages,
		UseNUMA:       cfg.UseNUMA,
		NUMANode:      cfg.NUMANode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("supervisor: build umem manager: %w", err)
	}
	defer func() {
		if err != nil {
			_ = sup.mgr.Close()
		}
	}()

	if _, err = sup.mgr.InitFill(); err != nil {
		return nil, fmt.Errorf("supervisor: initial fill: %w", err)
	}

	for _, spec := range cfg.Ports {
		p, perr := port.New(sup.mgr, port.Config{
			Interface:  spec.Interface,
			QueueID:    spec.QueueID,
			RxSize:     cfg.RxSize,
			TxSize:     cfg.TxSize,
			NeedWakeup: cfg.NeedWakeup,
			ZeroCopy:   cfg.ZeroCopy,
		})
		if perr != nil {
			err = fmt.Errorf("supervisor: bind port %s/%d: %w", spec.Interface, spec.QueueID, perr)
			for _, built := range sup.ports {
				_ = built.Close()
			}
			return nil, err
		}
		sup.ports = append(sup.ports, p)
		sup.debug.RegisterProbe(fmt.Sprintf("%s/%d", spec.Interface, spec.QueueID), func() any {
			return map[string]uint64{"rx": p.NPktsRx, "tx": p.NPktsTx}
		})
	}

	cohorts := cfg.Cohorts()
	for i, cohort := range cohorts {
		fwdPorts := make([]forward.Port, len(cohort))
		base := i * (len(sup.ports) / len(cohorts))
		for j := range cohort {
			fwdPorts[j] = sup.ports[base+j]
		}

		var idle reactor.Reactor
		if len(fwdPorts) > 1 {
			idle, err = reactor.New()
			if err != nil {
				sup.logger.Printf("supervisor: idle reactor unavailable for cohort %d: %v", i, err)
				idle = nil
				err = nil
			}
		}
		sup.idles = append(sup.idles, idle)

		fw := forward.New(sup.mgr, forward.Config{
			CPU:           cfg.CPUs[i],
			Cohort:        fwdPorts,
			Mutate:        transform.SwapEthernetMACs,
			FillSize:      cfg.FillSize,
			PollTimeoutMs: 1,
			Logger:        logger,
			Idle:          idle,
		})
		sup.forwarders = append(sup.forwarders, fw)
	}

	return sup, nil
}

// Run spawns one goroutine per Forwarder plus the stats ticker, and blocks
// until ctx is canceled or SIGINT/SIGTERM arrives, then tears everything
// down. It returns after teardown completes.
func (s *Supervisor) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for _, fw := range s.forwarders {
		s.wg.Add(1)
		go func(fw *forward.Forwarder) {
			defer s.wg.Done()
			fw.Run(runCtx)
		}(fw)
	}

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		s.runStatsLoop(runCtx)
	}()

	select {
	case <-sigCh:
		s.logger.Printf("supervisor: signal received, shutting down")
	case <-ctx.Done():
	}

	for _, fw := range s.forwarders {
		fw.Quit()
	}
	cancel()
	s.wg.Wait()
	<-statsDone

	return s.teardown()
}

// teardown closes every idle reactor, every Port, then the UMEM Manager, in
// that order — the reverse of construction.
func (s *Supervisor) teardown() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, idle := range s.idles {
		if idle != nil {
			record(idle.Close())
		}
	}
	for _, p := range s.ports {
		record(p.Close())
	}
	record(s.mgr.Close())
	return firstErr
}
