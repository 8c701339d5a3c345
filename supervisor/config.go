// File: supervisor/config.go
// Package supervisor implements C6: builds the UMEM Manager, the Ports and
// thread cohorts, pins one Forwarder per cohort, prints stats, and tears
// everything down on signal.
package supervisor

import (
	"errors"
	"flag"
	"fmt"
	"time"
)

// PortSpec is one -i/-q pair from the command line.
type PortSpec struct {
	Interface string
	QueueID   uint32
}

// Config is the fully parsed, validated supervisor configuration.
type Config struct {
	CPUs  []int
	Ports []PortSpec

	NFrames       uint32
	FrameSize     uint32
	FillSize      uint32
	CompSize      uint32
	RxSize        uint32
	TxSize        uint32
	Hugepages     bool
	NeedWakeup    bool
	ZeroCopy      bool
	LogLevel      string
	StatsInterval time.Duration

	UseNUMA  bool
	NUMANode int
}

// ErrConfig wraps every CLI parse/validation failure; the caller prints
// usage and exits non-zero per spec.md §7's Configuration error policy.
var ErrConfig = errors.New("supervisor: configuration error")

type intListFlag struct{ vals *[]int }

func (f intListFlag) String() string { return "" }
func (f intListFlag) Set(s string) error {
	var v int
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return fmt.Errorf("%w: -c %q: %v", ErrConfig, s, err)
	}
	*f.vals = append(*f.vals, v)
	return nil
}

type portListFlag struct{ ports *[]PortSpec }

func (f portListFlag) String() string { return "" }
func (f portListFlag) Set(s string) error {
	*f.ports = append(*f.ports, PortSpec{Interface: s, QueueID: 0})
	return nil
}

type queueOverrideFlag struct{ ports *[]PortSpec }

func (f queueOverrideFlag) String() string { return "" }
func (f queueOverrideFlag) Set(s string) error {
	if len(*f.ports) == 0 {
		return fmt.Errorf("%w: -q given before any -i", ErrConfig)
	}
	var v uint32
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return fmt.Errorf("%w: -q %q: %v", ErrConfig, s, err)
	}
	(*f.ports)[len(*f.ports)-1].QueueID = v
	return nil
}

// ParseFlags parses argv (excluding the program name) into a validated
// Config. -c/-i/-q are repeatable; -q rewrites the queue id of the most
// recently appended -i, matching the order flag.FlagSet processes them in.
func ParseFlags(args []string) (Config, error) {
	fs := flag.NewFlagSet("xdpfwd", flag.ContinueOnError)
	cfg := Config{
		NFrames:       4096,
		FrameSize:     2048,
		FillSize:      2048,
		CompSize:      2048,
		RxSize:        2048,
		TxSize:        2048,
		NeedWakeup:    true,
		LogLevel:      "info",
		StatsInterval: time.Second,
	}

	fs.Var(intListFlag{&cfg.CPUs}, "c", "append a worker pinned to this CPU core")
	fs.Var(portListFlag{&cfg.Ports}, "i", "append a forwarding port bound to this interface")
	fs.Var(queueOverrideFlag{&cfg.Ports}, "q", "override queue id on the most recently added -i")
	nFrames := fs.Uint("frames", uint(cfg.NFrames), "total UMEM frames")
	frameSize := fs.Uint("frame-size", uint(cfg.FrameSize), "bytes per frame")
	fillSize := fs.Uint("fill-size", uint(cfg.FillSize), "fill ring depth")
	compSize := fs.Uint("comp-size", uint(cfg.CompSize), "completion ring depth")
	rxSize := fs.Uint("rx-size", uint(cfg.RxSize), "rx ring depth per port")
	txSize := fs.Uint("tx-size", uint(cfg.TxSize), "tx ring depth per port")
	fs.BoolVar(&cfg.Hugepages, "huge", false, "request huge-page UMEM backing")
	numaNode := fs.Int("numa-node", -1, "back the UMEM with memory local to this NUMA node (-1 disables)")
	fs.BoolVar(&cfg.ZeroCopy, "zerocopy", false, "request zero-copy mode instead of copy mode")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug|info|warn|error")
	fs.DurationVar(&cfg.StatsInterval, "stats-interval", cfg.StatsInterval, "override the stats tick interval")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg.NFrames = uint32(*nFrames)
	cfg.FrameSize = uint32(*frameSize)
	cfg.FillSize = uint32(*fillSize)
	cfg.CompSize = uint32(*compSize)
	cfg.RxSize = uint32(*rxSize)
	cfg.TxSize = uint32(*txSize)
	if *numaNode >= 0 {
		cfg.UseNUMA = true
		cfg.NUMANode = *numaNode
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants spec.md §6 names: n_ports mod n_threads
// == 0, plus the non-negotiable minimums no construction can proceed
// without.
func (c Config) Validate() error {
	if len(c.CPUs) == 0 {
		return fmt.Errorf("%w: at least one -c is required", ErrConfig)
	}
	if len(c.Ports) == 0 {
		return fmt.Errorf("%w: at least one -i is required", ErrConfig)
	}
	if len(c.Ports)%len(c.CPUs) != 0 {
		return fmt.Errorf("%w: port count (%d) must be a multiple of worker count (%d)",
			ErrConfig, len(c.Ports), len(c.CPUs))
	}
	if c.NFrames == 0 || c.FrameSize == 0 {
		return fmt.Errorf("%w: frames and frame-size must be positive", ErrConfig)
	}
	return nil
}

// Cohorts partitions Ports into len(CPUs) contiguous, equal-size groups,
// one per worker.
func (c Config) Cohorts() [][]PortSpec {
	groupSize := len(c.Ports) / len(c.CPUs)
	cohorts := make([][]PortSpec, len(c.CPUs))
	for i := range cohorts {
		cohorts[i] = c.Ports[i*groupSize : (i+1)*groupSize]
	}
	return cohorts
}
