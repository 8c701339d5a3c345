// Command xdpfwd is a minimal-latency AF_XDP packet forwarder: it receives
// frames on a set of interfaces, swaps source/destination Ethernet MAC
// addresses, and retransmits them, entirely in kernel-bypass user space.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/cloudshift/xdpfwd/supervisor"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := supervisor.ParseFlags(args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.CommandLine.Usage()
		return -1
	}

	logger := log.New(os.Stderr, "xdpfwd: ", log.LstdFlags|log.Lmicroseconds)

	sup, err := supervisor.New(cfg, logger)
	if err != nil {
		logger.Printf("startup failed: %v", err)
		return -1
	}

	if err := sup.Run(context.Background()); err != nil {
		logger.Printf("shutdown error: %v", err)
		return -1
	}
	return 0
}
