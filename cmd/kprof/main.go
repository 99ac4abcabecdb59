// kprof is a standalone CLI for profiling kernel workloads on the local
// device without a running Kubernetes cluster.
//
// Usage:
//
//	kprof run    [--workload=<name>] [--metrics=<suite|ids>] [--mode=count|trace] [--format=text|json|csv]
//	kprof query  <kernel>... [--workload=<name>]
//	kprof suites [--all]
//
// The default device is simulated. Pass --device=cuda on a GPU host with a
// binary built with -tags cuda to profile real hardware.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
