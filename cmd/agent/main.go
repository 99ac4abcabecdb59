package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/justin-oleary/kernprof/pkg/config"
	"github.com/justin-oleary/kernprof/pkg/device"
	"github.com/justin-oleary/kernprof/pkg/k8s"
	"github.com/justin-oleary/kernprof/pkg/metrics"
	"github.com/justin-oleary/kernprof/pkg/profiler"
	"github.com/justin-oleary/kernprof/pkg/workload"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
)

// nodeLocks ensures ReconcileNode never runs concurrently for the same node.
// Values are *sync.Mutex; TryLock discards duplicate Ready events that fire
// while a profile pass is already in flight.
var nodeLocks sync.Map

// agentDevice is what the agent needs from a backend: profiling plus kernel
// launches for the synthetic workload.
type agentDevice interface {
	profiler.Device
	workload.Launcher
	Close()
}

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load(os.Getenv("KPROF_CONFIG"))
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logger, err := config.NewLogger(cfg.Log, os.Stdout)
	if err != nil {
		slog.Error("failed to build logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	nodeName := os.Getenv("NODE_NAME")
	if nodeName == "" {
		slog.Error("NODE_NAME not set, mount the node name via the downward API")
		os.Exit(1)
	}

	suite, err := cfg.Suite()
	if err != nil {
		slog.Error("invalid metric selector", "err", err)
		os.Exit(1)
	}
	w, err := workload.Get(cfg.Agent.Workload)
	if err != nil {
		slog.Error("invalid workload", "err", err)
		os.Exit(1)
	}

	dev, err := openDevice(cfg.Profiler)
	if err != nil {
		slog.Error("failed to open device", "device", cfg.Profiler.Device, "err", err)
		os.Exit(1)
	}
	defer dev.Close()

	if err := profiler.Init(dev, cfg.Profiler.Enabled, profiler.TimeOnly,
		profiler.WithLogger(logger), profiler.WithObserver(metrics.Recorder{}),
	); err != nil {
		slog.Error("failed to initialize profiler", "err", err)
		os.Exit(1)
	}

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		slog.Error("failed to load in-cluster config", "err", err)
		os.Exit(1)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		slog.Error("failed to create clientset", "err", err)
		os.Exit(1)
	}

	runner := workload.Runner{Launcher: dev, Seed: uint64(time.Now().UnixNano())}
	profile := func(ctx context.Context) (*workload.Result, error) {
		return runner.Profile(ctx, profiler.Default(), w, cfg.Agent.Iterations, suite)
	}
	ctrl := k8s.NewController(clientset, profile,
		k8s.WithNamespace(cfg.Agent.Namespace),
		k8s.WithReadyWindow(cfg.Agent.ReadyWindow),
		k8s.WithLogger(logger),
		k8s.WithTelemetry(device.QueryGPUs),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("kprof agent starting",
		"node", nodeName,
		"device", cfg.Profiler.Device,
		"arch", dev.Arch(),
		"suite", suite.Name(),
		"workload", w.Name,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serveMetrics(gctx, cfg.Agent.MetricsAddr) })
	g.Go(func() error {
		run(gctx, ctrl, clientset, nodeName)
		return nil
	})
	if err := g.Wait(); err != nil {
		slog.Error("agent stopped", "err", err)
		os.Exit(1)
	}
}

func openDevice(p config.Profiler) (agentDevice, error) {
	if p.Device == "cuda" {
		d, err := device.NewCUDA(p.DeviceOrdinal)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return device.NewSim(), nil
}

// serveMetrics runs the Prometheus /metrics endpoint until ctx is cancelled.
// A listen failure is returned so the errgroup tears the agent down.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			slog.Error("metrics server shutdown error", "err", err)
		}
	}()

	slog.Info("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// run watches the node's Ready condition indefinitely, reconnecting with
// exponential backoff whenever the API server closes the watch channel.
// The API server closes watch streams server-side every 5–10 minutes;
// this is normal and must never be treated as a fatal error.
func run(ctx context.Context, ctrl *k8s.Controller, clientset kubernetes.Interface, nodeName string) {
	const maxBackoff = 30 * time.Second
	backoff := time.Second

	for {
		if err := watchOnce(ctx, ctrl, clientset, nodeName); err != nil {
			if ctx.Err() != nil {
				return // context cancelled, clean shutdown
			}
			slog.Warn("watch ended, reconnecting", "node", nodeName, "err", err, "backoff", backoff)
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		}
	}
}

// watchOnce opens a single watch stream and processes node events until the
// stream closes or the context is cancelled. A closed channel is returned as
// nil so run() reconnects without logging a spurious error.
func watchOnce(ctx context.Context, ctrl *k8s.Controller, clientset kubernetes.Interface, nodeName string) error {
	w, err := clientset.CoreV1().Nodes().Watch(ctx, metav1.ListOptions{
		FieldSelector: "metadata.name=" + nodeName,
	})
	if err != nil {
		return fmt.Errorf("watch node %s: %w", nodeName, err)
	}
	defer w.Stop()

	var wasReady bool

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.ResultChan():
			if !ok {
				return nil // server closed, caller reconnects
			}
			if ev.Type != watch.Modified && ev.Type != watch.Added {
				continue
			}
			node, ok := ev.Object.(*corev1.Node)
			if !ok {
				continue
			}

			ready := k8s.IsNodeReady(node)
			if ready && !wasReady {
				go tryReconcile(ctx, ctrl, nodeName)
			}
			wasReady = ready
		}
	}
}

// tryReconcile acquires a per-node TryLock before calling ReconcileNode.
// If a pass is already in progress for this node the event is discarded;
// the device can only run one counter configuration at a time anyway.
func tryReconcile(ctx context.Context, ctrl *k8s.Controller, nodeName string) {
	v, _ := nodeLocks.LoadOrStore(nodeName, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		slog.Info("profile pass already in progress, discarding duplicate ready event", "node", nodeName)
		return
	}
	defer mu.Unlock()

	if err := ctrl.ReconcileNode(ctx, nodeName); err != nil {
		slog.Error("reconcile failed", "node", nodeName, "err", err)
	}
}
