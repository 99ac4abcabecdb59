package k8s

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/justin-oleary/kernprof/pkg/device"
	"github.com/justin-oleary/kernprof/pkg/metrics"
	"github.com/justin-oleary/kernprof/pkg/report"
	"github.com/justin-oleary/kernprof/pkg/workload"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
)

const (
	annotationPrefix  = "kprof.io/"
	profileCondition  = corev1.NodeConditionType("KernelProfileAvailable")
	configMapPrefix   = "kprof-"
	defaultNamespace  = "kprof-system"
	defaultReadyAfter = 5 * time.Minute
)

// ProfileFunc runs one profiling pass on the local device.
// Defined as a type so tests can inject a mock without CGO or a real GPU.
type ProfileFunc func(ctx context.Context) (*workload.Result, error)

// TelemetryFunc returns GPU telemetry to attach to a published profile.
type TelemetryFunc func() ([]device.GPUStats, error)

// Controller profiles the local GPU when its node (re)joins the cluster and
// publishes the results to the API server.
type Controller struct {
	client      kubernetes.Interface
	profile     ProfileFunc
	telemetry   TelemetryFunc
	namespace   string
	readyWindow time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithNamespace sets where profile ConfigMaps are written.
func WithNamespace(ns string) Option {
	return func(c *Controller) { c.namespace = ns }
}

// WithReadyWindow sets how recently a Ready transition must have occurred
// for the node to count as just joined or rebooted.
func WithReadyWindow(d time.Duration) Option {
	return func(c *Controller) { c.readyWindow = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock replaces time.Now for ready-window checks and timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithTelemetry attaches nvidia-smi style telemetry to every published
// profile. Telemetry failures are logged and otherwise ignored.
func WithTelemetry(fn TelemetryFunc) Option {
	return func(c *Controller) { c.telemetry = fn }
}

// NewController returns a Controller that runs profile on every qualifying
// Ready transition.
func NewController(client kubernetes.Interface, profile ProfileFunc, opts ...Option) *Controller {
	c := &Controller{
		client:      client,
		profile:     profile,
		namespace:   defaultNamespace,
		readyWindow: defaultReadyAfter,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReconcileNode is the primary entry point. It should be called whenever a node
// transitions to Ready (watch event or informer sync). It:
//  1. Checks whether the node just joined or rebooted.
//  2. Runs a profiling pass against the local GPU.
//  3. Publishes the count report to a per-node ConfigMap and summary
//     annotations on the node.
//  4. Records a KernelProfileAvailable condition either way.
func (c *Controller) ReconcileNode(ctx context.Context, nodeName string) error {
	node, err := c.client.CoreV1().Nodes().Get(ctx, nodeName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("get node %s: %w", nodeName, err)
	}

	if !justBecameReady(node, c.readyWindow, c.now()) {
		return nil // steady-state node, do not perturb running jobs
	}

	c.logger.Info("node ready after join/reboot, running profile pass", "node", nodeName)

	start := c.now()
	res, err := c.profile(ctx)
	if err != nil {
		metrics.ProfilePasses.WithLabelValues("failed").Inc()
		c.logger.Error("profile pass failed", "node_name", nodeName, "err", err)
		if cerr := c.setCondition(ctx, nodeName, node, corev1.ConditionFalse, "ProfileFailed", err.Error()); cerr != nil {
			c.logger.Warn("failed to record profile condition", "node_name", nodeName, "err", cerr)
		}
		return fmt.Errorf("profile node %s: %w", nodeName, err)
	}

	cmName, err := c.publish(ctx, nodeName, res)
	if err == nil {
		err = c.annotate(ctx, nodeName, res, cmName)
	}
	if err != nil {
		metrics.ProfilePasses.WithLabelValues("failed").Inc()
		c.logger.Error("profile publish failed", "node_name", nodeName, "err", err)
		if cerr := c.setCondition(ctx, nodeName, node, corev1.ConditionFalse, "PublishFailed", err.Error()); cerr != nil {
			c.logger.Warn("failed to record profile condition", "node_name", nodeName, "err", cerr)
		}
		return err
	}
	metrics.ProfilePasses.WithLabelValues("ok").Inc()

	c.logger.Info("profile published",
		"node_name", nodeName,
		"workload", res.Workload,
		"suite", res.Suite.Name(),
		"launches", res.Launched,
		"kernels", len(res.Count.Results),
		"elapsed", c.now().Sub(start),
	)
	msg := fmt.Sprintf("profile %s/%s published (%d kernels)", c.namespace, cmName, len(res.Count.Results))
	return c.setCondition(ctx, nodeName, node, corev1.ConditionTrue, "ProfilePublished", msg)
}

// justBecameReady returns true when the node's Ready=True condition transitioned
// within the given window of now. Nodes that have been stable for hours return false.
func justBecameReady(node *corev1.Node, within time.Duration, now time.Time) bool {
	for _, c := range node.Status.Conditions {
		if c.Type == corev1.NodeReady && c.Status == corev1.ConditionTrue {
			return now.Sub(c.LastTransitionTime.Time) < within
		}
	}
	return false
}

// IsNodeReady reports whether the node's Ready condition is True.
// Exported for use by the watch loop in cmd/agent.
func IsNodeReady(node *corev1.Node) bool {
	for _, c := range node.Status.Conditions {
		if c.Type == corev1.NodeReady {
			return c.Status == corev1.ConditionTrue
		}
	}
	return false
}

// publish renders the pass and upserts it as the node's profile ConfigMap.
func (c *Controller) publish(ctx context.Context, nodeName string, res *workload.Result) (string, error) {
	var text bytes.Buffer
	if err := (&report.TextFormatter{}).Format(&text, res.Count); err != nil {
		return "", fmt.Errorf("render count report: %w", err)
	}
	doc, err := report.NewJSONFormatter().Document(res.Count)
	if err != nil {
		return "", fmt.Errorf("build count document: %w", err)
	}
	countJSON, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal count document: %w", err)
	}

	name := configMapPrefix + nodeName
	cm := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: c.namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name": "kprof",
				annotationPrefix + "node": nodeName,
			},
			Annotations: map[string]string{
				annotationPrefix + "run-id": doc.RunID,
			},
		},
		Data: map[string]string{
			"workload":   res.Workload,
			"suite":      res.Suite.Name(),
			"count.txt":  text.String(),
			"count.json": string(countJSON),
		},
	}

	if c.telemetry != nil {
		if stats, err := c.telemetry(); err != nil {
			c.logger.Warn("gpu telemetry unavailable", "node_name", nodeName, "err", err)
		} else if b, err := json.Marshal(stats); err == nil {
			cm.Data["gpus.json"] = string(b)
		}
	}

	if err := upsertConfigMap(ctx, c.client, cm); err != nil {
		return "", err
	}
	return name, nil
}

// annotate writes a one-glance summary onto the node so `kubectl describe`
// shows the hottest kernel without fetching the ConfigMap.
func (c *Controller) annotate(ctx context.Context, nodeName string, res *workload.Result, cmName string) error {
	ann := map[string]string{
		annotationPrefix + "profiled-at":   c.now().UTC().Format(time.RFC3339),
		annotationPrefix + "profile":       c.namespace + "/" + cmName,
		annotationPrefix + "total-time-ms": strconv.FormatFloat(res.Count.TotalTimeMs, 'f', 3, 64),
		annotationPrefix + "top-kernel":    "",
	}
	if len(res.Count.Results) > 0 {
		ann[annotationPrefix+"top-kernel"] = res.Count.Results[0].KernelName
	}

	type metaPatch struct {
		Metadata struct {
			Annotations map[string]string `json:"annotations"`
		} `json:"metadata"`
	}
	mp := metaPatch{}
	mp.Metadata.Annotations = ann
	b, err := json.Marshal(mp)
	if err != nil {
		return fmt.Errorf("marshal annotation patch: %w", err)
	}
	if _, err := c.client.CoreV1().Nodes().Patch(
		ctx, nodeName, types.MergePatchType, b, metav1.PatchOptions{},
	); err != nil {
		return fmt.Errorf("patch node annotations: %w", err)
	}
	return nil
}

// setCondition records the outcome of the last pass in the node status
// subresource. Idempotent.
func (c *Controller) setCondition(ctx context.Context, nodeName string, node *corev1.Node, status corev1.ConditionStatus, reason, msg string) error {
	type statusPatch struct {
		Status struct {
			Conditions []corev1.NodeCondition `json:"conditions"`
		} `json:"status"`
	}
	cond := corev1.NodeCondition{
		Type:               profileCondition,
		Status:             status,
		Reason:             reason,
		Message:            msg,
		LastTransitionTime: metav1.NewTime(c.now()),
	}
	st := statusPatch{}
	st.Status.Conditions = upsertCondition(node.Status.Conditions, cond)
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal status patch: %w", err)
	}
	if _, err := c.client.CoreV1().Nodes().Patch(
		ctx, nodeName, types.MergePatchType, b,
		metav1.PatchOptions{}, "status",
	); err != nil {
		return fmt.Errorf("patch node status: %w", err)
	}
	return nil
}

func upsertCondition(conditions []corev1.NodeCondition, c corev1.NodeCondition) []corev1.NodeCondition {
	out := make([]corev1.NodeCondition, 0, len(conditions)+1)
	replaced := false
	for _, existing := range conditions {
		if existing.Type == c.Type {
			out = append(out, c)
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, c)
	}
	return out
}
