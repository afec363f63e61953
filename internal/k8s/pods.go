package k8s

import (
	"context"
	"fmt"
	"io"
	"sort"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/giantswarm/kratos/internal/instrumentation"
)

// maxLogBytes bounds the log text returned to a conversation.
const maxLogBytes = 64 * 1024

// PodSummary is the conversational view of a pod.
type PodSummary struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Status    string `json:"status"`
	Ready     string `json:"ready"`
	Restarts  int32  `json:"restarts"`
	Node      string `json:"node,omitempty"`
}

// ListPods lists the pods of a namespace, or of every namespace for "all",
// sorted by namespace and name.
func (c *Clients) ListPods(ctx context.Context, namespace string) (_ []PodSummary, err error) {
	if namespace == AllNamespaces {
		namespace = metav1.NamespaceAll
	}
	ctx, done := c.observe(ctx, instrumentation.OperationList, namespace)
	defer func() { done(err) }()

	list, err := c.Typed.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods in namespace %q: %w", namespace, err)
	}

	out := make([]PodSummary, 0, len(list.Items))
	for i := range list.Items {
		out = append(out, summarizePod(&list.Items[i]))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Namespace != out[j].Namespace {
			return out[i].Namespace < out[j].Namespace
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func summarizePod(pod *corev1.Pod) PodSummary {
	ready := 0
	var restarts int32
	for _, cs := range pod.Status.ContainerStatuses {
		if cs.Ready {
			ready++
		}
		restarts += cs.RestartCount
	}
	status := string(pod.Status.Phase)
	if status == "" {
		status = "Unknown"
	}
	if pod.DeletionTimestamp != nil {
		status = "Terminating"
	}
	return PodSummary{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Status:    status,
		Ready:     fmt.Sprintf("%d/%d", ready, len(pod.Spec.Containers)),
		Restarts:  restarts,
		Node:      pod.Spec.NodeName,
	}
}

// PodLogs returns the last tailLines lines of a container's log. An empty
// container selects the pod's only container.
func (c *Clients) PodLogs(ctx context.Context, namespace, pod, container string, tailLines int64) (_ string, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationLogs, namespace)
	defer func() { done(err) }()

	opts := &corev1.PodLogOptions{Container: container}
	if tailLines > 0 {
		opts.TailLines = &tailLines
	}

	stream, err := c.Typed.CoreV1().Pods(namespace).GetLogs(pod, opts).Stream(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get logs for pod %s/%s: %w", namespace, pod, err)
	}
	defer func() { _ = stream.Close() }()

	data, err := io.ReadAll(io.LimitReader(stream, maxLogBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read logs for pod %s/%s: %w", namespace, pod, err)
	}
	return string(data), nil
}
