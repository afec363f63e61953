package k8s

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"

	"github.com/giantswarm/kratos/internal/instrumentation"
)

// ScaleResult reports a scale request against the deployment's state.
type ScaleResult struct {
	Deployment string `json:"deployment"`
	Namespace  string `json:"namespace"`
	Previous   int32  `json:"previous_replicas"`
	Requested  int32  `json:"requested_replicas"`
	Ready      int32  `json:"ready_replicas"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

// Settled reports whether enough replicas are ready for the request.
func (r ScaleResult) Settled() bool {
	return r.Ready >= r.Requested
}

// RestartDeployment triggers a rollout by stamping the pod template with
// the restartedAt annotation, as kubectl rollout restart does.
func (c *Clients) RestartDeployment(ctx context.Context, namespace, name string, at time.Time) (err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationRestart, namespace)
	defer func() { done(err) }()

	patch, err := json.Marshal(map[string]any{
		"spec": map[string]any{
			"template": map[string]any{
				"metadata": map[string]any{
					"annotations": map[string]string{
						RestartedAtAnnotation: at.UTC().Format(time.RFC3339),
					},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build restart patch: %w", err)
	}

	_, err = c.Typed.AppsV1().Deployments(namespace).Patch(ctx, name, types.StrategicMergePatchType, patch,
		metav1.PatchOptions{DryRun: c.dryRun()})
	if err != nil {
		return fmt.Errorf("failed to restart deployment %s/%s: %w", namespace, name, err)
	}
	return nil
}

// ScaleDeployment sets the replica count of a deployment.
func (c *Clients) ScaleDeployment(ctx context.Context, namespace, name string, replicas int32) (_ *ScaleResult, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationScale, namespace)
	defer func() { done(err) }()

	if replicas < 0 {
		return nil, fmt.Errorf("replicas must be >= 0, got %d", replicas)
	}

	deployments := c.Typed.AppsV1().Deployments(namespace)
	deployment, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment %s/%s: %w", namespace, name, err)
	}

	var previous int32 = 1
	if deployment.Spec.Replicas != nil {
		previous = *deployment.Spec.Replicas
	}
	deployment.Spec.Replicas = &replicas

	updated, err := deployments.Update(ctx, deployment, metav1.UpdateOptions{DryRun: c.dryRun()})
	if err != nil {
		return nil, fmt.Errorf("failed to scale deployment %s/%s: %w", namespace, name, err)
	}

	return &ScaleResult{
		Deployment: name,
		Namespace:  namespace,
		Previous:   previous,
		Requested:  replicas,
		Ready:      updated.Status.ReadyReplicas,
		DryRun:     c.DryRun,
	}, nil
}
