package k8s

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
	"k8s.io/client-go/dynamic"

	"github.com/giantswarm/kratos/internal/instrumentation"
)

// ApplyAction is what happened to one manifest object.
type ApplyAction string

const (
	ActionCreated ApplyAction = "created"
	ActionUpdated ApplyAction = "updated"
	ActionFailed  ApplyAction = "failed"
)

// ErrEmptyManifest is returned for manifests without any object.
var ErrEmptyManifest = errors.New("manifest contains no objects")

// AppliedObject is the itemised outcome of one manifest document.
type AppliedObject struct {
	// Ref is "Kind/name", or "Kind namespace/name" for namespaced objects.
	Ref    string      `json:"resource"`
	Action ApplyAction `json:"action"`
	Error  string      `json:"error,omitempty"`
}

// ApplyManifest creates every object of a multi-document manifest and
// updates the ones that already exist. A document that cannot be decoded or
// mapped fails on its own; the rest are still applied.
func (c *Clients) ApplyManifest(ctx context.Context, manifest string) (_ []AppliedObject, err error) {
	ctx, done := c.observe(ctx, instrumentation.OperationApply, "")
	defer func() { done(err) }()

	reader := utilyaml.NewYAMLReader(bufio.NewReader(strings.NewReader(manifest)))
	var out []AppliedObject
	for i := 1; ; i++ {
		doc, readErr := reader.Read()
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return out, fmt.Errorf("failed to read manifest document %d: %w", i, readErr)
		}
		if len(bytes.TrimSpace(doc)) == 0 {
			continue
		}
		out = append(out, c.applyDocument(ctx, i, doc))
	}

	if len(out) == 0 {
		return nil, ErrEmptyManifest
	}
	return out, nil
}

func (c *Clients) applyDocument(ctx context.Context, index int, doc []byte) AppliedObject {
	data, err := utilyaml.ToJSON(doc)
	if err != nil {
		return AppliedObject{Ref: fmt.Sprintf("document %d", index), Action: ActionFailed, Error: err.Error()}
	}
	if string(bytes.TrimSpace(data)) == "null" {
		return AppliedObject{Ref: fmt.Sprintf("document %d", index), Action: ActionFailed, Error: "empty document"}
	}

	obj := &unstructured.Unstructured{}
	if err := obj.UnmarshalJSON(data); err != nil {
		return AppliedObject{Ref: fmt.Sprintf("document %d", index), Action: ActionFailed, Error: err.Error()}
	}

	ri, ref, err := c.resourceFor(obj)
	if err != nil {
		return AppliedObject{Ref: ref, Action: ActionFailed, Error: err.Error()}
	}

	action, err := c.createOrUpdate(ctx, ri, obj)
	if err != nil {
		return AppliedObject{Ref: ref, Action: ActionFailed, Error: err.Error()}
	}
	return AppliedObject{Ref: ref, Action: action}
}

// resourceFor maps the object to its resource client. Namespaced objects
// without a namespace land in "default".
func (c *Clients) resourceFor(obj *unstructured.Unstructured) (dynamic.ResourceInterface, string, error) {
	gvk := obj.GroupVersionKind()
	ref := gvk.Kind + "/" + obj.GetName()
	if obj.GetName() == "" {
		return nil, ref, errors.New("metadata.name is required")
	}

	mapping, err := c.Mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, ref, fmt.Errorf("unknown resource type %s: %w", gvk.String(), err)
	}

	if mapping.Scope.Name() != meta.RESTScopeNameNamespace {
		obj.SetNamespace("")
		return c.Dynamic.Resource(mapping.Resource), ref, nil
	}
	if obj.GetNamespace() == "" {
		obj.SetNamespace(metav1.NamespaceDefault)
	}
	ref = fmt.Sprintf("%s %s/%s", gvk.Kind, obj.GetNamespace(), obj.GetName())
	return c.Dynamic.Resource(mapping.Resource).Namespace(obj.GetNamespace()), ref, nil
}

func (c *Clients) createOrUpdate(ctx context.Context, ri dynamic.ResourceInterface, obj *unstructured.Unstructured) (ApplyAction, error) {
	_, err := ri.Create(ctx, obj, metav1.CreateOptions{DryRun: c.dryRun()})
	if err == nil {
		return ActionCreated, nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return ActionFailed, err
	}

	existing, err := ri.Get(ctx, obj.GetName(), metav1.GetOptions{})
	if err != nil {
		return ActionFailed, err
	}
	obj.SetResourceVersion(existing.GetResourceVersion())
	if _, err := ri.Update(ctx, obj, metav1.UpdateOptions{DryRun: c.dryRun()}); err != nil {
		return ActionFailed, err
	}
	return ActionUpdated, nil
}
