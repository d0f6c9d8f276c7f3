// Package cluster wraps controller-runtime's client with the bounded
// deadlines the platform requires on every blocking call, and supplies
// the small set of workload-readiness/enumeration helpers the pipeline
// stages and drift check share.
package cluster

import (
	"context"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Client adapts a controller-runtime client.Client with a default
// per-call deadline.
type Client struct {
	client.Client
	Timeout time.Duration
}

// New wraps c with the given default timeout.
func New(c client.Client, timeout time.Duration) *Client {
	return &Client{Client: c, Timeout: timeout}
}

// Bounded returns a context with the adapter's default deadline applied.
func (c *Client) Bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Timeout)
}

// Readiness is the outcome of probing one workload.
type Readiness struct {
	Ready   bool
	Reason  string
	Message string
}

// DeploymentReady reports whether the named Deployment in namespace has
// at least one ready replica. A NotFound deployment is reported as
// not-ready rather than as an error, since it may simply not have been
// applied by the renderer yet.
func (c *Client) DeploymentReady(ctx context.Context, namespace, name string) (Readiness, error) {
	ctx, cancel := c.Bounded(ctx)
	defer cancel()

	var dep appsv1.Deployment
	err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: name}, &dep)
	if apierrors.IsNotFound(err) {
		return Readiness{Ready: false, Reason: "NotFound", Message: "workload not yet applied"}, nil
	}
	if err != nil {
		return Readiness{}, err
	}
	if dep.Status.ReadyReplicas < 1 {
		return Readiness{Ready: false, Reason: "NotReady", Message: "no ready replicas yet"}, nil
	}
	return Readiness{Ready: true}, nil
}

// ExpectedWorkload is one workload the drift check expects to exist with
// a minimum replica count.
type ExpectedWorkload struct {
	Name            string
	MinReadyReplica int32
}

// PresenceCheck enumerates expected workloads in namespace and reports
// which ones are missing or under-replicated.
func (c *Client) PresenceCheck(ctx context.Context, namespace string, expected []ExpectedWorkload) ([]string, error) {
	ctx, cancel := c.Bounded(ctx)
	defer cancel()

	var failing []string
	for _, w := range expected {
		var dep appsv1.Deployment
		err := c.Get(ctx, types.NamespacedName{Namespace: namespace, Name: w.Name}, &dep)
		if apierrors.IsNotFound(err) {
			failing = append(failing, w.Name)
			continue
		}
		if err != nil {
			return nil, err
		}
		if dep.Status.ReadyReplicas < w.MinReadyReplica {
			failing = append(failing, w.Name)
		}
	}
	return failing, nil
}

// EnsureNamespaceLabeled ensures namespace exists with the given labels
// and annotations, creating it if absent and updating both on drift.
func (c *Client) EnsureNamespaceLabeled(ctx context.Context, name string, labels, annotations map[string]string) error {
	ctx, cancel := c.Bounded(ctx)
	defer cancel()

	var ns corev1.Namespace
	err := c.Get(ctx, types.NamespacedName{Name: name}, &ns)
	if err == nil {
		if !mapEqual(ns.Labels, labels) || !mapEqual(ns.Annotations, annotations) {
			ns.Labels = labels
			ns.Annotations = annotations
			return c.Update(ctx, &ns)
		}
		return nil
	}
	if !apierrors.IsNotFound(err) {
		return err
	}

	ns = corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Labels:      labels,
			Annotations: annotations,
		},
	}
	return c.Create(ctx, &ns)
}

func mapEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
