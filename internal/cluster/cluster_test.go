package cluster

import (
	"context"
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newTestClient(t *testing.T, objects ...client.Object) *Client {
	t.Helper()
	scheme := runtime.NewScheme()
	if err := appsv1.AddToScheme(scheme); err != nil {
		t.Fatalf("AddToScheme(apps) error = %v", err)
	}
	if err := corev1.AddToScheme(scheme); err != nil {
		t.Fatalf("AddToScheme(core) error = %v", err)
	}
	c := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objects...).Build()
	return New(c, 5*time.Second)
}

func TestDeploymentReady_MissingIsNotReadyNotError(t *testing.T) {
	c := newTestClient(t)
	r, err := c.DeploymentReady(context.Background(), "store-acme", "backend")
	if err != nil {
		t.Fatalf("DeploymentReady() error = %v", err)
	}
	if r.Ready {
		t.Errorf("expected not-ready for a missing deployment")
	}
	if r.Reason != "NotFound" {
		t.Errorf("Reason = %q, want NotFound", r.Reason)
	}
}

func TestDeploymentReady_ZeroReplicasIsNotReady(t *testing.T) {
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "backend", Namespace: "store-acme"},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: 0},
	}
	c := newTestClient(t, dep)
	r, err := c.DeploymentReady(context.Background(), "store-acme", "backend")
	if err != nil {
		t.Fatalf("DeploymentReady() error = %v", err)
	}
	if r.Ready {
		t.Errorf("expected not-ready with zero ready replicas")
	}
}

func TestDeploymentReady_AtLeastOneReplicaIsReady(t *testing.T) {
	dep := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "backend", Namespace: "store-acme"},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: 1},
	}
	c := newTestClient(t, dep)
	r, err := c.DeploymentReady(context.Background(), "store-acme", "backend")
	if err != nil {
		t.Fatalf("DeploymentReady() error = %v", err)
	}
	if !r.Ready {
		t.Errorf("expected ready with 1 ready replica")
	}
}

func TestPresenceCheck_ReportsMissingAndUnderReplicated(t *testing.T) {
	healthy := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "database", Namespace: "store-acme"},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: 1},
	}
	underReplicated := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "backend", Namespace: "store-acme"},
		Status:     appsv1.DeploymentStatus{ReadyReplicas: 0},
	}
	c := newTestClient(t, healthy, underReplicated)

	failing, err := c.PresenceCheck(context.Background(), "store-acme", []ExpectedWorkload{
		{Name: "database", MinReadyReplica: 1},
		{Name: "backend", MinReadyReplica: 1},
		{Name: "storefront", MinReadyReplica: 1},
	})
	if err != nil {
		t.Fatalf("PresenceCheck() error = %v", err)
	}
	want := map[string]bool{"backend": true, "storefront": true}
	if len(failing) != 2 {
		t.Fatalf("failing = %v, want 2 entries", failing)
	}
	for _, name := range failing {
		if !want[name] {
			t.Errorf("unexpected failing workload %q", name)
		}
	}
}

func TestEnsureNamespaceLabeled_CreatesWhenAbsent(t *testing.T) {
	c := newTestClient(t)
	labels := map[string]string{"platform.urumi.ai/store": "acme-shop"}
	annotations := map[string]string{"platform.urumi.ai/owner-raw": "acme"}

	if err := c.EnsureNamespaceLabeled(context.Background(), "store-acme", labels, annotations); err != nil {
		t.Fatalf("EnsureNamespaceLabeled() error = %v", err)
	}

	var ns corev1.Namespace
	if err := c.Get(context.Background(), types.NamespacedName{Name: "store-acme"}, &ns); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ns.Labels["platform.urumi.ai/store"] != "acme-shop" {
		t.Errorf("labels not applied on create: %+v", ns.Labels)
	}
	if ns.Annotations["platform.urumi.ai/owner-raw"] != "acme" {
		t.Errorf("annotations not applied on create: %+v", ns.Annotations)
	}
}

func TestEnsureNamespaceLabeled_UpdatesOnDrift(t *testing.T) {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: "store-acme", Labels: map[string]string{"stale": "true"}},
	}
	c := newTestClient(t, ns)
	labels := map[string]string{"platform.urumi.ai/store": "acme-shop"}
	annotations := map[string]string{"platform.urumi.ai/owner-raw": "acme"}

	if err := c.EnsureNamespaceLabeled(context.Background(), "store-acme", labels, annotations); err != nil {
		t.Fatalf("EnsureNamespaceLabeled() error = %v", err)
	}

	var got corev1.Namespace
	if err := c.Get(context.Background(), types.NamespacedName{Name: "store-acme"}, &got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Labels["stale"] != "" {
		t.Errorf("expected drifted labels to be replaced, got %+v", got.Labels)
	}
	if got.Labels["platform.urumi.ai/store"] != "acme-shop" {
		t.Errorf("expected the desired label to be applied, got %+v", got.Labels)
	}
	if got.Annotations["platform.urumi.ai/owner-raw"] != "acme" {
		t.Errorf("expected the desired annotation to be applied, got %+v", got.Annotations)
	}
}

func TestEnsureNamespaceLabeled_NoOpWhenAlreadyCorrect(t *testing.T) {
	labels := map[string]string{"platform.urumi.ai/store": "acme-shop"}
	annotations := map[string]string{"platform.urumi.ai/owner-raw": "acme"}
	ns := &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: "store-acme", Labels: labels, Annotations: annotations}}
	c := newTestClient(t, ns)

	if err := c.EnsureNamespaceLabeled(context.Background(), "store-acme", labels, annotations); err != nil {
		t.Fatalf("EnsureNamespaceLabeled() error = %v", err)
	}
}
