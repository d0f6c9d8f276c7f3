package controller

import (
	"context"
	"fmt"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"

	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

// stageNamespaceReady ensures the tenant partition namespace exists,
// labelled per spec, with a fixed resource quota, limit range, and
// default-deny-plus-allow-dns-plus-allow-same-namespace network policy
// set.
func stageNamespaceReady(ctx context.Context, deps *StageDeps, store *v1alpha1.Store) StageResult {
	ns := partitionName(store.Name)
	labels := map[string]string{
		v1alpha1.LabelStore:   store.Name,
		v1alpha1.LabelOwner:   v1alpha1.ShortHash16(store.Spec.Owner),
		v1alpha1.LabelManaged: "true",
	}
	annotations := map[string]string{
		v1alpha1.AnnOwnerRaw: store.Spec.Owner,
	}

	if err := deps.Cluster.EnsureNamespaceLabeled(ctx, ns, labels, annotations); err != nil {
		return transient("APITimeout", fmt.Sprintf("ensuring namespace: %s", err))
	}

	if err := ensureResourceQuota(ctx, deps.Cluster.Client, ns, labels); err != nil {
		return transient("APITimeout", fmt.Sprintf("ensuring resource quota: %s", err))
	}
	if err := ensureLimitRange(ctx, deps.Cluster.Client, ns, labels); err != nil {
		return transient("APITimeout", fmt.Sprintf("ensuring limit range: %s", err))
	}
	if err := ensureNetworkPolicies(ctx, deps.Cluster.Client, ns, labels); err != nil {
		return transient("APITimeout", fmt.Sprintf("ensuring network policies: %s", err))
	}

	return ready("PartitionReady")
}

func ensureResourceQuota(ctx context.Context, c client.Client, ns string, labels map[string]string) error {
	rq := &corev1.ResourceQuota{ObjectMeta: metav1.ObjectMeta{Name: "store-quota", Namespace: ns}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, rq, func() error {
		rq.Labels = labels
		rq.Spec.Hard = defaultResourceQuota()
		return nil
	})
	return err
}

func defaultResourceQuota() corev1.ResourceList {
	return corev1.ResourceList{
		corev1.ResourceRequestsCPU:            resource.MustParse("2"),
		corev1.ResourceRequestsMemory:         resource.MustParse("4Gi"),
		corev1.ResourceLimitsCPU:              resource.MustParse("4"),
		corev1.ResourceLimitsMemory:           resource.MustParse("8Gi"),
		corev1.ResourcePods:                   resource.MustParse("20"),
		corev1.ResourceServices:               resource.MustParse("10"),
		corev1.ResourcePersistentVolumeClaims: resource.MustParse("5"),
	}
}

func ensureLimitRange(ctx context.Context, c client.Client, ns string, labels map[string]string) error {
	lr := &corev1.LimitRange{ObjectMeta: metav1.ObjectMeta{Name: "store-limits", Namespace: ns}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, lr, func() error {
		lr.Labels = labels
		lr.Spec.Limits = []corev1.LimitRangeItem{
			{
				Type: corev1.LimitTypeContainer,
				DefaultRequest: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("100m"),
					corev1.ResourceMemory: resource.MustParse("256Mi"),
				},
				Default: corev1.ResourceList{
					corev1.ResourceCPU:    resource.MustParse("500m"),
					corev1.ResourceMemory: resource.MustParse("512Mi"),
				},
			},
		}
		return nil
	})
	return err
}

func ensureNetworkPolicies(ctx context.Context, c client.Client, ns string, labels map[string]string) error {
	if err := ensureDenyAllPolicy(ctx, c, ns, labels); err != nil {
		return err
	}
	if err := ensureAllowDNSPolicy(ctx, c, ns, labels); err != nil {
		return err
	}
	return ensureAllowSameNamespacePolicy(ctx, c, ns, labels)
}

func ensureDenyAllPolicy(ctx context.Context, c client.Client, ns string, labels map[string]string) error {
	np := &networkingv1.NetworkPolicy{ObjectMeta: metav1.ObjectMeta{Name: "default-deny", Namespace: ns}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, np, func() error {
		np.Labels = labels
		np.Spec.PodSelector = metav1.LabelSelector{}
		np.Spec.PolicyTypes = []networkingv1.PolicyType{networkingv1.PolicyTypeIngress, networkingv1.PolicyTypeEgress}
		np.Spec.Ingress = nil
		np.Spec.Egress = nil
		return nil
	})
	return err
}

func ensureAllowDNSPolicy(ctx context.Context, c client.Client, ns string, labels map[string]string) error {
	np := &networkingv1.NetworkPolicy{ObjectMeta: metav1.ObjectMeta{Name: "allow-dns", Namespace: ns}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, np, func() error {
		np.Labels = labels
		np.Spec.PodSelector = metav1.LabelSelector{}
		np.Spec.PolicyTypes = []networkingv1.PolicyType{networkingv1.PolicyTypeEgress}
		udp := corev1.ProtocolUDP
		tcp := corev1.ProtocolTCP
		port := intstr.FromInt(53)
		np.Spec.Egress = []networkingv1.NetworkPolicyEgressRule{
			{
				To: []networkingv1.NetworkPolicyPeer{
					{NamespaceSelector: &metav1.LabelSelector{MatchLabels: map[string]string{
						"kubernetes.io/metadata.name": "kube-system",
					}}},
				},
				Ports: []networkingv1.NetworkPolicyPort{
					{Protocol: &udp, Port: &port},
					{Protocol: &tcp, Port: &port},
				},
			},
		}
		return nil
	})
	return err
}

func ensureAllowSameNamespacePolicy(ctx context.Context, c client.Client, ns string, labels map[string]string) error {
	np := &networkingv1.NetworkPolicy{ObjectMeta: metav1.ObjectMeta{Name: "allow-same-namespace", Namespace: ns}}
	_, err := controllerutil.CreateOrUpdate(ctx, c, np, func() error {
		np.Labels = labels
		np.Spec.PodSelector = metav1.LabelSelector{}
		np.Spec.PolicyTypes = []networkingv1.PolicyType{networkingv1.PolicyTypeIngress, networkingv1.PolicyTypeEgress}
		peer := networkingv1.NetworkPolicyPeer{PodSelector: &metav1.LabelSelector{}}
		np.Spec.Ingress = []networkingv1.NetworkPolicyIngressRule{{From: []networkingv1.NetworkPolicyPeer{peer}}}
		np.Spec.Egress = []networkingv1.NetworkPolicyEgressRule{{To: []networkingv1.NetworkPolicyPeer{peer}}}
		return nil
	})
	return err
}
