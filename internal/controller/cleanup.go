package controller

import (
	"context"
	"fmt"
	"time"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
)

const pvcReleasePollInterval = 2 * time.Second
const pvcReleaseBudget = 60 * time.Second

// reconcileDeletion tears the tenant partition down in reverse pipeline
// order: released workloads, released storage, released namespace, and
// only then the finalizer, so a crash mid-teardown always resumes from
// a safe point instead of leaking a partial partition.
func (r *StoreReconciler) reconcileDeletion(ctx context.Context, store *v1alpha1.Store) (ctrl.Result, error) {
	if !controllerutil.ContainsFinalizer(store, v1alpha1.Finalizer) {
		return ctrl.Result{}, nil
	}

	key := client.ObjectKeyFromObject(store)
	ns := partitionName(store.Name)

	if store.Status.Phase != v1alpha1.PhaseDeleting && store.Status.Phase != v1alpha1.PhaseFailed {
		_ = r.StatusMgr.SetPhase(ctx, key, v1alpha1.PhaseDeleting, "", "")
	}

	uninstallCtx, cancel := context.WithTimeout(ctx, r.Config.Reconciler.RendererTimeout)
	err := r.Deps.Renderer.Uninstall(uninstallCtx, releaseName(store.Name), ns)
	cancel()
	if err != nil {
		return ctrl.Result{RequeueAfter: r.Config.Reconciler.BackoffInitial}, nil
	}
	_ = r.StatusMgr.AppendEvent(ctx, key, "RELEASE_REMOVED", "workload release uninstalled")

	released, err := r.pvcsReleased(ctx, ns)
	if err != nil {
		return ctrl.Result{RequeueAfter: pvcReleasePollInterval}, nil
	}
	if !released {
		if store.DeletionTimestamp != nil && time.Since(store.DeletionTimestamp.Time) > pvcReleaseBudget {
			msg := fmt.Sprintf("persistent volume claims in %s did not release within %s; needs manual intervention", ns, pvcReleaseBudget)
			_ = r.StatusMgr.SetPhase(ctx, key, v1alpha1.PhaseFailed, "PVC_RELEASE_BUDGET_EXCEEDED", msg)
			return ctrl.Result{}, nil
		}
		return ctrl.Result{RequeueAfter: pvcReleasePollInterval}, nil
	}

	if err := r.deleteNamespace(ctx, ns); err != nil {
		return ctrl.Result{RequeueAfter: r.Config.Reconciler.APITimeout}, nil
	}
	_ = r.StatusMgr.AppendEvent(ctx, key, "PARTITION_REMOVED", "tenant namespace removed")

	// The status writes above bumped the resourceVersion; re-read so the
	// finalizer removal does not conflict with our own updates.
	var latest v1alpha1.Store
	if err := r.Get(ctx, key, &latest); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}
	controllerutil.RemoveFinalizer(&latest, v1alpha1.Finalizer)
	if err := r.Update(ctx, &latest); err != nil {
		if apierrors.IsConflict(err) {
			return ctrl.Result{Requeue: true}, nil
		}
		return ctrl.Result{}, err
	}
	_ = r.StatusMgr.AppendEvent(ctx, key, "CLEANUP_COMPLETE", "store deprovisioned")

	return ctrl.Result{}, nil
}

// pvcsReleased reports whether every PersistentVolumeClaim in the
// partition namespace has finished terminating.
func (r *StoreReconciler) pvcsReleased(ctx context.Context, ns string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Config.Reconciler.APITimeout)
	defer cancel()

	var list corev1.PersistentVolumeClaimList
	if err := r.List(ctx, &list, client.InNamespace(ns)); err != nil {
		if apierrors.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	if len(list.Items) == 0 {
		return true, nil
	}
	for i := range list.Items {
		if list.Items[i].DeletionTimestamp.IsZero() {
			if err := r.Delete(ctx, &list.Items[i]); err != nil && !apierrors.IsNotFound(err) {
				return false, err
			}
		}
	}
	return false, nil
}

func (r *StoreReconciler) deleteNamespace(ctx context.Context, ns string) error {
	ctx, cancel := context.WithTimeout(ctx, r.Config.Reconciler.APITimeout)
	defer cancel()

	var namespace corev1.Namespace
	err := r.Get(ctx, types.NamespacedName{Name: ns}, &namespace)
	if apierrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !namespace.DeletionTimestamp.IsZero() {
		return nil
	}
	if err := r.Delete(ctx, &namespace); err != nil && !apierrors.IsNotFound(err) {
		return err
	}
	return nil
}
