package controller

import (
	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/cluster"
	"github.com/urumi/store-platform/internal/status"

	"context"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

var driftWorkloads = []cluster.ExpectedWorkload{
	{Name: workloadDatabase, MinReadyReplica: 1},
	{Name: workloadBackend, MinReadyReplica: 1},
	{Name: workloadStorefront, MinReadyReplica: 1},
}

var driftCondition = map[string]v1alpha1.ConditionType{
	workloadDatabase:   v1alpha1.ConditionDatabaseReady,
	workloadBackend:    v1alpha1.ConditionBackendReady,
	workloadStorefront: v1alpha1.ConditionStorefrontReady,
}

// reconcileDrift periodically re-checks a Ready store's workloads. A
// fully healthy store is left untouched — no status write at all —
// so lastTransitionTime never moves for a store that hasn't changed.
// A missing or under-replicated workload demotes only that workload's
// condition and re-triggers the Helm stage; unrelated conditions are
// never touched.
func (r *StoreReconciler) reconcileDrift(ctx context.Context, store *v1alpha1.Store) (ctrl.Result, error) {
	ns := partitionName(store.Name)

	ctx, cancel := context.WithTimeout(ctx, r.Config.Reconciler.APITimeout)
	defer cancel()

	failing, err := r.Deps.Cluster.PresenceCheck(ctx, ns, driftWorkloads)
	if err != nil {
		return ctrl.Result{RequeueAfter: r.Config.Reconciler.DriftInterval}, nil
	}

	if len(failing) == 0 {
		return ctrl.Result{RequeueAfter: r.Config.Reconciler.DriftInterval}, nil
	}

	key := client.ObjectKeyFromObject(store)
	for _, workload := range failing {
		condType, ok := driftCondition[workload]
		if !ok {
			continue
		}
		outcome := status.StageOutcome{
			Status: v1alpha1.ConditionFalse,
			Reason: "Drift",
		}
		if err := r.StatusMgr.RecordStage(ctx, key, condType, outcome, "DRIFT_DETECTED", false); err != nil {
			return ctrl.Result{}, err
		}
	}

	if err := r.reapplyRelease(ctx, store); err != nil {
		return ctrl.Result{RequeueAfter: r.Config.Reconciler.BackoffInitial}, nil
	}

	return ctrl.Result{Requeue: true}, nil
}

func (r *StoreReconciler) reapplyRelease(ctx context.Context, store *v1alpha1.Store) error {
	result := stageHelmInstalled(ctx, r.Deps, store)
	if result.Outcome != OK {
		return errStageFailed
	}
	return nil
}
