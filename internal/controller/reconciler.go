package controller

import (
	"context"
	"time"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/backoff"
	"github.com/urumi/store-platform/internal/cluster"
	"github.com/urumi/store-platform/internal/config"
	"github.com/urumi/store-platform/internal/gate"
	"github.com/urumi/store-platform/internal/renderer"
	"github.com/urumi/store-platform/internal/status"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// +kubebuilder:rbac:groups=platform.urumi.ai,resources=stores,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=platform.urumi.ai,resources=stores/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=platform.urumi.ai,resources=stores/finalizers,verbs=update
// +kubebuilder:rbac:groups="",resources=namespaces,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups="",resources=resourcequotas;limitranges,verbs=get;list;watch;create;update;patch
// +kubebuilder:rbac:groups="",resources=pods;persistentvolumeclaims,verbs=get;list;watch;delete
// +kubebuilder:rbac:groups=apps,resources=deployments,verbs=get;list;watch
// +kubebuilder:rbac:groups=networking.k8s.io,resources=networkpolicies,verbs=get;list;watch;create;update;patch

// stageFunc is one pipeline stage's action. It never mutates the cluster
// object's status directly except via the URL/AdminURL fields on the
// returned StageResult; every other status mutation happens through the
// status.Manager after the stage returns.
type stageFunc func(ctx context.Context, deps *StageDeps, store *v1alpha1.Store) StageResult

// StageDeps bundles what a stage action needs to do its work.
type StageDeps struct {
	Cluster  *cluster.Client
	Renderer renderer.Renderer
	Config   *config.Config
}

var stageTable = map[v1alpha1.ConditionType]stageFunc{
	v1alpha1.ConditionNamespaceReady:  stageNamespaceReady,
	v1alpha1.ConditionHelmInstalled:   stageHelmInstalled,
	v1alpha1.ConditionDatabaseReady:   stageDatabaseReady,
	v1alpha1.ConditionBackendReady:    stageBackendReady,
	v1alpha1.ConditionStorefrontReady: stageStorefrontReady,
}

// StoreReconciler drives every Store through its provisioning pipeline,
// keeps Ready stores' workloads from drifting, and tears down the
// tenant partition on deletion.
type StoreReconciler struct {
	client.Client
	Scheme *runtime.Scheme

	Deps      *StageDeps
	StatusMgr *status.Manager
	Gate      *gate.Gate
	Config    *config.Config
}

func (r *StoreReconciler) Reconcile(ctx context.Context, req ctrl.Request) (ctrl.Result, error) {
	l := log.FromContext(ctx)
	start := time.Now()
	defer func() { reconcileDuration.Observe(time.Since(start).Seconds()) }()

	var store v1alpha1.Store
	if err := r.Get(ctx, req.NamespacedName, &store); err != nil {
		return ctrl.Result{}, client.IgnoreNotFound(err)
	}

	gateWaiters.Set(float64(r.Gate.Waiters()))
	release, err := r.Gate.Acquire(ctx, store.Name)
	if err != nil {
		// Superseded by a newer reconcile request for the same store, or
		// the caller's context expired; either way retry shortly rather
		// than treating this as an error.
		return ctrl.Result{RequeueAfter: time.Second}, nil
	}
	defer release()

	if !store.DeletionTimestamp.IsZero() {
		return r.reconcileDeletion(ctx, &store)
	}

	if store.Spec.Engine == v1alpha1.EngineWooCommerce {
		return r.reconcileComingSoon(ctx, &store)
	}

	if !controllerutil.ContainsFinalizer(&store, v1alpha1.Finalizer) {
		controllerutil.AddFinalizer(&store, v1alpha1.Finalizer)
		if err := r.Update(ctx, &store); err != nil {
			if apierrors.IsConflict(err) {
				return ctrl.Result{Requeue: true}, nil
			}
			return ctrl.Result{}, err
		}
		if err := r.StatusMgr.AppendEvent(ctx, req.NamespacedName, "PROVISIONING_START", "provisioning started"); err != nil {
			l.Error(err, "recording provisioning start")
		}
		return ctrl.Result{Requeue: true}, nil
	}

	if store.Status.Phase == v1alpha1.PhaseFailed {
		// Fatal outcomes are terminal; only deletion acts on a Failed store.
		return ctrl.Result{}, nil
	}

	if store.Status.Phase == v1alpha1.PhaseReady {
		return r.reconcileDrift(ctx, &store)
	}

	return r.reconcilePipeline(ctx, &store)
}

// reconcileComingSoon puts a WooCommerce-engine store into its terminal
// display-only phase without running any pipeline stage.
func (r *StoreReconciler) reconcileComingSoon(ctx context.Context, store *v1alpha1.Store) (ctrl.Result, error) {
	if store.Status.Phase == v1alpha1.PhaseComingSoon {
		return ctrl.Result{}, nil
	}
	key := client.ObjectKeyFromObject(store)
	if err := r.StatusMgr.SetPhase(ctx, key, v1alpha1.PhaseComingSoon, "COMING_SOON", "woocommerce engine not yet provisionable"); err != nil {
		return ctrl.Result{}, err
	}
	return ctrl.Result{}, nil
}

// reconcilePipeline advances store through the fixed five-stage pipeline
// one stage per reconcile, translating stage outcomes into status
// mutations and retry/backoff decisions.
func (r *StoreReconciler) reconcilePipeline(ctx context.Context, store *v1alpha1.Store) (ctrl.Result, error) {
	l := log.FromContext(ctx)
	key := client.ObjectKeyFromObject(store)

	condType, stage := r.nextStage(store)
	if stage == nil {
		// Every condition is already True; the phase just hasn't caught
		// up yet (e.g. after a crash mid-update). Force a recompute.
		if err := r.StatusMgr.RecordStage(ctx, key, v1alpha1.PipelineOrder[len(v1alpha1.PipelineOrder)-1], status.StageOutcome{
			Status: v1alpha1.ConditionTrue,
			Reason: "AlreadySatisfied",
		}, "", true); err != nil {
			return ctrl.Result{}, err
		}
		return ctrl.Result{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.Config.Reconciler.ReadinessSlice)
	defer cancel()

	result := stage(ctx, r.Deps, store)

	switch result.Outcome {
	case OK:
		outcome := status.StageOutcome{
			Status:   v1alpha1.ConditionTrue,
			Reason:   result.Reason,
			URL:      result.URL,
			AdminURL: result.AdminURL,
		}
		if err := r.StatusMgr.RecordStage(ctx, key, condType, outcome, string(condType)+"_READY", true); err != nil {
			return ctrl.Result{}, err
		}
		if store.Status.RetryCount != 0 {
			if err := r.resetRetryCount(ctx, key); err != nil {
				l.Error(err, "resetting retry count")
			}
		}
		return ctrl.Result{Requeue: true}, nil

	case FatalUser, FatalSystem:
		outcome := status.StageOutcome{
			Status:  v1alpha1.ConditionFalse,
			Reason:  result.Reason,
			Message: result.Message,
			Fatal:   true,
		}
		if err := r.StatusMgr.RecordStage(ctx, key, condType, outcome, string(condType)+"_FAILED", true); err != nil {
			return ctrl.Result{}, err
		}
		provisioningFailures.WithLabelValues(string(condType)).Inc()
		return ctrl.Result{}, nil

	default: // Transient
		attempt, escalate, err := r.bumpRetryCount(ctx, key)
		if err != nil {
			return ctrl.Result{}, err
		}
		if escalate {
			outcome := status.StageOutcome{
				Status:  v1alpha1.ConditionFalse,
				Reason:  "RetriesExhausted",
				Message: result.Message,
				Fatal:   true,
			}
			if err := r.StatusMgr.RecordStage(ctx, key, condType, outcome, string(condType)+"_FAILED", true); err != nil {
				return ctrl.Result{}, err
			}
			provisioningFailures.WithLabelValues(string(condType)).Inc()
			return ctrl.Result{}, nil
		}

		outcome := status.StageOutcome{
			Status:  v1alpha1.ConditionFalse,
			Reason:  result.Reason,
			Message: result.Message,
		}
		if err := r.StatusMgr.RecordStage(ctx, key, condType, outcome, "", false); err != nil {
			return ctrl.Result{}, err
		}
		delay := backoff.Compute(backoff.Config{
			Initial: r.Config.Reconciler.BackoffInitial,
			Factor:  r.Config.Reconciler.BackoffFactor,
			Cap:     r.Config.Reconciler.BackoffCap,
		}, attempt)
		return ctrl.Result{RequeueAfter: delay}, nil
	}
}

// nextStage returns the lowest-indexed condition in pipeline order that
// is not yet True, and its action. A missing condition counts as
// not-True. Returns a nil stage once every condition is True.
func (r *StoreReconciler) nextStage(store *v1alpha1.Store) (v1alpha1.ConditionType, stageFunc) {
	satisfied := make(map[v1alpha1.ConditionType]bool, len(store.Status.Conditions))
	for _, c := range store.Status.Conditions {
		if c.Status == v1alpha1.ConditionTrue {
			satisfied[c.Type] = true
		}
	}
	for _, condType := range v1alpha1.PipelineOrder {
		if !satisfied[condType] {
			return condType, stageTable[condType]
		}
	}
	return "", nil
}

// bumpRetryCount increments the store's per-stage retry counter and
// reports whether the attempt budget is now exhausted. The counter is
// per-current-stage-attempt, not lifetime-cumulative: it resets to zero
// whenever a stage succeeds, so a store that needs a couple of retries
// on each of its five stages never spuriously exhausts a
// pipeline-lifetime budget.
func (r *StoreReconciler) bumpRetryCount(ctx context.Context, key client.ObjectKey) (attempt int, escalate bool, err error) {
	var store v1alpha1.Store
	if err := r.Get(ctx, key, &store); err != nil {
		return 0, false, err
	}
	store.Status.RetryCount++
	attempt = store.Status.RetryCount
	if err := r.Status().Update(ctx, &store); err != nil {
		if apierrors.IsConflict(err) {
			return r.bumpRetryCount(ctx, key)
		}
		return 0, false, err
	}
	return attempt, attempt >= r.Config.Reconciler.MaxAttempts, nil
}

func (r *StoreReconciler) resetRetryCount(ctx context.Context, key client.ObjectKey) error {
	var store v1alpha1.Store
	if err := r.Get(ctx, key, &store); err != nil {
		return err
	}
	if store.Status.RetryCount == 0 {
		return nil
	}
	store.Status.RetryCount = 0
	if err := r.Status().Update(ctx, &store); err != nil {
		if apierrors.IsConflict(err) {
			return nil // next reconcile will settle it
		}
		return err
	}
	return nil
}

func (r *StoreReconciler) SetupWithManager(mgr ctrl.Manager) error {
	return ctrl.NewControllerManagedBy(mgr).
		For(&v1alpha1.Store{}).
		WithOptions(controller.Options{MaxConcurrentReconciles: r.Config.Reconciler.MaxConcurrentReconciles}).
		Complete(r)
}
