package controller

import (
	"context"
	"fmt"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
)

// probeWorkload checks one workload's Deployment readiness within the
// namespace partition and translates the result into a StageResult.
func probeWorkload(ctx context.Context, deps *StageDeps, store *v1alpha1.Store, workload string) StageResult {
	ns := partitionName(store.Name)
	readiness, err := deps.Cluster.DeploymentReady(ctx, ns, workload)
	if err != nil {
		return transient("APITimeout", fmt.Sprintf("checking %s readiness: %s", workload, err))
	}
	if !readiness.Ready {
		return transient(readiness.Reason, readiness.Message)
	}
	return ready(workload + "Ready")
}

func stageDatabaseReady(ctx context.Context, deps *StageDeps, store *v1alpha1.Store) StageResult {
	return probeWorkload(ctx, deps, store, workloadDatabase)
}

func stageBackendReady(ctx context.Context, deps *StageDeps, store *v1alpha1.Store) StageResult {
	return probeWorkload(ctx, deps, store, workloadBackend)
}

// stageStorefrontReady probes the storefront workload and, on first
// success, computes the store's public and admin URLs from the
// configured domain suffix.
func stageStorefrontReady(ctx context.Context, deps *StageDeps, store *v1alpha1.Store) StageResult {
	result := probeWorkload(ctx, deps, store, workloadStorefront)
	if result.Outcome != OK {
		return result
	}

	domain := store.Name + "." + deps.Config.Renderer.DomainSuffix
	result.URL = "https://" + domain
	result.AdminURL = "https://" + domain + "/admin"
	return result
}
