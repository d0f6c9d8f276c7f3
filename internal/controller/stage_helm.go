package controller

import (
	"context"
	"fmt"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/renderer"
)

// stageHelmInstalled applies the workload templates for store's engine
// into its partition namespace, purging any stuck prior release first.
func stageHelmInstalled(ctx context.Context, deps *StageDeps, store *v1alpha1.Store) StageResult {
	ns := partitionName(store.Name)
	err := deps.Renderer.Install(ctx, renderer.InstallParams{
		Name:      releaseName(store.Name),
		Engine:    string(store.Spec.Engine),
		Namespace: ns,
		Values: map[string]string{
			"domain": store.Name + "." + deps.Config.Renderer.DomainSuffix,
		},
	})
	if err != nil {
		return transient("RenderFailed", fmt.Sprintf("applying workload templates: %s", err))
	}
	return ready("ReleaseApplied")
}
