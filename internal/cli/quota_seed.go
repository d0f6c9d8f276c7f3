package cli

import (
	"context"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/quota"

	"sigs.k8s.io/controller-runtime/pkg/client"
)

// quotaFromCluster builds a quota.Tracker seeded from the stores that
// already exist on the cluster, so a restarted intent API doesn't
// briefly under-count owners who are already at their cap.
func quotaFromCluster(cl client.Client, perOwnerCap int) *quota.Tracker {
	tracker := quota.NewTracker(perOwnerCap)

	var list v1alpha1.StoreList
	if err := cl.List(context.Background(), &list); err != nil {
		return tracker
	}

	counts := make(map[string]int)
	for i := range list.Items {
		counts[list.Items[i].Spec.Owner]++
	}
	for owner, n := range counts {
		tracker.Seed(owner, n)
	}
	return tracker
}
