package controller

const (
	workloadDatabase   = "database"
	workloadBackend    = "backend"
	workloadStorefront = "storefront"
)

// partitionName returns the tenant partition (namespace) name for store.
func partitionName(storeName string) string {
	return "store-" + storeName
}

// releaseName returns the renderer release name for store, distinct from
// the partition name so a release can be purged and reinstalled without
// touching the namespace object itself.
func releaseName(storeName string) string {
	return storeName
}
