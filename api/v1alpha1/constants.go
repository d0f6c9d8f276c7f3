package v1alpha1

const (
	// LabelStore and LabelOwner are applied to every resource inside a
	// tenant partition, per the NamespaceReady stage contract.
	LabelStore   = "platform.urumi.ai/store"
	LabelOwner   = "platform.urumi.ai/owner"
	LabelManaged = "platform.urumi.ai/managed"

	// AnnOwnerRaw preserves the untruncated owner string; LabelOwner
	// always carries a 16-hex-character hash of it (ShortHash16).
	AnnOwnerRaw = "platform.urumi.ai/owner-raw"
)
