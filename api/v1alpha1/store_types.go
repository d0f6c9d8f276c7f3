package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// EngineType identifies which e-commerce backend a Store provisions.
type EngineType string

const (
	EngineMedusa      EngineType = "medusa"
	EngineWooCommerce EngineType = "woocommerce"
)

// StorePhase is the coarse-grained lifecycle state of a Store.
type StorePhase string

const (
	PhasePending      StorePhase = "Pending"
	PhaseProvisioning StorePhase = "Provisioning"
	PhaseReady        StorePhase = "Ready"
	PhaseFailed       StorePhase = "Failed"
	PhaseComingSoon   StorePhase = "ComingSoon"
	PhaseDeleting     StorePhase = "Deleting"
)

// ConditionType is one of the five pipeline stages tracked in status.
type ConditionType string

const (
	ConditionNamespaceReady ConditionType = "NamespaceReady"
	ConditionHelmInstalled  ConditionType = "HelmInstalled"
	ConditionDatabaseReady  ConditionType = "DatabaseReady"
	ConditionBackendReady   ConditionType = "BackendReady"
	ConditionStorefrontReady ConditionType = "StorefrontReady"
)

// PipelineOrder is the fixed evaluation order of the five conditions.
var PipelineOrder = []ConditionType{
	ConditionNamespaceReady,
	ConditionHelmInstalled,
	ConditionDatabaseReady,
	ConditionBackendReady,
	ConditionStorefrontReady,
}

type ConditionStatus string

const (
	ConditionTrue    ConditionStatus = "True"
	ConditionFalse   ConditionStatus = "False"
	ConditionUnknown ConditionStatus = "Unknown"
)

// Finalizer is attached to every Store for the lifetime of its tenant partition.
const Finalizer = "store.platform/finalizer"

// StoreSpec is set at creation and immutable except where noted.
type StoreSpec struct {
	// +kubebuilder:validation:Enum=medusa;woocommerce
	// +kubebuilder:validation:XValidation:rule="self == oldSelf",message="engine is immutable"
	Engine EngineType `json:"engine"`

	// +kubebuilder:validation:MaxLength=64
	// +kubebuilder:validation:XValidation:rule="self == oldSelf",message="owner is immutable"
	Owner string `json:"owner"`
}

// Condition records one orthogonal aspect of provisioning readiness.
type Condition struct {
	Type               ConditionType   `json:"type"`
	Status             ConditionStatus `json:"status"`
	Reason             string          `json:"reason,omitempty"`
	Message            string          `json:"message,omitempty"`
	LastTransitionTime metav1.Time     `json:"lastTransitionTime,omitempty"`
}

// ActivityLogEntry is one narrative event in a Store's bounded history.
type ActivityLogEntry struct {
	Timestamp metav1.Time `json:"timestamp"`
	Event     string      `json:"event"`
	Message   string      `json:"message,omitempty"`
}

// StoreStatus is mutated only by the reconciler.
type StoreStatus struct {
	Phase              StorePhase         `json:"phase,omitempty"`
	Conditions         []Condition        `json:"conditions,omitempty"`
	ActivityLog        []ActivityLogEntry `json:"activityLog,omitempty"`
	URL                string             `json:"url,omitempty"`
	AdminURL           string             `json:"adminUrl,omitempty"`
	RetryCount         int                `json:"retryCount,omitempty"`
	ObservedGeneration int64              `json:"observedGeneration,omitempty"`
	CreatedAt          metav1.Time        `json:"createdAt,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:resource:scope=Cluster,shortName=store
// +kubebuilder:subresource:status
// +kubebuilder:printcolumn:name="Engine",type=string,JSONPath=`.spec.engine`
// +kubebuilder:printcolumn:name="Owner",type=string,JSONPath=`.spec.owner`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
type Store struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   StoreSpec   `json:"spec,omitempty"`
	Status StoreStatus `json:"status,omitempty"`
}

// +kubebuilder:object:root=true
type StoreList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []Store `json:"items"`
}

func init() {
	SchemeBuilder.Register(&Store{}, &StoreList{})
}
