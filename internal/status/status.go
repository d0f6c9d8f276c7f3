// Package status centralizes every mutation to a Store's status field:
// condition upsert, phase computation, and the bounded activity-log ring
// buffer, each committed as a single read-modify-write against the
// cluster API with one retry on optimistic-concurrency conflict.
package status

import (
	"context"
	"fmt"
	"time"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/eventbus"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// StageOutcome is the result of executing one pipeline stage's action.
type StageOutcome struct {
	Status  v1alpha1.ConditionStatus
	Reason  string
	Message string
	// Fatal marks a permanent failure: phase becomes Failed, no further
	// automatic retry for this stage.
	Fatal bool
	// URL and AdminURL are set only by the storefront stage on success;
	// empty means "leave unchanged".
	URL      string
	AdminURL string
}

// Manager serializes status mutations and publishes activity-log entries
// to the event bus.
type Manager struct {
	Client                client.Client
	Bus                   *eventbus.Bus
	ActivityLogCapacity   int
}

// UpsertCondition inserts or updates a condition by type in-place,
// advancing LastTransitionTime only when Status actually changes. It
// returns whether the status value changed.
func UpsertCondition(conditions []v1alpha1.Condition, condType v1alpha1.ConditionType, newStatus v1alpha1.ConditionStatus, reason, message string, now metav1.Time) ([]v1alpha1.Condition, bool) {
	for i := range conditions {
		if conditions[i].Type != condType {
			continue
		}
		changed := conditions[i].Status != newStatus
		conditions[i].Status = newStatus
		conditions[i].Reason = reason
		conditions[i].Message = message
		if changed {
			conditions[i].LastTransitionTime = now
		}
		return conditions, changed
	}
	return append(conditions, v1alpha1.Condition{
		Type:               condType,
		Status:             newStatus,
		Reason:             reason,
		Message:            message,
		LastTransitionTime: now,
	}), true
}

// ComputePhase implements spec's pipeline-driven phase computation: Ready
// iff every known condition is True; Failed iff a fatal stage failure was
// observed this pass; otherwise Provisioning.
func ComputePhase(conditions []v1alpha1.Condition, anyFatal bool) v1alpha1.StorePhase {
	if anyFatal {
		return v1alpha1.PhaseFailed
	}
	if len(conditions) < len(v1alpha1.PipelineOrder) {
		return v1alpha1.PhaseProvisioning
	}
	for _, c := range conditions {
		if c.Status != v1alpha1.ConditionTrue {
			return v1alpha1.PhaseProvisioning
		}
	}
	return v1alpha1.PhaseReady
}

// AppendActivityLog pushes entry to the tail, dropping the head once the
// bound is exceeded.
func AppendActivityLog(log []v1alpha1.ActivityLogEntry, entry v1alpha1.ActivityLogEntry, capacity int) []v1alpha1.ActivityLogEntry {
	log = append(log, entry)
	if capacity > 0 && len(log) > capacity {
		log = log[len(log)-capacity:]
	}
	return log
}

// RecordStage applies one stage's outcome to store's status: upserts the
// condition, appends an activity-log entry, recomputes phase (only when
// advance is true — the caller decides whether this stage participates
// in phase computation, e.g. drift demotion does not recompute phase),
// and commits with retry-once-on-conflict. It also publishes the
// activity event to the bus.
func (m *Manager) RecordStage(ctx context.Context, key types.NamespacedName, condType v1alpha1.ConditionType, outcome StageOutcome, event string, advancePhase bool) error {
	return m.update(ctx, key, func(s *v1alpha1.Store) (string, string) {
		now := metav1.Now()
		s.Status.Conditions, _ = UpsertCondition(s.Status.Conditions, condType, outcome.Status, outcome.Reason, outcome.Message, now)
		if outcome.URL != "" {
			s.Status.URL = outcome.URL
		}
		if outcome.AdminURL != "" {
			s.Status.AdminURL = outcome.AdminURL
		}
		if advancePhase {
			s.Status.Phase = ComputePhase(s.Status.Conditions, outcome.Fatal)
			s.Status.ObservedGeneration = s.Generation
		}
		return event, outcome.Message
	})
}

// SetPhase forces phase directly, for the ComingSoon/Deleting paths that
// bypass condition-driven computation.
func (m *Manager) SetPhase(ctx context.Context, key types.NamespacedName, phase v1alpha1.StorePhase, event, message string) error {
	return m.update(ctx, key, func(s *v1alpha1.Store) (string, string) {
		s.Status.Phase = phase
		s.Status.ObservedGeneration = s.Generation
		return event, message
	})
}

// AppendEvent records a narrative activity-log entry without otherwise
// mutating status (used for cleanup-step and drift-detection narration).
func (m *Manager) AppendEvent(ctx context.Context, key types.NamespacedName, event, message string) error {
	return m.update(ctx, key, func(s *v1alpha1.Store) (string, string) {
		return event, message
	})
}

// update performs the read-modify-write with one retry on conflict.
func (m *Manager) update(ctx context.Context, key types.NamespacedName, mutate func(*v1alpha1.Store) (event, message string)) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var s v1alpha1.Store
		if err := m.Client.Get(ctx, key, &s); err != nil {
			return err
		}

		event, message := mutate(&s)
		if event != "" {
			now := metav1.Now()
			s.Status.ActivityLog = AppendActivityLog(s.Status.ActivityLog, v1alpha1.ActivityLogEntry{
				Timestamp: now,
				Event:     event,
				Message:   message,
			}, m.ActivityLogCapacity)
		}

		err := m.Client.Status().Update(ctx, &s)
		if err == nil {
			if event != "" && m.Bus != nil {
				m.Bus.Publish(eventbus.Event{
					Store:     key.Name,
					Timestamp: time.Now(),
					EventType: event,
					Message:   message,
				})
			}
			return nil
		}
		if !apierrors.IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("status update conflict after retry: %w", lastErr)
}
