// Package intent implements the platform's public entry point: identity
// scoping, per-owner quota enforcement, idempotent create-or-return
// semantics, and the merged activity log view, sitting in front of the
// cluster API and the event bus.
package intent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/eventbus"
	"github.com/urumi/store-platform/internal/quota"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const defaultOwner = "default"

var (
	ErrInvalidName    = errors.New("invalid store name")
	ErrInvalidEngine  = errors.New("invalid engine")
	ErrOwnerConflict  = errors.New("store exists under a different owner")
	ErrQuotaExceeded  = errors.New("owner store quota exceeded")
	ErrNotFound       = errors.New("store not found")
	ErrForbidden      = errors.New("caller not permitted")
)

// Service implements the platform's public operations over the cluster
// API, guarded by the owner-quota tracker.
type Service struct {
	Client client.Client
	Bus    *eventbus.Bus
	Quota  *quota.Tracker
}

// Snapshot is the wire representation of a Store returned to callers.
type Snapshot struct {
	Name       string                    `json:"name"`
	Engine     v1alpha1.EngineType       `json:"engine"`
	Owner      string                    `json:"owner"`
	Phase      v1alpha1.StorePhase       `json:"phase"`
	Conditions []v1alpha1.Condition      `json:"conditions"`
	URL        string                    `json:"url,omitempty"`
	AdminURL   string                    `json:"adminUrl,omitempty"`
	RetryCount int                       `json:"retryCount"`
	CreatedAt  time.Time                 `json:"createdAt"`
}

func toSnapshot(s *v1alpha1.Store) Snapshot {
	return Snapshot{
		Name:       s.Name,
		Engine:     s.Spec.Engine,
		Owner:      s.Spec.Owner,
		Phase:      s.Status.Phase,
		Conditions: s.Status.Conditions,
		URL:        s.Status.URL,
		AdminURL:   s.Status.AdminURL,
		RetryCount: s.Status.RetryCount,
		CreatedAt:  s.Status.CreatedAt.Time,
	}
}

// resolveOwner attaches callerIdentity to owner only when owner is empty,
// per the platform's identity model.
func resolveOwner(owner, callerIdentity string) string {
	owner = strings.TrimSpace(owner)
	if owner != "" {
		return owner
	}
	if callerIdentity != "" {
		return callerIdentity
	}
	return defaultOwner
}

// Create validates the request, enforces the per-owner quota, and
// returns the existing resource unchanged (idempotent 201) when a store
// of the same name/owner/engine already exists.
func (s *Service) Create(ctx context.Context, name string, engine v1alpha1.EngineType, owner, callerIdentity string) (Snapshot, bool, error) {
	if err := v1alpha1.ValidateName(name); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %s", ErrInvalidName, err)
	}
	if err := v1alpha1.ValidateEngine(engine); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %s", ErrInvalidEngine, err)
	}
	resolved := resolveOwner(owner, callerIdentity)
	if err := v1alpha1.ValidateOwner(resolved); err != nil {
		return Snapshot{}, false, fmt.Errorf("%w: %s", ErrInvalidName, err)
	}

	var existing v1alpha1.Store
	err := s.Client.Get(ctx, client.ObjectKey{Name: name}, &existing)
	if err == nil {
		if existing.Spec.Owner != resolved || existing.Spec.Engine != engine {
			return Snapshot{}, false, ErrOwnerConflict
		}
		return toSnapshot(&existing), false, nil
	}
	if !apierrors.IsNotFound(err) {
		return Snapshot{}, false, err
	}

	if !s.Quota.Reserve(resolved) {
		return Snapshot{}, false, ErrQuotaExceeded
	}

	store := &v1alpha1.Store{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec:       v1alpha1.StoreSpec{Engine: engine, Owner: resolved},
		Status: v1alpha1.StoreStatus{
			Phase:     v1alpha1.PhasePending,
			CreatedAt: metav1.Now(),
		},
	}
	if err := s.Client.Create(ctx, store); err != nil {
		if apierrors.IsAlreadyExists(err) {
			// Lost a create race; fetch and return the winner's snapshot.
			s.Quota.Release(resolved)
			var winner v1alpha1.Store
			if getErr := s.Client.Get(ctx, client.ObjectKey{Name: name}, &winner); getErr == nil {
				return toSnapshot(&winner), false, nil
			}
		}
		s.Quota.Release(resolved)
		return Snapshot{}, false, err
	}

	return toSnapshot(store), true, nil
}

// Get returns store's snapshot, enforcing owner-scoped visibility.
func (s *Service) Get(ctx context.Context, name, callerIdentity string) (Snapshot, error) {
	var store v1alpha1.Store
	if err := s.Client.Get(ctx, client.ObjectKey{Name: name}, &store); err != nil {
		if apierrors.IsNotFound(err) {
			return Snapshot{}, ErrNotFound
		}
		return Snapshot{}, err
	}
	if !visible(&store, callerIdentity) {
		return Snapshot{}, ErrForbidden
	}
	return toSnapshot(&store), nil
}

// List returns every store visible to callerIdentity, sorted by name.
func (s *Service) List(ctx context.Context, callerIdentity string) ([]Snapshot, error) {
	var list v1alpha1.StoreList
	if err := s.Client.List(ctx, &list); err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(list.Items))
	for i := range list.Items {
		if visible(&list.Items[i], callerIdentity) {
			out = append(out, toSnapshot(&list.Items[i]))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete marks name for deletion. A not-found store is treated as
// already deleted (idempotent).
func (s *Service) Delete(ctx context.Context, name, callerIdentity string) error {
	var store v1alpha1.Store
	if err := s.Client.Get(ctx, client.ObjectKey{Name: name}, &store); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !visible(&store, callerIdentity) {
		return ErrForbidden
	}
	if err := s.Client.Delete(ctx, &store); err != nil {
		if apierrors.IsNotFound(err) {
			return nil
		}
		return err
	}
	s.Quota.Release(store.Spec.Owner)
	return nil
}

// LogEntry is one merged activity-log line returned by Logs.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	Message   string    `json:"message,omitempty"`
}

// Logs merges the in-resource activity log with the durable event
// stream's tail, deduplicated by timestamp+event, most recent first.
func (s *Service) Logs(ctx context.Context, name, callerIdentity string) ([]LogEntry, error) {
	var store v1alpha1.Store
	if err := s.Client.Get(ctx, client.ObjectKey{Name: name}, &store); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !visible(&store, callerIdentity) {
		return nil, ErrForbidden
	}

	seen := make(map[string]bool)
	var merged []LogEntry

	for _, e := range store.Status.ActivityLog {
		key := fmt.Sprintf("%d:%s", e.Timestamp.UnixNano(), e.Event)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, LogEntry{Timestamp: e.Timestamp.Time, Event: e.Event, Message: e.Message})
	}

	if s.Bus != nil {
		for _, e := range s.Bus.Tail(name, 50) {
			key := fmt.Sprintf("%d:%s", e.Timestamp.UnixNano(), e.EventType)
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, LogEntry{Timestamp: e.Timestamp, Event: e.EventType, Message: e.Message})
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Timestamp.After(merged[j].Timestamp) })
	return merged, nil
}

// PhaseCounts returns the current store count per phase, across all
// owners, for metrics reporting.
func (s *Service) PhaseCounts(ctx context.Context) (map[string]int, error) {
	var list v1alpha1.StoreList
	if err := s.Client.List(ctx, &list); err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for i := range list.Items {
		counts[string(list.Items[i].Status.Phase)]++
	}
	return counts, nil
}

func visible(store *v1alpha1.Store, callerIdentity string) bool {
	if isPrivileged(callerIdentity) {
		return true
	}
	return store.Spec.Owner == callerIdentity
}
