package intent

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/eventbus"
	"github.com/urumi/store-platform/internal/quota"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

// newTestServer builds a Server the same way NewServer does but against a
// throwaway Prometheus registry, since prometheus.DefaultRegisterer would
// panic on the second test in this package to register the same metric
// names.
func newTestServer(t *testing.T, cap, createPerMin, deletePerMin int, objects ...client.Object) *Server {
	t.Helper()
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithStatusSubresource(&v1alpha1.Store{}).WithObjects(objects...).Build()

	bus, err := eventbus.Open(filepath.Join(t.TempDir(), "events.db"), 100)
	if err != nil {
		t.Fatalf("eventbus.Open() error = %v", err)
	}
	t.Cleanup(func() { bus.Close() })

	svc := &Service{Client: c, Bus: bus, Quota: quota.NewTracker(cap)}

	s := &Server{
		router:        mux.NewRouter(),
		svc:           svc,
		bus:           bus,
		logger:        zap.NewNop(),
		metrics:       newMetrics(prometheus.NewRegistry()),
		createLimiter: newLimiterSet(createPerMin),
		deleteLimiter: newLimiterSet(deletePerMin),
		audit:         newAuditLog(),
	}
	s.registerRoutes()
	return s
}

func doRequest(s *Server, method, path, identity string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if identity != "" {
		req.Header.Set(identityHeader, identity)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHandleCreate_ReturnsCreatedSnapshot(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)

	w := doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", w.Code, w.Body.String())
	}
	var snap Snapshot
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if snap.Name != "acme-shop" || snap.Owner != "acme" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestHandleCreate_MalformedBodyIsBadRequest(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	req := httptest.NewRequest(http.MethodPost, "/stores", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleCreate_InvalidNameIsBadRequest(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	w := doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "AB", Engine: v1alpha1.EngineMedusa})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleCreate_QuotaExceededIsForbidden(t *testing.T) {
	s := newTestServer(t, 1, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop-one", Engine: v1alpha1.EngineMedusa})
	w := doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop-two", Engine: v1alpha1.EngineMedusa})
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleCreate_ConflictOnOwnerMismatch(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})
	w := doRequest(s, http.MethodPost, "/stores", "globex", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleCreate_RateLimited(t *testing.T) {
	s := newTestServer(t, 100, 1, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop-one", Engine: v1alpha1.EngineMedusa})
	w := doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop-two", Engine: v1alpha1.EngineMedusa})
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429, body=%s", w.Code, w.Body.String())
	}
}

func TestHandleGet_NotFoundAndForbidden(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})

	if w := doRequest(s, http.MethodGet, "/stores/does-not-exist", "acme", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/stores/acme-shop", "globex", nil); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	if w := doRequest(s, http.MethodGet, "/stores/acme-shop", "acme", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestHandleList_ScopesToCaller(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})
	doRequest(s, http.MethodPost, "/stores", "globex", createRequest{Name: "globex-shop", Engine: v1alpha1.EngineMedusa})

	w := doRequest(s, http.MethodGet, "/stores", "acme", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Stores []Snapshot `json:"stores"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Stores) != 1 || body.Stores[0].Name != "acme-shop" {
		t.Fatalf("unexpected list: %+v", body.Stores)
	}
}

func TestHandleDelete_AcceptedThenIdempotent(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})

	w := doRequest(s, http.MethodDelete, "/stores/acme-shop", "acme", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202, body=%s", w.Code, w.Body.String())
	}
	w2 := doRequest(s, http.MethodDelete, "/stores/acme-shop", "acme", nil)
	if w2.Code != http.StatusAccepted {
		t.Errorf("second delete status = %d, want 202 (idempotent)", w2.Code)
	}
}

func TestHandleDelete_ForbiddenForNonOwner(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})

	w := doRequest(s, http.MethodDelete, "/stores/acme-shop", "globex", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestHandleDelete_RateLimited(t *testing.T) {
	s := newTestServer(t, 5, 100, 1)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})

	doRequest(s, http.MethodDelete, "/stores/acme-shop", "acme", nil)
	w := doRequest(s, http.MethodDelete, "/stores/acme-shop", "acme", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestHandleLogs_ForbiddenForNonOwner(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})

	w := doRequest(s, http.MethodGet, "/stores/acme-shop/logs", "globex", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
}

func TestHandleHealth_ReportsBusStatus(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	w := doRequest(s, http.MethodGet, "/stores/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 with a healthy bus", w.Code)
	}
}

func TestHandleAuditLog_RecordsCreateAndDelete(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	doRequest(s, http.MethodPost, "/stores", "acme", createRequest{Name: "acme-shop", Engine: v1alpha1.EngineMedusa})
	doRequest(s, http.MethodDelete, "/stores/acme-shop", "acme", nil)

	w := doRequest(s, http.MethodGet, "/stores/audit/log", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body struct {
		Log []auditEntry `json:"log"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(body.Log) != 2 {
		t.Fatalf("audit log = %+v, want 2 entries", body.Log)
	}
	if body.Log[0].Action != "CREATE" || body.Log[1].Action != "DELETE" {
		t.Errorf("unexpected audit actions: %+v", body.Log)
	}
}

func TestHandleMetrics_ServesPrometheusFormat(t *testing.T) {
	s := newTestServer(t, 5, 100, 100)
	w := doRequest(s, http.MethodGet, "/stores/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
