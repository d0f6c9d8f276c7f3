package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/urumi/store-platform/internal/eventbus"
)

// Server is the intent layer's HTTP surface: validation, identity
// scoping, quota enforcement, and live-stream fan-out sit in front of
// the cluster API via Service.
type Server struct {
	router  *mux.Router
	svc     *Service
	bus     *eventbus.Bus
	logger  *zap.Logger
	metrics *metrics

	createLimiter *limiterSet
	deleteLimiter *limiterSet
	audit         *auditLog

	server *http.Server
}

// NewServer creates a fully-wired Server ready to Start().
func NewServer(addr string, svc *Service, bus *eventbus.Bus, createPerMin, deletePerMin int, logger *zap.Logger) *Server {
	s := &Server{
		router:        mux.NewRouter(),
		svc:           svc,
		bus:           bus,
		logger:        logger,
		metrics:       newMetrics(prometheus.DefaultRegisterer),
		createLimiter: newLimiterSet(createPerMin),
		deleteLimiter: newLimiterSet(deletePerMin),
		audit:         newAuditLog(),
	}
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.registerRoutes()
	return s
}

// Start begins listening and serving HTTP requests. It blocks until the
// server is shut down or encounters a fatal error, and keeps the
// stores_total gauge fresh in the background until then.
func (s *Server) Start() error {
	stop := make(chan struct{})
	go s.pollPhaseCounts(stop)
	defer close(stop)

	s.logger.Info("intent API starting", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) pollPhaseCounts(stop <-chan struct{}) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			counts, err := s.svc.PhaseCounts(ctx)
			cancel()
			if err != nil {
				s.logger.Warn("polling phase counts", zap.Error(err))
				continue
			}
			s.metrics.SetPhaseCounts(counts)
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}
