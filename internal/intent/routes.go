package intent

// registerRoutes wires every intent-layer endpoint to its handler, all
// under the /stores prefix per the platform's external interface.
func (s *Server) registerRoutes() {
	stores := s.router.PathPrefix("/stores").Subrouter()

	stores.HandleFunc("", s.handleCreate).Methods("POST")
	stores.HandleFunc("/", s.handleCreate).Methods("POST")
	stores.HandleFunc("", s.handleList).Methods("GET")
	stores.HandleFunc("/", s.handleList).Methods("GET")
	stores.HandleFunc("/ws", s.handleSubscribe)
	stores.HandleFunc("/health", s.handleHealth).Methods("GET")
	stores.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	stores.HandleFunc("/audit/log", s.handleAuditLog).Methods("GET")
	stores.HandleFunc("/{name}", s.handleGet).Methods("GET")
	stores.HandleFunc("/{name}", s.handleDelete).Methods("DELETE")
	stores.HandleFunc("/{name}/logs", s.handleLogs).Methods("GET")
}
