package config

import "testing"

func TestDefaultConfig_HasSaneDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Reconciler.MaxConcurrentReconciles <= 0 {
		t.Errorf("MaxConcurrentReconciles = %d, want > 0", cfg.Reconciler.MaxConcurrentReconciles)
	}
	if cfg.Reconciler.MaxAttempts <= 0 {
		t.Errorf("MaxAttempts = %d, want > 0", cfg.Reconciler.MaxAttempts)
	}
	if cfg.Quota.PerOwnerStoreCap <= 0 {
		t.Errorf("PerOwnerStoreCap = %d, want > 0", cfg.Quota.PerOwnerStoreCap)
	}
	if cfg.Server.Port <= 0 {
		t.Errorf("Server.Port = %d, want > 0", cfg.Server.Port)
	}
	if cfg.EventBus.DBPath == "" {
		t.Errorf("EventBus.DBPath should never be empty")
	}
}

func TestServerAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 9090
	if got := cfg.ServerAddress(); got != "127.0.0.1:9090" {
		t.Errorf("ServerAddress() = %q, want 127.0.0.1:9090", got)
	}
}
