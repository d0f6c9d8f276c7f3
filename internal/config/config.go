// Package config centralizes every tunable knob of the store platform,
// with defaults matching the platform's documented external interface.
package config

import (
	"fmt"
	"os"
	"time"
)

// ReconcilerConfig governs the reconciler engine and concurrency gate.
type ReconcilerConfig struct {
	MaxConcurrentReconciles int
	DriftInterval           time.Duration
	BackoffInitial          time.Duration
	BackoffFactor           float64
	BackoffCap              time.Duration
	MaxAttempts             int
	ReadinessSlice          time.Duration
	RendererTimeout         time.Duration
	APITimeout              time.Duration
}

// StatusConfig governs the status manager's bounded buffers.
type StatusConfig struct {
	ActivityLogCapacity   int
	DurableStreamRetention int
}

// QuotaConfig governs per-owner provisioning limits.
type QuotaConfig struct {
	PerOwnerStoreCap int
}

// RateLimitConfig governs the intent layer's per-identity token buckets.
type RateLimitConfig struct {
	CreatePerMinute int
	DeletePerMinute int
}

// EventBusConfig governs the durable event stream's on-disk backing store.
type EventBusConfig struct {
	DBPath string
}

// ServerConfig governs the intent layer's HTTP listener.
type ServerConfig struct {
	Host string
	Port int
}

// RendererConfig governs the opaque template-renderer adapter.
type RendererConfig struct {
	HelmBinary   string
	ChartPath    string
	DomainSuffix string
	StorageClass string
}

// LogConfig governs structured logging verbosity.
type LogConfig struct {
	Development bool
}

// Config aggregates every sub-config with sensible defaults.
type Config struct {
	Reconciler ReconcilerConfig
	Status     StatusConfig
	Quota      QuotaConfig
	RateLimit  RateLimitConfig
	EventBus   EventBusConfig
	Server     ServerConfig
	Renderer   RendererConfig
	Log        LogConfig
}

// DefaultConfig returns the configuration described in the platform's
// external interface, before any environment or flag overrides.
func DefaultConfig() *Config {
	return &Config{
		Reconciler: ReconcilerConfig{
			MaxConcurrentReconciles: 3,
			DriftInterval:           120 * time.Second,
			BackoffInitial:          5 * time.Second,
			BackoffFactor:           2,
			BackoffCap:              60 * time.Second,
			MaxAttempts:             3,
			ReadinessSlice:          5 * time.Second,
			RendererTimeout:         60 * time.Second,
			APITimeout:              10 * time.Second,
		},
		Status: StatusConfig{
			ActivityLogCapacity:    15,
			DurableStreamRetention: 256,
		},
		Quota: QuotaConfig{
			PerOwnerStoreCap: 5,
		},
		RateLimit: RateLimitConfig{
			CreatePerMinute: 10,
			DeletePerMinute: 30,
		},
		EventBus: EventBusConfig{
			DBPath: defaultDBPath(),
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Renderer: RendererConfig{
			HelmBinary:   "helm",
			ChartPath:    "/charts/store",
			DomainSuffix: "local.urumi",
			StorageClass: "",
		},
		Log: LogConfig{
			Development: true,
		},
	}
}

// ServerAddress returns the intent layer's listen address in host:port form.
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultDBPath() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return dir + "/store-platform/events.db"
	}
	return "/tmp/store-platform/events.db"
}
