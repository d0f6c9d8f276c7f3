// Package cli wires the platform's two binaries' command-line surface:
// flag parsing, config-with-overrides construction, and the
// start/wait-for-signal/graceful-shutdown sequence, in the same shape
// for both the operator and the intent API.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/cluster"
	"github.com/urumi/store-platform/internal/config"
	"github.com/urumi/store-platform/internal/controller"
	"github.com/urumi/store-platform/internal/eventbus"
	"github.com/urumi/store-platform/internal/gate"
	"github.com/urumi/store-platform/internal/renderer"
	"github.com/urumi/store-platform/internal/status"

	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
)

// NewOperatorRootCmd builds the reconciling operator's command line.
func NewOperatorRootCmd() *cobra.Command {
	var (
		dotenv                  string
		maxConcurrentReconciles int
		driftIntervalSeconds    int
		helmBinary              string
		chartPath               string
		domainSuffix            string
		dbPath                  string
	)

	cmd := &cobra.Command{
		Use:           "store-operator",
		Short:         "Reconciling operator for the store provisioning platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(dotenv); err != nil {
				return fmt.Errorf("loading dotenv: %w", err)
			}

			cfg := config.DefaultConfig()
			if cmd.Flags().Changed("max-concurrent-reconciles") {
				cfg.Reconciler.MaxConcurrentReconciles = maxConcurrentReconciles
			}
			if cmd.Flags().Changed("drift-interval-seconds") {
				cfg.Reconciler.DriftInterval = time.Duration(driftIntervalSeconds) * time.Second
			}
			if cmd.Flags().Changed("helm-binary") {
				cfg.Renderer.HelmBinary = helmBinary
			}
			if cmd.Flags().Changed("chart-path") {
				cfg.Renderer.ChartPath = chartPath
			}
			if cmd.Flags().Changed("domain-suffix") {
				cfg.Renderer.DomainSuffix = domainSuffix
			}
			if cmd.Flags().Changed("db-path") {
				cfg.EventBus.DBPath = dbPath
			}

			logger := newZapLogger(cfg.Log.Development)
			defer logger.Sync()
			ctrl.SetLogger(zapr.NewLogger(logger))

			scheme := clientgoscheme.Scheme
			if err := v1alpha1.AddToScheme(scheme); err != nil {
				return fmt.Errorf("registering scheme: %w", err)
			}

			mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{Scheme: scheme})
			if err != nil {
				return fmt.Errorf("starting manager: %w", err)
			}

			bus, err := eventbus.Open(cfg.EventBus.DBPath, cfg.Status.DurableStreamRetention)
			if err != nil {
				logger.Warn("event bus running in degraded mode", zap.Error(err))
			}
			defer bus.Close()

			clusterClient := cluster.New(mgr.GetClient(), cfg.Reconciler.APITimeout)
			rend := renderer.NewHelmRenderer(cfg.Renderer.HelmBinary, cfg.Renderer.ChartPath)

			reconciler := &controller.StoreReconciler{
				Client: mgr.GetClient(),
				Scheme: mgr.GetScheme(),
				Deps: &controller.StageDeps{
					Cluster:  clusterClient,
					Renderer: rend,
					Config:   cfg,
				},
				StatusMgr: &status.Manager{
					Client:              mgr.GetClient(),
					Bus:                 bus,
					ActivityLogCapacity: cfg.Status.ActivityLogCapacity,
				},
				Gate:   gate.New(int64(cfg.Reconciler.MaxConcurrentReconciles)),
				Config: cfg,
			}
			if err := reconciler.SetupWithManager(mgr); err != nil {
				return fmt.Errorf("registering reconciler: %w", err)
			}

			banner := color.New(color.FgCyan, color.Bold)
			banner.Println("Store Platform Operator")
			fmt.Printf("   Chart Path:    %s\n", cfg.Renderer.ChartPath)
			fmt.Printf("   Helm Binary:   %s\n", cfg.Renderer.HelmBinary)
			fmt.Printf("   Domain Suffix: %s\n", cfg.Renderer.DomainSuffix)
			fmt.Println()

			logger.Info("starting operator", zap.String("chart_path", cfg.Renderer.ChartPath))
			return mgr.Start(ctrl.SetupSignalHandler())
		},
	}

	cmd.Flags().StringVar(&dotenv, "dotenv", "", "path to a .env file to load (defaults to $ENV_FILE or ./.env)")
	cmd.Flags().IntVar(&maxConcurrentReconciles, "max-concurrent-reconciles", 3, "concurrency gate capacity")
	cmd.Flags().IntVar(&driftIntervalSeconds, "drift-interval-seconds", 120, "drift re-check interval for Ready stores")
	cmd.Flags().StringVar(&helmBinary, "helm-binary", "helm", "path to the helm binary")
	cmd.Flags().StringVar(&chartPath, "chart-path", "/charts/store", "chart path passed to helm upgrade --install")
	cmd.Flags().StringVar(&domainSuffix, "domain-suffix", "local.urumi", "domain suffix used to compute store URLs")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "event bus bbolt database path (defaults to a per-user cache dir)")

	return cmd
}

func newZapLogger(development bool) *zap.Logger {
	if development {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}

// runUntilSignal is shared plumbing for the intent API's server, which
// (unlike the operator) doesn't have a controller-runtime manager loop
// to block on.
func runUntilSignal(start func() error, shutdown func(context.Context) error, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return shutdown(shutdownCtx)
}
