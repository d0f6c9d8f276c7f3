package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	v1alpha1 "github.com/urumi/store-platform/api/v1alpha1"
	"github.com/urumi/store-platform/internal/config"
	"github.com/urumi/store-platform/internal/eventbus"
	"github.com/urumi/store-platform/internal/intent"

	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// NewIntentAPIRootCmd builds the intent layer's HTTP server command line.
func NewIntentAPIRootCmd() *cobra.Command {
	var (
		dotenv           string
		host             string
		port             int
		perOwnerCap      int
		createPerMinute  int
		deletePerMinute  int
		dbPath           string
	)

	cmd := &cobra.Command{
		Use:           "store-intentapi",
		Short:         "HTTP intent layer for the store provisioning platform",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(dotenv); err != nil {
				return fmt.Errorf("loading dotenv: %w", err)
			}

			cfg := config.DefaultConfig()
			if cmd.Flags().Changed("host") {
				cfg.Server.Host = host
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if cmd.Flags().Changed("per-owner-store-cap") {
				cfg.Quota.PerOwnerStoreCap = perOwnerCap
			}
			if cmd.Flags().Changed("create-per-minute") {
				cfg.RateLimit.CreatePerMinute = createPerMinute
			}
			if cmd.Flags().Changed("delete-per-minute") {
				cfg.RateLimit.DeletePerMinute = deletePerMinute
			}
			if cmd.Flags().Changed("db-path") {
				cfg.EventBus.DBPath = dbPath
			}

			logger := newZapLogger(cfg.Log.Development)
			defer logger.Sync()

			scheme := runtime.NewScheme()
			if err := clientgoscheme.AddToScheme(scheme); err != nil {
				return fmt.Errorf("registering client-go scheme: %w", err)
			}
			if err := v1alpha1.AddToScheme(scheme); err != nil {
				return fmt.Errorf("registering scheme: %w", err)
			}

			cl, err := client.New(ctrl.GetConfigOrDie(), client.Options{Scheme: scheme})
			if err != nil {
				return fmt.Errorf("building cluster client: %w", err)
			}

			bus, err := eventbus.Open(cfg.EventBus.DBPath, cfg.Status.DurableStreamRetention)
			if err != nil {
				logger.Warn("event bus running in degraded mode", zap.Error(err))
			}
			defer bus.Close()

			quotaTracker := quotaFromCluster(cl, cfg.Quota.PerOwnerStoreCap)
			svc := &intent.Service{Client: cl, Bus: bus, Quota: quotaTracker}

			srv := intent.NewServer(cfg.ServerAddress(), svc, bus,
				cfg.RateLimit.CreatePerMinute, cfg.RateLimit.DeletePerMinute, logger)

			banner := color.New(color.FgCyan, color.Bold)
			banner.Println("Store Platform Intent API")
			fmt.Printf("   Listening:  http://%s\n", cfg.ServerAddress())
			fmt.Printf("   DB Path:    %s\n", cfg.EventBus.DBPath)
			fmt.Println()

			return runUntilSignal(srv.Start, srv.Shutdown, logger)
		},
	}

	cmd.Flags().StringVar(&dotenv, "dotenv", "", "path to a .env file to load (defaults to $ENV_FILE or ./.env)")
	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "listen host")
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	cmd.Flags().IntVar(&perOwnerCap, "per-owner-store-cap", 5, "max stores per owner")
	cmd.Flags().IntVar(&createPerMinute, "create-per-minute", 10, "per-identity create rate limit")
	cmd.Flags().IntVar(&deletePerMinute, "delete-per-minute", 30, "per-identity delete rate limit")
	cmd.Flags().StringVar(&dbPath, "db-path", "", "event bus bbolt database path (defaults to a per-user cache dir)")

	return cmd
}
