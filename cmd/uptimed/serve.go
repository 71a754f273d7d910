package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/mickybart/uptimed/pkg/config"
	"github.com/mickybart/uptimed/pkg/consolidation"
	"github.com/mickybart/uptimed/pkg/instancelock"
	"github.com/mickybart/uptimed/pkg/log"
	"github.com/mickybart/uptimed/pkg/metrics"
	"github.com/mickybart/uptimed/pkg/monitor"
	"github.com/mickybart/uptimed/pkg/provider"
	"github.com/mickybart/uptimed/pkg/service"
	"github.com/mickybart/uptimed/pkg/storage"
	"github.com/spf13/cobra"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the uptime monitoring daemon",
	Long: `Load the configuration, connect to the storage backend, and run the
monitoring engine, the consolidation workers, and the instance lock until
SIGINT/SIGTERM or until the instance heartbeat is lost to another daemon.`,
	RunE: runServe,
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.Storage.Backend {
	case config.BackendMongo:
		return storage.NewMongoStore(ctx, cfg.Storage.URI, cfg.Storage.DB, 10*time.Second)
	case config.BackendBolt:
		if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
			return nil, err
		}
		return storage.NewBoltStore(cfg.Storage.DataDir)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func buildService(s config.StaticService) service.Service {
	switch s.Kind {
	case "http-ingress":
		return service.NewHTTPIngress(s.Namespace, s.Name, s.URL, s.Headers, s.Category)
	case "database":
		return service.NewDatabase(s.Name, s.URI, s.Category)
	case "cluster":
		availability := s.Availability
		if availability <= 0 {
			availability = 90
		}
		return service.NewCluster(s.Name, s.Kubeconfig, s.Context, availability, s.Category)
	case "search":
		return service.NewSearch(s.Name, s.URL, s.Category)
	}
	return nil
}

// excludeFilter drops configured URLs from ingress discovery.
type excludeFilter struct {
	urls map[string]struct{}
}

func newExcludeFilter(urls []string) *excludeFilter {
	f := &excludeFilter{urls: make(map[string]struct{}, len(urls))}
	for _, u := range urls {
		f.urls[u] = struct{}{}
	}
	return f
}

func (f *excludeFilter) Exclude(url string) bool {
	_, ok := f.urls[url]
	return ok
}

func (f *excludeFilter) Headers(string) map[string]string { return nil }

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := rootCmd.PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	serverLog := log.WithComponent("server")
	ctx := context.Background()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()

	if !store.Ready(ctx) {
		return fmt.Errorf("storage is not ready")
	}

	metrics.SetVersion(Version)
	metrics.SetStorageProbe(cfg.Storage.Backend, func() bool {
		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return store.Ready(probeCtx)
	})

	notify := func(svc service.Service, status service.Status, extra map[string]any) bool {
		notifyCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return store.UpdateStatus(notifyCtx, svc, status, extra)
	}

	mon := monitor.New(monitor.Config{
		MaxServices:           cfg.Monitoring.MaxServices,
		CheckEverySeconds:     cfg.Monitoring.CheckEvery(),
		FastRetryEverySeconds: cfg.Monitoring.FastRetryEvery(),
		AttemptBeforeHardFail: cfg.Monitoring.AttemptBeforeFail,
		Notify:                notify,
	})

	metrics.SetMonitorProbe(func() metrics.MonitorState {
		return metrics.MonitorState{
			Running:  mon.Running(),
			Tasks:    mon.TaskCount(),
			Services: mon.ServiceCount(),
		}
	})

	for _, s := range cfg.Services {
		svc := buildService(s)
		if svc == nil {
			return fmt.Errorf("unknown service kind %q", s.Kind)
		}
		mon.Add(svc, "config")
	}

	var consolidations []interface {
		Start()
		Stop()
	}
	if cfg.Server.WithConsolidation {
		slaWorker, err := consolidation.NewSLA(ctx, store, cfg.Consolidations.SLA.WaitBetweenBatch())
		if err != nil {
			return fmt.Errorf("failed to load consolidation watermarks: %w", err)
		}
		statusWorker := consolidation.NewStatus(
			store,
			storage.ServiceFilter{Category: cfg.Consolidations.Status.FilterCategory},
			cfg.Consolidations.Status.DownSince(),
			cfg.Consolidations.Status.WaitBetweenBatch(),
		)
		consolidations = append(consolidations, slaWorker, statusWorker)
	}

	var ingressProv *provider.IngressProvider
	if cfg.Providers.Ingress.Enabled {
		restCfg, err := clientcmd.BuildConfigFromFlags("", cfg.Providers.Ingress.Kubeconfig)
		if err != nil {
			return fmt.Errorf("failed to load kubeconfig: %w", err)
		}
		clientset, err := kubernetes.NewForConfig(restCfg)
		if err != nil {
			return fmt.Errorf("failed to build kubernetes client: %w", err)
		}
		ingressProv = provider.NewIngressProvider(
			"ingress", clientset, mon,
			cfg.Providers.Ingress.Category,
			newExcludeFilter(cfg.Providers.Ingress.Exclude),
		)
	}

	// Metrics and health surface.
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.Handle("/health", metrics.HealthHandler())
	mux.Handle("/ready", metrics.ReadyHandler())
	mux.Handle("/live", metrics.LivenessHandler())
	go func() {
		if err := http.ListenAndServe(cfg.Server.MetricsAddr, mux); err != nil {
			serverLog.Error().Err(err).Msg("metrics server failed")
		}
	}()
	serverLog.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics endpoint up")

	var stopOnce sync.Once
	stopAll := func() {
		stopOnce.Do(func() {
			serverLog.Info().Msg("stopping")
			if ingressProv != nil {
				ingressProv.Stop()
			}
			for _, c := range consolidations {
				c.Stop()
			}
			mon.Stop()
			serverLog.Info().Msg("stopped")
		})
	}

	lock := instancelock.New(store, cfg.Instance.Alive(), cfg.Instance.InactiveDuring())

	onActive := func() {
		metrics.SetRole(metrics.RoleActive)
		if ingressProv != nil {
			go func() {
				if err := ingressProv.Run(ctx); err != nil {
					serverLog.Error().Err(err).Msg("ingress provider stopped with error")
				}
			}()
		}
		for _, c := range consolidations {
			c.Start()
		}
		mon.Start()
	}
	onLoss := func() {
		metrics.SetRole(metrics.RoleLost)
	}

	lockDone := make(chan struct{})
	go func() {
		lock.Run(ctx, onActive, onLoss)
		close(lockDone)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		serverLog.Info().Msg("signal received, shutting down")
		lock.Stop()
		stopAll()
		return nil
	case <-lockDone:
		// The heartbeat was lost to another instance: stop all workers and
		// exit so the other daemon takes over cleanly.
		stopAll()
		return fmt.Errorf("instance heartbeat lost")
	}
}
