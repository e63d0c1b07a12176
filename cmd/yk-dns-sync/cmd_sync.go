package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/apply"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/consul"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/controller"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/metrics"
)

// app bundles the collaborators a reconciler is built from.
type app struct {
	log      logr.Logger
	provider *config.ProviderConfig
	dns      dns.Provider
	consul   *consul.Client
	allow    *config.AllowList
	registry *prometheus.Registry
	metrics  *metrics.Recorder
}

// setup validates the options and connects to Consul and the DNS provider.
// Every error it returns is a startup error.
func setup(ctx context.Context, o *rootOptions) (*app, error) {
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	log := ctrl.Log.WithName("setup")
	log.Info("starting yk-dns-sync", "version", Version, "mode", o.Mode)

	providerCfg, err := config.LoadProviderConfig(o.providerConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to load provider config: %w", err)
	}
	log.Info("loaded provider config", "provider", providerCfg.Provider, "ttl", providerCfg.TTL, "profiles", len(providerCfg.Profiles))

	dnsProvider, err := dns.NewProvider(providerCfg.Provider, ctrl.Log.WithName("dns-"+providerCfg.Provider), providerCfg.Settings)
	if err != nil {
		return nil, fmt.Errorf("unable to create DNS provider: %w", err)
	}

	client, err := consul.New(ctrl.Log.WithName("consul"), o.Consul, o.Datacenter)
	if err != nil {
		return nil, err
	}
	dc, err := client.ValidateDatacenter(ctx)
	if err != nil {
		return nil, fmt.Errorf("invalid datacenter: %w", err)
	}
	log.Info("connected to consul", "address", o.Consul, "datacenter", dc)

	domains := allowedDomains(o.Domains, providerCfg.Domains)
	a := &app{
		log:      log,
		provider: providerCfg,
		dns:      dnsProvider,
		consul:   client,
		allow:    config.NewAllowList(domains...),
		registry: prometheus.NewRegistry(),
		metrics:  metrics.NewRecorder(),
	}
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics.SetupAndRegisterCollectors(a.registry)
	return a, nil
}

func (a *app) reconciler(o *rootOptions) *controller.Reconciler {
	return &controller.Reconciler{
		Log:     ctrl.Log.WithName("reconciler"),
		Options: &o.Options,
		Snapshot: &controller.SnapshotBuilder{
			Catalog:       a.consul,
			Allow:         a.allow,
			DNS:           a.dns,
			Lookup:        a.provider.ProfileMap(),
			ExternalHosts: o.ExternalHosts,
			HostFiles:     o.HostFiles,
		},
		Applier: &apply.Applier{
			TTL:        a.provider.TTL,
			RelaxedTTL: a.provider.RelaxedTTL,
			Metrics:    a.metrics,
		},
		Notifier: a.consul,
		Metrics:  a.metrics,
	}
}

// runOnce runs a single pass.
func runOnce(cmd *cobra.Command, o *rootOptions) error {
	a, err := setup(cmd.Context(), o)
	if err != nil {
		return err
	}
	rec := a.reconciler(o)
	rec.Out = cmd.OutOrStdout()
	_, err = rec.Reconcile(cmd.Context())
	return err
}

// runLoop runs a pass for every catalog change, key change or timer tick
// until the process is signalled.
func runLoop(cmd *cobra.Command, o *rootOptions) error {
	ctx := cmd.Context()
	a, err := setup(ctx, o)
	if err != nil {
		return err
	}
	rec := a.reconciler(o)
	rec.Out = cmd.OutOrStdout()

	var sources []controller.Source
	if len(o.Listen) == 0 {
		sources = append(sources, controller.Once)
	}
	for _, l := range o.Listen {
		if l == config.ListenServices {
			sources = append(sources, a.consul.WatchServices)
			continue
		}
		key := l
		sources = append(sources, func(ctx context.Context, fire func(context.Context) error) error {
			return a.consul.WatchKey(ctx, key, fire)
		})
	}
	if o.Interval > 0 {
		sources = append(sources, controller.Every(o.Interval))
	}
	if o.MetricsAddr != "" {
		sources = append(sources, a.serveMetrics(o.MetricsAddr))
	}

	a.log.Info("watching", "listen", o.Listen, "interval", o.Interval.String())
	return controller.NewRunner(ctrl.Log.WithName("runner"), rec, controller.DefaultTriggerCapacity).Run(ctx, sources...)
}

// serveMetrics serves /metrics and /healthz until ctx is done. It never fires.
func (a *app) serveMetrics(addr string) controller.Source {
	return func(ctx context.Context, _ func(context.Context) error) error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(a.registry))
		mux.Handle("/healthz", &healthz.Handler{Checks: map[string]healthz.Checker{"ping": healthz.Ping}})
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()
		a.log.Info("serving metrics", "address", addr)

		select {
		case err := <-errc:
			return fmt.Errorf("metrics server: %w", err)
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

// allowedDomains joins the --domain flags and the configured domains into a
// fresh slice, leaving both inputs untouched.
func allowedDomains(flags, configured []string) []string {
	out := make([]string, 0, len(flags)+len(configured))
	out = append(out, flags...)
	return append(out, configured...)
}

func newCmdPrint(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "print",
		Short: "Compute and print the DNS changes and resolver artifacts without applying",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.Mode = config.ModePrint
			return runOnce(cmd, o)
		},
	}
}

func newCmdApply(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Apply the DNS changes once and write the resolver artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.Mode = config.ModeApply
			return runOnce(cmd, o)
		},
	}
}

func addLoopFlags(cmd *cobra.Command, o *rootOptions) {
	f := cmd.Flags()
	f.StringArrayVarP(&o.Listen, "listen", "L", nil, `What to watch: "services" or a KV key path (repeatable)`)
	f.DurationVar(&o.Interval, "interval", 0, "Also run a pass at this interval; 0 disables")
	f.StringVarP(&o.Post, "post", "p", "", "Shell command run after the artifacts change")
	f.StringVar(&o.Notify, "notify", "", "KV key set to \"ping\" after a pass changed something")
	f.StringVar(&o.MetricsAddr, "metrics-addr", "", "Address to serve /metrics and /healthz on; empty disables")
}

func newCmdWatch(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Apply the DNS changes on every catalog or key change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.Mode = config.ModeWatch
			if len(o.Listen) == 0 {
				o.Listen = []string{config.ListenServices}
			}
			return runLoop(cmd, o)
		},
	}
	addLoopFlags(cmd, o)
	cmd.Flags().BoolVar(&o.DryRun, "dry-run", false, "Report the changes instead of applying them")
	return cmd
}

func newCmdFollow(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "follow",
		Short: "Render the backend's current records into the resolver artifacts",
		Long: `follow never changes the DNS backend. It renders what the backend holds
for the zones published in the catalog, once, or on every change when --listen
or --interval is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o.Mode = config.ModeFollow
			if len(o.Listen) == 0 && o.Interval == 0 {
				return runOnce(cmd, o)
			}
			return runLoop(cmd, o)
		},
	}
	addLoopFlags(cmd, o)
	return cmd
}
