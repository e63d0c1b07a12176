package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/config"
	_ "github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns/providers"
)

var Version = "dev"

// rootOptions holds the flags shared by every subcommand.
type rootOptions struct {
	config.Options
	providerConfig string
	zap            zap.Options
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{zap: zap.Options{Development: true}}

	cmd := &cobra.Command{
		Use:   "yk-dns-sync",
		Short: "Synchronize DNS zones and dnsmasq artifacts with the Consul catalog",
		Long: `yk-dns-sync publishes Consul services tagged dns=<zone> into an
authoritative DNS backend (Route53, Azure DNS or OPNsense Unbound) and renders
<output>.hosts and <output>.conf files for a local dnsmasq.`,
		Version: Version,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&o.Consul, "consul", "c", os.Getenv("CONSUL_HTTP_ADDR"), "Address of a Consul agent (env CONSUL_HTTP_ADDR)")
	f.StringVarP(&o.Datacenter, "datacenter", "d", "", "Datacenter to read; defaults to the agent's datacenter")
	f.StringArrayVarP(&o.ExternalHosts, "external-hosts", "e", nil, "Static host file merged into the wanted records (repeatable)")
	f.StringArrayVar(&o.HostFiles, "hosts", nil, "Static host file merged into the current records (repeatable)")
	f.StringArrayVar(&o.Domains, "domain", nil, "Only publish these zones; *.zone wildcards allowed (repeatable)")
	f.StringVarP(&o.Output, "output", "o", "", "Path prefix of the generated .hosts and .conf files")
	f.StringVar(&o.providerConfig, "provider-config", "", "DNS provider config file (env DNS_PROVIDER_PATH, default configs/dns-provider.yaml)")

	bindZapFlags(f, &o.zap)

	cmd.PersistentPreRun = func(*cobra.Command, []string) {
		ctrl.SetLogger(zap.New(zap.UseFlagOptions(&o.zap)))
	}

	cmd.AddCommand(newCmdPrint(o))
	cmd.AddCommand(newCmdApply(o))
	cmd.AddCommand(newCmdWatch(o))
	cmd.AddCommand(newCmdFollow(o))
	cmd.AddCommand(newCmdList(o))
	cmd.AddCommand(newCmdVersion())
	return cmd
}

// bindZapFlags exposes the zap logger flags (--zap-log-level and friends) on fs.
func bindZapFlags(fs *pflag.FlagSet, opts *zap.Options) {
	goflags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(goflags)
	fs.AddGoFlagSet(goflags)
}

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(ctrl.SetupSignalHandler()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
