package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/config"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/controller"
	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

func newCmdList(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list [zone...]",
		Short: "List the records the DNS backend holds",
		Long: `list prints the record sets of the given zones, or of every zone named in
the provider profiles and the domain allow-list. It does not contact Consul.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			providerCfg, err := config.LoadProviderConfig(o.providerConfig)
			if err != nil {
				return fmt.Errorf("unable to load provider config: %w", err)
			}
			provider, err := dns.NewProvider(providerCfg.Provider, ctrl.Log.WithName("dns-"+providerCfg.Provider), providerCfg.Settings)
			if err != nil {
				return fmt.Errorf("unable to create DNS provider: %w", err)
			}

			profiles := providerCfg.ProfileMap()
			zones := args
			if len(zones) == 0 {
				zones = listZones(profiles, config.NewAllowList(allowedDomains(o.Domains, providerCfg.Domains)...))
			}
			if len(zones) == 0 {
				return fmt.Errorf("no zones to list: pass zones as arguments or configure profiles or domains")
			}
			return controller.ListRecords(cmd.Context(), ctrl.Log.WithName("list"), cmd.OutOrStdout(), provider, profiles, zones)
		},
	}
}

// listZones returns the non-wildcard zones named by profiles and allow.
func listZones(profiles *config.ProfileMap, allow *config.AllowList) []string {
	seen := map[string]bool{}
	var zones []string
	for _, z := range append(profiles.Zones(), allow.Domains()...) {
		if z == "" || z[0] == '*' || seen[z] {
			continue
		}
		seen[z] = true
		zones = append(zones, z)
	}
	sort.Strings(zones)
	return zones
}
