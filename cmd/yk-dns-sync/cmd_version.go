package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yuriy-kovalchuk/yk-dns-sync/internal/dns"
)

func newCmdVersion() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and the compiled-in DNS providers",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "yk-dns-sync %s\nproviders: %s\n", Version, strings.Join(dns.Registered(), ", "))
		},
	}
}
