// Command txc is the txtclock agent: it keeps a shared deadline in a DNS
// TXT record moving forward together with its peers and reports
// liveness to a collector.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/daviddao/txtclock/pkg/config"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions is shared by every subcommand.
type rootOptions struct {
	configFile string
	v          *viper.Viper
}

// configFlags maps persistent flag names to config keys.
var configFlags = []struct {
	name, key, usage string
}{
	{"subdomain", config.KeySubdomain, "coordination record label"},
	{"domain", config.KeyDomain, "zone that holds the coordination record"},
	{"cloudflare-token", config.KeyCloudflareToken, "Cloudflare API token"},
	{"cloudflare-api", config.KeyCloudflareAPI, "Cloudflare API base URL"},
	{"url", config.KeyURL, "liveness collector URL"},
	{"nameserver", config.KeyNameserver, "nameserver for the fast read path"},
	{"journal", config.KeyJournal, `SQLite journal path ("" disables)`},
	{"log-level", config.KeyLogLevel, "log level (debug, info, warn, error)"},
	{"log-format", config.KeyLogFormat, "log format (text, json)"},
	{"log-file", config.KeyLogFile, "also write logs to this file"},
}

func newRootCmd() *cobra.Command {
	ro := &rootOptions{v: viper.New()}

	root := &cobra.Command{
		Use:   "txc",
		Short: "Shared DNS TXT clock agent",
		Long: `txc keeps a shared deadline in a DNS TXT record.

Every agent reads the record through a DNS resolver and the Cloudflare
API. Whichever agent first sees that the deadline has passed pushes it
forward and reports liveness to the collector.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&ro.configFile, "config", "c", "", "config file (default: ./config.ini or ./config.yaml)")
	for _, f := range configFlags {
		flags.String(f.name, "", f.usage)
		_ = ro.v.BindPFlag(f.key, flags.Lookup(f.name))
	}
	flags.Bool("use-dns-resolver", true, "read through the resolver first; false always queries the API")
	_ = ro.v.BindPFlag(config.KeyUseDNSResolver, flags.Lookup("use-dns-resolver"))
	flags.Duration("request-timeout", 0, "timeout per remote call")
	_ = ro.v.BindPFlag(config.KeyRequestTimeout, flags.Lookup("request-timeout"))
	flags.Duration("max-jitter", 0, "upper bound of the random delay added to each new deadline")
	_ = ro.v.BindPFlag(config.KeyMaxJitter, flags.Lookup("max-jitter"))

	root.AddCommand(
		newRunCmd(ro),
		newOnceCmd(ro),
		newStatusCmd(ro),
		newLogCmd(ro),
		newPeersCmd(ro),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "txc", version)
		},
	}
}
