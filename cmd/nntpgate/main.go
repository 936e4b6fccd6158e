package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nntpgate",
		Short:        "HTTP gateway for posting to and reading from NNTP",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringP("config", "c", "", "path to a YAML config file")

	root.AddCommand(newServeCmd(), newPostCmd(), newReadCmd(), newConfigCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "nntpgate %s\n", version)
		},
	}
}

// addNNTPFlags registers the flags shared by serve, post and read. Their names
// match the keys config.Load binds.
func addNNTPFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("nntp-host", "", "NNTP server host")
	f.Int("nntp-port", 119, "NNTP server port")
	f.Duration("dial-timeout", 0, "NNTP connect timeout (default from config)")
	f.Duration("io-timeout", 0, "NNTP per-operation read/write timeout (default from config)")
	f.String("log-level", "", "debug, info, warn or error")
	f.String("log-path", "", "log file path")
}
