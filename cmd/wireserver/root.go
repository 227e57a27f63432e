/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wireserver",
		Short: "wireserver - concurrent HTTP/1.1 server over raw TCP",
		Long: `wireserver accepts TCP connections, reads a single HTTP/1.1 request from each of them
and answers it with a built-in route or by forwarding it to an origin server.

Connections are served by a bounded pool of workers. When all workers are busy,
new connections are closed immediately.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (YAML or JSON)")
	cmd.AddCommand(newServeCmd(), newVersionCmd())
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
