/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/acronis/go-wireserver/log"
	"github.com/acronis/go-wireserver/service"
)

type serveFlags struct {
	port   int
	mode   string
	origin string
}

func newServeCmd() *cobra.Command {
	var flags serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the wire server",
		Long: `Start the wire server with the specified configuration.

The configuration is read from the file given with --config (if any) and from
environment variables prefixed with WIRESERVER_ (WIRESERVER_SERVER_WORKERS=64).
Flags take precedence over both.

Examples:
  # Serve the built-in routes
  wireserver serve --port 8080

  # Forward requests to an origin
  wireserver serve --mode forward --origin 127.0.0.1:8081`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadAppConfig(cfgFile, flags.overrides(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runServe(cmd.Context(), cfg, appOpts{})
		},
	}
	cmd.Flags().IntVarP(&flags.port, "port", "p", 0, "override the listen port (server.address becomes \":<port>\")")
	cmd.Flags().StringVar(&flags.mode, "mode", "", "override the backend mode (local, forward)")
	cmd.Flags().StringVar(&flags.origin, "origin", "", "override the origin host:port for the forward mode")
	return cmd
}

// overrides returns config keys for the flags set explicitly on the command line.
func (f *serveFlags) overrides(cmd *cobra.Command) map[string]interface{} {
	overrides := make(map[string]interface{})
	if cmd.Flags().Changed("port") {
		overrides["server.address"] = ":" + strconv.Itoa(f.port)
	}
	if cmd.Flags().Changed("mode") {
		overrides["dispatch.mode"] = f.mode
	}
	if cmd.Flags().Changed("origin") {
		overrides["dispatch.forward.origin"] = f.origin
	}
	return overrides
}

// runServe builds the app and serves until ctx is canceled, a shutdown signal arrives or a unit fails.
func runServe(ctx context.Context, cfg *AppConfig, opts appOpts) error {
	logger, closeLogger := log.NewLogger(cfg.Log)
	defer closeLogger()

	a, err := newApp(cfg, logger, opts)
	if err != nil {
		logger.Error("failed to create wireserver", log.Error(err))
		return err
	}
	defer func() {
		if closeErr := a.close(); closeErr != nil {
			logger.Warn("failed to release wireserver resources", log.Error(closeErr))
		}
	}()

	if ctx == nil {
		ctx = context.Background()
	}
	return service.New(logger, a.unit(), service.Opts{}).Run(ctx)
}
