// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-sharevault.
//
// go-sharevault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-sharevault/internal/server"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the REST API server",
		Long: `Serve the sharevault REST API until SIGINT or SIGTERM. Logging follows the
logging section of the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if a.v.GetBool("verbose") {
				cfg.Logging.Level = "debug"
			}

			ctx, stop := server.SetupSignalHandler()
			defer stop()

			srv, err := server.New(ctx, cfg, server.WithVersion(Version))
			if err != nil {
				return err
			}
			return srv.Run(ctx)
		},
	}
	cmd.Flags().String("host", "", "listen host (default from config)")
	cmd.Flags().Int("port", 0, "listen port (default from config)")
	a.bind(cmd.Flags(), "host", "server.host")
	cmd.Flags().String("unix-socket", "", "also serve on this Unix socket")
	a.bind(cmd.Flags(), "port", "server.port")
	a.bind(cmd.Flags(), "unix-socket", "server.unix_socket")
	return cmd
}
