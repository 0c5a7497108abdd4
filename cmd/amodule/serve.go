package main

import (
	"context"

	"github.com/artpar/amodule/bootstrap"
	"github.com/spf13/cobra"
)

var hotReload bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST service",
	Long: `Start the amodule REST service.

The server will:
  - Load configuration from amodule.yaml (or --config)
  - Or load configuration from AMODULE_* environment variables
  - Load the specification (bundled unless module.spec_path is set)
  - Serve the module's methods under /api/methods/{method}

Environment variables (for Docker deployments):
  AMODULE_SERVER_PORT   - Server port (default: 5000)
  AMODULE_SPEC_PATH     - Specification file (default: bundled)
  AMODULE_RUNS_STORE    - sqlite, memory or none (default: sqlite)
  AMODULE_DATABASE_DSN  - Database path (default: amodule.db)
  AMODULE_API_KEY_HASH  - bcrypt hash of the API key (see hash-key)
  AMODULE_LOG_LEVEL     - Log level: debug, info, warn, error

Examples:
  amodule serve
  amodule serve --config /etc/amodule/amodule.yaml
  amodule serve --hot-reload=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := bootstrap.New(bootstrap.Options{
		ConfigPath: cfgFile,
		Watch:      hotReload,
		Version:    version,
		LogOutput:  cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return a.Run(ctx)
}
