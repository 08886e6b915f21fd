package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/imrosyd/cliproxyctl/internal/locator"
	"github.com/imrosyd/cliproxyctl/internal/paths"
	"github.com/imrosyd/cliproxyctl/internal/supervisor"
	"github.com/imrosyd/cliproxyctl/internal/version"
)

// GlobalFlags holds the persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string // optional TOML settings file overriding the default layout
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "cliproxyctl",
		Short: "Control plane for the CLIProxyAPI Plus server",
		Long: `cliproxyctl manages a local CLIProxyAPI Plus installation: it starts and
stops the server, installs updates from GitHub, and serves the web
dashboard with its control API.

Examples:
  cliproxyctl serve                 # Start the control server and dashboard
  cliproxyctl status                # Show whether the managed server runs
  cliproxyctl version               # Show installed script and server version`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&global.ConfigPath, "config", "", "settings file (TOML) overriding the default layout")

	root.AddCommand(createServeCommand(global))
	root.AddCommand(createStatusCommand(global))
	root.AddCommand(createVersionCommand(global))
	return root
}

func loadLayout(global *GlobalFlags) (paths.Layout, error) {
	return paths.Load(global.ConfigPath)
}

func createStatusCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the managed server's state",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := loadLayout(global)
			if err != nil {
				return err
			}
			sup := supervisor.New(layout, locator.New())
			return printJSON(cmd.OutOrStdout(), sup.Status())
		},
	}
}

func createVersionCommand(global *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the installed script and server version",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := loadLayout(global)
			if err != nil {
				return err
			}
			state, err := version.NewStore(layout.VersionFile).Read()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), state)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
