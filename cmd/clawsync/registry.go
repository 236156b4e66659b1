package main

import (
	"fmt"

	"github.com/clawsync/clawsync/cmd/clawsync/runtime"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Import templates, skills and MCP servers from a YAML file",
	Long:  `Upserts every entry of a registry document. Entries are matched by name (templates by id), so seeding twice is safe.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			res, err := rt.Services.Registry.ImportFile(rt.Ctx, args[0])
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d template(s), %d skill(s), %d MCP server(s)\n", res.Templates, res.Skills, res.MCPServers)
			return nil
		})
	},
}

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Manage the skill registry",
}

var registryExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write the registry to a YAML or JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			if err := rt.Services.Registry.ExportFile(rt.Ctx, args[0]); err != nil {
				return fmt.Errorf("export failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry exported to %s\n", args[0])
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(registryCmd)
	registryCmd.AddCommand(registryExportCmd)
}
