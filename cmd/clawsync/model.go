package main

import (
	"context"
	"fmt"

	"github.com/clawsync/clawsync/internal/model"

	"github.com/spf13/cobra"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect model provider resolution",
}

var modelResolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show which provider and model a chat turn would use",
	Long:  `Resolves the configured model, falling back to the fallback model and then the built-in default. No network calls are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		resolver := model.NewResolver(cfg.Models)
		resolved, err := resolver.Resolve(ctx, model.ConfigFrom(cfg.Models))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable("", []string{"Provider", "Model", "Fallback"}, [][]string{
			{resolved.ProviderID, resolved.ModelID, yesNo(resolved.IsFallback)},
		}))
		return nil
	},
}

var modelProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List supported model providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		providers := model.AvailableProviders()
		rows := make([][]string, 0, len(providers))
		for _, p := range providers {
			rows = append(rows, []string{p.ID, p.Name, p.Description})
		}
		fmt.Fprintln(cmd.OutOrStdout(), renderTable("No providers", []string{"ID", "Name", "Description"}, rows))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelCmd)
	modelCmd.AddCommand(modelResolveCmd)
	modelCmd.AddCommand(modelProvidersCmd)
}
