package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/clawsync/clawsync/cmd/clawsync/runtime"

	"github.com/clawsync/clawsync/internal/logger"
	"github.com/clawsync/clawsync/internal/tool"

	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Inspect and call assembled tools",
}

var toolsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tools the agent would see",
	Long:  `Assembles skill tools and MCP server tools exactly as a chat turn does and prints them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		skillsOnly, _ := cmd.Flags().GetBool("skills-only")
		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			invoker := rt.Services.Invoker
			if skillsOnly {
				invoker = rt.Services.SkillInvoker()
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatTools(invoker.List(rt.Ctx)))
			return nil
		})
	},
}

var toolsCallCmd = &cobra.Command{
	Use:   "call [name]",
	Short: "Call a tool through the security gate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetString("args")
		input, err := parseToolArgs(raw)
		if err != nil {
			return err
		}
		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			out := rt.Services.Invoker.Call(logger.WithChannel(rt.Ctx, "cli"), args[0], input)
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if msg, failed := tool.ResultError(out); failed {
				return fmt.Errorf("tool call failed: %s", msg)
			}
			return nil
		})
	},
}

// parseToolArgs requires a JSON object. Empty input becomes {}.
func parseToolArgs(raw string) (json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return json.RawMessage(`{}`), nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil, fmt.Errorf("--args must be a JSON object: %w", err)
	}
	return json.RawMessage(raw), nil
}

func formatTools(tools tool.Set) string {
	rows := make([][]string, 0, len(tools))
	for _, name := range tools.Names() {
		rows = append(rows, []string{name, truncateString(tools[name].Description, 60)})
	}
	return renderTable("No tools available", []string{"Name", "Description"}, rows)
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.AddCommand(toolsListCmd)
	toolsCmd.AddCommand(toolsCallCmd)
	toolsListCmd.Flags().Bool("skills-only", false, "list only registry skills, as the HTTP MCP surface does")
	toolsCallCmd.Flags().String("args", "", "tool arguments as a JSON object")
}
