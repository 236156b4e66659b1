package main

import (
	"fmt"
	"strings"

	"github.com/clawsync/clawsync/cmd/clawsync/runtime"

	"github.com/clawsync/clawsync/internal/skill"

	"github.com/spf13/cobra"
)

var skillsCmd = &cobra.Command{
	Use:   "skills",
	Short: "Inspect registry skills and MCP servers",
}

var skillsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every registered skill",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			skills, err := rt.Services.Registry.ListSkills(rt.Ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatSkills(skills))

			servers, err := rt.Services.Registry.ListServers(rt.Ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatServers(servers))
			return nil
		})
	},
}

func formatSkills(skills []skill.Skill) string {
	rows := make([][]string, 0, len(skills))
	for _, s := range skills {
		rows = append(rows, []string{
			truncateString(s.Name, 30),
			string(s.Type),
			string(s.Status),
			yesNo(s.Approved),
			yesNo(s.Eligible()),
		})
	}
	return renderTable("No skills registered", []string{"Name", "Type", "Status", "Approved", "Exposed"}, rows)
}

func formatServers(servers []skill.MCPServer) string {
	rows := make([][]string, 0, len(servers))
	for _, m := range servers {
		health := m.HealthStatus
		if health == "" {
			health = "unknown"
		}
		rows = append(rows, []string{
			truncateString(m.Name, 30),
			truncateString(m.URL, 40),
			yesNo(m.Enabled),
			yesNo(m.Approved),
			health,
			fmt.Sprintf("%d", m.ToolCount),
		})
	}
	return renderTable("No MCP servers registered", []string{"Server", "URL", "Enabled", "Approved", "Health", "Tools"}, rows)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func joinNonEmpty(parts ...string) string {
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func init() {
	rootCmd.AddCommand(skillsCmd)
	skillsCmd.AddCommand(skillsListCmd)
}
