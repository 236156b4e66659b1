package main

import (
	"fmt"
	"time"

	"github.com/clawsync/clawsync/cmd/clawsync/runtime"

	"github.com/clawsync/clawsync/internal/audit"

	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Read the skill invocation log",
}

var auditTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the most recent invocations",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		skillName, _ := cmd.Flags().GetString("skill")
		blocked, _ := cmd.Flags().GetBool("blocked")

		filter := audit.Filter{SkillName: skillName, Limit: limit}
		if blocked {
			filter.SecurityCheckResult = "blocked"
		}

		return executeWithRuntime(cmd, func(rt *runtime.Runtime) error {
			records, err := rt.Services.Audit.Query(rt.Ctx, filter)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatRecords(records))
			return nil
		})
	},
}

func formatRecords(records []audit.Record) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		status := "ok"
		if !r.Success {
			status = "failed"
		}
		rows = append(rows, []string{
			r.Timestamp.Local().Format(time.DateTime),
			truncateString(r.SkillName, 24),
			joinNonEmpty(r.SkillType, r.MCPServer),
			r.SecurityCheckResult,
			status,
			fmt.Sprintf("%dms", r.DurationMs),
			truncateString(r.Channel, 10),
			truncateString(r.ErrorMessage, 40),
		})
	}
	return renderTable("No invocations recorded", []string{"Time", "Skill", "Type", "Gate", "Result", "Duration", "Channel", "Error"}, rows)
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditTailCmd.Flags().Int("limit", 20, "number of records to show")
	auditTailCmd.Flags().String("skill", "", "only show this skill")
	auditTailCmd.Flags().Bool("blocked", false, "only show invocations the security gate blocked")
}
