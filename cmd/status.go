package cmd

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/emrpipe/emrpipe/internal/lock"
	"github.com/emrpipe/emrpipe/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted pipeline state",
	RunE: func(cmd *cobra.Command, args []string) error {
		pc, err := state.Load(stateFile)
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}

		fmt.Println(titleStyle.Render("Pipeline " + pc.RunID))
		fmt.Println(field("stage", string(pc.Stage)))
		fmt.Println(field("bucket", pc.Bucket))
		fmt.Println(field("cluster", pc.ClusterID))
		step := pc.StepID
		if step != "" {
			step += " " + stepStyle(pc.StepState)
		}
		fmt.Println(field("step", step))
		if pc.LoadedRows > 0 {
			fmt.Println(field("loaded rows", strconv.FormatInt(pc.LoadedRows, 10)))
		}
		fmt.Println(field("started", pc.StartedAt.Format("2006-01-02 15:04:05")))
		fmt.Println(field("updated", pc.LastUpdated.Format("2006-01-02 15:04:05")))

		if pid, running, _ := lock.Holder(""); running {
			fmt.Println(field("running", fmt.Sprintf("PID %d", pid)))
		}

		if len(pc.Assets) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("Assets"))
			uris := make([]string, 0, len(pc.Assets))
			for uri := range pc.Assets {
				uris = append(uris, uri)
			}
			sort.Strings(uris)
			for _, uri := range uris {
				fmt.Printf("  %s %s\n", uri, dimStyle.Render("<- "+pc.Assets[uri]))
			}
		}

		if len(pc.History) > 0 {
			fmt.Println()
			fmt.Println(titleStyle.Render("History"))
			for _, t := range pc.History {
				fmt.Printf("  %s %s %s\n", dimStyle.Render(t.At.Format("15:04:05")), nameStyle.Render(t.Action), t.Stage)
			}
		}
		return nil
	},
}

func stepStyle(s string) string {
	switch s {
	case "COMPLETED":
		return okStyle.Render(s)
	case "FAILED", "NOT_FOUND", "ERROR":
		return failStyle.Render(s)
	}
	return dimStyle.Render(s)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
