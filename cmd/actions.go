package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/emrpipe/emrpipe/internal/pipeline"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the pipeline actions",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(titleStyle.Render("Actions"))
		for _, a := range pipeline.Actions() {
			fmt.Printf("  %s %s\n", nameStyle.Render(a.Name), a.Description)
		}
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
}
