package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/emrpipe/emrpipe/internal/logging"
	"github.com/emrpipe/emrpipe/internal/transform"
)

var transformCmd = &cobra.Command{
	Use:   "transform [FILE...]",
	Short: "Convert availability log lines into warehouse records",
	Long: `Read availability log lines from the given files (or stdin) and write
"request_date|destinations|days_advance|hotels_returned" records to stdout.
Lines that do not parse are dropped. Usable as a streaming mapper.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New(os.Stderr, logLevel)

		var in io.Reader = os.Stdin
		if len(args) > 0 {
			readers := make([]io.Reader, 0, len(args))
			for _, p := range args {
				f, err := os.Open(p)
				if err != nil {
					return err
				}
				defer f.Close()
				readers = append(readers, f)
			}
			in = io.MultiReader(readers...)
		}

		st, err := transform.Run(in, os.Stdout)
		if err != nil {
			return fmt.Errorf("transform: %w", err)
		}
		logger.Debug("transform finished", "read", st.Read, "written", st.Written, "dropped", st.Dropped())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)
}
