package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	awspkg "github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/cluster"
	"github.com/emrpipe/emrpipe/internal/lock"
	"github.com/emrpipe/emrpipe/internal/rollback"
	"github.com/emrpipe/emrpipe/internal/state"
)

var (
	rollbackConfirm     bool
	rollbackSkipCluster bool
	rollbackSkipOutput  bool
	rollbackKeepState   bool
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Terminate the tracked cluster and delete job output",
	Long: `Terminate the cluster recorded in the state file, delete the output
prefix of the bucket and reset the state. Nothing is rolled back
automatically; this command is the manual cleanup.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !rollbackConfirm {
			fmt.Println("Rollback requires --confirm to proceed.")
			fmt.Println("This will TERMINATE the tracked cluster and DELETE the job output.")
			return nil
		}

		e, err := setup()
		if err != nil {
			return err
		}
		lk, err := lock.Acquire("")
		if err != nil {
			return err
		}
		defer lk.Release()

		pc, err := state.Load(stateFile)
		if err != nil {
			return fmt.Errorf("loading state: %w", err)
		}
		logger := e.logger.With("run_id", pc.RunID)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		awsCfg, err := e.awsConfig(ctx)
		if err != nil {
			return err
		}
		clusters := cluster.New(awspkg.NewEMRService(awsCfg), cluster.Options{Logger: logger})
		rb := rollback.New(clusters, awspkg.NewS3Storage(awsCfg), e.cfg.S3.Bucket, e.cfg.S3.OutputPrefix, logger)

		result, next := rb.Execute(ctx, pc, rollback.Options{
			SkipCluster: rollbackSkipCluster,
			SkipOutput:  rollbackSkipOutput,
			KeepState:   rollbackKeepState,
		})

		if result.ClusterTerminated != "" {
			fmt.Printf("Cluster %s termination requested.\n", result.ClusterTerminated)
		}
		if result.OutputDeleted != "" {
			fmt.Printf("Deleted %s\n", result.OutputDeleted)
		}
		if result.StateReset {
			fmt.Println("State reset.")
		}
		if err := next.Save(stateFile); err != nil {
			return err
		}
		if len(result.Errors) > 0 {
			fmt.Println("Errors during rollback:")
			for _, msg := range result.Errors {
				fmt.Printf("  - %s\n", msg)
			}
			return fmt.Errorf("rollback incomplete (%d errors)", len(result.Errors))
		}
		return nil
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackConfirm, "confirm", false, "perform the rollback")
	rollbackCmd.Flags().BoolVar(&rollbackSkipCluster, "skip-cluster", false, "leave the cluster running")
	rollbackCmd.Flags().BoolVar(&rollbackSkipOutput, "skip-output", false, "keep the job output")
	rollbackCmd.Flags().BoolVar(&rollbackKeepState, "keep-state", false, "do not reset the state file")
	rootCmd.AddCommand(rollbackCmd)
}
