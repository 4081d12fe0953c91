package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	awspkg "github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/cluster"
	"github.com/emrpipe/emrpipe/internal/lock"
	"github.com/emrpipe/emrpipe/internal/pipeline"
	"github.com/emrpipe/emrpipe/internal/state"
	"github.com/emrpipe/emrpipe/internal/warehouse"
)

var (
	cfgFile   string
	stateFile string
	logLevel  string
	overrides []string
	version   = "dev"
	commit    = "none"
	date      = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "emrpipe [action...]",
	Short: "Batch pipeline driver for S3, EMR and Redshift",
	Long: `emrpipe stages input files in S3, runs a map/reduce step on an
ephemeral EMR cluster and loads the output into Redshift.

Each argument names an action; actions run in the order given and
unknown names are ignored. Run "emrpipe actions" for the list.`,
	Example: `  emrpipe create_bucket upload_files upload_jar launch_emr mapreduce terminate_emr
  emrpipe create_redshift_table copy_output_to_redshift vacuum_redshift analyze_redshift`,
	Args:          cobra.ArbitraryArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runActions,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit %s, built %s)", version, commit, date)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.emrpipe/emrpipe.yaml)")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state", "", "pipeline state file (default: ~/.emrpipe/state.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringArrayVar(&overrides, "set", nil, "override a setting, e.g. --set emr.instance_count=4 (repeatable)")
}

func runActions(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	e, err := setup()
	if err != nil {
		return err
	}
	cfg := e.cfg

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	awsCfg, err := e.awsConfig(ctx)
	if err != nil {
		return err
	}
	s3 := awspkg.NewS3Storage(awsCfg)
	clusters := cluster.New(awspkg.NewEMRService(awsCfg), cluster.Options{
		Name:                cfg.EMR.ClusterName,
		Region:              cfg.AWS.Region,
		Release:             cfg.EMR.Release,
		LogURI:              cfg.LogURI(),
		KeyPair:             cfg.EMR.KeyPair,
		JobFlowRole:         cfg.EMR.JobFlowRole,
		ServiceRole:         cfg.EMR.ServiceRole,
		Tags:                map[string]string{"emrpipe:run-id": pc.RunID},
		ClusterPollInterval: seconds(cfg.EMR.ClusterPollSeconds),
		StepPollInterval:    seconds(cfg.EMR.StepPollSeconds),
		Logger:              logger,
	})

	rt := &pipeline.Runtime{
		Config:   cfg,
		Storage:  s3,
		Objects:  s3,
		Clusters: clusters,
		Warehouse: func(ctx context.Context) (pipeline.Warehouse, error) {
			wh, err := warehouse.Connect(ctx, e.warehouseSettings(), cfg.Warehouse.Table, logger)
			if err != nil {
				return nil, err
			}
			return wh, nil
		},
		Credentials: e.copyCredentials(awsCfg),
		Logger:      logger,
	}
	defer rt.Close()

	driver := pipeline.NewDriver(rt, func(p state.Pipeline) error { return p.Save(stateFile) })
	_, err = driver.Run(ctx, pc, args)
	return err
}
