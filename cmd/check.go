package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	awspkg "github.com/emrpipe/emrpipe/internal/aws"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify AWS credentials, EMR permissions and the bucket",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		e := &env{cfg: cfg}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		awsCfg, err := e.awsConfig(ctx)
		if err != nil {
			return err
		}
		r, err := awspkg.RunPreflight(ctx, awspkg.NewIdentity(awsCfg), awspkg.NewS3Storage(awsCfg), cfg.S3.Bucket)
		if err != nil {
			return err
		}

		fmt.Println(titleStyle.Render("AWS access"))
		if r.Caller != nil {
			fmt.Println(field("account", r.Caller.Account))
			fmt.Println(field("arn", r.Caller.ARN))
		}
		fmt.Println(field("region", cfg.AWS.Region))
		fmt.Println(field("credentials", mark(r.Credentials, "OK", "FAILED")))
		fmt.Println(field("emr", mark(r.EMRAccess, "OK", "DENIED")))
		fmt.Println(field("bucket", cfg.S3.Bucket+" "+mark(r.BucketExists, "exists", "missing")))
		for _, msg := range r.Errors {
			fmt.Println("  " + failStyle.Render(msg))
		}
		if !r.OK() {
			return fmt.Errorf("preflight failed (%d errors)", len(r.Errors))
		}
		return nil
	},
}

func mark(ok bool, yes, no string) string {
	if ok {
		return okStyle.Render(yes)
	}
	return failStyle.Render(no)
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
