package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	awspkg "github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/upload"
)

var (
	putBucket      string
	putHost        string
	putInsecure    bool
	putWalk        string
	putMode        string
	putPrefix      string
	putResume      []string
	putLimit       int
	putProcesses   int
	putContentType string
	putGzip        bool
	putHeaders     []string
	putGrant       string
	putDryRun      bool
	putMetricsFile string
)

var putCmd = &cobra.Command{
	Use:   "put SOURCE...",
	Short: "Upload many files to a bucket in parallel",
	Long: `Walk each SOURCE (a directory, a file, or with --walk tar an archive)
and upload every file with a pool of workers. Transient transport errors
put the file back on the queue.

Every upload is logged as "<path> -> <key>"; pass such a log to --resume
to skip keys already uploaded.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		opts, err := putOptions(e.cfg.S3.Bucket)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var store awspkg.ObjectStore
		if putHost != "" {
			store, err = awspkg.NewMinioStorage(awspkg.MinioConfig{
				Endpoint:  putHost,
				AccessKey: e.cfg.AWS.AccessKey,
				SecretKey: e.cfg.AWS.SecretKey,
				Region:    e.cfg.AWS.Region,
				UseSSL:    !putInsecure,
			})
			if err != nil {
				return err
			}
		} else {
			awsCfg, err := e.awsConfig(ctx)
			if err != nil {
				return err
			}
			store = awspkg.NewS3Storage(awsCfg)
		}

		ok, err := store.BucketExists(ctx, opts.Bucket)
		if err != nil {
			return fmt.Errorf("checking bucket %s: %w", opts.Bucket, err)
		}
		if !ok {
			return fmt.Errorf("bucket %s does not exist", opts.Bucket)
		}

		u := upload.New(store, opts, e.logger)
		_, runErr := u.Run(ctx, args)
		if putMetricsFile != "" {
			if err := u.Stats().WriteTextfile(putMetricsFile); err != nil {
				e.logger.Warn("could not write metrics", "file", putMetricsFile, "error", err)
			}
		}
		return runErr
	},
}

func putOptions(defaultBucket string) (upload.Options, error) {
	opts := upload.Options{
		Bucket:      putBucket,
		Prefix:      putPrefix,
		Workers:     putProcesses,
		Limit:       putLimit,
		ContentType: putContentType,
		Gzip:        putGzip,
		Grant:       putGrant,
		DryRun:      putDryRun,
	}
	if opts.Bucket == "" {
		opts.Bucket = defaultBucket
	}
	if opts.Bucket == "" {
		return opts, fmt.Errorf("missing bucket")
	}

	var err error
	if opts.Mode, err = upload.ParseMode(putMode); err != nil {
		return opts, err
	}
	if opts.Walk, err = upload.WalkerFor(putWalk); err != nil {
		return opts, err
	}
	if opts.Headers, err = upload.ParseHeaders(putHeaders); err != nil {
		return opts, err
	}
	if err := upload.ValidateGrant(putGrant); err != nil {
		return opts, err
	}
	if len(putResume) > 0 {
		if opts.Done, err = upload.LoadResume(putResume); err != nil {
			return opts, err
		}
	}
	return opts, nil
}

func init() {
	f := putCmd.Flags()
	f.StringVar(&putBucket, "bucket", "", "target bucket (default: s3.bucket)")
	f.StringVar(&putHost, "host", "", "S3-compatible endpoint host[:port] (default: AWS S3)")
	f.BoolVar(&putInsecure, "insecure", false, "use plain HTTP with --host")
	f.StringVar(&putWalk, "walk", "filesystem", "walk mode (filesystem or tar)")
	f.StringVar(&putMode, "put", "update", "put mode (add, stupid or update)")
	f.StringVar(&putPrefix, "prefix", "", "key prefix")
	f.StringArrayVar(&putResume, "resume", nil, "skip keys reported done in this log file (repeatable)")
	f.IntVar(&putLimit, "limit", 0, "maximum number of keys to put")
	f.IntVar(&putProcesses, "processes", upload.DefaultWorkers, "number of upload workers")
	f.StringVar(&putContentType, "content-type", "", `content type, or "guess" to derive it from the file name`)
	f.BoolVar(&putGzip, "gzip", false, "gzip content and set Content-Encoding")
	f.StringArrayVar(&putHeaders, "header", nil, "extra header NAME:VALUE (repeatable)")
	f.StringVar(&putGrant, "grant", "", "canned ACL applied to each object")
	f.BoolVar(&putDryRun, "dry-run", false, "walk and compare but do not write")
	f.StringVar(&putMetricsFile, "metrics-file", "", "write upload metrics in Prometheus textfile format")
	rootCmd.AddCommand(putCmd)
}
