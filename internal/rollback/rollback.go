// Package rollback cleans up the remote resources a pipeline run left
// behind. It only runs when asked to.
package rollback

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/cluster"
	"github.com/emrpipe/emrpipe/internal/state"
)

// Terminator ends a cluster.
type Terminator interface {
	Terminate(ctx context.Context, c cluster.Handle) error
}

// Rollback orchestrates cleanup of a pipeline run.
type Rollback struct {
	clusters Terminator
	storage  aws.Storage
	bucket   string
	output   string
	logger   *slog.Logger
}

// Options controls what gets rolled back.
type Options struct {
	SkipCluster bool
	SkipOutput  bool
	KeepState   bool
}

// Result holds the outcome of a rollback.
type Result struct {
	ClusterTerminated string   `yaml:"cluster_terminated,omitempty"`
	OutputDeleted     string   `yaml:"output_deleted,omitempty"`
	StateReset        bool     `yaml:"state_reset"`
	Errors            []string `yaml:"errors,omitempty"`
}

// New creates a rollback for the output prefix of bucket.
func New(clusters Terminator, storage aws.Storage, bucket, outputPrefix string, logger *slog.Logger) *Rollback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Rollback{clusters: clusters, storage: storage, bucket: bucket, output: outputPrefix, logger: logger}
}

// Execute performs the rollback and returns the context to persist. Each
// step runs even if a prior one fails; the context is only reset when
// every step succeeded.
func (r *Rollback) Execute(ctx context.Context, pc state.Pipeline, opts Options) (*Result, state.Pipeline) {
	result := &Result{}

	if !opts.SkipCluster && r.clusters != nil && pc.ClusterID != "" && pc.Stage != state.StageClusterTerminated {
		if err := r.clusters.Terminate(ctx, cluster.Handle(pc.ClusterID)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("terminating cluster: %v", err))
		} else {
			result.ClusterTerminated = pc.ClusterID
			pc = pc.Advance("rollback", state.StageClusterTerminated)
		}
	}

	bucket := pc.Bucket
	if bucket == "" {
		bucket = r.bucket
	}
	if !opts.SkipOutput && r.storage != nil && bucket != "" && r.output != "" {
		if err := r.storage.DeletePrefix(ctx, bucket, r.output); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("deleting output: %v", err))
		} else {
			result.OutputDeleted = fmt.Sprintf("s3://%s/%s", bucket, r.output)
		}
	}

	if len(result.Errors) == 0 && !opts.KeepState {
		r.logger.Info("pipeline state reset", "run_id", pc.RunID)
		pc = pc.Reset()
		result.StateReset = true
	}
	return result, pc
}
