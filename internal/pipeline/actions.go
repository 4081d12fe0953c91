package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/emrpipe/emrpipe/internal/cluster"
	"github.com/emrpipe/emrpipe/internal/config"
	"github.com/emrpipe/emrpipe/internal/state"
	"github.com/emrpipe/emrpipe/internal/upload"
)

// Action is one named pipeline operation.
type Action struct {
	Name        string
	Description string
	Run         func(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error)
}

var registry = []Action{
	{"create_bucket", "create the pipeline bucket", createBucket},
	{"upload_files", "upload the local input files", uploadFiles},
	{"upload_mapper", "upload the streaming mapper script", uploadAsset("upload_mapper", func(c *config.Config) string { return c.Assets.Mapper })},
	{"upload_copy_to_local", "upload the copy-to-local script", uploadAsset("upload_copy_to_local", func(c *config.Config) string { return c.Assets.CopyScript })},
	{"upload_jar", "upload the map/reduce jar", uploadAsset("upload_jar", func(c *config.Config) string { return c.Assets.Jar })},
	{"launch_emr", "launch the cluster and wait until it is ready", launchCluster},
	{"copy_to_local", "run the copy-to-local script step", copyToLocal},
	{"mapreduce", "run the map/reduce step (streaming or jar)", mapReduce},
	{"terminate_emr", "request cluster termination", terminateCluster},
	{"create_redshift_table", "create the warehouse table", createTable},
	{"copy_output_to_redshift", "load the job output into the warehouse", copyOutput},
	{"delete_redshift_table", "delete every row of the warehouse table", deleteRows},
	{"drop_redshift_table", "drop the warehouse table", dropTable},
	{"vacuum_redshift", "vacuum the warehouse", vacuum},
	{"analyze_redshift", "analyze the warehouse", analyze},
	{"empty_bucket", "delete every object in the bucket", emptyBucket},
	{"delete_output", "delete the job output prefix", deleteOutput},
}

// Actions returns every known action in pipeline order.
func Actions() []Action {
	return append([]Action(nil), registry...)
}

// Lookup finds an action by name.
func Lookup(name string) (Action, bool) {
	for _, a := range registry {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

func createBucket(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	cfg := rt.Config
	if err := rt.Storage.CreateBucket(ctx, cfg.S3.Bucket, cfg.AWS.Region); err != nil {
		return pc, err
	}
	rt.Logger.Info("bucket ready", "bucket", cfg.S3.Bucket, "region", cfg.AWS.Region)
	pc.Bucket = cfg.S3.Bucket
	return pc.Advance("create_bucket", state.StageBucketReady), nil
}

func uploadFiles(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	cfg := rt.Config
	if rt.Objects == nil {
		return pc, errors.New("no object store configured for bulk upload")
	}
	u := upload.New(rt.Objects, upload.Options{
		Bucket: cfg.S3.Bucket,
		Prefix: cfg.S3.InputPrefix,
		Mode:   upload.ModeUpdate,
		Walk:   upload.Relative(upload.WalkFilesystem),
	}, rt.Logger)
	sum, err := u.Run(ctx, []string{cfg.S3.InputLocalPath})
	if err != nil {
		return pc, err
	}
	rt.Logger.Info("input uploaded", "files", sum.Files, "skipped", sum.Skipped, "bytes", sum.Bytes)
	return pc.Advance("upload_files", state.StageAssetsUploaded), nil
}

// uploadAsset uploads one local file under the scripts prefix and blocks
// on the upload's completion signal.
func uploadAsset(action string, local func(*config.Config) string) func(context.Context, *Runtime, state.Pipeline) (state.Pipeline, error) {
	return func(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
		cfg := rt.Config
		path := local(cfg)
		if path == "" {
			return pc, fmt.Errorf("%w: local asset path", config.ErrMissingSetting)
		}
		key := cfg.ScriptKey(path)

		rt.Logger.Info("uploading", "file", path, "bucket", cfg.S3.Bucket, "key", key)
		info, err := rt.Storage.Upload(ctx, cfg.S3.Bucket, key, path).Wait(ctx)
		if err != nil {
			return pc, err
		}
		rt.Logger.Info("uploaded", "key", key, "size", info.Size, "etag", info.ETag)
		return pc.WithAsset(cfg.BucketURI(key), path).Advance(action, state.StageAssetsUploaded), nil
	}
}

func launchCluster(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	emr := rt.Config.EMR
	h, err := rt.Clusters.Launch(ctx, cluster.Launch{
		MasterType:    emr.MasterType,
		WorkerType:    emr.WorkerType,
		InstanceCount: emr.InstanceCount,
		Release:       emr.Release,
	})
	if h != "" {
		pc.ClusterID = string(h)
	}
	if err != nil {
		return pc, err
	}
	return pc.Advance("launch_emr", state.StageClusterWaiting), nil
}

func copyToLocal(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	cfg := rt.Config
	spec := cluster.ScriptStep(cfg.EMR.StepName, cfg.CopyScriptPath())
	spec.ActionOnFailure = cfg.EMR.ActionOnFailure
	return runStep(ctx, rt, pc, "copy_to_local", spec)
}

func mapReduce(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	spec, err := mapReduceStep(rt.Config)
	if err != nil {
		return pc, err
	}
	return runStep(ctx, rt, pc, "mapreduce", spec)
}

func mapReduceStep(cfg *config.Config) (cluster.StepSpec, error) {
	var spec cluster.StepSpec
	switch strings.ToLower(cfg.EMR.StepType) {
	case "jar":
		spec = cluster.JarStep(cfg.EMR.StepName, cfg.JarPath(), cfg.Step.JarClass, cfg.StepInput(), cfg.StepOutput())
	case "streaming":
		spec = cluster.StreamingStep(cfg.EMR.StepName, cfg.MapperPath(), cfg.Step.Reducer, cfg.StepInput(), cfg.StepOutput())
	default:
		return spec, fmt.Errorf("unknown step type %q (want jar or streaming)", cfg.EMR.StepType)
	}
	spec.ActionOnFailure = cfg.EMR.ActionOnFailure
	return spec, nil
}

func runStep(ctx context.Context, rt *Runtime, pc state.Pipeline, action string, spec cluster.StepSpec) (state.Pipeline, error) {
	step, st, err := rt.Clusters.RunStep(ctx, cluster.Handle(pc.ClusterID), spec)
	if step != "" {
		pc.StepID = string(step)
		pc.StepState = string(st)
		pc = pc.Advance(action, state.StageStepTerminal)
	}
	if err != nil {
		return pc, err
	}
	rt.Logger.Info("step completed", "cluster", pc.ClusterID, "step", step, "kind", spec.Kind)
	return pc, nil
}

func terminateCluster(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	if err := rt.Clusters.Terminate(ctx, cluster.Handle(pc.ClusterID)); err != nil {
		return pc, err
	}
	return pc.Advance("terminate_emr", state.StageClusterTerminated), nil
}

func createTable(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	wh, err := rt.warehouse(ctx)
	if err != nil {
		return pc, err
	}
	if err := wh.CreateTable(ctx); err != nil {
		return pc, err
	}
	return pc.Advance("create_redshift_table", pc.Stage), nil
}

// copySource is the key prefix of the job's part files as the warehouse
// addresses them.
func copySource(cfg *config.Config) string {
	out := cfg.StepOutput()
	for _, scheme := range []string{"s3n://", "s3a://"} {
		if strings.HasPrefix(out, scheme) {
			out = "s3://" + strings.TrimPrefix(out, scheme)
		}
	}
	return strings.TrimSuffix(out, "/") + "/part-"
}

func copyOutput(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	cfg := rt.Config
	if rt.Credentials == nil {
		return pc, fmt.Errorf("%w: storage credentials for COPY", config.ErrMissingSetting)
	}
	creds, err := rt.Credentials(ctx)
	if err != nil {
		return pc, fmt.Errorf("resolving COPY credentials: %w", err)
	}
	wh, err := rt.warehouse(ctx)
	if err != nil {
		return pc, err
	}
	rows, err := wh.CopyFromStorage(ctx, copySource(cfg), creds, cfg.Warehouse.MaxError)
	if err != nil {
		return pc, err
	}
	rt.Logger.Info("output loaded", "table", cfg.Warehouse.Table, "rows", rows)
	pc.LoadedRows = rows
	return pc.Advance("copy_output_to_redshift", state.StageWarehouseLoaded), nil
}

func deleteRows(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	wh, err := rt.warehouse(ctx)
	if err != nil {
		return pc, err
	}
	n, err := wh.DeleteRows(ctx)
	if err != nil {
		return pc, err
	}
	rt.Logger.Info("rows deleted", "table", rt.Config.Warehouse.Table, "rows", n)
	return pc.Advance("delete_redshift_table", pc.Stage), nil
}

func dropTable(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	wh, err := rt.warehouse(ctx)
	if err != nil {
		return pc, err
	}
	if err := wh.DropTable(ctx); err != nil {
		return pc, err
	}
	return pc.Advance("drop_redshift_table", pc.Stage), nil
}

func vacuum(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	wh, err := rt.warehouse(ctx)
	if err != nil {
		return pc, err
	}
	if err := wh.Vacuum(ctx); err != nil {
		return pc, err
	}
	return pc.Advance("vacuum_redshift", pc.Stage), nil
}

func analyze(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	wh, err := rt.warehouse(ctx)
	if err != nil {
		return pc, err
	}
	if err := wh.Analyze(ctx); err != nil {
		return pc, err
	}
	return pc.Advance("analyze_redshift", pc.Stage), nil
}

func emptyBucket(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	if err := rt.Storage.EmptyBucket(ctx, rt.Config.S3.Bucket); err != nil {
		return pc, err
	}
	return pc.Advance("empty_bucket", pc.Stage), nil
}

func deleteOutput(ctx context.Context, rt *Runtime, pc state.Pipeline) (state.Pipeline, error) {
	cfg := rt.Config
	if err := rt.Storage.DeletePrefix(ctx, cfg.S3.Bucket, cfg.S3.OutputPrefix); err != nil {
		return pc, err
	}
	return pc.Advance("delete_output", pc.Stage), nil
}
