package rollback

import (
	"context"
	"errors"
	"testing"

	"github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/cluster"
	"github.com/emrpipe/emrpipe/internal/logging"
	"github.com/emrpipe/emrpipe/internal/state"
)

func newClusters(svc *aws.MockClusterService) *cluster.Client {
	return cluster.New(svc, cluster.Options{Logger: logging.Discard()})
}

func TestFullRollback(t *testing.T) {
	svc := &aws.MockClusterService{}
	store := aws.NewMockStorage()
	pc := state.New().Advance("launch_emr", state.StageClusterWaiting)
	pc.ClusterID = "j-ABC123"
	pc.Bucket = "bucket"

	rb := New(newClusters(svc), store, "other", "output/", logging.Discard())
	result, next := rb.Execute(context.Background(), pc, Options{})

	if result.ClusterTerminated != "j-ABC123" || len(svc.Terminated) != 1 {
		t.Errorf("cluster should be terminated, got %q %v", result.ClusterTerminated, svc.Terminated)
	}
	if result.OutputDeleted != "s3://bucket/output/" {
		t.Errorf("output deleted = %q", result.OutputDeleted)
	}
	if len(store.DeletedPrefixes) != 1 || store.DeletedPrefixes[0] != "bucket/output/" {
		t.Errorf("deleted prefixes = %v", store.DeletedPrefixes)
	}
	if !result.StateReset || next.RunID == pc.RunID || next.ClusterID != "" {
		t.Errorf("state should be reset, got %+v", next)
	}
	if len(result.Errors) != 0 {
		t.Errorf("expected no errors, got %v", result.Errors)
	}
}

func TestRollback_AlreadyTerminated(t *testing.T) {
	svc := &aws.MockClusterService{}
	pc := state.New().Advance("terminate_emr", state.StageClusterTerminated)
	pc.ClusterID = "j-1"

	result, _ := New(newClusters(svc), nil, "b", "output/", logging.Discard()).Execute(context.Background(), pc, Options{})
	if len(svc.Terminated) != 0 || result.ClusterTerminated != "" {
		t.Errorf("terminated cluster should not be terminated again: %v", svc.Terminated)
	}
}

func TestRollback_ErrorsKeepState(t *testing.T) {
	svc := &aws.MockClusterService{TerminateErr: errors.New("access denied")}
	store := aws.NewMockStorage()
	store.DeleteErr = errors.New("no such bucket")
	pc := state.New()
	pc.ClusterID = "j-1"

	result, next := New(newClusters(svc), store, "b", "output/", logging.Discard()).Execute(context.Background(), pc, Options{})
	if len(result.Errors) != 2 {
		t.Errorf("expected 2 errors, got %v", result.Errors)
	}
	if result.StateReset || next.ClusterID != "j-1" || next.RunID != pc.RunID {
		t.Errorf("state should be kept after failures: %+v", next)
	}
}

func TestRollback_Skips(t *testing.T) {
	svc := &aws.MockClusterService{}
	store := aws.NewMockStorage()
	pc := state.New()
	pc.ClusterID = "j-1"

	result, next := New(newClusters(svc), store, "b", "output/", logging.Discard()).
		Execute(context.Background(), pc, Options{SkipCluster: true, SkipOutput: true, KeepState: true})
	if len(svc.Terminated) != 0 || len(store.DeletedPrefixes) != 0 {
		t.Error("nothing should be touched")
	}
	if result.StateReset || next.RunID != pc.RunID {
		t.Error("state should be kept")
	}
}
