package state

import (
	"path/filepath"
	"testing"
)

func TestLoad_Missing(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "state.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Stage != StageInit || p.RunID == "" {
		t.Errorf("expected fresh state, got %+v", p)
	}
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.yaml")
	p := New().Advance("launch_emr", StageClusterWaiting)
	p.ClusterID = "j-ABC"
	p = p.WithAsset("s3://b/scripts/mapper.py", "mapreduce/mapper.py")

	if err := p.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.RunID != p.RunID || got.ClusterID != "j-ABC" || got.Stage != StageClusterWaiting {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.Assets["s3://b/scripts/mapper.py"] != "mapreduce/mapper.py" {
		t.Errorf("assets = %v", got.Assets)
	}
	if len(got.History) != 1 || got.History[0].Action != "launch_emr" {
		t.Errorf("history = %v", got.History)
	}
}

func TestValueSemantics(t *testing.T) {
	a := New().WithAsset("s3://b/x", "x")
	b := a.WithAsset("s3://b/y", "y").Advance("upload_jar", StageAssetsUploaded)

	if len(a.Assets) != 1 || len(a.History) != 0 || a.Stage != StageInit {
		t.Errorf("original context modified: %+v", a)
	}
	if len(b.Assets) != 2 || b.Stage != StageAssetsUploaded {
		t.Errorf("updated context wrong: %+v", b)
	}
	if r := b.Reset(); r.RunID == b.RunID || r.Stage != StageInit {
		t.Errorf("reset kept run: %+v", r)
	}
}
