// Package state persists the pipeline context between invocations.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/emrpipe/emrpipe/internal/config"
)

const DefaultPath = "~/.emrpipe/state.yaml"

// Stage is a point in the pipeline state machine.
type Stage string

const (
	StageInit              Stage = "INIT"
	StageBucketReady       Stage = "BUCKET_READY"
	StageAssetsUploaded    Stage = "ASSETS_UPLOADED"
	StageClusterWaiting    Stage = "CLUSTER_WAITING"
	StageStepTerminal      Stage = "STEP_TERMINAL"
	StageClusterTerminated Stage = "CLUSTER_TERMINATED"
	StageWarehouseLoaded   Stage = "WAREHOUSE_LOADED"
)

// Pipeline is the context threaded through the actions of a run.
type Pipeline struct {
	RunID       string            `yaml:"run_id"`
	Stage       Stage             `yaml:"stage"`
	Bucket      string            `yaml:"bucket,omitempty"`
	ClusterID   string            `yaml:"cluster_id,omitempty"`
	StepID      string            `yaml:"step_id,omitempty"`
	StepState   string            `yaml:"step_state,omitempty"`
	Assets      map[string]string `yaml:"assets,omitempty"` // object URI -> local path
	LoadedRows  int64             `yaml:"loaded_rows,omitempty"`
	History     []Transition      `yaml:"history,omitempty"`
	StartedAt   time.Time         `yaml:"started_at"`
	LastUpdated time.Time         `yaml:"last_updated"`
}

// Transition records one completed action.
type Transition struct {
	Action string    `yaml:"action"`
	Stage  Stage     `yaml:"stage"`
	At     time.Time `yaml:"at"`
}

// New creates a fresh pipeline context with a new run id.
func New() Pipeline {
	now := time.Now()
	return Pipeline{
		RunID:       uuid.NewString(),
		Stage:       StageInit,
		StartedAt:   now,
		LastUpdated: now,
	}
}

// Load reads the pipeline context from disk, or starts a new one.
func Load(path string) (Pipeline, error) {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return Pipeline{}, fmt.Errorf("reading state: %w", err)
	}

	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Pipeline{}, fmt.Errorf("parsing state: %w", err)
	}
	if p.RunID == "" {
		p.RunID = uuid.NewString()
	}
	if p.Stage == "" {
		p.Stage = StageInit
	}
	return p, nil
}

// Save writes the pipeline context to disk.
func (p Pipeline) Save(path string) error {
	if path == "" {
		path = config.ExpandHome(DefaultPath)
	}

	p.LastUpdated = time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Advance returns a copy of p moved to stage by action.
func (p Pipeline) Advance(action string, stage Stage) Pipeline {
	now := time.Now()
	p.Stage = stage
	p.LastUpdated = now
	p.History = append(append([]Transition(nil), p.History...), Transition{Action: action, Stage: stage, At: now})
	return p
}

// WithAsset returns a copy of p recording an uploaded object.
func (p Pipeline) WithAsset(uri, localPath string) Pipeline {
	assets := make(map[string]string, len(p.Assets)+1)
	for k, v := range p.Assets {
		assets[k] = v
	}
	assets[uri] = localPath
	p.Assets = assets
	return p
}

// Reset returns a fresh context that keeps nothing of p.
func (p Pipeline) Reset() Pipeline {
	return New()
}
