// Package pipeline maps action names to single remote operations and runs
// them in the order given, threading the pipeline context through each.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/cluster"
	"github.com/emrpipe/emrpipe/internal/config"
	"github.com/emrpipe/emrpipe/internal/state"
	"github.com/emrpipe/emrpipe/internal/warehouse"
)

// Clusters is the cluster lifecycle used by the actions.
type Clusters interface {
	Launch(ctx context.Context, l cluster.Launch) (cluster.Handle, error)
	RunStep(ctx context.Context, c cluster.Handle, spec cluster.StepSpec) (cluster.StepHandle, cluster.StepState, error)
	Terminate(ctx context.Context, c cluster.Handle) error
}

// Warehouse is the load target used by the actions.
type Warehouse interface {
	CreateTable(ctx context.Context) error
	CopyFromStorage(ctx context.Context, source string, creds warehouse.Credentials, maxError int) (int64, error)
	DeleteRows(ctx context.Context) (int64, error)
	DropTable(ctx context.Context) error
	Vacuum(ctx context.Context) error
	Analyze(ctx context.Context) error
	Close()
}

// Runtime holds the clients shared by every action of a run. Warehouse
// and Credentials are called lazily, the first time an action needs them.
type Runtime struct {
	Config      *config.Config
	Storage     aws.Storage
	Objects     aws.ObjectStore
	Clusters    Clusters
	Warehouse   func(ctx context.Context) (Warehouse, error)
	Credentials func(ctx context.Context) (warehouse.Credentials, error)
	Logger      *slog.Logger

	wh Warehouse
}

func (rt *Runtime) warehouse(ctx context.Context) (Warehouse, error) {
	if rt.wh != nil {
		return rt.wh, nil
	}
	if rt.Warehouse == nil {
		return nil, fmt.Errorf("%w: warehouse connection", config.ErrMissingSetting)
	}
	wh, err := rt.Warehouse(ctx)
	if err != nil {
		return nil, err
	}
	rt.wh = wh
	return wh, nil
}

// Close releases the warehouse connection, if one was opened.
func (rt *Runtime) Close() {
	if rt.wh != nil {
		rt.wh.Close()
		rt.wh = nil
	}
}

// Driver runs actions in caller order.
type Driver struct {
	rt   *Runtime
	save func(state.Pipeline) error
}

// NewDriver creates a driver. save, if set, persists the context after
// every action, including a failed one.
func NewDriver(rt *Runtime, save func(state.Pipeline) error) *Driver {
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	return &Driver{rt: rt, save: save}
}

// Run executes each known action of names in order and returns the final
// context. Unknown names are skipped. Ordering and prerequisites are not
// checked; the first failing action stops the run.
func (d *Driver) Run(ctx context.Context, pc state.Pipeline, names []string) (state.Pipeline, error) {
	logger := d.rt.Logger
	for _, name := range names {
		act, ok := Lookup(name)
		if !ok {
			logger.Debug("ignoring unknown action", "action", name)
			continue
		}

		logger.Info("action started", "action", name, "stage", pc.Stage)
		start := time.Now()
		next, err := act.Run(ctx, d.rt, pc)
		pc = next
		if d.save != nil {
			if serr := d.save(pc); serr != nil {
				logger.Warn("could not save pipeline state", "action", name, "error", serr)
			}
		}
		if err != nil {
			logger.Error("action failed", "action", name, "error", err)
			return pc, fmt.Errorf("%s: %w", name, err)
		}
		logger.Info("action completed", "action", name, "stage", pc.Stage,
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
	return pc, nil
}
