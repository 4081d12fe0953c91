package cluster

import (
	"context"
	"log/slog"
	"time"

	"github.com/emrpipe/emrpipe/internal/aws"
)

// Poller waits for steps to reach a terminal state.
type Poller struct {
	svc      aws.ClusterService
	interval time.Duration
	logger   *slog.Logger
	sleep    func(context.Context, time.Duration) error
}

// NewPoller creates a poller that re-queries every interval.
func NewPoller(svc aws.ClusterService, interval time.Duration, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{svc: svc, interval: interval, logger: logger, sleep: sleep}
}

// State reads the current state of step. A step missing from the cluster's
// step list is NOT_FOUND; a failed query is ERROR and the error is returned.
func (p *Poller) State(ctx context.Context, cluster Handle, step StepHandle) (StepState, error) {
	steps, err := p.svc.ListSteps(ctx, string(cluster))
	if err != nil {
		return StepError, err
	}
	for _, s := range steps {
		if s.ID == string(step) {
			return stepStateFromRemote(s.State), nil
		}
	}
	return StepNotFound, nil
}

// AwaitTerminal blocks until step reaches a terminal state. There is no
// iteration bound; cancel ctx to give up, which yields ERROR.
func (p *Poller) AwaitTerminal(ctx context.Context, cluster Handle, step StepHandle) StepState {
	state, _ := p.await(ctx, cluster, step)
	return state
}

func (p *Poller) await(ctx context.Context, cluster Handle, step StepHandle) (StepState, error) {
	for poll := 1; ; poll++ {
		state, err := p.State(ctx, cluster, step)
		attrs := []any{"cluster", cluster, "step", step, "state", state, "poll", poll}
		if err != nil {
			p.logger.Warn("step poll failed", append(attrs, "error", err)...)
		} else {
			p.logger.Info("step poll", attrs...)
		}
		if state.Terminal() {
			return state, err
		}
		if err := p.sleep(ctx, p.interval); err != nil {
			p.logger.Warn("step poll cancelled", "cluster", cluster, "step", step, "error", err)
			return StepError, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
