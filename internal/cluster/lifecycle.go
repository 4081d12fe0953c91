// Package cluster drives an ephemeral map/reduce cluster: launch, step
// submission, step polling and termination.
package cluster

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emrpipe/emrpipe/internal/aws"
)

const (
	defaultClusterPoll = 20 * time.Second
	defaultStepPoll    = 20 * time.Second
)

// Options holds the settings shared by every launch and step.
type Options struct {
	Name                string
	Region              string
	Release             string // release of the clusters steps are submitted to
	LogURI              string
	KeyPair             string
	JobFlowRole         string
	ServiceRole         string
	Tags                map[string]string
	ClusterPollInterval time.Duration
	StepPollInterval    time.Duration
	Logger              *slog.Logger
}

// Launch describes the instances of a new cluster.
type Launch struct {
	MasterType    string
	WorkerType    string
	InstanceCount int
	Release       string
}

// Client manages clusters through a ClusterService.
type Client struct {
	svc    aws.ClusterService
	opts   Options
	logger *slog.Logger
	poller *Poller
	sleep  func(context.Context, time.Duration) error
}

// New creates a cluster client.
func New(svc aws.ClusterService, opts Options) *Client {
	if opts.ClusterPollInterval <= 0 {
		opts.ClusterPollInterval = defaultClusterPoll
	}
	if opts.StepPollInterval <= 0 {
		opts.StepPollInterval = defaultStepPoll
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		svc:    svc,
		opts:   opts,
		logger: logger,
		poller: NewPoller(svc, opts.StepPollInterval, logger),
		sleep:  sleep,
	}
}

// Poller returns the step poller used by RunStep.
func (c *Client) Poller() *Poller { return c.poller }

// Launch starts a cluster and polls it until it is WAITING, returning its
// handle. SHUTTING_DOWN, FAILED, COMPLETED or a transport error yield a
// *LaunchError.
func (c *Client) Launch(ctx context.Context, l Launch) (Handle, error) {
	id, err := c.svc.RunCluster(ctx, aws.LaunchRequest{
		Name:          c.opts.Name,
		LogURI:        c.opts.LogURI,
		KeyPair:       c.opts.KeyPair,
		MasterType:    l.MasterType,
		WorkerType:    l.WorkerType,
		InstanceCount: l.InstanceCount,
		Release:       l.Release,
		JobFlowRole:   c.opts.JobFlowRole,
		ServiceRole:   c.opts.ServiceRole,
		Tags:          c.opts.Tags,
	})
	if err != nil {
		return "", &LaunchError{Err: err}
	}
	cluster := Handle(id)
	c.logger.Info("cluster launch requested", "cluster", cluster, "master", l.MasterType,
		"worker", l.WorkerType, "instances", l.InstanceCount, "release", l.Release)

	for poll := 1; ; poll++ {
		st, err := c.svc.DescribeCluster(ctx, id)
		if err != nil {
			return cluster, &LaunchError{Cluster: cluster, Err: err}
		}
		state := clusterStateFromRemote(st.State)
		c.logger.Info("cluster poll", "cluster", cluster, "state", state, "poll", poll)

		if state == ClusterWaiting {
			c.logger.Info("cluster ready", "cluster", cluster, "master_dns", st.MasterDNS)
			return cluster, nil
		}
		if state.Terminal() {
			return cluster, &LaunchError{Cluster: cluster, State: state, Reason: st.Reason}
		}
		if err := c.sleep(ctx, c.opts.ClusterPollInterval); err != nil {
			return cluster, &LaunchError{Cluster: cluster, State: state, Err: err}
		}
	}
}

// Submit adds one step to cluster and returns its handle.
func (c *Client) Submit(ctx context.Context, cluster Handle, spec StepSpec) (StepHandle, error) {
	if cluster == "" {
		return "", ErrNoCluster
	}
	req, err := spec.request(c.opts.Region, c.opts.Release)
	if err != nil {
		return "", err
	}
	id, err := c.svc.AddStep(ctx, string(cluster), req)
	if err != nil {
		return "", fmt.Errorf("submitting %s step to %s: %w", spec.Kind, cluster, err)
	}
	c.logger.Info("step submitted", "cluster", cluster, "step", id, "kind", spec.Kind, "name", req.Name)
	return StepHandle(id), nil
}

// RunStep submits spec and waits for it. A step ending in anything other
// than COMPLETED is reported as a *StepFailure carrying the final state.
func (c *Client) RunStep(ctx context.Context, cluster Handle, spec StepSpec) (StepHandle, StepState, error) {
	step, err := c.Submit(ctx, cluster, spec)
	if err != nil {
		return "", "", err
	}
	state, err := c.poller.await(ctx, cluster, step)
	if state != StepCompleted {
		return step, state, &StepFailure{Cluster: cluster, Step: step, State: state, Err: err}
	}
	return step, state, nil
}

// Terminate requests termination of cluster without waiting for it.
func (c *Client) Terminate(ctx context.Context, cluster Handle) error {
	if cluster == "" {
		return ErrNoCluster
	}
	if err := c.svc.TerminateCluster(ctx, string(cluster)); err != nil {
		return fmt.Errorf("terminating %s: %w", cluster, err)
	}
	c.logger.Info("cluster termination requested", "cluster", cluster)
	return nil
}
