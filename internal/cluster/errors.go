package cluster

import (
	"errors"
	"fmt"
)

var (
	// ErrNoCluster is returned when an operation needs a cluster handle and none is set.
	ErrNoCluster = errors.New("no cluster handle")
	// ErrInvalidStep is returned for step specs missing required resources.
	ErrInvalidStep  = errors.New("invalid step")
	ErrLaunchFailed = errors.New("cluster launch failed")
	ErrStepFailed   = errors.New("step failed")
	ErrStepNotFound = errors.New("step not found")
	ErrStepQuery    = errors.New("step state query failed")
)

// LaunchError reports a launch that did not reach WAITING.
type LaunchError struct {
	Cluster Handle
	State   ClusterState // empty when the request itself failed
	Reason  string
	Err     error
}

func (e *LaunchError) Error() string {
	msg := "cluster launch failed"
	if e.Cluster != "" {
		msg += fmt.Sprintf(" (cluster %s)", e.Cluster)
	}
	if e.State != "" {
		msg += fmt.Sprintf(": state %s", e.State)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LaunchError) Is(target error) bool { return target == ErrLaunchFailed }

func (e *LaunchError) Unwrap() error { return e.Err }

// StepFailure reports a step that reached a terminal state other than COMPLETED.
type StepFailure struct {
	Cluster Handle
	Step    StepHandle
	State   StepState
	Err     error // query failure behind StepError state, if any
}

func (e *StepFailure) Error() string {
	var msg string
	switch e.State {
	case StepNotFound:
		msg = fmt.Sprintf("step %s could not be found in cluster %s", e.Step, e.Cluster)
	case StepError:
		msg = fmt.Sprintf("step %s state could not be read in cluster %s", e.Step, e.Cluster)
	default:
		msg = fmt.Sprintf("step %s ended %s in cluster %s", e.Step, e.State, e.Cluster)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StepFailure) Is(target error) bool {
	switch target {
	case ErrStepFailed:
		return e.State == StepFailed
	case ErrStepNotFound:
		return e.State == StepNotFound
	case ErrStepQuery:
		return e.State == StepError
	}
	return false
}

func (e *StepFailure) Unwrap() error { return e.Err }
