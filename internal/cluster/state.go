package cluster

// Handle identifies a running cluster.
type Handle string

// StepHandle identifies a step submitted to a cluster.
type StepHandle string

// StepState is the lifecycle state of a step as seen by the poller.
type StepState string

const (
	StepPending   StepState = "PENDING"
	StepRunning   StepState = "RUNNING"
	StepCompleted StepState = "COMPLETED"
	StepFailed    StepState = "FAILED"
	StepNotFound  StepState = "NOT_FOUND"
	StepError     StepState = "ERROR"
)

// Terminal reports whether no further automatic transition is expected.
func (s StepState) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepNotFound, StepError:
		return true
	}
	return false
}

// ClusterState is the lifecycle state of a cluster.
type ClusterState string

const (
	ClusterStarting     ClusterState = "STARTING"
	ClusterRunning      ClusterState = "RUNNING" // busy with steps, not yet accepting new ones
	ClusterWaiting      ClusterState = "WAITING"
	ClusterShuttingDown ClusterState = "SHUTTING_DOWN"
	ClusterFailed       ClusterState = "FAILED"
	ClusterCompleted    ClusterState = "COMPLETED"
)

// Terminal reports whether launch polling stops at s.
func (s ClusterState) Terminal() bool {
	switch s {
	case ClusterWaiting, ClusterShuttingDown, ClusterFailed, ClusterCompleted:
		return true
	}
	return false
}

func stepStateFromRemote(state string) StepState {
	switch state {
	case "PENDING", "CANCEL_PENDING":
		return StepPending
	case "RUNNING":
		return StepRunning
	case "COMPLETED":
		return StepCompleted
	case "FAILED", "CANCELLED", "INTERRUPTED":
		return StepFailed
	default:
		return StepError
	}
}

func clusterStateFromRemote(state string) ClusterState {
	switch state {
	case "STARTING", "BOOTSTRAPPING":
		return ClusterStarting
	case "RUNNING":
		return ClusterRunning
	case "WAITING":
		return ClusterWaiting
	case "TERMINATING", "SHUTTING_DOWN":
		return ClusterShuttingDown
	case "TERMINATED_WITH_ERRORS", "FAILED":
		return ClusterFailed
	case "TERMINATED", "COMPLETED":
		return ClusterCompleted
	default:
		return ClusterStarting
	}
}
