package aws

import (
	"context"
	"errors"
	"time"
)

// ErrObjectNotFound is returned by ObjectStore.Stat when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Storage defines the object storage operations the pipeline needs.
type Storage interface {
	CreateBucket(ctx context.Context, bucket, region string) error
	DeleteBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, key, localPath string) *Upload
	DeletePrefix(ctx context.Context, bucket, prefix string) error
	EmptyBucket(ctx context.Context, bucket string) error
}

// ObjectStore is the per-object surface used by bulk uploads. It is
// implemented for S3 and for S3-compatible endpoints.
type ObjectStore interface {
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	Put(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// PutOptions carries the optional headers of a single put.
type PutOptions struct {
	ContentType        string
	ContentEncoding    string
	CacheControl       string
	ContentDisposition string
	ContentLanguage    string
	ACL                string
	Metadata           map[string]string
	MD5                []byte // raw digest, sent as Content-MD5 when set
}

// ClusterService defines the compute-cluster operations the pipeline needs.
// States are reported as the remote service spells them.
type ClusterService interface {
	RunCluster(ctx context.Context, req LaunchRequest) (string, error)
	DescribeCluster(ctx context.Context, clusterID string) (*ClusterStatus, error)
	AddStep(ctx context.Context, clusterID string, step StepRequest) (string, error)
	ListSteps(ctx context.Context, clusterID string) ([]StepSummary, error)
	TerminateCluster(ctx context.Context, clusterID string) error
}

// LaunchRequest describes the cluster to start.
type LaunchRequest struct {
	Name          string
	LogURI        string
	KeyPair       string
	MasterType    string
	WorkerType    string
	InstanceCount int
	Release       string // "emr-x.y.z" release label or legacy AMI version
	JobFlowRole   string
	ServiceRole   string
	Tags          map[string]string
}

// ClusterStatus is a point-in-time view of a cluster.
type ClusterStatus struct {
	State     string
	Reason    string
	MasterDNS string
}

// StepRequest describes one unit of work submitted to a cluster.
type StepRequest struct {
	Name            string
	ActionOnFailure string
	Jar             string
	MainClass       string
	Args            []string
}

// StepSummary is one entry of a cluster's step list.
type StepSummary struct {
	ID    string
	Name  string
	State string
}

// CallerIdentity holds AWS STS caller identity information.
type CallerIdentity struct {
	Account string
	ARN     string
	UserID  string
}

// Identity verifies credentials and permissions before a run.
type Identity interface {
	VerifyCredentials(ctx context.Context) (*CallerIdentity, error)
	CheckEMRAccess(ctx context.Context) (bool, error)
}
