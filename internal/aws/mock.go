package aws

import (
	"context"
	"fmt"
	"sync"
)

// MockStorage is a test double for the Storage interface.
type MockStorage struct {
	CreateErr error
	DeleteErr error
	UploadErr error
	EmptyErr  error

	// Track calls
	mu              sync.Mutex
	CreatedBuckets  []string
	DeletedBuckets  []string
	UploadedFiles   map[string]string // bucket/key → local path
	DeletedPrefixes []string
	EmptiedBuckets  []string
}

// NewMockStorage creates a new MockStorage.
func NewMockStorage() *MockStorage {
	return &MockStorage{UploadedFiles: make(map[string]string)}
}

func (m *MockStorage) CreateBucket(_ context.Context, bucket, _ string) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.CreatedBuckets = append(m.CreatedBuckets, bucket)
	return nil
}

func (m *MockStorage) DeleteBucket(_ context.Context, bucket string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.DeletedBuckets = append(m.DeletedBuckets, bucket)
	return nil
}

func (m *MockStorage) Upload(_ context.Context, bucket, key, localPath string) *Upload {
	return StartUpload(func() (UploadInfo, error) {
		if m.UploadErr != nil {
			return UploadInfo{}, m.UploadErr
		}
		m.mu.Lock()
		m.UploadedFiles[bucket+"/"+key] = localPath
		m.mu.Unlock()
		return UploadInfo{Bucket: bucket, Key: key, ETag: `"mock"`}, nil
	})
}

func (m *MockStorage) DeletePrefix(_ context.Context, bucket, prefix string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.DeletedPrefixes = append(m.DeletedPrefixes, bucket+"/"+prefix)
	return nil
}

func (m *MockStorage) EmptyBucket(_ context.Context, bucket string) error {
	if m.EmptyErr != nil {
		return m.EmptyErr
	}
	m.EmptiedBuckets = append(m.EmptiedBuckets, bucket)
	return nil
}

// Uploaded returns the local path recorded for bucket/key.
func (m *MockStorage) Uploaded(bucket, key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.UploadedFiles[bucket+"/"+key]
	return p, ok
}

// MockClusterService is a test double for ClusterService. Describe and
// ListSteps walk their scripted sequences and repeat the last entry once
// the sequence is exhausted.
type MockClusterService struct {
	ClusterID    string
	RunErr       error
	Statuses     []ClusterStatus
	DescribeErr  error
	StepID       string
	AddStepErr   error
	StepLists    [][]StepSummary
	ListErrs     []error // per ListSteps call; nil entries succeed
	TerminateErr error

	// Track calls
	Launches       []LaunchRequest
	DescribeCalls  int
	AddedSteps     []StepRequest
	ListStepsCalls int
	Terminated     []string
}

func (m *MockClusterService) RunCluster(_ context.Context, req LaunchRequest) (string, error) {
	m.Launches = append(m.Launches, req)
	if m.RunErr != nil {
		return "", m.RunErr
	}
	return m.ClusterID, nil
}

func (m *MockClusterService) DescribeCluster(_ context.Context, clusterID string) (*ClusterStatus, error) {
	i := m.DescribeCalls
	m.DescribeCalls++
	if m.DescribeErr != nil {
		return nil, m.DescribeErr
	}
	if len(m.Statuses) == 0 {
		return nil, fmt.Errorf("no status scripted for %s", clusterID)
	}
	if i >= len(m.Statuses) {
		i = len(m.Statuses) - 1
	}
	st := m.Statuses[i]
	return &st, nil
}

func (m *MockClusterService) AddStep(_ context.Context, _ string, step StepRequest) (string, error) {
	m.AddedSteps = append(m.AddedSteps, step)
	if m.AddStepErr != nil {
		return "", m.AddStepErr
	}
	return m.StepID, nil
}

func (m *MockClusterService) ListSteps(_ context.Context, _ string) ([]StepSummary, error) {
	i := m.ListStepsCalls
	m.ListStepsCalls++
	if i < len(m.ListErrs) && m.ListErrs[i] != nil {
		return nil, m.ListErrs[i]
	}
	if len(m.StepLists) == 0 {
		return nil, nil
	}
	if i >= len(m.StepLists) {
		i = len(m.StepLists) - 1
	}
	return m.StepLists[i], nil
}

func (m *MockClusterService) TerminateCluster(_ context.Context, clusterID string) error {
	m.Terminated = append(m.Terminated, clusterID)
	return m.TerminateErr
}

// MockIdentity is a test double for the Identity interface.
type MockIdentity struct {
	Identity    *CallerIdentity
	IdentityErr error
	EMRAccess   bool
	EMRErr      error
}

func (m *MockIdentity) VerifyCredentials(_ context.Context) (*CallerIdentity, error) {
	return m.Identity, m.IdentityErr
}

func (m *MockIdentity) CheckEMRAccess(_ context.Context) (bool, error) {
	return m.EMRAccess, m.EMRErr
}
