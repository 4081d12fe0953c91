package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestUpload_WaitReturnsResult(t *testing.T) {
	release := make(chan struct{})
	u := StartUpload(func() (UploadInfo, error) {
		<-release
		return UploadInfo{Bucket: "b", Key: "scripts/mapper.py", Size: 42}, nil
	})

	select {
	case <-u.Done():
		t.Fatal("upload reported done before it finished")
	default:
	}

	close(release)
	info, err := u.Wait(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Key != "scripts/mapper.py" || info.Size != 42 {
		t.Errorf("unexpected info %+v", info)
	}

	// Wait is repeatable once done.
	if _, err := u.Wait(context.Background()); err != nil {
		t.Errorf("second Wait: %v", err)
	}
}

func TestUpload_WaitPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	u := StartUpload(func() (UploadInfo, error) { return UploadInfo{}, boom })

	if _, err := u.Wait(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestUpload_WaitHonorsContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	u := StartUpload(func() (UploadInfo, error) {
		<-block
		return UploadInfo{}, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := u.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unexpected eof", fmt.Errorf("put: %w", io.ErrUnexpectedEOF), true},
		{"canceled", context.Canceled, false},
		{"plain", errors.New("access denied"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestMockClusterService_RepeatsLastStatus(t *testing.T) {
	m := &MockClusterService{Statuses: []ClusterStatus{{State: "STARTING"}, {State: "WAITING"}}}
	ctx := context.Background()

	for i, want := range []string{"STARTING", "WAITING", "WAITING"} {
		st, err := m.DescribeCluster(ctx, "j-1")
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if st.State != want {
			t.Errorf("call %d: state = %q, want %q", i, st.State, want)
		}
	}
	if m.DescribeCalls != 3 {
		t.Errorf("DescribeCalls = %d, want 3", m.DescribeCalls)
	}
}

func TestMinioStorage_RejectsScheme(t *testing.T) {
	if _, err := NewMinioStorage(MinioConfig{Endpoint: "https://minio:9000"}); err == nil {
		t.Error("expected error for endpoint with scheme")
	}
	if _, err := NewMinioStorage(MinioConfig{}); err == nil {
		t.Error("expected error for empty endpoint")
	}
}
