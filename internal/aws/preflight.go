package aws

import (
	"context"
	"fmt"
)

// BucketChecker reports whether a bucket exists.
type BucketChecker interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
}

// PreflightResult holds the outcome of a pre-run access check.
type PreflightResult struct {
	Caller       *CallerIdentity `yaml:"caller,omitempty"`
	Credentials  bool            `yaml:"credentials"`
	EMRAccess    bool            `yaml:"emr_access"`
	BucketExists bool            `yaml:"bucket_exists"`
	Errors       []string        `yaml:"errors,omitempty"`
}

// OK reports whether every check passed.
func (r *PreflightResult) OK() bool {
	return r.Credentials && r.EMRAccess && len(r.Errors) == 0
}

// RunPreflight verifies the credentials, the EMR permissions and, when
// bucket is set, that the bucket is visible. A missing bucket is not an
// error because create_bucket makes it. Only a canceled context aborts
// the check; every other failure is recorded in the result.
func RunPreflight(ctx context.Context, id Identity, buckets BucketChecker, bucket string) (*PreflightResult, error) {
	result := &PreflightResult{}

	caller, err := id.VerifyCredentials(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		result.Errors = append(result.Errors, fmt.Sprintf("credentials: %v", err))
		return result, nil
	}
	result.Caller = caller
	result.Credentials = true

	ok, err := id.CheckEMRAccess(ctx)
	switch {
	case err != nil:
		result.Errors = append(result.Errors, fmt.Sprintf("emr access: %v", err))
	case !ok:
		result.Errors = append(result.Errors, "caller may not run EMR job flows")
	default:
		result.EMRAccess = true
	}

	if bucket == "" || buckets == nil {
		return result, nil
	}
	exists, err := buckets.BucketExists(ctx, bucket)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("bucket %s: %v", bucket, err))
		return result, nil
	}
	result.BucketExists = exists
	return result, nil
}
