package aws

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Storage implements Storage and ObjectStore on Amazon S3.
type S3Storage struct {
	client *s3.Client
}

// NewS3Storage creates an S3 backed store from an SDK config.
func NewS3Storage(cfg aws.Config) *S3Storage {
	return &S3Storage{client: s3.NewFromConfig(cfg)}
}

// CreateBucket creates bucket in region. A bucket the caller already owns
// is not an error.
func (s *S3Storage) CreateBucket(ctx context.Context, bucket, region string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(region),
		}
	}

	_, err := s.client.CreateBucket(ctx, input)
	if err != nil {
		var owned *s3types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			return nil
		}
		return fmt.Errorf("creating bucket %s: %w", bucket, err)
	}
	return nil
}

// DeleteBucket removes an empty bucket.
func (s *S3Storage) DeleteBucket(ctx context.Context, bucket string) error {
	_, err := s.client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		return fmt.Errorf("deleting bucket %s: %w", bucket, err)
	}
	return nil
}

// BucketExists reports whether bucket is reachable with the current credentials.
func (s *S3Storage) BucketExists(ctx context.Context, bucket string) (bool, error) {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("checking bucket %s: %w", bucket, err)
	}
	return true, nil
}

// Upload starts copying localPath to s3://bucket/key in the background.
func (s *S3Storage) Upload(ctx context.Context, bucket, key, localPath string) *Upload {
	return StartUpload(func() (UploadInfo, error) {
		f, err := os.Open(localPath)
		if err != nil {
			return UploadInfo{}, fmt.Errorf("opening file %s: %w", localPath, err)
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			return UploadInfo{}, fmt.Errorf("stat %s: %w", localPath, err)
		}

		out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          f,
			ContentLength: aws.Int64(st.Size()),
		})
		if err != nil {
			return UploadInfo{}, fmt.Errorf("uploading file to s3://%s/%s: %w", bucket, key, err)
		}
		return UploadInfo{
			Bucket: bucket,
			Key:    key,
			Size:   st.Size(),
			ETag:   aws.ToString(out.ETag),
		}, nil
	})
}

// Stat returns the metadata of s3://bucket/key or ErrObjectNotFound.
func (s *S3Storage) Stat(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return ObjectInfo{}, ErrObjectNotFound
		}
		return ObjectInfo{}, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// Put stores body at s3://bucket/key.
func (s *S3Storage) Put(ctx context.Context, bucket, key string, body []byte, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if opts.ContentEncoding != "" {
		input.ContentEncoding = aws.String(opts.ContentEncoding)
	}
	if opts.CacheControl != "" {
		input.CacheControl = aws.String(opts.CacheControl)
	}
	if opts.ContentDisposition != "" {
		input.ContentDisposition = aws.String(opts.ContentDisposition)
	}
	if opts.ContentLanguage != "" {
		input.ContentLanguage = aws.String(opts.ContentLanguage)
	}
	if opts.ACL != "" {
		input.ACL = s3types.ObjectCannedACL(opts.ACL)
	}
	if len(opts.MD5) > 0 {
		input.ContentMD5 = aws.String(base64.StdEncoding.EncodeToString(opts.MD5))
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("uploading to s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// DeletePrefix deletes all objects under a given prefix in an S3 bucket.
func (s *S3Storage) DeletePrefix(ctx context.Context, bucket, prefix string) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing objects under s3://%s/%s: %w", bucket, prefix, err)
		}

		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]s3types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			objects[i] = s3types.ObjectIdentifier{Key: obj.Key}
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(bucket),
			Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("deleting objects under s3://%s/%s: %w", bucket, prefix, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("deleting objects under s3://%s/%s: %d failed, first %s: %s",
				bucket, prefix, len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
	}

	return nil
}

// EmptyBucket deletes every object in bucket.
func (s *S3Storage) EmptyBucket(ctx context.Context, bucket string) error {
	return s.DeletePrefix(ctx, bucket, "")
}
