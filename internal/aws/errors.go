package aws

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/minio/minio-go/v7"
)

var transientCodes = map[string]bool{
	"RequestTimeout":       true,
	"RequestTimeTooSkewed": true,
	"SlowDown":             true,
	"InternalError":        true,
	"ServiceUnavailable":   true,
	"Throttling":           true,
}

// IsTransient reports whether err is a transport-level fault worth
// retrying with the same payload.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var tlsErr tls.RecordHeaderError
	if errors.As(err, &tlsErr) {
		return true
	}

	if retry.IsErrorRetryables(retry.DefaultRetryables).IsErrorRetryable(err) == aws.TrueTernary {
		return true
	}

	if code := minio.ToErrorResponse(err).Code; code != "" {
		return transientCodes[code]
	}
	return false
}
