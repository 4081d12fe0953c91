package aws

import "context"

// UploadInfo describes a finished upload.
type UploadInfo struct {
	Bucket string
	Key    string
	Size   int64
	ETag   string
}

// Upload is a single-assignment handle for an upload running in the
// background. The caller that started it owns it and observes completion
// through Done or Wait.
type Upload struct {
	done chan struct{}
	info UploadInfo
	err  error
}

// StartUpload runs fn in a new goroutine and returns its handle.
func StartUpload(fn func() (UploadInfo, error)) *Upload {
	u := &Upload{done: make(chan struct{})}
	go func() {
		defer close(u.done)
		u.info, u.err = fn()
	}()
	return u
}

// Done is closed once the upload has finished, successfully or not.
func (u *Upload) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until the upload finishes or ctx is done.
func (u *Upload) Wait(ctx context.Context) (UploadInfo, error) {
	select {
	case <-u.done:
		return u.info, u.err
	case <-ctx.Done():
		return UploadInfo{}, ctx.Err()
	}
}
