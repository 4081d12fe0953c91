// Package upload copies many local files to object storage in parallel:
// one walker feeds a bounded queue drained by a fixed pool of workers,
// and a single consumer tallies statistics.
package upload

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"

	"github.com/emrpipe/emrpipe/internal/aws"
)

const (
	DefaultWorkers     = 8
	DefaultMaxAttempts = 10
	queuePerWorker     = 1024
)

// ErrTransient marks items abandoned after repeated transient errors.
var ErrTransient = errors.New("transient upload error")

// Options controls a bulk upload.
type Options struct {
	Bucket      string
	Prefix      string
	Mode        Mode
	Workers     int
	Limit       int             // maximum number of items to put; 0 = no limit
	Done        map[string]bool // keys completed by a previous run
	ContentType string          // explicit type, "guess", or empty
	Gzip        bool
	Headers     aws.PutOptions
	Grant       string // canned ACL
	DryRun      bool
	MaxAttempts int

	Walk        Walker
	Unchanged   ContentUnchanged
	IsTransient func(error) bool
}

// Uploader runs bulk uploads against an ObjectStore.
type Uploader struct {
	store    aws.ObjectStore
	opts     Options
	logger   *slog.Logger
	stats    *Stats
	queueCap int
}

// New creates an uploader, filling unset options with defaults.
func New(store aws.ObjectStore, opts Options, logger *slog.Logger) *Uploader {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Mode == "" {
		opts.Mode = ModeUpdate
	}
	if opts.Walk == nil {
		opts.Walk = WalkFilesystem
	}
	if opts.Unchanged == nil {
		opts.Unchanged = ETagMatches
	}
	if opts.IsTransient == nil {
		opts.IsTransient = aws.IsTransient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		store:    store,
		opts:     opts,
		logger:   logger,
		stats:    NewStats(),
		queueCap: queuePerWorker * opts.Workers,
	}
}

// Stats returns the uploader's metrics.
func (u *Uploader) Stats() *Stats { return u.stats }

// Run uploads every item found under sources. Items failing with a
// transient error are put back on the queue until MaxAttempts is reached.
// The returned error reports a walk failure or the number of abandoned items.
func (u *Uploader) Run(ctx context.Context, sources []string) (Summary, error) {
	start := time.Now()
	queue := make(chan *Item, u.queueCap)
	results := make(chan result, u.opts.Workers)
	var pending sync.WaitGroup

	summary := make(chan Summary, 1)
	go func() { summary <- u.stats.consume(results, start) }()

	var workers sync.WaitGroup
	for i := 0; i < u.opts.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			logger := u.logger.With("worker", id)
			for it := range queue {
				u.handle(ctx, logger, it, queue, &pending, results)
			}
		}(i)
	}

	walkErr := u.produce(ctx, sources, queue, &pending)
	pending.Wait()
	close(queue)
	workers.Wait()
	close(results)

	sum := <-summary
	u.logger.Info(sum.String(), "size", humanize.Bytes(uint64(sum.Bytes)),
		"skipped", sum.Skipped, "retries", sum.Retries, "failed", sum.Failed)

	if walkErr != nil {
		return sum, fmt.Errorf("walking sources: %w", walkErr)
	}
	if sum.Failed > 0 {
		return sum, fmt.Errorf("%d items could not be uploaded", sum.Failed)
	}
	return sum, nil
}

func (u *Uploader) produce(ctx context.Context, sources []string, queue chan<- *Item, pending *sync.WaitGroup) error {
	errLimit := errors.New("limit reached")
	n := 0
	emit := func(it *Item) error {
		if u.opts.Done[it.Key] {
			return nil
		}
		if u.opts.Limit > 0 && n >= u.opts.Limit {
			return errLimit
		}
		pending.Add(1)
		select {
		case queue <- it:
			n++
			return nil
		case <-ctx.Done():
			pending.Done()
			return ctx.Err()
		}
	}

	for _, src := range sources {
		err := u.opts.Walk(ctx, src, u.opts.Prefix, emit)
		if errors.Is(err, errLimit) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", src, err)
		}
	}
	return nil
}

func (u *Uploader) handle(ctx context.Context, logger *slog.Logger, it *Item, queue chan *Item, pending *sync.WaitGroup, results chan<- result) {
	defer pending.Done()

	began := time.Now()
	size, put, err := u.put(ctx, it)
	switch {
	case err == nil && put:
		logger.Info(fmt.Sprintf("%s -> %s", it.Path, it.Key))
		results <- result{outcome: outcomePut, size: size, elapsed: time.Since(began)}
	case err == nil:
		logger.Info(fmt.Sprintf("skipping %s -> %s", it.Path, it.Key))
		results <- result{outcome: outcomeSkipped}
	case ctx.Err() == nil && u.opts.IsTransient(err) && it.attempts < u.opts.MaxAttempts:
		logger.Warn(fmt.Sprintf("%s -> %s", it.Path, it.Key), "error", err, "attempt", it.attempts)
		results <- result{outcome: outcomeRetried}
		u.requeue(it, queue, pending)
	default:
		if u.opts.IsTransient(err) {
			err = fmt.Errorf("%w: %w", ErrTransient, err)
		}
		logger.Error(fmt.Sprintf("%s -> %s", it.Path, it.Key), "error", err, "attempt", it.attempts)
		results <- result{outcome: outcomeFailed}
	}
}

// requeue puts it back on the queue. The queue stays open while pending
// is non-zero, so a full queue is handed to a goroutine rather than
// blocking the worker that would drain it.
func (u *Uploader) requeue(it *Item, queue chan *Item, pending *sync.WaitGroup) {
	pending.Add(1)
	select {
	case queue <- it:
	default:
		go func() { queue <- it }()
	}
}

// put applies the put mode and writes the object. It returns the local
// content size and whether the object was written.
func (u *Uploader) put(ctx context.Context, it *Item) (int64, bool, error) {
	it.attempts++

	var (
		raw, body []byte
		loaded    bool
	)
	load := func() error {
		if loaded {
			return nil
		}
		var err error
		if raw, err = it.Content(); err != nil {
			return err
		}
		body = raw
		if u.opts.Gzip {
			if body, err = gzipBytes(raw); err != nil {
				return err
			}
		}
		loaded = true
		return nil
	}

	switch u.opts.Mode {
	case ModeAdd:
		_, err := u.store.Stat(ctx, u.opts.Bucket, it.Key)
		if err == nil {
			return 0, false, nil
		}
		if !errors.Is(err, aws.ErrObjectNotFound) {
			return 0, false, err
		}
	case ModeUpdate:
		info, err := u.store.Stat(ctx, u.opts.Bucket, it.Key)
		if err != nil && !errors.Is(err, aws.ErrObjectNotFound) {
			return 0, false, err
		}
		if err == nil {
			if err := load(); err != nil {
				return 0, false, err
			}
			if u.opts.Unchanged(body, info) {
				return 0, false, nil
			}
		}
	}

	if err := load(); err != nil {
		return 0, false, err
	}
	if !u.opts.DryRun {
		if err := u.store.Put(ctx, u.opts.Bucket, it.Key, body, u.putOptions(it, body)); err != nil {
			return 0, false, err
		}
	}
	return int64(len(raw)), true, nil
}

func (u *Uploader) putOptions(it *Item, body []byte) aws.PutOptions {
	opts := u.opts.Headers
	if len(u.opts.Headers.Metadata) > 0 {
		opts.Metadata = make(map[string]string, len(u.opts.Headers.Metadata))
		for k, v := range u.opts.Headers.Metadata {
			opts.Metadata[k] = v
		}
	}
	if u.opts.ContentType != "" {
		opts.ContentType = contentType(u.opts.ContentType, it.Path)
	}
	if u.opts.Gzip {
		opts.ContentEncoding = "gzip"
	}
	if u.opts.Grant != "" {
		opts.ACL = u.opts.Grant
	}
	sum := md5.Sum(body)
	opts.MD5 = sum[:]
	return opts
}

func gzipBytes(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(b); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
