package upload

import (
	"archive/tar"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emrpipe/emrpipe/internal/aws"
	"github.com/emrpipe/emrpipe/internal/logging"
)

// fakeStore is an in-memory ObjectStore that fails the first Faults[key]
// puts of a key with a transient error.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	opts    map[string]aws.PutOptions
	faults  map[string]int
	puts    int
	stats   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string][]byte),
		opts:    make(map[string]aws.PutOptions),
		faults:  make(map[string]int),
	}
}

func (s *fakeStore) Stat(_ context.Context, _, key string) (aws.ObjectInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats++
	b, ok := s.objects[key]
	if !ok {
		return aws.ObjectInfo{}, aws.ErrObjectNotFound
	}
	sum := md5.Sum(b)
	return aws.ObjectInfo{Key: key, Size: int64(len(b)), ETag: `"` + hex.EncodeToString(sum[:]) + `"`}, nil
}

func (s *fakeStore) Put(_ context.Context, _, key string, body []byte, opts aws.PutOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.faults[key] > 0 {
		s.faults[key]--
		return fmt.Errorf("put %s: %w", key, io.ErrUnexpectedEOF)
	}
	s.objects[key] = append([]byte(nil), body...)
	s.opts[key] = opts
	return nil
}

func (s *fakeStore) BucketExists(context.Context, string) (bool, error) { return true, nil }

func writeFiles(t *testing.T, dir string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		sub := filepath.Join(dir, fmt.Sprintf("d%d", i%3))
		require.NoError(t, os.MkdirAll(sub, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(sub, fmt.Sprintf("f%03d.log", i)), []byte(fmt.Sprintf("line %d\n", i)), 0o644))
	}
}

func TestRun_UploadsEverything(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 30)
	store := newFakeStore()

	u := New(store, Options{Bucket: "b", Prefix: "input", Workers: 4}, logging.Discard())
	sum, err := u.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	assert.EqualValues(t, 30, sum.Files)
	assert.Len(t, store.objects, 30)
	key := KeyFor("input", filepath.Join(dir, "d0", "f000.log"))
	assert.Equal(t, "line 0\n", string(store.objects[key]))
	assert.Len(t, store.opts[key].MD5, md5.Size)
}

func TestRun_TransientFaultsAreRequeued(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 20)
	store := newFakeStore()

	u := New(store, Options{Bucket: "b", Workers: 1, Mode: ModeStupid}, logging.Discard())
	u.queueCap = 1 // force re-enqueue onto a full queue
	require.NoError(t, filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if !d.IsDir() {
			store.faults[KeyFor("", p)] = 2
		}
		return err
	}))

	sum, err := u.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.EqualValues(t, 20, sum.Files)
	assert.EqualValues(t, 40, sum.Retries)
	assert.EqualValues(t, 0, sum.Failed)
	assert.Equal(t, 60, store.puts)
}

func TestRun_GivesUpAfterMaxAttempts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 2)
	store := newFakeStore()
	for _, k := range []string{"d0/f000.log", "d1/f001.log"} {
		store.faults[KeyFor("", filepath.Join(dir, k))] = 100
	}

	u := New(store, Options{Bucket: "b", Workers: 2, Mode: ModeStupid, MaxAttempts: 3}, logging.Discard())
	sum, err := u.Run(context.Background(), []string{dir})
	require.Error(t, err)
	assert.EqualValues(t, 2, sum.Failed)
	assert.EqualValues(t, 4, sum.Retries)
	assert.Equal(t, 6, store.puts)
}

func TestRun_PermanentErrorIsNotRetried(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 1)
	store := newFakeStore()
	store.faults[KeyFor("", filepath.Join(dir, "d0", "f000.log"))] = 5

	u := New(store, Options{
		Bucket: "b", Workers: 1, Mode: ModeStupid,
		IsTransient: func(error) bool { return false },
	}, logging.Discard())
	sum, err := u.Run(context.Background(), []string{dir})
	require.Error(t, err)
	assert.EqualValues(t, 1, sum.Failed)
	assert.Equal(t, 1, store.puts)
}

func TestRun_Modes(t *testing.T) {
	dir := t.TempDir()
	same := filepath.Join(dir, "same.txt")
	changed := filepath.Join(dir, "changed.txt")
	fresh := filepath.Join(dir, "fresh.txt")
	require.NoError(t, os.WriteFile(same, []byte("same"), 0o644))
	require.NoError(t, os.WriteFile(changed, []byte("new"), 0o644))
	require.NoError(t, os.WriteFile(fresh, []byte("fresh"), 0o644))

	tests := []struct {
		mode    Mode
		files   int64
		skipped int64
	}{
		{ModeAdd, 1, 2},
		{ModeUpdate, 2, 1},
		{ModeStupid, 3, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			store := newFakeStore()
			store.objects[KeyFor("", same)] = []byte("same")
			store.objects[KeyFor("", changed)] = []byte("old")

			sum, err := New(store, Options{Bucket: "b", Mode: tt.mode, Workers: 2}, logging.Discard()).
				Run(context.Background(), []string{dir})
			require.NoError(t, err)
			assert.Equal(t, tt.files, sum.Files)
			assert.Equal(t, tt.skipped, sum.Skipped)
		})
	}
}

func TestRun_ResumeAndLimit(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 10)
	store := newFakeStore()
	done := map[string]bool{KeyFor("", filepath.Join(dir, "d0", "f000.log")): true}

	u := New(store, Options{Bucket: "b", Mode: ModeStupid, Workers: 2, Done: done, Limit: 4}, logging.Discard())
	sum, err := u.Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.EqualValues(t, 4, sum.Files)
	for k := range done {
		assert.NotContains(t, store.objects, k)
	}
}

func TestRun_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 3)
	store := newFakeStore()

	sum, err := New(store, Options{Bucket: "b", DryRun: true}, logging.Discard()).Run(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.EqualValues(t, 3, sum.Files)
	assert.Zero(t, store.puts)
}

func TestRun_GzipAndHeaders(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "page.html")
	require.NoError(t, os.WriteFile(p, []byte("<html></html>"), 0o644))
	headers, err := ParseHeaders([]string{"Cache-Control: max-age=60", "x-amz-meta-owner:etl"})
	require.NoError(t, err)
	store := newFakeStore()

	u := New(store, Options{
		Bucket: "b", Gzip: true, ContentType: "guess", Headers: headers, Grant: "public-read",
	}, logging.Discard())
	_, err = u.Run(context.Background(), []string{p})
	require.NoError(t, err)

	key := KeyFor("", p)
	opts := store.opts[key]
	assert.Equal(t, "gzip", opts.ContentEncoding)
	assert.Contains(t, opts.ContentType, "text/html")
	assert.Equal(t, "max-age=60", opts.CacheControl)
	assert.Equal(t, "etl", opts.Metadata["owner"])
	assert.Equal(t, "public-read", opts.ACL)

	zr, err := gzip.NewReader(bytes.NewReader(store.objects[key]))
	require.NoError(t, err)
	plain, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(plain))

	// gzip output is deterministic, so update mode sees no change.
	sum, err := New(store, Options{Bucket: "b", Gzip: true}, logging.Discard()).Run(context.Background(), []string{p})
	require.NoError(t, err)
	assert.EqualValues(t, 1, sum.Skipped)
}

func writeTar(t *testing.T, w io.Writer, files map[string]string) {
	t.Helper()
	tw := tar.NewWriter(w)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "dir/", Typeflag: tar.TypeDir, Mode: 0o755}))
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
}

func TestWalkTar(t *testing.T) {
	files := map[string]string{
		"dir/a.txt": "alpha",
		"dir/b.txt": strings.Repeat("b", 1500),
		"empty.txt": "",
	}
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.tar")
	f, err := os.Create(plain)
	require.NoError(t, err)
	writeTar(t, f, files)
	require.NoError(t, f.Close())

	zipped := filepath.Join(dir, "zipped.tar.gz")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	writeTar(t, zw, files)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(zipped, buf.Bytes(), 0o644))

	for _, archive := range []string{plain, zipped} {
		t.Run(filepath.Base(archive), func(t *testing.T) {
			got := map[string]string{}
			err := WalkTar(context.Background(), archive, "in", func(it *Item) error {
				b, err := it.Content()
				if err != nil {
					return err
				}
				assert.EqualValues(t, len(b), it.Size)
				got[it.Key] = string(b)
				return nil
			})
			require.NoError(t, err)
			assert.Equal(t, map[string]string{
				"in/dir/a.txt": "alpha",
				"in/dir/b.txt": files["dir/b.txt"],
				"in/empty.txt": "",
			}, got)
		})
	}
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "input/a.log", KeyFor("input/", "./a.log"))
	assert.Equal(t, "input/x/a.log", KeyFor("input", "x//a.log"))
	assert.Equal(t, "tmp/a.log", KeyFor("", "/tmp/a.log"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeUpdate, m)
	m, err = ParseMode("ADD")
	require.NoError(t, err)
	assert.Equal(t, ModeAdd, m)
	_, err = ParseMode("sync")
	assert.Error(t, err)
}

func TestParseHeaders(t *testing.T) {
	_, err := ParseHeaders([]string{"no-colon"})
	assert.Error(t, err)
	_, err = ParseHeaders([]string{"Expires: never"})
	assert.Error(t, err)

	opts, err := ParseHeaders([]string{"Content-Type:text/csv", "X-Amz-Acl: private"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", opts.ContentType)
	assert.Equal(t, "private", opts.ACL)

	assert.NoError(t, ValidateGrant(""))
	assert.NoError(t, ValidateGrant("bucket-owner-full-control"))
	assert.Error(t, ValidateGrant("everyone"))
}

func TestDoneKeys(t *testing.T) {
	log := strings.Join([]string{
		`time=2026-01-02T10:00:00Z level=INFO msg="input/a.log -> input/a.log" worker=0`,
		`time=2026-01-02T10:00:00Z level=INFO msg="skipping input/b.log -> input/b.log" worker=1`,
		`time=2026-01-02T10:00:01Z level=WARN msg="input/c.log -> input/c.log" error="unexpected EOF" attempt=1`,
		`time=2026-01-02T10:00:02Z level=INFO msg="my file.log -> in/my file.log" worker=2`,
		`INFO:s3-parallel-put[putter-12]:old/x.log -> old/x.log`,
		`time=2026-01-02T10:00:03Z level=INFO msg="put 10 bytes in 1 files in 0.1 seconds (100 bytes/s, 10.0 files/s)"`,
	}, "\n")

	done := map[string]bool{}
	require.NoError(t, DoneKeys(strings.NewReader(log), done))
	assert.Equal(t, map[string]bool{
		"input/a.log":    true,
		"in/my file.log": true,
		"old/x.log":      true,
	}, done)
}

func TestSummaryString(t *testing.T) {
	s := Summary{Files: 4, Bytes: 2000, Duration: 2e9}
	assert.Equal(t, "put 2000 bytes in 4 files in 2.0 seconds (1000 bytes/s, 2.0 files/s)", s.String())
}

func TestStatsTextfile(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 2)
	u := New(newFakeStore(), Options{Bucket: "b"}, logging.Discard())
	_, err := u.Run(context.Background(), []string{dir})
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "upload.prom")
	require.NoError(t, u.Stats().WriteTextfile(out))
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), "emrpipe_upload_files_total 2")
}

func TestRun_Cancelled(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(newFakeStore(), Options{Bucket: "b"}, logging.Discard()).Run(ctx, []string{dir})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRelative(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, 2)
	var keys []string
	err := Relative(WalkFilesystem)(context.Background(), dir, "input/", func(it *Item) error {
		keys = append(keys, it.Key)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"input/d0/f000.log", "input/d1/f001.log"}, keys)

	single := filepath.Join(dir, "d0", "f000.log")
	err = Relative(WalkFilesystem)(context.Background(), single, "input/", func(it *Item) error {
		assert.Equal(t, "input/f000.log", it.Key)
		return nil
	})
	require.NoError(t, err)
}
