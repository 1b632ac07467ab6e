package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pubmed-graph/compress"
	"pubmed-graph/config"
)

type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string][]byte
	modified map[string]time.Time
	clock    time.Time
	failPut  string
}

func newFakeBucket() *fakeBucket {
	return &fakeBucket{
		objects:  map[string][]byte{},
		modified: map[string]time.Time{},
		clock:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeBucket) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPut != "" && strings.Contains(*in.Key, f.failPut) {
		return nil, errors.New("put failed")
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.clock = f.clock.Add(time.Minute)
	f.objects[*in.Key] = data
	f.modified[*in.Key] = f.clock
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeBucket) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		mod := f.modified[k]
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: &mod})
	}
	return out, nil
}

func (f *fakeBucket) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, *in.Key)
	delete(f.modified, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func newTestArchive(bucket *fakeBucket, keep int) *Archive {
	cfg := &config.Config{ArchiveS3URL: "https://s3.example.org/", ArchiveS3Bucket: "pubmed", KeepBackups: keep}
	a := NewArchive(bucket, cfg, compress.NewLZ4(), zap.NewNop())
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	a.now = func() time.Time {
		ts = ts.Add(time.Hour)
		return ts
	}
	return a
}

func TestArchive_BackupRotates(t *testing.T) {
	bucket := newFakeBucket()
	a := newTestArchive(bucket, 2)
	ctx := context.Background()

	var links []string
	for i := 0; i < 4; i++ {
		link, err := a.Backup(ctx, "metadata", []byte(`{"version":1}`))
		require.NoError(t, err)
		links = append(links, link)
	}
	assert.True(t, strings.HasPrefix(links[0], "https://s3.example.org/pubmed/backups/metadata-"))

	out, err := bucket.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Prefix: aws.String(backupsPrefix)})
	require.NoError(t, err)
	require.Len(t, out.Contents, 2)
	// Die beiden neuesten bleiben.
	assert.True(t, strings.HasSuffix(links[3], *out.Contents[1].Key))
	assert.True(t, strings.HasSuffix(links[2], *out.Contents[0].Key))

	data := bucket.objects[*out.Contents[0].Key]
	raw, err := compress.NewLZ4().Decode(data)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(raw))
}

func TestArchive_RotateKeepsOtherPrefixes(t *testing.T) {
	bucket := newFakeBucket()
	a := newTestArchive(bucket, 0)
	ctx := context.Background()

	_, err := a.Upload(ctx, "errors/x.xml.lz4", []byte("x"))
	require.NoError(t, err)
	_, err = a.Upload(ctx, "backups/old.lz4", []byte("x"))
	require.NoError(t, err)

	n, err := a.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, bucket.objects, "errors/x.xml.lz4")
}

func TestArchive_UploadErrorDumps(t *testing.T) {
	bucket := newFakeBucket()
	bucket.failPut = "broken"
	a := newTestArchive(bucket, 2)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pubmed24n0001-7-a.xml"), []byte("<PubmedArticle/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken-8-b.xml"), []byte("<x/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip"), 0o644))

	n, err := a.UploadErrorDumps(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, bucket.objects, "errors/pubmed24n0001-7-a.xml.lz4")

	_, err = os.Stat(filepath.Join(dir, "pubmed24n0001-7-a.xml"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "broken-8-b.xml"))
	assert.NoError(t, err)

	n, err = a.UploadErrorDumps(context.Background(), filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.Zero(t, n)
}
