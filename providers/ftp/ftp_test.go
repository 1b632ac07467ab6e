package ftp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pubmed-graph/providers"
)

const remoteDir = "/pubmed/baseline"

func testClient(s *fakeServer, opts Options) *Client {
	if opts.Retries == 0 {
		opts.Retries = 6
	}
	if opts.ReconnectEvery == 0 {
		opts.ReconnectEvery = 2
	}
	return &Client{Dial: s.dial, Options: opts, Logger: zap.NewNop()}
}

func TestParseChecksum(t *testing.T) {
	name, digest, err := ParseChecksum([]byte("MD5(pubmed24n0001.xml.gz)= 0123456789abcdef0123456789ABCDEF\n"))
	require.NoError(t, err)
	assert.Equal(t, "pubmed24n0001.xml.gz", name)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", digest)

	_, _, err = ParseChecksum([]byte("garbage"))
	assert.ErrorIs(t, err, ErrBadChecksum)
}

func TestMatchPairs(t *testing.T) {
	pairs, err := MatchPairs([]providers.File{
		{Name: "pubmed24n0002.xml.gz", Size: 20},
		{Name: "README.txt", Size: 1},
		{Name: "pubmed24n0001.xml.gz.md5", Size: 60},
		{Name: "pubmed24n0001.xml.gz", Size: 10},
		{Name: "pubmed24n0002.xml.gz.md5", Size: 60},
	})
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, "pubmed24n0001.xml.gz", pairs[0].Data.Name)
	assert.Equal(t, int64(10), pairs[0].Data.Size)
	assert.Equal(t, "pubmed24n0001.xml.gz.md5", pairs[0].Hash.Name)
	assert.Equal(t, "pubmed24n0002", pairs[1].Stem())

	_, err = MatchPairs([]providers.File{{Name: "pubmed24n0003.xml.gz"}})
	assert.ErrorIs(t, err, ErrMissingPair)

	_, err = MatchPairs([]providers.File{{Name: "pubmed24n0003.xml.gz.md5"}})
	assert.ErrorIs(t, err, ErrMissingPair)
}

func TestSyncDownloadsAndVerifies(t *testing.T) {
	s := newFakeServer()
	s.addPair(remoteDir, "pubmed24n0001", bytes.Repeat([]byte("a"), 1000))
	s.addPair(remoteDir, "pubmed24n0002", bytes.Repeat([]byte("b"), 2000))
	s.addPair(remoteDir, "pubmed24n0003", bytes.Repeat([]byte("c"), 10))
	c := testClient(s, Options{Connections: 8})

	pairs, err := c.ListPairs(context.Background(), remoteDir)
	require.NoError(t, err)
	require.Len(t, pairs, 3)

	dir := t.TempDir()
	report, err := c.Sync(context.Background(), remoteDir, pairs, dir)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Downloaded)
	assert.Equal(t, int64(3010), report.Bytes)
	assert.Empty(t, report.Failed)

	got, err := os.ReadFile(filepath.Join(dir, "pubmed24n0002.xml.gz"))
	require.NoError(t, err)
	assert.Len(t, got, 2000)
	assert.FileExists(t, filepath.Join(dir, "pubmed24n0002.xml.gz.md5"))
	assert.NoFileExists(t, filepath.Join(dir, "pubmed24n0002.xml.gz"+PartialSuffix))
	// Eine Verbindung für ListPairs plus höchstens eine pro Datei für den Sync.
	assert.LessOrEqual(t, s.dials, 4)
}

func TestSyncResumesAfterBrokenTransfer(t *testing.T) {
	s := newFakeServer()
	content := bytes.Repeat([]byte("0123456789"), 100)
	s.addPair(remoteDir, "pubmed24n0001", content)
	data := remoteDir + "/pubmed24n0001.xml.gz"
	s.cutAfter[data] = []int{300, 200}
	c := testClient(s, Options{Connections: 1})

	pairs, err := c.ListPairs(context.Background(), remoteDir)
	require.NoError(t, err)

	dir := t.TempDir()
	report, err := c.Sync(context.Background(), remoteDir, pairs, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, int64(1000), report.Bytes)
	assert.Equal(t, []int64{0, 300, 500}, s.offsets[data])

	got, err := os.ReadFile(filepath.Join(dir, "pubmed24n0001.xml.gz"))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestSyncSkipsTransferWhenPartialIsComplete(t *testing.T) {
	s := newFakeServer()
	content := []byte("complete-but-not-renamed")
	s.addPair(remoteDir, "pubmed24n0001", content)
	c := testClient(s, Options{Connections: 1})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pubmed24n0001.xml.gz"+PartialSuffix), content, 0o644))

	pairs, err := c.ListPairs(context.Background(), remoteDir)
	require.NoError(t, err)
	report, err := c.Sync(context.Background(), remoteDir, pairs, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)
	assert.Zero(t, report.Bytes)
	assert.Empty(t, s.offsets[remoteDir+"/pubmed24n0001.xml.gz"])
	assert.FileExists(t, filepath.Join(dir, "pubmed24n0001.xml.gz"))
}

func TestSyncHashMismatchIsReportedNotFatal(t *testing.T) {
	s := newFakeServer()
	s.addPair(remoteDir, "pubmed24n0001", []byte("good"))
	s.addPair(remoteDir, "pubmed24n0002", []byte("original"))
	s.files[remoteDir+"/pubmed24n0002.xml.gz"] = []byte("tampered")
	c := testClient(s, Options{Connections: 2, Retries: 2})

	pairs, err := c.ListPairs(context.Background(), remoteDir)
	require.NoError(t, err)

	dir := t.TempDir()
	report, err := c.Sync(context.Background(), remoteDir, pairs, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Downloaded)
	assert.Equal(t, 1, report.Mismatches)

	var pairErr *PairError
	require.True(t, errors.As(report.Failed["pubmed24n0002.xml.gz"], &pairErr))
	assert.Equal(t, 2, pairErr.Attempts)
	assert.ErrorIs(t, pairErr, ErrHashMismatch)

	assert.NoFileExists(t, filepath.Join(dir, "pubmed24n0002.xml.gz"))
	assert.NoFileExists(t, filepath.Join(dir, "pubmed24n0002.xml.gz.md5"))
	assert.NoFileExists(t, filepath.Join(dir, "pubmed24n0002.xml.gz"+PartialSuffix))
	assert.FileExists(t, filepath.Join(dir, "pubmed24n0001.xml.gz"))
}

func TestSyncFailFast(t *testing.T) {
	s := newFakeServer()
	s.addPair(remoteDir, "pubmed24n0001", []byte("original"))
	s.files[remoteDir+"/pubmed24n0001.xml.gz"] = []byte("tampered")
	c := testClient(s, Options{Connections: 1, Retries: 1, FailFast: true})

	pairs, err := c.ListPairs(context.Background(), remoteDir)
	require.NoError(t, err)
	_, err = c.Sync(context.Background(), remoteDir, pairs, t.TempDir())
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestRetryLimitAndReconnect(t *testing.T) {
	s := newFakeServer()
	content := bytes.Repeat([]byte("x"), 100)
	s.addPair(remoteDir, "pubmed24n0001", content)
	data := remoteDir + "/pubmed24n0001.xml.gz"
	s.cutAfter[data] = []int{0, 0, 0, 0, 0, 0}
	c := testClient(s, Options{Connections: 1})

	pairs := []providers.Pair{{
		Data: providers.File{Name: "pubmed24n0001.xml.gz", Size: 100},
		Hash: providers.File{Name: "pubmed24n0001.xml.gz.md5"},
	}}
	dir := t.TempDir()
	report, err := c.Sync(context.Background(), remoteDir, pairs, dir)
	require.NoError(t, err)

	var pairErr *PairError
	require.True(t, errors.As(report.Failed["pubmed24n0001.xml.gz"], &pairErr))
	assert.Equal(t, 6, pairErr.Attempts)
	assert.Len(t, s.offsets[data], 6)
	// Jeder abgerissene Transfer erzwingt eine neue Verbindung.
	assert.Equal(t, 6, s.dials)
	assert.NoFileExists(t, filepath.Join(dir, "pubmed24n0001.xml.gz"+PartialSuffix))
}

func TestIsBroken(t *testing.T) {
	assert.True(t, isBroken(fmt.Errorf("read: %w", io.ErrUnexpectedEOF)))
	assert.True(t, isBroken(&textproto.Error{Code: 421, Msg: "Service not available"}))
	assert.False(t, isBroken(&textproto.Error{Code: 550, Msg: "No such file"}))
	assert.False(t, isBroken(errors.New("permission denied")))
}

func TestProgress(t *testing.T) {
	now := time.Unix(0, 0)
	p := NewProgress(4, 4000, time.Minute)
	p.now = func() time.Time { return now }
	p.started = now
	p.lastReport = now

	now = now.Add(10 * time.Second)
	p.Add(1000, 10*time.Second, true)
	assert.InDelta(t, 100.0, p.Rate(), 0.001)
	assert.False(t, p.Due())

	// 3000 Bytes bei 100 B/s = 30s; 3 Dateien bei 10s/Datei = 30s.
	assert.Equal(t, 30*time.Second, p.ETA())

	now = now.Add(time.Minute)
	assert.True(t, p.Due())
	assert.False(t, p.Due())

	p.Add(3000, 10*time.Second, true)
	p.Add(0, 0, true)
	p.Add(0, 0, true)
	assert.Zero(t, p.ETA())
	assert.True(t, p.Due())
}
