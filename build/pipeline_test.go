package build

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pubmed-graph/models"
)

type recorder struct {
	mu      sync.Mutex
	packets []int
	pmids   map[int][]int64
}

func (r *recorder) done(p *Packet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pmids == nil {
		r.pmids = make(map[int][]int64)
	}
	r.packets = append(r.packets, p.Seq)
	for _, a := range p.Articles {
		r.pmids[p.Seq] = append(r.pmids[p.Seq], a.PMID)
	}
}

func runPackets(t *testing.T, pl *Pipeline, packets ...*Packet) error {
	t.Helper()
	run := pl.Start(context.Background())
	for _, p := range packets {
		if err := run.Submit(p); err != nil {
			return run.Close()
		}
	}
	return run.Close()
}

func TestPipelineDedupWindow(t *testing.T) {
	const x = 42
	packets := []*Packet{
		NewPacket(1, "u1", []models.Article{article(1, "a", "A")}, true),
		NewPacket(2, "u2", []models.Article{article(x, "x-old", "B"), article(2, "b", "B")}, true),
		NewPacket(3, "u3", []models.Article{article(3, "c", "C")}, true),
		NewPacket(4, "u4", []models.Article{article(x, "x-new", "D")}, true),
		NewPacket(5, "u5", []models.Article{article(5, "e", "E")}, true),
	}

	rec := &recorder{}
	store := NewMemoryStore()
	pl := &Pipeline{Builder: newTestBuilder(store), Window: 3, QueueSize: 1, OnDone: rec.done, Logger: zap.NewNop()}
	require.NoError(t, runPackets(t, pl, packets...))

	assert.Equal(t, []int{1, 2, 3, 4, 5}, rec.packets)
	assert.Equal(t, []int64{2}, rec.pmids[2])
	assert.Equal(t, []int64{x}, rec.pmids[4])

	seen := 0
	for _, ids := range rec.pmids {
		for _, id := range ids {
			if id == x {
				seen++
			}
		}
	}
	assert.Equal(t, 1, seen)
	assert.Equal(t, []string{"D"}, store.AuthorsOf(x))
}

func TestPipelineDedupOutsideWindowKeepsBoth(t *testing.T) {
	packets := []*Packet{
		NewPacket(1, "u1", []models.Article{article(7, "first", "A")}, true),
		NewPacket(2, "u2", nil, true),
		NewPacket(3, "u3", nil, true),
		NewPacket(4, "u4", nil, true),
		NewPacket(5, "u5", []models.Article{article(7, "second", "B")}, true),
	}
	rec := &recorder{}
	store := NewMemoryStore()
	pl := &Pipeline{Builder: newTestBuilder(store), Window: 3, OnDone: rec.done, Logger: zap.NewNop()}
	require.NoError(t, runPackets(t, pl, packets...))

	assert.Equal(t, []int64{7}, rec.pmids[1])
	assert.Equal(t, []int64{7}, rec.pmids[5])
	// Die zweite Version ersetzt die erste vollständig.
	assert.Equal(t, []string{"B"}, store.AuthorsOf(7))
	_, err := store.DeleteOrphanAuthors(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.Stats().Authors)
	assert.Zero(t, store.Stats().Orphaned)
}

func TestPipelineCarefulMode(t *testing.T) {
	rec := &recorder{}
	store := NewMemoryStore()
	pl := &Pipeline{Builder: newTestBuilder(store), Careful: true, OnDone: rec.done, Logger: zap.NewNop()}
	require.NoError(t, runPackets(t, pl,
		NewPacket(1, "f", []models.Article{article(1, "a", "A", "B")}, false),
		NewPacket(2, "f", []models.Article{article(2, "b", "B", "C")}, true),
	))
	assert.Equal(t, []int{1, 2}, rec.packets)
	assert.Len(t, pl.Stages(), 1)
	assert.Equal(t, 3, store.Stats().Authors)
	assert.Equal(t, []string{"B", "C"}, store.AuthorsOf(2))
}

type failingStore struct {
	*MemoryStore
}

var errBoom = errors.New("boom")

func (f failingStore) InsertArticles(ctx context.Context, rows []ArticleRow) error {
	return errBoom
}

func TestPipelineStageErrorStopsRun(t *testing.T) {
	rec := &recorder{}
	pl := &Pipeline{Builder: newTestBuilder(failingStore{NewMemoryStore()}), QueueSize: 1, OnDone: rec.done, Logger: zap.NewNop()}

	run := pl.Start(context.Background())
	var submitErr error
	for i := 1; i <= 50 && submitErr == nil; i++ {
		submitErr = run.Submit(NewPacket(i, "f", []models.Article{article(int64(i), "t", "A")}, false))
	}
	err := run.Close()
	assert.ErrorIs(t, err, errBoom)
	assert.ErrorIs(t, submitErr, ErrPipelineStopped)
	assert.Empty(t, rec.packets)
	// Close ist idempotent.
	assert.ErrorIs(t, run.Close(), errBoom)
}

func TestPipelineUtilisationFormat(t *testing.T) {
	pl := &Pipeline{Builder: newTestBuilder(NewMemoryStore()), Logger: zap.NewNop()}
	require.NoError(t, runPackets(t, pl))
	assert.Regexp(t, `^\d+% \| \d+% \| \d+%$`, pl.Utilisation())
}

func TestUtilisationFraction(t *testing.T) {
	now := time.Unix(1000, 0)
	u := NewUtilisation("stage1", time.Minute)
	u.now = func() time.Time { return now }
	u.created = now

	now = now.Add(10 * time.Second)
	u.Begin()
	now = now.Add(30 * time.Second)
	u.End()
	now = now.Add(20 * time.Second)
	assert.InDelta(t, 0.5, u.Fraction(), 0.001)

	u.Begin()
	now = now.Add(60 * time.Second)
	assert.InDelta(t, 1.0, u.Fraction(), 0.001)
	u.End()

	now = now.Add(2 * time.Minute)
	assert.InDelta(t, 0.0, u.Fraction(), 0.001)
	assert.Equal(t, "0%", FormatUtilisation([]*Utilisation{u}))
}
