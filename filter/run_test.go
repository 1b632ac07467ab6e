package filter

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	rows   [][]any
	err    error
	calls  int
	text   string
	params map[string]any
}

func (r *fakeRunner) Run(_ context.Context, text string, params map[string]any) ([][]any, error) {
	r.calls++
	r.text, r.params = text, params
	return r.rows, r.err
}

func citationQuery() *Query {
	return &Query{
		Text:    "q",
		Limit:   100,
		Columns: map[string]int{ColArticle: 0, ColAuthor: 1, ColCitationCount: 2, ColCited: 3},
	}
}

func TestExecute_CollectsSets(t *testing.T) {
	r := &fakeRunner{rows: [][]any{
		{int64(1), int64(10), int64(2), int64(2)},
		{int64(1), int64(11), int64(2), int64(99)},
		{int64(2), int64(10), int64(0), nil},
	}}
	res, err := Execute(context.Background(), r, citationQuery())
	require.NoError(t, err)

	assert.ElementsMatch(t, []int64{1, 2}, res.Articles.ToSlice())
	assert.ElementsMatch(t, []int64{10, 11}, res.Authors.ToSlice())
	assert.Equal(t, 0, res.Journals.Cardinality())
	// 99 liegt außerhalb der Ergebnismenge.
	assert.Equal(t, []Citation{{From: 1, To: 2}}, res.Citations)
	assert.Equal(t, map[int64]int64{1: 2, 2: 0}, res.CitationCounts)
	assert.Equal(t, 3, res.Rows)
}

func TestExecute_LimitReached(t *testing.T) {
	q := citationQuery()
	q.Limit = 2
	r := &fakeRunner{rows: [][]any{{int64(1)}, {int64(2)}}}

	_, err := Execute(context.Background(), r, q)
	assert.ErrorIs(t, err, ErrLimitReached)
	var le *LimitError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, 2, le.Rows)

	r.rows = r.rows[:1]
	res, err := Execute(context.Background(), r, q)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Articles.Cardinality())
}

func TestExecute_RunnerError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Execute(context.Background(), &fakeRunner{err: boom}, citationQuery())
	assert.ErrorIs(t, err, boom)
}

func TestRunnerResolver(t *testing.T) {
	r := &fakeRunner{rows: [][]any{{int64(68008875)}, {"garbage"}}}
	ids, err := RunnerResolver{Runner: r}.ResolveMesh(context.Background(),
		ParseTextFilter(`"Middle Aged", neo*`, DefaultTextOptions))
	require.NoError(t, err)

	assert.Equal(t, []int64{68008875}, ids)
	assert.Equal(t, "MATCH (m:MeshHeading)\nWHERE (m.name = $mesh_name_0 OR m.name =~ $mesh_name_1)\nRETURN DISTINCT m.id AS mesh", r.text)
	assert.Equal(t, map[string]any{"mesh_name_0": "Middle Aged", "mesh_name_1": "(?i).*neo.*"}, r.params)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
