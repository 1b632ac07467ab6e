package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	neo4j.ResultWithContext
	records []*neo4j.Record
}

func (r *fakeResult) Collect(context.Context) ([]*neo4j.Record, error) {
	return r.records, nil
}

// fakeTx protokolliert die Anweisungen und schlägt optional bei einer fehl.
type fakeTx struct {
	neo4j.ManagedTransaction
	ran     []string
	failOn  string
	records map[string][]*neo4j.Record
}

func (tx *fakeTx) Run(_ context.Context, cypher string, _ map[string]any) (neo4j.ResultWithContext, error) {
	tx.ran = append(tx.ran, cypher)
	if cypher == tx.failOn {
		return nil, errors.New("connection reset")
	}
	return &fakeResult{records: tx.records[cypher]}, nil
}

func TestMarkStatements_OneTransaction(t *testing.T) {
	tx := &fakeTx{records: map[string][]*neo4j.Record{
		MarkRelationsQuery: {
			{Keys: []string{"id"}, Values: []any{int64(11)}},
			{Keys: []string{"id"}, Values: []any{int64(12)}},
		},
	}}
	stmts := markStatements([]int64{1, 2})
	require.Len(t, stmts, 2)

	out, err := runStatements(context.Background(), tx, stmts)
	require.NoError(t, err)
	assert.Equal(t, []string{DetachArticleEdgesQuery, MarkRelationsQuery}, tx.ran)
	assert.Equal(t, []int64{11, 12}, relationIDs(out[1]))
	assert.Equal(t, stmts[0].params, stmts[1].params)
}

func TestRunStatements_StopsAtFirstError(t *testing.T) {
	tx := &fakeTx{failOn: MarkRelationsQuery}

	out, err := runStatements(context.Background(), tx, markStatements([]int64{1}))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.Equal(t, []string{DetachArticleEdgesQuery, MarkRelationsQuery}, tx.ran)

	tx = &fakeTx{failOn: DetachArticleEdgesQuery}
	_, err = runStatements(context.Background(), tx, markStatements([]int64{1}))
	require.Error(t, err)
	assert.Equal(t, []string{DetachArticleEdgesQuery}, tx.ran, "mark must not run after a failed detach")
}
