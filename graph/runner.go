package graph

import (
	"context"

	"pubmed-graph/filter"
)

// FilterRunner führt Filterabfragen lesend aus.
type FilterRunner struct {
	client *Client
}

var _ filter.Runner = (*FilterRunner)(nil)

func NewFilterRunner(client *Client) *FilterRunner {
	return &FilterRunner{client: client}
}

func (r *FilterRunner) Run(ctx context.Context, text string, params map[string]any) ([][]any, error) {
	recs, err := r.client.collect(ctx, accessRead, text, params)
	if err != nil {
		return nil, err
	}
	rows := make([][]any, len(recs))
	for i, rec := range recs {
		rows[i] = rec.Values
	}
	return rows, nil
}
