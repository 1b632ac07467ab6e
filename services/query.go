package services

import (
	"context"

	"go.uber.org/zap"

	"pubmed-graph/filter"
)

// QueryService baut Filterabfragen und beantwortet sie über den Ergebnis-Cache.
type QueryService struct {
	Builder *filter.Builder
	Cache   *filter.Cache
	Runner  filter.Runner
	Logger  *zap.Logger
}

func (q *QueryService) Query(ctx context.Context, f filter.Filters, s filter.Settings) (*filter.Results, error) {
	query, err := q.Builder.Build(ctx, f, s)
	if err != nil {
		return nil, err
	}
	return q.Cache.Run(ctx, q.Runner, query)
}
