package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Runner führt eine Lese-Abfrage aus und liefert die Zeilen positional.
type Runner interface {
	Run(ctx context.Context, text string, params map[string]any) ([][]any, error)
}

// Citation ist eine CITES-Kante zwischen zwei Ergebnisartikeln.
type Citation struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Results sind die eindeutigen IDs je Entitätstyp.
type Results struct {
	Articles       mapset.Set[int64]
	Authors        mapset.Set[int64]
	Journals       mapset.Set[int64]
	Affiliations   mapset.Set[int64]
	Mesh           mapset.Set[int64]
	Citations      []Citation
	CitationCounts map[int64]int64
	Rows           int
}

type resultsPayload struct {
	Articles       []int64         `json:"articles"`
	Authors        []int64         `json:"authors"`
	Journals       []int64         `json:"journals"`
	Affiliations   []int64         `json:"affiliations"`
	Mesh           []int64         `json:"mesh"`
	Citations      []Citation      `json:"citations,omitempty"`
	CitationCounts map[int64]int64 `json:"citation_counts,omitempty"`
	Rows           int             `json:"rows"`
}

func sortedIDs(s mapset.Set[int64]) []int64 {
	out := s.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MarshalJSON schreibt die Mengen als sortierte Listen.
func (r *Results) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultsPayload{
		Articles:       sortedIDs(r.Articles),
		Authors:        sortedIDs(r.Authors),
		Journals:       sortedIDs(r.Journals),
		Affiliations:   sortedIDs(r.Affiliations),
		Mesh:           sortedIDs(r.Mesh),
		Citations:      r.Citations,
		CitationCounts: r.CitationCounts,
		Rows:           r.Rows,
	})
}

func (r *Results) UnmarshalJSON(data []byte) error {
	var p resultsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = *newResults()
	fill := func(set mapset.Set[int64], ids []int64) {
		for _, id := range ids {
			set.Add(id)
		}
	}
	fill(r.Articles, p.Articles)
	fill(r.Authors, p.Authors)
	fill(r.Journals, p.Journals)
	fill(r.Affiliations, p.Affiliations)
	fill(r.Mesh, p.Mesh)
	r.Citations = p.Citations
	for k, v := range p.CitationCounts {
		r.CitationCounts[k] = v
	}
	r.Rows = p.Rows
	return nil
}

func newResults() *Results {
	return &Results{
		Articles:       mapset.NewThreadUnsafeSet[int64](),
		Authors:        mapset.NewThreadUnsafeSet[int64](),
		Journals:       mapset.NewThreadUnsafeSet[int64](),
		Affiliations:   mapset.NewThreadUnsafeSet[int64](),
		Mesh:           mapset.NewThreadUnsafeSet[int64](),
		CitationCounts: map[int64]int64{},
	}
}

// Execute führt q aus. Erreicht die Zeilenzahl das Limit, wird statt eines
// Teilergebnisses ein *LimitError zurückgegeben.
func Execute(ctx context.Context, runner Runner, q *Query) (*Results, error) {
	rows, err := runner.Run(ctx, q.Text, q.Params)
	if err != nil {
		return nil, fmt.Errorf("run filter query: %w", err)
	}
	if err := admit(q, len(rows)); err != nil {
		return nil, err
	}

	res := newResults()
	res.Rows = len(rows)
	sets := map[string]mapset.Set[int64]{
		ColArticle:     res.Articles,
		ColAuthor:      res.Authors,
		ColJournal:     res.Journals,
		ColAffiliation: res.Affiliations,
		ColMesh:        res.Mesh,
	}

	edges := mapset.NewThreadUnsafeSet[Citation]()
	for _, row := range rows {
		for name, set := range sets {
			if id, ok := value(row, q.Columns, name); ok {
				set.Add(id)
			}
		}
		art, hasArt := value(row, q.Columns, ColArticle)
		if n, ok := value(row, q.Columns, ColCitationCount); ok && hasArt {
			res.CitationCounts[art] = n
		}
		if cited, ok := value(row, q.Columns, ColCited); ok && hasArt {
			edges.Add(Citation{From: art, To: cited})
		}
	}

	// Nur Kanten innerhalb der Ergebnismenge.
	for e := range edges.Iter() {
		if res.Articles.Contains(e.To) {
			res.Citations = append(res.Citations, e)
		}
	}
	sort.Slice(res.Citations, func(i, j int) bool {
		if res.Citations[i].From != res.Citations[j].From {
			return res.Citations[i].From < res.Citations[j].From
		}
		return res.Citations[i].To < res.Citations[j].To
	})
	return res, nil
}

func value(row []any, cols map[string]int, name string) (int64, bool) {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return 0, false
	}
	return asInt64(row[i])
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// RunnerResolver löst MeSH-Namen über eine Abfrage auf den MeshHeading-Knoten auf.
type RunnerResolver struct {
	Runner Runner
}

func (r RunnerResolver) ResolveMesh(ctx context.Context, terms []Term) ([]int64, error) {
	c := &clauses{params: map[string]any{}, counts: map[string]int{}}
	text := strings.Join([]string{
		"MATCH (m:MeshHeading)",
		"WHERE " + c.textCondition("mesh_name", "m.name", terms),
		"RETURN DISTINCT m.id AS mesh",
	}, "\n")
	rows, err := r.Runner.Run(ctx, text, c.params)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if len(row) > 0 {
			if id, ok := asInt64(row[0]); ok {
				ids = append(ids, id)
			}
		}
	}
	return ids, nil
}
