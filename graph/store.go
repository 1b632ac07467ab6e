package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"pubmed-graph/build"
	"pubmed-graph/models"
)

// BuildStore schreibt die Pipeline-Stufen in den Graphen.
type BuildStore struct {
	client *Client
}

var _ build.Store = (*BuildStore)(nil)

func NewBuildStore(client *Client) *BuildStore {
	return &BuildStore{client: client}
}

func (s *BuildStore) upsert(ctx context.Context, cypher string, rows []map[string]any) (map[string]int64, error) {
	recs, err := s.client.collect(ctx, accessWrite, cypher, map[string]any{"rows": rows})
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(recs))
	for _, rec := range recs {
		key, _ := rec.Get("key")
		id, ok := int64Value(rec, "id")
		k, isString := key.(string)
		if !ok || !isString {
			return nil, fmt.Errorf("graph: unexpected upsert row %v", rec.Values)
		}
		out[k] = id
	}
	return out, nil
}

func (s *BuildStore) UpsertJournals(ctx context.Context, journals []models.Journal) (map[string]int64, error) {
	rows := make([]map[string]any, len(journals))
	for i, j := range journals {
		rows[i] = map[string]any{"key": j.Key, "id": j.ID, "title": j.Title}
	}
	return s.upsert(ctx, UpsertJournalsQuery, rows)
}

func (s *BuildStore) UpsertAuthors(ctx context.Context, authors []models.Author) (map[string]int64, error) {
	rows := make([]map[string]any, len(authors))
	for i, a := range authors {
		rows[i] = map[string]any{"key": a.FullName, "id": a.ID, "is_collective": a.IsCollective}
	}
	return s.upsert(ctx, UpsertAuthorsQuery, rows)
}

func (s *BuildStore) UpsertAffiliations(ctx context.Context, affiliations []models.Affiliation) (map[string]int64, error) {
	rows := make([]map[string]any, len(affiliations))
	for i, a := range affiliations {
		rows[i] = map[string]any{"key": a.Name, "id": a.ID}
	}
	return s.upsert(ctx, UpsertAffiliationsQuery, rows)
}

// markStatements entfernt die ausgehenden Kanten und markiert die Beziehungen.
// Beide laufen in derselben Transaktion.
func markStatements(pmids []int64) []statement {
	params := map[string]any{"pmids": pmids}
	return []statement{
		{cypher: DetachArticleEdgesQuery, params: params},
		{cypher: MarkRelationsQuery, params: params},
	}
}

func (s *BuildStore) MarkExistingArticles(ctx context.Context, pmids []int64) ([]int64, error) {
	out, err := s.client.execute(ctx, accessWrite, markStatements(pmids)...)
	if err != nil {
		return nil, err
	}
	return relationIDs(out[1]), nil
}

func relationIDs(recs []*neo4j.Record) []int64 {
	ids := make([]int64, 0, len(recs))
	for _, rec := range recs {
		if id, ok := int64Value(rec, "id"); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *BuildStore) InsertArticles(ctx context.Context, articles []build.ArticleRow) error {
	rows := make([]map[string]any, len(articles))
	for i, a := range articles {
		rels := make([]map[string]any, len(a.Relations))
		for j, r := range a.Relations {
			rels[j] = map[string]any{"id": r.ID, "position": int64(r.Position), "is_first": r.IsFirst, "is_last": r.IsLast}
		}
		mesh := a.MeshIDs
		if mesh == nil {
			mesh = []int64{}
		}
		rows[i] = map[string]any{
			"pmid":       a.PMID,
			"title":      a.Title,
			"date":       a.Date,
			"journal_id": a.JournalID,
			"mesh_ids":   mesh,
			"relations":  rels,
		}
	}
	return s.client.write(ctx, InsertArticlesQuery, map[string]any{"rows": rows})
}

func linkRows(links []build.Link) []map[string]any {
	rows := make([]map[string]any, len(links))
	for i, l := range links {
		rows[i] = map[string]any{"from": l.From, "to": l.To}
	}
	return rows
}

func (s *BuildStore) InsertCitations(ctx context.Context, links []build.Link) error {
	return s.client.write(ctx, InsertCitationsQuery, map[string]any{"rows": linkRows(links)})
}

func (s *BuildStore) ConnectAuthors(ctx context.Context, links []build.Link) error {
	return s.client.write(ctx, ConnectAuthorsQuery, map[string]any{"rows": linkRows(links)})
}

func (s *BuildStore) ConnectAffiliations(ctx context.Context, links []build.Link) error {
	return s.client.write(ctx, ConnectAffiliationsQuery, map[string]any{"rows": linkRows(links)})
}

func (s *BuildStore) DeleteRelations(ctx context.Context, ids []int64) error {
	return s.client.write(ctx, DeleteRelationsQuery, map[string]any{"ids": ids})
}

func (s *BuildStore) count(ctx context.Context, cypher string, params map[string]any) (int, error) {
	recs, err := s.client.collect(ctx, accessWrite, cypher, params)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}
	n, _ := int64Value(recs[0], "deleted")
	return int(n), nil
}

func (s *BuildStore) DeleteOrphanAuthors(ctx context.Context) (int, error) {
	return s.count(ctx, DeleteOrphanAuthorsQuery, nil)
}

func (s *BuildStore) DeleteArticles(ctx context.Context, pmids []int64) (int, error) {
	return s.count(ctx, DeleteArticlesQuery, map[string]any{"pmids": pmids})
}

func (s *BuildStore) MeshIDs(ctx context.Context) (map[int64]int64, error) {
	recs, err := s.client.collect(ctx, accessRead, MeshIDsQuery, nil)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]int64, len(recs))
	for _, rec := range recs {
		if id, ok := int64Value(rec, "id"); ok {
			out[id] = id
		}
	}
	return out, nil
}

// UpsertMesh schreibt die Deskriptoren in Paketen von batchSize.
func (s *BuildStore) UpsertMesh(ctx context.Context, headings []models.MeshHeading, batchSize int) error {
	if batchSize <= 0 {
		batchSize = len(headings)
	}
	for start := 0; start < len(headings); start += batchSize {
		end := min(start+batchSize, len(headings))
		rows := make([]map[string]any, 0, end-start)
		for _, h := range headings[start:end] {
			tree := h.TreeNumbers
			if tree == nil {
				tree = []string{}
			}
			rows = append(rows, map[string]any{"id": h.ID, "ui": h.UI, "name": h.Name, "tree_numbers": tree})
		}
		if err := s.client.write(ctx, UpsertMeshQuery, map[string]any{"rows": rows}); err != nil {
			return fmt.Errorf("upsert mesh %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// NewSequence liefert einen Zähler, der nach der höchsten vorhandenen ID fortsetzt.
func NewSequence(ctx context.Context, client *Client) (*build.Counter, error) {
	recs, err := client.collect(ctx, accessRead, MaxIDQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: read max id: %w", err)
	}
	var last int64
	if len(recs) > 0 {
		last, _ = int64Value(recs[0], "last")
	}
	return build.NewCounter(last), nil
}
