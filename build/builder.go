package build

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pubmed-graph/models"
)

// Builder führt die drei Stufen für ein Paket aus.
type Builder struct {
	Store     Store
	Cache     *Cache
	Seq       Sequence
	BatchSize int
	Logger    *zap.Logger
}

// LoadMesh lädt die MeSH-ID-Abbildung für den Lauf.
func (b *Builder) LoadMesh(ctx context.Context) error {
	ids, err := b.Store.MeshIDs(ctx)
	if err != nil {
		return fmt.Errorf("load mesh ids: %w", err)
	}
	b.Cache.MeshIDs = ids
	return nil
}

// Stage1 legt Journale, Autoren und Affiliations an, soweit sie nicht im Cache sind.
func (b *Builder) Stage1(ctx context.Context, p *Packet) error {
	if err := p.begin(1); err != nil {
		return err
	}

	var err error
	p.JournalIDs, err = resolve(ctx, b, b.Cache.Journals, sortedKeys(p.Journals),
		func(key string, id int64) models.Journal {
			j := p.Journals[key]
			j.ID = id
			return j
		}, b.Store.UpsertJournals)
	if err != nil {
		return fmt.Errorf("stage 1 journals: %w", err)
	}

	p.AuthorIDs, err = resolve(ctx, b, b.Cache.Authors, sortedKeys(p.Authors),
		func(key string, id int64) models.Author {
			a := p.Authors[key]
			a.ID = id
			return a
		}, b.Store.UpsertAuthors)
	if err != nil {
		return fmt.Errorf("stage 1 authors: %w", err)
	}

	p.AffiliationIDs, err = resolve(ctx, b, b.Cache.Affiliations, sortedKeys(p.Affiliations),
		func(key string, id int64) models.Affiliation {
			return models.Affiliation{ID: id, Name: key}
		}, b.Store.UpsertAffiliations)
	if err != nil {
		return fmt.Errorf("stage 1 affiliations: %w", err)
	}
	return nil
}

// resolve schlägt keys im Cache nach und legt die fehlenden mit neuen IDs an.
func resolve[T any](
	ctx context.Context,
	b *Builder,
	cache *GenerationCache[string, int64],
	keys []string,
	row func(key string, id int64) T,
	upsert func(context.Context, []T) (map[string]int64, error),
) (map[string]int64, error) {
	ids, misses := cache.Lookup(keys)
	if len(misses) == 0 {
		return ids, nil
	}

	rows := make([]T, len(misses))
	for i, k := range misses {
		rows[i] = row(k, b.Seq.Next())
	}
	fresh := make(map[string]int64, len(misses))
	err := inBatches(rows, b.BatchSize, func(batch []T) error {
		got, err := upsert(ctx, batch)
		if err != nil {
			return err
		}
		for k, id := range got {
			fresh[k] = id
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, k := range misses {
		if _, ok := fresh[k]; !ok {
			return nil, fmt.Errorf("store returned no id for %q", k)
		}
	}

	cache.Add(fresh)
	for k, id := range fresh {
		ids[k] = id
	}
	return ids, nil
}

// Stage2 ersetzt die Artikel: (a) vorhandene Beziehungen als verwaist markieren,
// (b) Artikel mit Journal, MeSH und Beziehungsplatzhaltern schreiben, danach Zitate.
func (b *Builder) Stage2(ctx context.Context, p *Packet) error {
	if err := p.begin(2); err != nil {
		return err
	}

	pmids := make([]int64, len(p.Articles))
	for i, a := range p.Articles {
		pmids[i] = a.PMID
	}
	err := inBatches(pmids, b.BatchSize, func(batch []int64) error {
		orphaned, err := b.Store.MarkExistingArticles(ctx, batch)
		p.orphaned = append(p.orphaned, orphaned...)
		return err
	})
	if err != nil {
		return fmt.Errorf("stage 2a: %w", err)
	}

	rows := make([]ArticleRow, len(p.Articles))
	var citations []Link
	p.relations = p.relations[:0]
	for i, a := range p.Articles {
		row := ArticleRow{PMID: a.PMID, Title: a.Title, Date: a.DateString()}
		if a.Journal != nil {
			row.JournalID = p.JournalIDs[a.Journal.Key]
		}
		for _, mesh := range a.MeshIDs {
			if id, ok := b.meshNode(mesh); ok {
				row.MeshIDs = append(row.MeshIDs, id)
			}
		}
		for _, rel := range a.Authors {
			id := b.Seq.Next()
			row.Relations = append(row.Relations, RelationRow{
				ID:       id,
				Position: rel.Position,
				IsFirst:  rel.IsFirst,
				IsLast:   rel.IsLast,
			})
			p.relations = append(p.relations, relationRef{id: id, author: rel.Author.FullName, affiliation: rel.Affiliation})
		}
		for _, ref := range a.References {
			citations = append(citations, Link{From: a.PMID, To: ref})
		}
		rows[i] = row
	}

	if err := inBatches(rows, b.BatchSize, func(batch []ArticleRow) error {
		return b.Store.InsertArticles(ctx, batch)
	}); err != nil {
		return fmt.Errorf("stage 2b articles: %w", err)
	}
	if err := inBatches(citations, b.BatchSize, func(batch []Link) error {
		return b.Store.InsertCitations(ctx, batch)
	}); err != nil {
		return fmt.Errorf("stage 2b citations: %w", err)
	}
	return nil
}

func (b *Builder) meshNode(descriptor int64) (int64, bool) {
	if b.Cache.MeshIDs == nil {
		return descriptor, true
	}
	id, ok := b.Cache.MeshIDs[descriptor]
	return id, ok
}

// Stage3 verbindet die Beziehungen mit Autoren und Affiliations und löscht
// die in Stufe 2a verwaisten Beziehungen.
func (b *Builder) Stage3(ctx context.Context, p *Packet) error {
	if err := p.begin(3); err != nil {
		return err
	}

	authors := make([]Link, 0, len(p.relations))
	var affiliations []Link
	for _, r := range p.relations {
		authorID, ok := p.AuthorIDs[r.author]
		if !ok {
			return fmt.Errorf("stage 3a: no id for author %q", r.author)
		}
		authors = append(authors, Link{From: r.id, To: authorID})
		if r.affiliation != "" {
			affiliations = append(affiliations, Link{From: r.id, To: p.AffiliationIDs[r.affiliation]})
		}
	}

	if err := inBatches(authors, b.BatchSize, func(batch []Link) error {
		return b.Store.ConnectAuthors(ctx, batch)
	}); err != nil {
		return fmt.Errorf("stage 3a: %w", err)
	}
	if err := inBatches(affiliations, b.BatchSize, func(batch []Link) error {
		return b.Store.ConnectAffiliations(ctx, batch)
	}); err != nil {
		return fmt.Errorf("stage 3b: %w", err)
	}
	if err := inBatches(p.orphaned, b.BatchSize, func(batch []int64) error {
		return b.Store.DeleteRelations(ctx, batch)
	}); err != nil {
		return fmt.Errorf("stage 3c: %w", err)
	}
	return nil
}

// RunAll führt alle drei Stufen nacheinander aus (vorsichtiger Modus).
func (b *Builder) RunAll(ctx context.Context, p *Packet) error {
	for _, stage := range []func(context.Context, *Packet) error{b.Stage1, b.Stage2, b.Stage3} {
		if err := stage(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
