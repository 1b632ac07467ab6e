package filter

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Spaltennamen der positionalen RETURN-Klausel.
const (
	ColArticle       = "article"
	ColAuthor        = "author"
	ColJournal       = "journal"
	ColAffiliation   = "affiliation"
	ColMesh          = "mesh"
	ColCitationCount = "citation_count"
	ColCited         = "cited"
)

// DefaultNodeLimit gilt, wenn weder Filter noch Builder ein Limit setzen.
const DefaultNodeLimit = 10000

// Query ist eine fertige, parametrisierte Abfrage.
type Query struct {
	Text     string
	Params   map[string]any
	Settings Settings
	Columns  map[string]int
	Limit    int
	// Single ist true für Abfragen über genau einen Entitätstyp ohne Beziehungen.
	Single bool
}

// Key ist bei gleichem Text, gleichen Settings, gleichem Limit und gleichen
// Parametern identisch.
func (q *Query) Key() string {
	names := make([]string, 0, len(q.Params))
	for k := range q.Params {
		names = append(names, k)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(q.Text)
	s, _ := json.Marshal(q.Settings)
	b.WriteByte('\x00')
	b.Write(s)
	fmt.Fprintf(&b, "\x00limit=%d", q.Limit)
	for _, k := range names {
		v, _ := json.Marshal(q.Params[k])
		b.WriteByte('\x00')
		b.WriteString(k)
		b.WriteByte('=')
		b.Write(v)
	}
	return b.String()
}

// MeshResolver löst MeSH-Namensterme in Deskriptor-IDs auf.
type MeshResolver interface {
	ResolveMesh(ctx context.Context, terms []Term) ([]int64, error)
}

// Builder erzeugt Cypher-Abfragen aus Filtern.
type Builder struct {
	Text      TextOptions
	NodeLimit int
	Mesh      MeshResolver
	Logger    *zap.Logger
}

func NewBuilder(opts TextOptions, nodeLimit int, mesh MeshResolver, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{Text: opts, NodeLimit: nodeLimit, Mesh: mesh, Logger: logger}
}

// clauses sammelt Bedingungen und Parameter einer Abfrage.
type clauses struct {
	params map[string]any
	counts map[string]int
}

func (c *clauses) param(field string, v any) string {
	name := fmt.Sprintf("%s_%d", field, c.counts[field])
	c.counts[field]++
	c.params[name] = v
	return "$" + name
}

// textCondition verknüpft die Terme eines Feldes mit OR.
func (c *clauses) textCondition(field, expr string, terms []Term) string {
	conds := make([]string, 0, len(terms))
	for _, t := range terms {
		switch t.Kind {
		case Exact:
			conds = append(conds, fmt.Sprintf("%s = %s", expr, c.param(field, t.Value)))
		case Pattern:
			conds = append(conds, fmt.Sprintf("%s =~ %s", expr, c.param(field, t.Regex())))
		default:
			conds = append(conds, fmt.Sprintf("toLower(%s) CONTAINS %s", expr, c.param(field, strings.ToLower(t.Value))))
		}
	}
	if len(conds) == 1 {
		return conds[0]
	}
	return "(" + strings.Join(conds, " OR ") + ")"
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "\nWHERE " + strings.Join(conds, " AND ")
}

// parsed hält die bereits zerlegten und geprüften Filter.
type parsed struct {
	journal, meshName, author, title, affiliation []Term
	meshIDs                                       []int64
	after, before                                 string
	limit                                         int
}

func (b *Builder) parse(ctx context.Context, f Filters) (*parsed, error) {
	p := &parsed{after: f.PublishedAfter, before: f.PublishedBefore}

	text := func(field, value string) ([]Term, error) {
		if value == "" {
			return nil, nil
		}
		terms := ParseTextFilter(value, b.Text)
		if len(terms) == 0 {
			return nil, &ValidationError{Field: field, Msg: "filter has no terms"}
		}
		return terms, nil
	}
	var err error
	if p.journal, err = text("journal", f.Journal); err != nil {
		return nil, err
	}
	if p.meshName, err = text("mesh_name", f.MeshName); err != nil {
		return nil, err
	}
	if p.author, err = text("author", f.Author); err != nil {
		return nil, err
	}
	if p.title, err = text("title", f.Title); err != nil {
		return nil, err
	}
	if p.affiliation, err = text("affiliation", f.Affiliation); err != nil {
		return nil, err
	}

	var after, before = f.PublishedAfter, f.PublishedBefore
	if after != "" {
		a, err := parseDate("published_after", after)
		if err != nil {
			return nil, err
		}
		if before != "" {
			bt, err := parseDate("published_before", before)
			if err != nil {
				return nil, err
			}
			if bt.Before(a) {
				return nil, &ValidationError{Field: "published_before", Msg: "lies before published_after"}
			}
		}
	} else if before != "" {
		if _, err := parseDate("published_before", before); err != nil {
			return nil, err
		}
	}

	p.limit = f.NodeLimit
	if p.limit == 0 {
		p.limit = b.NodeLimit
	}
	if p.limit == 0 {
		p.limit = DefaultNodeLimit
	}
	if p.limit < 0 {
		return nil, &ValidationError{Field: "node_limit", Msg: "must be positive"}
	}

	p.meshIDs = append(p.meshIDs, f.MeshIDs...)
	if len(p.meshName) > 0 {
		if b.Mesh == nil {
			return nil, fmt.Errorf("filter: mesh name given but no resolver configured")
		}
		ids, err := b.Mesh.ResolveMesh(ctx, p.meshName)
		if err != nil {
			return nil, fmt.Errorf("resolve mesh names: %w", err)
		}
		if len(ids) == 0 {
			return nil, &ValidationError{Field: "mesh_name", Msg: fmt.Sprintf("%q matches no MeSH heading", f.MeshName)}
		}
		p.meshIDs = append(p.meshIDs, ids...)
	}
	sort.Slice(p.meshIDs, func(i, j int) bool { return p.meshIDs[i] < p.meshIDs[j] })
	p.meshIDs = compactIDs(p.meshIDs)
	return p, nil
}

// Build prüft die Filter, ergänzt die Settings und setzt die Abfrage zusammen.
func (b *Builder) Build(ctx context.Context, f Filters, s Settings) (*Query, error) {
	p, err := b.parse(ctx, f)
	if err != nil {
		return nil, err
	}
	s, err = Infer(f, s)
	if err != nil {
		return nil, err
	}

	c := &clauses{params: map[string]any{}, counts: map[string]int{}}
	q := &Query{Settings: s, Params: c.params, Columns: map[string]int{}, Limit: p.limit}

	var journalConds, meshConds, affConds, articleConds, authorConds []string
	if len(p.journal) > 0 {
		journalConds = append(journalConds, c.textCondition("journal", "j.title", p.journal))
	}
	if len(p.meshIDs) > 0 {
		meshConds = append(meshConds, "m.id IN "+c.param("mesh_ids", p.meshIDs))
	}
	if len(p.affiliation) > 0 {
		affConds = append(affConds, c.textCondition("affiliation", "aff.name", p.affiliation))
	}
	if len(p.title) > 0 {
		articleConds = append(articleConds, c.textCondition("title", "art.title", p.title))
	}
	if p.after != "" {
		articleConds = append(articleConds, "art.date >= date("+c.param("published_after", p.after)+")")
	}
	if p.before != "" {
		articleConds = append(articleConds, "art.date <= date("+c.param("published_before", p.before)+")")
	}
	if len(p.author) > 0 {
		authorConds = append(authorConds, c.textCondition("author", "au.name", p.author))
	}
	switch {
	case f.FirstAuthorOnly && f.LastAuthorOnly:
		authorConds = append(authorConds, "(rel.is_first = true OR rel.is_last = true)")
	case f.FirstAuthorOnly:
		authorConds = append(authorConds, "rel.is_first = true")
	case f.LastAuthorOnly:
		authorConds = append(authorConds, "rel.is_last = true")
	}

	var parts []string
	var ret []string
	column := func(name, expr string) {
		q.Columns[name] = len(ret)
		if expr == name {
			ret = append(ret, name)
			return
		}
		ret = append(ret, expr+" AS "+name)
	}

	if !s.Articles {
		// Genau ein Typ ohne Artikelbezug.
		q.Single = true
		switch {
		case s.Journals:
			parts = append(parts, "MATCH (j:Journal)"+where(journalConds))
			column(ColJournal, "j.id")
		case s.Mesh:
			parts = append(parts, "MATCH (m:MeshHeading)"+where(meshConds))
			column(ColMesh, "m.id")
		case s.Affiliations:
			parts = append(parts, "MATCH (aff:Affiliation)"+where(affConds))
			column(ColAffiliation, "aff.id")
		default:
			parts = append(parts, "MATCH (au:Author)"+where(authorConds))
			column(ColAuthor, "au.id")
		}
	} else {
		if s.Journals {
			parts = append(parts, "MATCH (j:Journal)"+where(journalConds))
		}
		if s.Mesh {
			parts = append(parts, "MATCH (m:MeshHeading)"+where(meshConds))
		}
		if s.Affiliations {
			parts = append(parts, "MATCH (aff:Affiliation)"+where(affConds))
		}

		patterns := []string{"(art:Article)"}
		if s.Journals {
			patterns = append(patterns, "(art)-[:PUBLISHED_IN]->(j)")
		}
		if s.Mesh {
			patterns = append(patterns, "(art)-[:CATEGORISED_BY]->(m)")
		}
		if s.Authors {
			patterns = append(patterns, "(art)-[:HAS_AUTHOR]->(rel:ArticleAuthor)-[:AUTHORED_BY]->(au:Author)")
		}
		if s.Affiliations {
			patterns = append(patterns, "(rel)-[:AFFILIATED_WITH]->(aff)")
		}
		parts = append(parts, "MATCH "+strings.Join(patterns, ", ")+where(append(articleConds, authorConds...)))

		if s.CitationCounts {
			parts = append(parts, "CALL {\n  WITH art\n  MATCH (:Article)-[:CITES]->(art)\n  RETURN count(*) AS citation_count\n}")
		}
		if s.Citations {
			parts = append(parts, "OPTIONAL MATCH (art)-[:CITES]->(cited:Article)")
		}

		column(ColArticle, "art.pmid")
		if s.Authors {
			column(ColAuthor, "au.id")
		}
		if s.Journals {
			column(ColJournal, "j.id")
		}
		if s.Affiliations {
			column(ColAffiliation, "aff.id")
		}
		if s.Mesh {
			column(ColMesh, "m.id")
		}
		if s.CitationCounts {
			column(ColCitationCount, ColCitationCount)
		}
		if s.Citations {
			column(ColCited, "cited.pmid")
		}
		q.Single = s.entityCount() == 1 && !s.Citations && !s.CitationCounts
	}

	parts = append(parts, "RETURN DISTINCT "+strings.Join(ret, ", "))
	if q.Single {
		parts = append(parts, "LIMIT "+c.param("node_limit", q.Limit))
	}
	q.Text = strings.Join(parts, "\n")

	b.Logger.Debug("Filterabfrage erstellt",
		zap.Int("params", len(q.Params)),
		zap.Bool("single", q.Single),
		zap.Int("limit", q.Limit))
	return q, nil
}

func compactIDs(ids []int64) []int64 {
	if len(ids) < 2 {
		return ids
	}
	out := ids[:1]
	for _, id := range ids[1:] {
		if id != out[len(out)-1] {
			out = append(out, id)
		}
	}
	return out
}
