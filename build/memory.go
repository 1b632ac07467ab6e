package build

import (
	"context"
	"sort"
	"sync"

	"pubmed-graph/models"
)

// MemoryStore ist ein Store im Speicher. Er dient Trockenläufen ohne
// Datenbank und bildet dieselbe Semantik wie der Graph ab.
type MemoryStore struct {
	mu sync.Mutex

	journals     map[string]int64
	authors      map[string]int64
	affiliations map[string]int64
	mesh         map[int64]int64
	articles     map[int64]*memArticle
	relations    map[int64]*memRelation
}

type memArticle struct {
	title     string
	date      string
	journalID int64
	meshIDs   []int64
	cites     []int64
	relations []int64
}

type memRelation struct {
	pmid          int64
	position      int
	isFirst       bool
	isLast        bool
	orphaned      bool
	authorID      int64
	affiliationID int64
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		journals:     make(map[string]int64),
		authors:      make(map[string]int64),
		affiliations: make(map[string]int64),
		mesh:         make(map[int64]int64),
		articles:     make(map[int64]*memArticle),
		relations:    make(map[int64]*memRelation),
	}
}

// SetMesh legt MeSH-Deskriptoren an; die Knoten-ID ist die Deskriptor-ID.
func (m *MemoryStore) SetMesh(headings []models.MeshHeading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range headings {
		m.mesh[h.ID] = h.ID
	}
}

func upsertKeys(target map[string]int64, keys []string, ids []int64) map[string]int64 {
	out := make(map[string]int64, len(keys))
	for i, k := range keys {
		id, ok := target[k]
		if !ok {
			id = ids[i]
			target[k] = id
		}
		out[k] = id
	}
	return out
}

func (m *MemoryStore) UpsertJournals(ctx context.Context, journals []models.Journal) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ids := make([]string, len(journals)), make([]int64, len(journals))
	for i, j := range journals {
		keys[i], ids[i] = j.Key, j.ID
	}
	return upsertKeys(m.journals, keys, ids), nil
}

func (m *MemoryStore) UpsertAuthors(ctx context.Context, authors []models.Author) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ids := make([]string, len(authors)), make([]int64, len(authors))
	for i, a := range authors {
		keys[i], ids[i] = a.FullName, a.ID
	}
	return upsertKeys(m.authors, keys, ids), nil
}

func (m *MemoryStore) UpsertAffiliations(ctx context.Context, affiliations []models.Affiliation) (map[string]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys, ids := make([]string, len(affiliations)), make([]int64, len(affiliations))
	for i, a := range affiliations {
		keys[i], ids[i] = a.Name, a.ID
	}
	return upsertKeys(m.affiliations, keys, ids), nil
}

func (m *MemoryStore) MarkExistingArticles(ctx context.Context, pmids []int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orphaned []int64
	for _, pmid := range pmids {
		a, ok := m.articles[pmid]
		if !ok {
			continue
		}
		for _, id := range a.relations {
			if r, ok := m.relations[id]; ok {
				r.orphaned = true
				orphaned = append(orphaned, id)
			}
		}
		a.relations, a.cites, a.meshIDs, a.journalID = nil, nil, nil, 0
	}
	return orphaned, nil
}

func (m *MemoryStore) InsertArticles(ctx context.Context, rows []ArticleRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range rows {
		a, ok := m.articles[row.PMID]
		if !ok {
			a = &memArticle{}
			m.articles[row.PMID] = a
		}
		a.title, a.date, a.journalID = row.Title, row.Date, row.JournalID
		a.meshIDs = append([]int64(nil), row.MeshIDs...)
		for _, rel := range row.Relations {
			m.relations[rel.ID] = &memRelation{
				pmid:     row.PMID,
				position: rel.Position,
				isFirst:  rel.IsFirst,
				isLast:   rel.IsLast,
			}
			a.relations = append(a.relations, rel.ID)
		}
	}
	return nil
}

func (m *MemoryStore) InsertCitations(ctx context.Context, links []Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range links {
		from, ok := m.articles[l.From]
		if !ok {
			continue
		}
		if _, ok := m.articles[l.To]; !ok {
			continue
		}
		from.cites = appendUnique(from.cites, l.To)
	}
	return nil
}

func (m *MemoryStore) ConnectAuthors(ctx context.Context, links []Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range links {
		if r, ok := m.relations[l.From]; ok {
			r.authorID = l.To
		}
	}
	return nil
}

func (m *MemoryStore) ConnectAffiliations(ctx context.Context, links []Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range links {
		if r, ok := m.relations[l.From]; ok {
			r.affiliationID = l.To
		}
	}
	return nil
}

func (m *MemoryStore) DeleteRelations(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.relations, id)
	}
	return nil
}

func (m *MemoryStore) DeleteOrphanAuthors(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	used := make(map[int64]bool, len(m.authors))
	for _, r := range m.relations {
		used[r.authorID] = true
	}
	n := 0
	for name, id := range m.authors {
		if !used[id] {
			delete(m.authors, name)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) DeleteArticles(ctx context.Context, pmids []int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, pmid := range pmids {
		a, ok := m.articles[pmid]
		if !ok {
			continue
		}
		for _, id := range a.relations {
			delete(m.relations, id)
		}
		delete(m.articles, pmid)
		n++
	}
	for _, a := range m.articles {
		kept := a.cites[:0]
		for _, c := range a.cites {
			if _, ok := m.articles[c]; ok {
				kept = append(kept, c)
			}
		}
		a.cites = kept
	}
	return n, nil
}

func (m *MemoryStore) MeshIDs(ctx context.Context) (map[int64]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]int64, len(m.mesh))
	for k, v := range m.mesh {
		out[k] = v
	}
	return out, nil
}

// ArticlesWithMesh liefert die PMIDs aller Artikel mit dem Deskriptor, sortiert.
func (m *MemoryStore) ArticlesWithMesh(descriptor int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int64
	for pmid, a := range m.articles {
		for _, id := range a.meshIDs {
			if id == descriptor {
				out = append(out, pmid)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Cites liefert die ausgehenden CITES-Kanten eines Artikels.
func (m *MemoryStore) Cites(pmid int64) []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.articles[pmid]; ok {
		return append([]int64(nil), a.cites...)
	}
	return nil
}

// AuthorsOf liefert die Autorennamen eines Artikels in Positionsreihenfolge.
func (m *MemoryStore) AuthorsOf(pmid int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.articles[pmid]
	if !ok {
		return nil
	}
	names := make(map[int64]string, len(m.authors))
	for n, id := range m.authors {
		names[id] = n
	}
	rels := make([]*memRelation, 0, len(a.relations))
	for _, id := range a.relations {
		if r, ok := m.relations[id]; ok {
			rels = append(rels, r)
		}
	}
	sort.Slice(rels, func(i, j int) bool { return rels[i].position < rels[j].position })
	out := make([]string, 0, len(rels))
	for _, r := range rels {
		out = append(out, names[r.authorID])
	}
	return out
}

// MemoryStats zählt Knoten je Typ.
type MemoryStats struct {
	Articles     int `json:"articles"`
	Authors      int `json:"authors"`
	Journals     int `json:"journals"`
	Affiliations int `json:"affiliations"`
	Relations    int `json:"relations"`
	Orphaned     int `json:"orphaned"`
}

func (m *MemoryStore) Stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := MemoryStats{
		Articles:     len(m.articles),
		Authors:      len(m.authors),
		Journals:     len(m.journals),
		Affiliations: len(m.affiliations),
		Relations:    len(m.relations),
	}
	for _, r := range m.relations {
		if r.orphaned {
			s.Orphaned++
		}
	}
	return s
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
