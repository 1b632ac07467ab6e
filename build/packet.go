package build

import (
	"errors"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"pubmed-graph/models"
)

var ErrStageOrder = errors.New("build: stage called out of order")

// relationRef merkt sich, zu wem eine in Stufe 2 vergebene Beziehungs-ID gehört.
type relationRef struct {
	id          int64
	author      string
	affiliation string
}

// Packet ist ein Stapel Artikel samt ihrer eindeutigen Journale, Autoren und
// Affiliations. Die Stufen tragen ihre Ergebnisse hier ein.
type Packet struct {
	Seq    int
	Source string
	// Last markiert das letzte Paket seiner Quelldatei.
	Last bool

	Articles     []models.Article
	Journals     map[string]models.Journal
	Authors      map[string]models.Author
	Affiliations map[string]struct{}

	JournalIDs     map[string]int64
	AuthorIDs      map[string]int64
	AffiliationIDs map[string]int64

	orphaned  []int64
	relations []relationRef
	stage     int
}

// NewPacket entfernt doppelte PMIDs (das letzte Vorkommen gilt) und baut die Entitätslisten.
func NewPacket(seq int, source string, articles []models.Article, last bool) *Packet {
	lastIndex := make(map[int64]int, len(articles))
	for i, a := range articles {
		lastIndex[a.PMID] = i
	}
	deduped := make([]models.Article, 0, len(lastIndex))
	for i, a := range articles {
		if lastIndex[a.PMID] == i {
			deduped = append(deduped, a)
		}
	}

	p := &Packet{Seq: seq, Source: source, Last: last, Articles: deduped}
	p.index()
	return p
}

func (p *Packet) index() {
	p.Journals = make(map[string]models.Journal)
	p.Authors = make(map[string]models.Author)
	p.Affiliations = make(map[string]struct{})
	for _, a := range p.Articles {
		if a.Journal != nil {
			if _, ok := p.Journals[a.Journal.Key]; !ok {
				p.Journals[a.Journal.Key] = *a.Journal
			}
		}
		for _, rel := range a.Authors {
			if _, ok := p.Authors[rel.Author.FullName]; !ok {
				p.Authors[rel.Author.FullName] = rel.Author
			}
			if rel.Affiliation != "" {
				p.Affiliations[rel.Affiliation] = struct{}{}
			}
		}
	}
}

// PMIDs liefert die PMIDs des Pakets.
func (p *Packet) PMIDs() mapset.Set[int64] {
	s := mapset.NewThreadUnsafeSetWithSize[int64](len(p.Articles))
	for _, a := range p.Articles {
		s.Add(a.PMID)
	}
	return s
}

// Strip entfernt alle Artikel mit PMIDs aus pmids und baut die Entitätslisten neu.
// Nur vor Stufe 1 zulässig.
func (p *Packet) Strip(pmids mapset.Set[int64]) int {
	if pmids.Cardinality() == 0 {
		return 0
	}
	kept := p.Articles[:0]
	removed := 0
	for _, a := range p.Articles {
		if pmids.Contains(a.PMID) {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	if removed > 0 {
		p.Articles = kept
		p.index()
	}
	return removed
}

// Stage liefert die zuletzt begonnene Stufe (0 = noch keine).
func (p *Packet) Stage() int {
	return p.stage
}

// begin prüft, dass Stufe n direkt auf Stufe n-1 folgt.
func (p *Packet) begin(n int) error {
	if p.stage != n-1 {
		return fmt.Errorf("%w: packet %d at stage %d, requested %d", ErrStageOrder, p.Seq, p.stage, n)
	}
	p.stage = n
	return nil
}

func (p *Packet) Empty() bool {
	return len(p.Articles) == 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
