package build

import (
	"context"

	"pubmed-graph/models"
)

// ArticleRow ist ein Artikel, wie er in Stufe 2b geschrieben wird. Alle IDs
// sind bereits aufgelöst; JournalID 0 heißt ohne Journal.
type ArticleRow struct {
	PMID      int64
	Title     string
	Date      string
	JournalID int64
	MeshIDs   []int64
	Relations []RelationRow
}

// RelationRow ist der Platzhalter einer Artikel-Autor-Beziehung mit vorab vergebener ID.
type RelationRow struct {
	ID       int64
	Position int
	IsFirst  bool
	IsLast   bool
}

// Link verbindet zwei IDs (Beziehung -> Autor, Beziehung -> Affiliation, PMID -> PMID).
type Link struct {
	From int64
	To   int64
}

// Store ist die Schreibschnittstelle des Graphen für die Pipeline. Jede
// Methode erhält höchstens BatchSize Zeilen.
type Store interface {
	// Upsert* legen fehlende Entitäten mit der mitgegebenen ID an und liefern
	// für jeden natürlichen Schlüssel die tatsächliche ID.
	UpsertJournals(ctx context.Context, journals []models.Journal) (map[string]int64, error)
	UpsertAuthors(ctx context.Context, authors []models.Author) (map[string]int64, error)
	UpsertAffiliations(ctx context.Context, affiliations []models.Affiliation) (map[string]int64, error)

	// MarkExistingArticles markiert die Beziehungen vorhandener Artikel als
	// verwaist, entfernt deren ausgehende Kanten und liefert die Beziehungs-IDs.
	MarkExistingArticles(ctx context.Context, pmids []int64) ([]int64, error)
	InsertArticles(ctx context.Context, rows []ArticleRow) error
	// InsertCitations legt CITES-Kanten nur zu bereits vorhandenen Artikeln an.
	InsertCitations(ctx context.Context, links []Link) error

	ConnectAuthors(ctx context.Context, links []Link) error
	ConnectAffiliations(ctx context.Context, links []Link) error
	DeleteRelations(ctx context.Context, ids []int64) error

	DeleteOrphanAuthors(ctx context.Context) (int, error)
	DeleteArticles(ctx context.Context, pmids []int64) (int, error)
	// MeshIDs bildet Deskriptor-IDs auf Knoten-IDs ab.
	MeshIDs(ctx context.Context) (map[int64]int64, error)
}

// inBatches ruft fn für aufeinanderfolgende Teilstücke von höchstens size Elementen auf.
func inBatches[T any](items []T, size int, fn func([]T) error) error {
	if size <= 0 {
		size = len(items)
	}
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		if err := fn(items[start:end]); err != nil {
			return err
		}
	}
	return nil
}
