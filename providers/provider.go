package providers

import (
	"context"
	"strings"
)

// File ist ein Eintrag eines entfernten Verzeichnisses.
type File struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Pair fasst eine Datendatei (name.xml.gz) und ihre Prüfsummendatei (name.xml.gz.md5) zusammen.
type Pair struct {
	Data File `json:"data"`
	Hash File `json:"hash"`
}

// Stem gibt den Dateinamen ohne .xml.gz zurück, z.B. "pubmed24n0001".
func (p Pair) Stem() string {
	return strings.TrimSuffix(p.Data.Name, ".xml.gz")
}

// SyncReport fasst das Ergebnis eines Verzeichnis-Syncs zusammen.
type SyncReport struct {
	Downloaded int              `json:"downloaded"`
	Bytes      int64            `json:"bytes"`
	Mismatches int              `json:"mismatches"`
	Failed     map[string]error `json:"-"`
}

// Source ist das Interface, das jede Bezugsquelle für PubMed-Dateipaare implementieren muss.
type Source interface {
	// ListPairs listet alle (Daten, Prüfsumme)-Paare eines entfernten Verzeichnisses.
	ListPairs(ctx context.Context, dir string) ([]Pair, error)

	// Sync lädt die Paare nach workDir. Ein Fehler wird nur zurückgegeben, wenn
	// der gesamte Lauf abgebrochen wurde; Fehler einzelner Paare stehen im Report.
	Sync(ctx context.Context, dir string, pairs []Pair, workDir string) (*SyncReport, error)

	// Name gibt den eindeutigen Namen der Quelle zurück (z.B. "ftp").
	Name() string
}
