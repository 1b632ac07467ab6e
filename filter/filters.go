// Package filter übersetzt Filterkriterien in parametrisierte Cypher-Abfragen,
// führt sie mit Knotenlimit aus und hält die letzten Ergebnisse vor.
package filter

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrValidation     = errors.New("filter: invalid filter")
	ErrNothingToQuery = errors.New("filter: nothing to query")
	ErrLimitReached   = errors.New("filter: node limit reached")
)

// ValidationError ist ein Eingabefehler, der unverändert an den Aufrufer geht.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("filter: %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// LimitError meldet, dass die Ergebnismenge das Knotenlimit erreicht hat.
type LimitError struct {
	Limit int
	Rows  int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("filter: %d rows reach the node limit of %d, narrow your filters", e.Rows, e.Limit)
}

func (e *LimitError) Unwrap() error { return ErrLimitReached }

// admit prüft eine Zeilenzahl gegen das Limit von q.
func admit(q *Query, rows int) error {
	if q.Limit > 0 && rows >= q.Limit {
		return &LimitError{Limit: q.Limit, Rows: rows}
	}
	return nil
}

// Filters sind die optionalen Kriterien einer Abfrage. Textfelder verwenden
// die Token-Syntax aus TextOptions.
type Filters struct {
	Journal         string  `json:"journal,omitempty" yaml:"journal,omitempty"`
	MeshName        string  `json:"mesh_name,omitempty" yaml:"mesh_name,omitempty"`
	MeshIDs         []int64 `json:"mesh_ids,omitempty" yaml:"mesh_ids,omitempty"`
	Author          string  `json:"author,omitempty" yaml:"author,omitempty"`
	Title           string  `json:"title,omitempty" yaml:"title,omitempty"`
	Affiliation     string  `json:"affiliation,omitempty" yaml:"affiliation,omitempty"`
	FirstAuthorOnly bool    `json:"first_author_only,omitempty" yaml:"first_author_only,omitempty"`
	LastAuthorOnly  bool    `json:"last_author_only,omitempty" yaml:"last_author_only,omitempty"`
	// PublishedAfter und PublishedBefore sind inklusive Grenzen im Format YYYY-MM-DD.
	PublishedAfter  string `json:"published_after,omitempty" yaml:"published_after,omitempty"`
	PublishedBefore string `json:"published_before,omitempty" yaml:"published_before,omitempty"`
	// NodeLimit 0 verwendet das Standardlimit des Builders.
	NodeLimit int `json:"node_limit,omitempty" yaml:"node_limit,omitempty"`
}

// Settings bestimmt, welche Entitätstypen abgefragt werden.
type Settings struct {
	Articles       bool `json:"articles,omitempty" yaml:"articles,omitempty"`
	Authors        bool `json:"authors,omitempty" yaml:"authors,omitempty"`
	Journals       bool `json:"journals,omitempty" yaml:"journals,omitempty"`
	Affiliations   bool `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
	Mesh           bool `json:"mesh,omitempty" yaml:"mesh,omitempty"`
	Citations      bool `json:"citations,omitempty" yaml:"citations,omitempty"`
	CitationCounts bool `json:"citation_counts,omitempty" yaml:"citation_counts,omitempty"`
}

func (s Settings) entityCount() int {
	n := 0
	for _, b := range []bool{s.Articles, s.Authors, s.Journals, s.Affiliations, s.Mesh} {
		if b {
			n++
		}
	}
	return n
}

// Infer ergänzt die Entitätstypen, die ein gesetzter Filter voraussetzt.
func Infer(f Filters, s Settings) (Settings, error) {
	if f.Journal != "" {
		s.Journals, s.Articles = true, true
	}
	if f.MeshName != "" || len(f.MeshIDs) > 0 {
		s.Mesh, s.Articles = true, true
	}
	if f.Author != "" || f.FirstAuthorOnly || f.LastAuthorOnly {
		s.Authors, s.Articles = true, true
	}
	if f.Affiliation != "" {
		s.Affiliations, s.Authors, s.Articles = true, true, true
	}
	if f.Title != "" || f.PublishedAfter != "" || f.PublishedBefore != "" {
		s.Articles = true
	}
	if s.Citations || s.CitationCounts {
		s.Articles = true
	}
	// Mehrere Typen werden immer über die Artikel verbunden.
	if s.entityCount() > 1 {
		s.Articles = true
	}
	if s.Affiliations && s.Articles {
		s.Authors = true
	}
	if s.entityCount() == 0 {
		return s, ErrNothingToQuery
	}
	return s, nil
}

const dateLayout = "2006-01-02"

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, &ValidationError{Field: field, Msg: fmt.Sprintf("%q is not a YYYY-MM-DD date", value)}
	}
	return t, nil
}
