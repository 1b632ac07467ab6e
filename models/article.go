package models

import (
	"time"
)

// Article repräsentiert einen PubMed-Eintrag. Identität ist die PMID; ein
// erneuter Import derselben PMID ersetzt die vorige Version vollständig.
type Article struct {
	PMID  int64      `json:"pmid"`
	Date  *time.Time `json:"date,omitempty"`
	Title string     `json:"title"`

	Journal *Journal         `json:"journal,omitempty"`
	Authors []AuthorRelation `json:"authors,omitempty"`

	// References enthält die PMIDs der zitierten Artikel.
	References []int64 `json:"references,omitempty"`
	// MeshIDs enthält die numerischen Deskriptor-IDs (D008875 -> 68008875).
	MeshIDs []int64 `json:"mesh_ids,omitempty"`
}

// AuthorRelation ist die Kante Artikel -> Autor ("ArticleAuthor" im Graphen).
// Affiliation ist leer, wenn keine Zugehörigkeit angegeben ist.
type AuthorRelation struct {
	Author      Author `json:"author"`
	Affiliation string `json:"affiliation,omitempty"`
	Position    int    `json:"position"`
	IsFirst     bool   `json:"is_first"`
	IsLast      bool   `json:"is_last"`
}

// DateString formatiert das Publikationsdatum als YYYY-MM-DD oder gibt "" zurück.
func (a *Article) DateString() string {
	if a.Date == nil {
		return ""
	}
	return a.Date.Format("2006-01-02")
}
