package models

// Author wird über den vollständig gerenderten Namen identifiziert. Gleicher
// Name bedeutet gleicher Autor. Die ID vergibt der Prozess, nie die Quelle.
type Author struct {
	ID           int64  `json:"id,omitempty"`
	FullName     string `json:"full_name"`
	IsCollective bool   `json:"is_collective"`
}

// Journal wird über die ISSN identifiziert, ersatzweise über "[ISO-Abkürzung]".
type Journal struct {
	ID    int64  `json:"id,omitempty"`
	Key   string `json:"key"`
	Title string `json:"title"`
}

// Affiliation wird über den Freitext-Namen identifiziert.
type Affiliation struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
}

// MeshHeading ist ein MeSH-Deskriptor aus dem jährlichen desc<year>.xml.
type MeshHeading struct {
	ID          int64    `json:"id"`
	UI          string   `json:"ui"`
	Name        string   `json:"name"`
	TreeNumbers []string `json:"tree_numbers,omitempty"`
}
