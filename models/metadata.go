package models

import (
	"sort"
	"time"
)

// Status beschreibt den Gesamtzustand der Ingestion.
type Status string

const (
	StatusUpdating Status = "Updating"
	StatusNormal   Status = "Normal"
	StatusError    Status = "Error"
)

// DBMetadata ist eine Version des Ingestion-Fortschritts. Jede neue Version
// erhält die nächsthöhere Nummer; die höchste Nummer ist maßgeblich.
type DBMetadata struct {
	Version   int64     `json:"version" gorm:"primaryKey;autoIncrement:false"`
	RunID     string    `json:"run_id" gorm:"index"`
	Status    Status    `json:"status" gorm:"type:varchar(16)"`
	MeshFile  string    `json:"mesh_file,omitempty"`
	MeshHash  string    `json:"mesh_hash,omitempty"`
	MeshYear  int       `json:"mesh_year,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	// PendingDeletes sind zurückgezogene PMIDs verarbeiteter Dateien, die noch
	// nicht aus dem Graphen gelöscht wurden.
	PendingDeletes []int64 `json:"pending_deletes,omitempty" gorm:"type:text;serializer:json"`

	Files []FileMetadata `json:"files" gorm:"foreignKey:MetadataVersion;references:Version"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (DBMetadata) TableName() string {
	return "db_metadata"
}

// FileMetadata beschreibt den Verarbeitungsstand einer Quelldatei.
type FileMetadata struct {
	ID              uint   `json:"-" gorm:"primaryKey"`
	MetadataVersion int64  `json:"-" gorm:"index"`
	Group           string `json:"group"`
	Name            string `json:"name"`
	Processed       bool   `json:"processed"`
	Hash            string `json:"hash,omitempty"`
	ArticleCount    int    `json:"article_count"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (FileMetadata) TableName() string {
	return "db_metadata_files"
}

// Clone erzeugt eine tiefe Kopie als Ausgangspunkt für die nächste Version.
func (m *DBMetadata) Clone() *DBMetadata {
	if m == nil {
		return &DBMetadata{}
	}
	c := *m
	c.Files = make([]FileMetadata, len(m.Files))
	for i, f := range m.Files {
		f.ID = 0
		f.MetadataVersion = 0
		c.Files[i] = f
	}
	c.PendingDeletes = append([]int64(nil), m.PendingDeletes...)
	return &c
}

// File sucht den Eintrag einer Datei; nil, wenn unbekannt.
func (m *DBMetadata) File(group, name string) *FileMetadata {
	for i := range m.Files {
		if m.Files[i].Group == group && m.Files[i].Name == name {
			return &m.Files[i]
		}
	}
	return nil
}

// SetFile ersetzt oder ergänzt einen Dateieintrag; die Liste bleibt nach Gruppe und Name sortiert.
func (m *DBMetadata) SetFile(f FileMetadata) {
	if existing := m.File(f.Group, f.Name); existing != nil {
		*existing = f
		return
	}
	m.Files = append(m.Files, f)
	sort.Slice(m.Files, func(i, j int) bool {
		if m.Files[i].Group != m.Files[j].Group {
			return m.Files[i].Group < m.Files[j].Group
		}
		return m.Files[i].Name < m.Files[j].Name
	})
}

// ProcessedCount zählt die bereits verarbeiteten Dateien.
func (m *DBMetadata) ProcessedCount() int {
	n := 0
	for _, f := range m.Files {
		if f.Processed {
			n++
		}
	}
	return n
}
