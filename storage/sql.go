package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pubmed-graph/config"
	"pubmed-graph/models"
)

// OpenSQL öffnet die Metadaten-Datenbank: Postgres über DB_DSN, sonst SQLite über SQLITE_PATH.
func OpenSQL(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch {
	case cfg.DBDSN != "":
		dialector = postgres.Open(cfg.DBDSN)
	case cfg.SQLitePath != "":
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("storage: neither DB_DSN nor SQLITE_PATH set")
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&models.DBMetadata{}, &models.FileMetadata{}); err != nil {
		return nil, fmt.Errorf("storage: migrate metadata: %w", err)
	}
	return db, nil
}

// SQLMetadataStore hält die Metadaten-Versionen relational; jede Version
// besitzt ihre eigenen Dateizeilen.
type SQLMetadataStore struct {
	db *gorm.DB
}

func NewSQLMetadataStore(db *gorm.DB) *SQLMetadataStore {
	return &SQLMetadataStore{db: db}
}

func orderedFiles(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}

func (s *SQLMetadataStore) FetchLatest(ctx context.Context) (*models.DBMetadata, error) {
	var m models.DBMetadata
	err := s.db.WithContext(ctx).Preload("Files", orderedFiles).Order("version desc").First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Push speichert eine Kopie von m als nächste Version.
func (s *SQLMetadataStore) Push(ctx context.Context, m *models.DBMetadata) error {
	row := m.Clone()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest int64
		if err := tx.Model(&models.DBMetadata{}).Select("COALESCE(MAX(version), 0)").Scan(&latest).Error; err != nil {
			return err
		}
		row.Version = latest + 1
		return tx.Create(row).Error
	})
	if err != nil {
		return fmt.Errorf("storage: push metadata: %w", err)
	}
	m.Version = row.Version
	m.CreatedAt = row.CreatedAt
	return nil
}

func (s *SQLMetadataStore) History(ctx context.Context) ([]models.DBMetadata, error) {
	var list []models.DBMetadata
	err := s.db.WithContext(ctx).Preload("Files", orderedFiles).Order("version").Find(&list).Error
	return list, err
}
