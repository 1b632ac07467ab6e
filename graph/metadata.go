package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pubmed-graph/models"
)

// MetadataStore speichert jede Metadaten-Version als eigenen DBMetadata-Knoten,
// verbunden über PREVIOUS_VERSION mit ihrer Vorgängerin.
type MetadataStore struct {
	client *Client
}

func NewMetadataStore(client *Client) *MetadataStore {
	return &MetadataStore{client: client}
}

// FetchLatest liefert die höchste Version oder nil, wenn noch keine existiert.
func (s *MetadataStore) FetchLatest(ctx context.Context) (*models.DBMetadata, error) {
	recs, err := s.client.collect(ctx, accessRead, LatestMetadataQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: fetch metadata: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	v, _ := recs[0].Get("m")
	return decodeMetadata(v)
}

// Push legt m als neue Version an und setzt m.Version auf die vergebene Nummer.
func (s *MetadataStore) Push(ctx context.Context, m *models.DBMetadata) error {
	files, err := json.Marshal(m.Files)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	pending := make([]any, len(m.PendingDeletes))
	for i, pmid := range m.PendingDeletes {
		pending[i] = pmid
	}
	recs, err := s.client.collect(ctx, accessWrite, PushMetadataQuery, map[string]any{
		"run_id":          m.RunID,
		"status":          string(m.Status),
		"mesh_file":       m.MeshFile,
		"mesh_hash":       m.MeshHash,
		"mesh_year":       int64(m.MeshYear),
		"created_at":      m.CreatedAt.Format(time.RFC3339Nano),
		"files_json":      string(files),
		"pending_deletes": pending,
	})
	if err != nil {
		return fmt.Errorf("graph: push metadata: %w", err)
	}
	if len(recs) > 0 {
		if v, ok := int64Value(recs[0], "version"); ok {
			m.Version = v
		}
	}
	return nil
}

func (s *MetadataStore) History(ctx context.Context) ([]models.DBMetadata, error) {
	recs, err := s.client.collect(ctx, accessRead, MetadataHistoryQuery, nil)
	if err != nil {
		return nil, fmt.Errorf("graph: metadata history: %w", err)
	}
	out := make([]models.DBMetadata, 0, len(recs))
	for _, rec := range recs {
		v, _ := rec.Get("m")
		m, err := decodeMetadata(v)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func decodeMetadata(v any) (*models.DBMetadata, error) {
	props, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("graph: unexpected metadata value %T", v)
	}
	str := func(k string) string {
		s, _ := props[k].(string)
		return s
	}
	m := &models.DBMetadata{
		RunID:    str("run_id"),
		Status:   models.Status(str("status")),
		MeshFile: str("mesh_file"),
		MeshHash: str("mesh_hash"),
	}
	if n, ok := props["version"].(int64); ok {
		m.Version = n
	}
	if n, ok := props["mesh_year"].(int64); ok {
		m.MeshYear = int(n)
	}
	if t, err := time.Parse(time.RFC3339Nano, str("created_at")); err == nil {
		m.CreatedAt = t
	}
	if list, ok := props["pending_deletes"].([]any); ok {
		for _, v := range list {
			if pmid, ok := v.(int64); ok {
				m.PendingDeletes = append(m.PendingDeletes, pmid)
			}
		}
	}
	if files := str("files_json"); files != "" {
		if err := json.Unmarshal([]byte(files), &m.Files); err != nil {
			return nil, fmt.Errorf("graph: decode files of version %d: %w", m.Version, err)
		}
	}
	return m, nil
}
