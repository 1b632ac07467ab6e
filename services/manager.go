package services

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"pubmed-graph/build"
	"pubmed-graph/config"
	"pubmed-graph/models"
	"pubmed-graph/providers"
	"pubmed-graph/providers/ftp"
	"pubmed-graph/providers/pubmed"
	"pubmed-graph/storage"
)

var ErrIngestionFailed = errors.New("services: ingestion failed")

// MetadataStore speichert die Versionen des Ingestion-Fortschritts. Push legt
// immer eine neue Version an (höchste Nummer + 1) und setzt m.Version.
type MetadataStore interface {
	// FetchLatest liefert nil, wenn noch keine Version existiert.
	FetchLatest(ctx context.Context) (*models.DBMetadata, error)
	Push(ctx context.Context, m *models.DBMetadata) error
	History(ctx context.Context) ([]models.DBMetadata, error)
}

// MeshLoader schreibt die MeSH-Deskriptoren eines Jahrgangs in den Store.
type MeshLoader func(ctx context.Context, headings []models.MeshHeading) error

// Manager orchestriert Download und Aufbau des Graphen.
type Manager struct {
	Config    *config.Config
	Source    providers.Source
	Extractor *pubmed.Extractor
	Mesh      *pubmed.MeshReader
	Store     build.Store
	Seq       build.Sequence
	Metadata  MetadataStore
	LoadMesh  MeshLoader
	// Archive ist optional und nimmt die Fehlerdumps nach einem Lauf auf.
	Archive *storage.Archive
	Logger  *zap.Logger

	mu       sync.Mutex
	meta     *models.DBMetadata
	pipeline *build.Pipeline
	pushErr  error
}

// Status liefert eine Kopie der zuletzt geschriebenen Metadaten-Version.
func (m *Manager) Status() *models.DBMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.meta == nil {
		return nil
	}
	return m.meta.Clone()
}

// Utilisation liefert die Auslastung der laufenden Pipeline oder "" ohne Lauf.
func (m *Manager) Utilisation() string {
	m.mu.Lock()
	p := m.pipeline
	m.mu.Unlock()
	if p == nil {
		return ""
	}
	return p.Utilisation()
}

// Sync lädt alle lokal fehlenden Dateipaare herunter.
func (m *Manager) Sync(ctx context.Context) error {
	for _, dir := range m.Config.DataDirs() {
		log := m.Logger.With(zap.String("dir", dir.Remote))
		if err := os.MkdirAll(dir.Local, 0o755); err != nil {
			return err
		}

		pairs, err := m.Source.ListPairs(ctx, dir.Remote)
		if err != nil {
			return fmt.Errorf("list %s: %w", dir.Remote, err)
		}
		missing := missingPairs(dir.Local, pairs)
		if len(missing) == 0 {
			log.Info("Verzeichnis ist aktuell", zap.Int("pairs", len(pairs)))
			continue
		}
		log.Info("Starte Download", zap.Int("missing", len(missing)), zap.Int("pairs", len(pairs)))

		report, err := m.Source.Sync(ctx, dir.Remote, missing, dir.Local)
		if err != nil {
			return fmt.Errorf("sync %s: %w", dir.Remote, err)
		}
		for name, ferr := range report.Failed {
			log.Error("Dateipaar fehlgeschlagen", zap.String("file", name), zap.Error(ferr))
		}
		log.Info("Download abgeschlossen",
			zap.Int("downloaded", report.Downloaded),
			zap.Int64("bytes", report.Bytes),
			zap.Int("mismatches", report.Mismatches),
			zap.Int("failed", len(report.Failed)))
	}
	return nil
}

// missingPairs liefert die Paare, deren Daten- oder Prüfsummendatei lokal fehlt
// oder deren Datendatei eine andere Größe hat.
func missingPairs(dir string, pairs []providers.Pair) []providers.Pair {
	var out []providers.Pair
	for _, p := range pairs {
		data, err := os.Stat(filepath.Join(dir, p.Data.Name))
		if err != nil || data.Size() != p.Data.Size {
			out = append(out, p)
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, p.Hash.Name)); err != nil {
			out = append(out, p)
		}
	}
	return out
}

// HashFile berechnet den MD5-Hex-Digest einer Datei.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// fileHash bevorzugt den Digest aus der .md5-Datei neben path.
func fileHash(path string) (string, error) {
	if content, err := os.ReadFile(path + ".md5"); err == nil {
		if _, digest, err := ftp.ParseChecksum(content); err == nil {
			return digest, nil
		}
	}
	return HashFile(path)
}

// localFile ist eine Quelldatei in Verarbeitungsreihenfolge.
type localFile struct {
	group string
	name  string
	path  string
}

func (m *Manager) localFiles() ([]localFile, error) {
	var out []localFile
	for _, dir := range m.Config.DataDirs() {
		entries, err := os.ReadDir(dir.Local)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".xml.gz") {
				names = append(names, e.Name())
			}
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, localFile{group: dir.Name, name: n, path: filepath.Join(dir.Local, n)})
		}
	}
	return out, nil
}

// push schreibt den aktuellen Stand als neue Version. Aufrufer hält m.mu.
func (m *Manager) push(ctx context.Context) error {
	next := m.meta.Clone()
	next.CreatedAt = time.Time{}
	if err := m.Metadata.Push(ctx, next); err != nil {
		return err
	}
	m.meta = next
	return nil
}

func (m *Manager) setStatus(ctx context.Context, s models.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta.Status = s
	return m.push(ctx)
}

// Extract verarbeitet alle lokalen Dateien, die noch nicht verarbeitet sind.
func (m *Manager) Extract(ctx context.Context) (err error) {
	runID := uuid.NewString()
	log := m.Logger.With(zap.String("run", runID))

	latest, err := m.Metadata.FetchLatest(ctx)
	if err != nil {
		return fmt.Errorf("%w: fetch metadata: %w", ErrIngestionFailed, err)
	}
	m.mu.Lock()
	m.meta = latest.Clone()
	m.meta.RunID = runID
	m.pushErr = nil
	m.mu.Unlock()

	if err := m.setStatus(ctx, models.StatusUpdating); err != nil {
		return fmt.Errorf("%w: push metadata: %w", ErrIngestionFailed, err)
	}

	defer func() {
		if err == nil {
			return
		}
		log.Error("Ingestion fehlgeschlagen", zap.Error(err))
		if serr := m.setStatus(context.WithoutCancel(ctx), models.StatusError); serr != nil {
			log.Error("Fehlerstatus nicht geschrieben", zap.Error(serr))
		}
		err = fmt.Errorf("%w: %w", ErrIngestionFailed, err)
	}()

	if err := m.refreshMesh(ctx, log); err != nil {
		return err
	}

	files, err := m.localFiles()
	if err != nil {
		return err
	}

	b := &build.Builder{
		Store: m.Store,
		Cache: build.NewCache(build.Limits{
			Journals:     m.Config.CacheMaxJournals,
			Authors:      m.Config.CacheMaxAuthors,
			Affiliations: m.Config.CacheMaxAffiliations,
		}),
		Seq:       m.Seq,
		BatchSize: m.Config.BuildBatchSize,
		Logger:    m.Logger,
	}
	if err := b.LoadMesh(ctx); err != nil {
		return err
	}

	pending := map[int]localFile{}
	p := &build.Pipeline{
		Builder:   b,
		QueueSize: m.Config.BuildQueueSize,
		Careful:   m.Config.BuildCareful,
		Logger:    m.Logger,
	}
	p.OnDone = func(pkt *build.Packet) {
		articlesIngested.Add(float64(len(pkt.Articles)))
		recordUtilisation(p.Stages())
		if !pkt.Last {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		f := pending[pkt.Seq]
		delete(pending, pkt.Seq)
		if fm := m.meta.File(f.group, f.name); fm != nil {
			fm.Processed = true
		}
		if err := m.push(ctx); err != nil && m.pushErr == nil {
			m.pushErr = err
		}
		filesProcessed.Inc()
		log.Info("Datei verarbeitet", zap.String("file", f.name), zap.String("pipeline", p.Utilisation()))
	}

	m.mu.Lock()
	m.pipeline = p
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.pipeline = nil
		m.mu.Unlock()
	}()

	run := p.Start(ctx)
	// Zurückgezogene PMIDs eines abgebrochenen Laufs bleiben vorgemerkt.
	m.mu.Lock()
	deleted := mapset.NewThreadUnsafeSet[int64](m.meta.PendingDeletes...)
	m.mu.Unlock()
	submitted, seq := 0, 0
	var submitErr error

files:
	for _, f := range files {
		flog := log.With(zap.String("file", f.name))
		hash, err := fileHash(f.path)
		if err != nil {
			submitErr = err
			break
		}

		m.mu.Lock()
		fm := m.meta.File(f.group, f.name)
		skip := fm != nil && fm.Processed && (!m.Config.ExtractVerifyHash || fm.Hash == hash)
		m.mu.Unlock()
		if skip {
			continue
		}
		if fm != nil && fm.Processed {
			flog.Info("Datei hat sich geändert, verarbeite erneut")
		}
		if limit := m.Config.ExtractMaxFiles; limit > 0 && submitted >= limit {
			flog.Info("Dateilimit erreicht", zap.Int("max", limit))
			break
		}

		res, err := m.Extractor.ExtractFile(ctx, f.path)
		if err != nil {
			submitErr = err
			break
		}
		flog.Info("Datei gelesen",
			zap.Int("articles", len(res.Articles)),
			zap.Int("skipped", res.Skipped),
			zap.Int("deleted", len(res.Deleted)))

		for _, a := range res.Articles {
			deleted.Remove(a.PMID)
		}
		for _, pmid := range res.Deleted {
			deleted.Add(pmid)
		}

		m.mu.Lock()
		m.meta.SetFile(models.FileMetadata{Group: f.group, Name: f.name, Hash: hash, ArticleCount: len(res.Articles)})
		m.meta.PendingDeletes = sortedPMIDs(deleted)
		m.mu.Unlock()

		for _, pkt := range m.packets(&seq, f, res.Articles) {
			if pkt.Last {
				m.mu.Lock()
				pending[pkt.Seq] = f
				m.mu.Unlock()
			}
			if err := run.Submit(pkt); err != nil {
				submitErr = err
				break files
			}
		}
		submitted++
	}

	if err := run.Close(); err != nil {
		return err
	}
	if submitErr != nil {
		return submitErr
	}
	m.mu.Lock()
	pushErr := m.pushErr
	m.mu.Unlock()
	if pushErr != nil {
		return fmt.Errorf("push metadata: %w", pushErr)
	}

	if err := m.cleanup(ctx, log, sortedPMIDs(deleted)); err != nil {
		return err
	}
	m.mu.Lock()
	m.meta.PendingDeletes = nil
	m.mu.Unlock()
	if m.Archive != nil {
		n, err := m.Archive.UploadErrorDumps(ctx, m.Config.ErrorsDir())
		if err != nil {
			log.Warn("Fehlerdumps nicht archiviert", zap.Error(err))
		} else if n > 0 {
			log.Info("Fehlerdumps archiviert", zap.Int("count", n))
		}
	}

	if err := m.setStatus(ctx, models.StatusNormal); err != nil {
		return err
	}
	log.Info("Ingestion abgeschlossen", zap.Int("files", submitted))
	return nil
}

// packets schneidet die Artikel einer Datei in Pakete; eine leere Datei ergibt
// ein leeres letztes Paket, damit sie als verarbeitet markiert wird.
func (m *Manager) packets(seq *int, f localFile, articles []models.Article) []*build.Packet {
	source := f.group + "/" + f.name
	if len(articles) == 0 {
		*seq++
		return []*build.Packet{build.NewPacket(*seq, source, nil, true)}
	}
	size := m.Config.BuildPacketSize
	if size <= 0 {
		size = len(articles)
	}
	var out []*build.Packet
	for start := 0; start < len(articles); start += size {
		end := min(start+size, len(articles))
		*seq++
		out = append(out, build.NewPacket(*seq, source, articles[start:end], end == len(articles)))
	}
	return out
}

func sortedPMIDs(s mapset.Set[int64]) []int64 {
	out := s.ToSlice()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// cleanup löscht zurückgezogene Artikel und danach verwaiste Autoren.
func (m *Manager) cleanup(ctx context.Context, log *zap.Logger, deleted []int64) error {
	batch := m.Config.BuildBatchSize
	if batch <= 0 {
		batch = len(deleted)
	}
	total := 0
	for start := 0; start < len(deleted); start += batch {
		end := min(start+batch, len(deleted))
		n, err := m.Store.DeleteArticles(ctx, deleted[start:end])
		if err != nil {
			return fmt.Errorf("delete articles: %w", err)
		}
		total += n
	}
	if total > 0 {
		log.Info("Zurückgezogene Artikel gelöscht", zap.Int("count", total))
	}

	n, err := m.Store.DeleteOrphanAuthors(ctx)
	if err != nil {
		return fmt.Errorf("delete orphan authors: %w", err)
	}
	log.Info("Verwaiste Autoren gelöscht", zap.Int("count", n))
	return nil
}

// refreshMesh lädt den neuesten MeSH-Jahrgang, wenn sich dessen Hash geändert hat.
func (m *Manager) refreshMesh(ctx context.Context, log *zap.Logger) error {
	path, year, err := pubmed.LatestMeshFile(m.Config.MeshDir())
	if err != nil {
		log.Warn("Keine MeSH-Datei gefunden, Artikel erhalten keine MeSH-Kanten", zap.Error(err))
		return nil
	}
	hash, err := HashFile(path)
	if err != nil {
		return err
	}

	m.mu.Lock()
	current := m.meta.MeshHash
	m.mu.Unlock()
	if current == hash {
		return nil
	}

	headings, err := m.Mesh.ReadDescriptors(ctx, path)
	if err != nil {
		return fmt.Errorf("read mesh %s: %w", path, err)
	}
	if err := m.LoadMesh(ctx, headings); err != nil {
		return fmt.Errorf("load mesh: %w", err)
	}
	log.Info("MeSH geladen", zap.Int("year", year), zap.Int("descriptors", len(headings)))

	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta.MeshFile = filepath.Base(path)
	m.meta.MeshHash = hash
	m.meta.MeshYear = year
	return m.push(ctx)
}
