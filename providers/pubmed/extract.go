package pubmed

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pubmed-graph/config"
	"pubmed-graph/models"
)

// ArticleError betrifft genau einen Artikel; die übrige Datei wird weiter gelesen.
type ArticleError struct {
	File string
	PMID string
	Err  error
}

func (e *ArticleError) Error() string {
	return fmt.Sprintf("pubmed: %s pmid %s: %v", e.File, e.PMID, e.Err)
}

func (e *ArticleError) Unwrap() error { return e.Err }

// FileResult ist das Ergebnis einer Datei.
type FileResult struct {
	Name     string
	Articles []models.Article
	// Deleted enthält PMIDs aus <DeleteCitation>.
	Deleted []int64
	// Skipped zählt Artikel, die wegen eines ArticleError verworfen wurden.
	Skipped int
	Dumps   []string
}

// Extractor wandelt eine PubMed-XML-Datei in Artikel um.
type Extractor struct {
	Logger *zap.Logger
	DTD    *DTDResolver
	// ErrorsDir nimmt Roh-XML fehlerhafter Artikel auf; leer schaltet Dumps ab.
	ErrorsDir               string
	MaxCollectiveNameLength int
}

// NewExtractor erstellt einen Extractor nach Konfiguration.
func NewExtractor(cfg *config.Config, logger *zap.Logger) *Extractor {
	return &Extractor{
		Logger:                  logger,
		DTD:                     NewDTDResolver(cfg.DTDDir(), logger),
		ErrorsDir:               cfg.ErrorsDir(),
		MaxCollectiveNameLength: cfg.MaxCollectiveNameLength,
	}
}

func newDecoder(r io.Reader) *xml.Decoder {
	d := xml.NewDecoder(r)
	d.Entity = make(map[string]string, len(xml.HTMLEntity))
	for k, v := range xml.HTMLEntity {
		d.Entity[k] = v
	}
	return d
}

// applyDoctype ergänzt die Entitäten des Decoders um die der referenzierten DTD.
func applyDoctype(ctx context.Context, d *xml.Decoder, dir xml.Directive, r *DTDResolver, logger *zap.Logger) {
	if r == nil {
		return
	}
	sysID := doctypeSystemID(dir)
	if sysID == "" {
		return
	}
	ents, err := r.Entities(ctx, sysID)
	if err != nil {
		logger.Warn("DTD nicht auflösbar, verwende Standard-Entitäten", zap.String("dtd", sysID), zap.Error(err))
		return
	}
	for k, v := range ents {
		d.Entity[k] = v
	}
}

// ExtractFile liest eine .xml.gz-Datei.
func (e *Extractor) ExtractFile(ctx context.Context, path string) (*FileResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	defer gz.Close()

	return e.Extract(ctx, filepath.Base(path), gz)
}

// Extract liest ein PubmedArticleSet aus r. Fehler auf Dokumentebene brechen
// die Datei ab, Fehler einzelner Artikel werden protokolliert und übersprungen.
func (e *Extractor) Extract(ctx context.Context, name string, r io.Reader) (*FileResult, error) {
	log := e.Logger.With(zap.String("file", name))
	res := &FileResult{Name: name}
	d := newDecoder(r)

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("xml %s: %w", name, err)
		}

		switch t := tok.(type) {
		case xml.Directive:
			applyDoctype(ctx, d, t, e.DTD, log)
		case xml.StartElement:
			switch t.Name.Local {
			case "PubmedArticle":
				var raw PubmedArticle
				if err := d.DecodeElement(&raw, &t); err != nil {
					return nil, fmt.Errorf("xml %s: %w", name, err)
				}
				article, err := e.convert(&raw, log)
				if err != nil {
					res.Skipped++
					e.handleArticleError(log, res, name, &raw, err)
					continue
				}
				res.Articles = append(res.Articles, *article)
				if len(res.Articles)%5000 == 0 {
					if err := ctx.Err(); err != nil {
						return nil, err
					}
				}
			case "DeleteCitation":
				var del DeleteCitation
				if err := d.DecodeElement(&del, &t); err != nil {
					return nil, fmt.Errorf("xml %s: %w", name, err)
				}
				for _, p := range del.PMIDs {
					if id, err := parsePMID(p); err == nil {
						res.Deleted = append(res.Deleted, id)
					}
				}
			case "PubmedBookArticle":
				if err := d.Skip(); err != nil {
					return nil, fmt.Errorf("xml %s: %w", name, err)
				}
			}
		}
	}

	log.Debug("Datei extrahiert",
		zap.Int("articles", len(res.Articles)),
		zap.Int("deleted", len(res.Deleted)),
		zap.Int("skipped", res.Skipped))
	return res, nil
}

func (e *Extractor) handleArticleError(log *zap.Logger, res *FileResult, name string, raw *PubmedArticle, err error) {
	pmid := strings.TrimSpace(raw.MedlineCitation.PMID)
	aerr := &ArticleError{File: name, PMID: pmid, Err: err}
	fields := []zap.Field{zap.String("pmid", pmid), zap.Error(aerr)}
	if dump, derr := e.dump(name, pmid, raw.Raw); derr != nil {
		fields = append(fields, zap.NamedError("dump_error", derr))
	} else if dump != "" {
		res.Dumps = append(res.Dumps, dump)
		fields = append(fields, zap.String("dump", dump))
	}
	log.Warn("Artikel übersprungen", fields...)
}

// dump schreibt das Roh-XML nach <ErrorsDir>/<datei>-<pmid>-<uuid>.xml.
func (e *Extractor) dump(file, pmid string, raw []byte) (string, error) {
	if e.ErrorsDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(e.ErrorsDir, 0o755); err != nil {
		return "", err
	}
	if pmid == "" {
		pmid = "unknown"
	}
	stem := strings.TrimSuffix(strings.TrimSuffix(file, ".gz"), ".xml")
	path := filepath.Join(e.ErrorsDir, fmt.Sprintf("%s-%s-%s.xml", stem, pmid, uuid.NewString()))

	var buf bytes.Buffer
	buf.WriteString("<PubmedArticle>")
	buf.Write(raw)
	buf.WriteString("</PubmedArticle>\n")
	return path, os.WriteFile(path, buf.Bytes(), 0o644)
}

var errNoPMID = errors.New("missing or invalid pmid")

func parsePMID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, errNoPMID
	}
	return id, nil
}

// convert bildet einen Roh-Artikel auf models.Article ab.
func (e *Extractor) convert(raw *PubmedArticle, log *zap.Logger) (*models.Article, error) {
	mc := &raw.MedlineCitation
	pmid, err := parsePMID(mc.PMID)
	if err != nil {
		return nil, err
	}
	a := &models.Article{PMID: pmid}

	a.Title = NormalizeTitle(string(mc.Article.ArticleTitle))
	if strings.TrimSpace(a.Title) == "" {
		a.Title = NormalizeTitle(string(mc.Article.VernacularTitle))
	}

	date, err := PublicationDate(mc.Article.Journal.PubDate)
	if err != nil {
		log.Warn("Publikationsdatum nicht lesbar", zap.Int64("pmid", pmid), zap.Error(err))
	}
	a.Date = date

	a.Journal = journalOf(mc.Article.Journal)
	a.Authors = e.authorsOf(mc.Article.Authors)

	for _, h := range mc.MeshHeadings {
		id, err := MeshID(strings.TrimSpace(h.Descriptor.UI))
		if err != nil {
			return nil, err
		}
		a.MeshIDs = appendUnique(a.MeshIDs, id)
	}

	for _, ref := range raw.PubmedData.References {
		for _, id := range ref.ArticleIDs {
			if id.IDType != "pubmed" {
				continue
			}
			cited, err := parsePMID(id.Value)
			if err != nil {
				log.Debug("Referenz ohne gültige PMID", zap.Int64("pmid", pmid), zap.String("value", id.Value))
				continue
			}
			a.References = appendUnique(a.References, cited)
		}
	}
	return a, nil
}

func journalOf(j Journal) *models.Journal {
	key := strings.TrimSpace(j.ISSN)
	if key == "" {
		if iso := strings.TrimSpace(j.ISOAbbreviation); iso != "" {
			key = "[" + iso + "]"
		}
	}
	if key == "" {
		return nil
	}
	return &models.Journal{Key: key, Title: normalizeUnicode(strings.TrimSpace(j.Title))}
}

// authorsOf rendert die Autorenliste; doppelte Namen behalten die erste Position.
func (e *Extractor) authorsOf(authors []Author) []models.AuthorRelation {
	seen := make(map[string]bool, len(authors))
	rels := make([]models.AuthorRelation, 0, len(authors))
	for _, au := range authors {
		name, collective := FullName(au, e.MaxCollectiveNameLength)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		rel := models.AuthorRelation{
			Author:   models.Author{FullName: name, IsCollective: collective},
			Position: len(rels),
		}
		if len(au.AffiliationInfo) > 0 {
			rel.Affiliation = strings.TrimSpace(collapseWhitespace(string(au.AffiliationInfo[0].Affiliation)))
		}
		rels = append(rels, rel)
	}
	for i := range rels {
		rels[i].IsFirst = i == 0
		rels[i].IsLast = i == len(rels)-1
	}
	return rels
}

func appendUnique(ids []int64, id int64) []int64 {
	for _, x := range ids {
		if x == id {
			return ids
		}
	}
	return append(ids, id)
}
