package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"pubmed-graph/models"
)

var meshFileRE = regexp.MustCompile(`^desc(\d{4})\.xml$`)

// MeshID wandelt eine Deskriptor-UI in die numerische ID um: der Buchstabe
// wird zu seinem Codepoint, gefolgt von den Ziffern ("D008875" -> 68008875).
func MeshID(ui string) (int64, error) {
	if len(ui) < 2 || ui[0] < 'A' || ui[0] > 'Z' {
		return 0, fmt.Errorf("pubmed: invalid mesh ui %q", ui)
	}
	digits := ui[1:]
	if _, err := strconv.ParseUint(digits, 10, 64); err != nil {
		return 0, fmt.Errorf("pubmed: invalid mesh ui %q", ui)
	}
	return strconv.ParseInt(strconv.Itoa(int(ui[0]))+digits, 10, 64)
}

// LatestMeshFile sucht die neueste desc<year>.xml in dir.
func LatestMeshFile(dir string) (path string, year int, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}
	for _, e := range entries {
		m := meshFileRE.FindStringSubmatch(e.Name())
		if m == nil || e.IsDir() {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		if y > year {
			path, year = filepath.Join(dir, e.Name()), y
		}
	}
	if path == "" {
		return "", 0, fmt.Errorf("pubmed: no desc<year>.xml in %s", dir)
	}
	return path, year, nil
}

// MeshReader liest die Deskriptoren eines MeSH-Jahrgangs.
type MeshReader struct {
	Logger *zap.Logger
	DTD    *DTDResolver
}

// ReadDescriptors liest path vollständig in MeshHeading-Einträge.
func (m *MeshReader) ReadDescriptors(ctx context.Context, path string) ([]models.MeshHeading, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return m.Read(ctx, f)
}

// Read liest Deskriptoren aus r. Einträge mit ungültiger UI werden übersprungen.
func (m *MeshReader) Read(ctx context.Context, r io.Reader) ([]models.MeshHeading, error) {
	d := newDecoder(r)
	var headings []models.MeshHeading
	for {
		tok, err := d.Token()
		if err == io.EOF {
			return headings, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.Directive:
			applyDoctype(ctx, d, t, m.DTD, m.Logger)
		case xml.StartElement:
			if t.Name.Local != "DescriptorRecord" {
				continue
			}
			var rec DescriptorRecord
			if err := d.DecodeElement(&rec, &t); err != nil {
				return nil, err
			}
			id, err := MeshID(rec.UI)
			if err != nil {
				m.Logger.Warn("MeSH-Deskriptor übersprungen", zap.String("ui", rec.UI), zap.Error(err))
				continue
			}
			headings = append(headings, models.MeshHeading{
				ID:          id,
				UI:          rec.UI,
				Name:        rec.Name,
				TreeNumbers: rec.TreeNumbers,
			})
			if len(headings)%10000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
		}
	}
}
