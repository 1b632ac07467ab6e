package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"pubmed-graph/build"
	"pubmed-graph/config"
	"pubmed-graph/models"
	"pubmed-graph/providers"
	"pubmed-graph/providers/pubmed"
)

const descFixture = `<?xml version="1.0"?>
<DescriptorRecordSet LanguageCode="eng">
<DescriptorRecord>
  <DescriptorUI>D008875</DescriptorUI>
  <DescriptorName><String>Middle Aged</String></DescriptorName>
</DescriptorRecord>
</DescriptorRecordSet>`

type fixtureArticle struct {
	pmid   int
	title  string
	author string
	cites  []int
	mesh   string
}

func articleSetXML(articles []fixtureArticle, deleted ...int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?>` + "\n<PubmedArticleSet>\n")
	for _, a := range articles {
		fmt.Fprintf(&b, `<PubmedArticle><MedlineCitation><PMID Version="1">%d</PMID><Article>`, a.pmid)
		b.WriteString(`<Journal><ISSN>1234-5678</ISSN><Title>Heart Journal</Title><JournalIssue><PubDate><Year>2020</Year><Month>Jan</Month></PubDate></JournalIssue></Journal>`)
		fmt.Fprintf(&b, `<ArticleTitle>%s</ArticleTitle>`, a.title)
		if a.author != "" {
			parts := strings.SplitN(a.author, " ", 2)
			fmt.Fprintf(&b, `<AuthorList><Author ValidYN="Y"><LastName>%s</LastName><ForeName>%s</ForeName>`+
				`<AffiliationInfo><Affiliation>Harvard</Affiliation></AffiliationInfo></Author></AuthorList>`, parts[1], parts[0])
		}
		b.WriteString(`</Article>`)
		if a.mesh != "" {
			fmt.Fprintf(&b, `<MeshHeadingList><MeshHeading><DescriptorName UI="%s">x</DescriptorName></MeshHeading></MeshHeadingList>`, a.mesh)
		}
		b.WriteString(`</MedlineCitation><PubmedData><ReferenceList>`)
		for _, c := range a.cites {
			fmt.Fprintf(&b, `<Reference><ArticleIdList><ArticleId IdType="pubmed">%d</ArticleId></ArticleIdList></Reference>`, c)
		}
		b.WriteString("</ReferenceList></PubmedData></PubmedArticle>\n")
	}
	if len(deleted) > 0 {
		b.WriteString("<DeleteCitation>")
		for _, d := range deleted {
			fmt.Fprintf(&b, `<PMID Version="1">%d</PMID>`, d)
		}
		b.WriteString("</DeleteCitation>\n")
	}
	b.WriteString("</PubmedArticleSet>\n")
	return b.String()
}

func gzipBytes(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(s))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writePair legt name.xml.gz samt passender .md5-Datei in dir ab und liefert den Digest.
func writePair(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	sum := md5.Sum(data)
	digest := hex.EncodeToString(sum[:])
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".md5"), []byte(fmt.Sprintf("MD5(%s)= %s\n", name, digest)), 0o644))
	return digest
}

type memMetadata struct {
	mu       sync.Mutex
	versions []models.DBMetadata
}

func (s *memMetadata) FetchLatest(context.Context) (*models.DBMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.versions) == 0 {
		return nil, nil
	}
	m := s.versions[len(s.versions)-1]
	return m.Clone(), nil
}

func (s *memMetadata) Push(_ context.Context, m *models.DBMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Version = int64(len(s.versions) + 1)
	s.versions = append(s.versions, *m.Clone())
	return nil
}

func (s *memMetadata) History(context.Context) ([]models.DBMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.DBMetadata(nil), s.versions...), nil
}

func (s *memMetadata) statuses() []models.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Status, len(s.versions))
	for i, v := range s.versions {
		out[i] = v.Status
	}
	return out
}

type testEnv struct {
	cfg   *config.Config
	store *build.MemoryStore
	meta  *memMetadata
	mgr   *Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := &config.Config{
		DataRoot:                t.TempDir(),
		BuildPacketSize:         1,
		BuildBatchSize:          10,
		ExtractVerifyHash:       true,
		MaxCollectiveNameLength: 256,
		CacheMaxJournals:        10,
		CacheMaxAuthors:         10,
		CacheMaxAffiliations:    10,
	}
	store := build.NewMemoryStore()
	meta := &memMetadata{}
	logger := zap.NewNop()
	mgr := &Manager{
		Config:    cfg,
		Extractor: &pubmed.Extractor{Logger: logger, ErrorsDir: cfg.ErrorsDir(), MaxCollectiveNameLength: 256},
		Mesh:      &pubmed.MeshReader{Logger: logger},
		Store:     store,
		Seq:       build.NewCounter(0),
		Metadata:  meta,
		LoadMesh: func(_ context.Context, h []models.MeshHeading) error {
			store.SetMesh(h)
			return nil
		},
		Logger: logger,
	}
	return &testEnv{cfg: cfg, store: store, meta: meta, mgr: mgr}
}

func (e *testEnv) dir(name string) string {
	for _, d := range e.cfg.DataDirs() {
		if d.Name == name {
			return d.Local
		}
	}
	panic("unknown data dir " + name)
}

// fakeSource kopiert Paare aus einem lokalen "Server"-Verzeichnis.
type fakeSource struct {
	remote map[string]map[string][]byte
	synced map[string][]string
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) ListPairs(_ context.Context, dir string) ([]providers.Pair, error) {
	var out []providers.Pair
	for name, data := range f.remote[dir] {
		if strings.HasSuffix(name, ".md5") {
			continue
		}
		hash := f.remote[dir][name+".md5"]
		out = append(out, providers.Pair{
			Data: providers.File{Name: name, Size: int64(len(data))},
			Hash: providers.File{Name: name + ".md5", Size: int64(len(hash))},
		})
	}
	return out, nil
}

func (f *fakeSource) Sync(_ context.Context, dir string, pairs []providers.Pair, workDir string) (*providers.SyncReport, error) {
	if f.synced == nil {
		f.synced = map[string][]string{}
	}
	report := &providers.SyncReport{Failed: map[string]error{}}
	for _, p := range pairs {
		f.synced[dir] = append(f.synced[dir], p.Data.Name)
		for _, name := range []string{p.Data.Name, p.Hash.Name} {
			data := f.remote[dir][name]
			if err := os.WriteFile(filepath.Join(workDir, name), data, 0o644); err != nil {
				return nil, err
			}
			report.Bytes += int64(len(data))
		}
		report.Downloaded++
	}
	return report, nil
}
