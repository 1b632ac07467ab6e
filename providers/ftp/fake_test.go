package ftp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"sync"

	"pubmed-graph/providers"
)

// fakeServer hält Dateien im Speicher und kann Übertragungen gezielt abbrechen.
type fakeServer struct {
	mu    sync.Mutex
	files map[string][]byte
	// cutAfter bricht die nächsten Übertragungen eines Pfads nach n Bytes ab.
	cutAfter map[string][]int
	dials    int
	offsets  map[string][]int64
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		files:    make(map[string][]byte),
		cutAfter: make(map[string][]int),
		offsets:  make(map[string][]int64),
	}
}

func (s *fakeServer) addPair(dir, stem string, content []byte) {
	sum := md5.Sum(content)
	s.files[dir+"/"+stem+".xml.gz"] = content
	s.files[dir+"/"+stem+".xml.gz.md5"] = []byte(fmt.Sprintf("MD5(%s.xml.gz)= %s\n", stem, hex.EncodeToString(sum[:])))
}

func (s *fakeServer) dial(ctx context.Context) (Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	return &fakeConn{s: s}, nil
}

type fakeConn struct {
	s *fakeServer
}

func (c *fakeConn) List(dir string) ([]providers.File, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var out []providers.File
	prefix := dir + "/"
	for p, b := range c.s.files {
		if len(p) > len(prefix) && p[:len(prefix)] == prefix {
			out = append(out, providers.File{Name: p[len(prefix):], Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (c *fakeConn) Retr(path string, offset int64) (io.ReadCloser, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	b, ok := c.s.files[path]
	if !ok {
		return nil, fmt.Errorf("550 %s: no such file", path)
	}
	c.s.offsets[path] = append(c.s.offsets[path], offset)
	body := b[offset:]
	if cuts := c.s.cutAfter[path]; len(cuts) > 0 {
		c.s.cutAfter[path] = cuts[1:]
		return io.NopCloser(&cutReader{r: bytes.NewReader(body[:cuts[0]])}), nil
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (c *fakeConn) Quit() error { return nil }

// cutReader liefert nach dem Ende ein unexpected EOF wie eine abgerissene Verbindung.
type cutReader struct {
	r io.Reader
}

func (c *cutReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err == io.EOF {
		return n, io.ErrUnexpectedEOF
	}
	return n, err
}
