// Package ftp lädt PubMed-Dateipaare mit Prüfsummen, Wiederaufnahme und
// Wiederholungen von einem FTP-Server.
package ftp

import (
	"context"
	"io"
	"time"

	goftp "github.com/jlaffaye/ftp"

	"pubmed-graph/providers"
)

// Conn ist der Ausschnitt einer FTP-Verbindung, den der Transport benötigt.
type Conn interface {
	List(dir string) ([]providers.File, error)
	// Retr öffnet eine binäre Übertragung ab offset (REST).
	Retr(path string, offset int64) (io.ReadCloser, error)
	Quit() error
}

// Dialer öffnet eine neue, angemeldete Verbindung.
type Dialer func(ctx context.Context) (Conn, error)

type serverConn struct {
	c *goftp.ServerConn
}

// NewDialer erzeugt einen Dialer für den NCBI-Server (oder einen beliebigen anderen).
func NewDialer(addr, user, password string, timeout time.Duration) Dialer {
	return func(ctx context.Context) (Conn, error) {
		c, err := goftp.Dial(addr, goftp.DialWithContext(ctx), goftp.DialWithTimeout(timeout))
		if err != nil {
			return nil, err
		}
		if err := c.Login(user, password); err != nil {
			_ = c.Quit()
			return nil, err
		}
		return &serverConn{c: c}, nil
	}
}

func (s *serverConn) List(dir string) ([]providers.File, error) {
	entries, err := s.c.List(dir)
	if err != nil {
		return nil, err
	}
	files := make([]providers.File, 0, len(entries))
	for _, e := range entries {
		if e.Type != goftp.EntryTypeFile {
			continue
		}
		files = append(files, providers.File{Name: e.Name, Size: int64(e.Size)})
	}
	return files, nil
}

func (s *serverConn) Retr(path string, offset int64) (io.ReadCloser, error) {
	if offset > 0 {
		return s.c.RetrFrom(path, uint64(offset))
	}
	return s.c.Retr(path)
}

func (s *serverConn) Quit() error {
	return s.c.Quit()
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// idleReader verlängert vor jedem Read die Deadline der Datenverbindung.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
}

func withIdleTimeout(r io.Reader, timeout time.Duration) io.Reader {
	if timeout <= 0 {
		return r
	}
	if _, ok := r.(deadliner); !ok {
		return r
	}
	return &idleReader{r: r, timeout: timeout}
}

func (i *idleReader) Read(p []byte) (int, error) {
	if err := i.r.(deadliner).SetDeadline(time.Now().Add(i.timeout)); err != nil {
		return 0, err
	}
	return i.r.Read(p)
}
