package ftp

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"pubmed-graph/providers"
)

// worker besitzt genau eine Verbindung und lädt ein Paar nach dem anderen.
type worker struct {
	dial   Dialer
	opts   Options
	logger *zap.Logger
	conn   Conn
}

func (w *worker) connect(ctx context.Context) error {
	if w.conn != nil {
		return nil
	}
	c, err := w.dial(ctx)
	if err != nil {
		return err
	}
	w.conn = c
	return nil
}

func (w *worker) close() {
	if w.conn == nil {
		return
	}
	_ = w.conn.Quit()
	w.conn = nil
}

// reconnect baut die Verbindung nach einer kurzen Pause neu auf.
func (w *worker) reconnect(ctx context.Context) error {
	w.close()
	if w.opts.ReconnectDelay > 0 {
		t := time.NewTimer(w.opts.ReconnectDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return w.connect(ctx)
}

// do führt fn mit Wiederholungen aus. Nach jeweils ReconnectEvery Fehlern,
// oder sofort bei abgerissener Verbindung, wird neu verbunden.
func (w *worker) do(ctx context.Context, fn func(Conn) error) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= w.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		if err := w.connect(ctx); err != nil {
			lastErr = err
		} else if lastErr = fn(w.conn); lastErr == nil {
			return attempt, nil
		}
		if attempt == w.opts.Retries {
			return attempt, lastErr
		}

		w.logger.Warn("FTP-Versuch fehlgeschlagen", zap.Int("attempt", attempt), zap.Error(lastErr))
		if w.conn == nil || isBroken(lastErr) || attempt%w.opts.ReconnectEvery == 0 {
			if err := w.reconnect(ctx); err != nil && ctx.Err() != nil {
				return attempt, ctx.Err()
			}
		}
	}
	return w.opts.Retries, lastErr
}

// isBroken erkennt Fehler, nach denen die Verbindung nicht mehr brauchbar ist.
func isBroken(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		switch protoErr.Code {
		case 421, 425, 426:
			return true
		}
	}
	return false
}

// fetchPair lädt ein Paar inklusive Wiederholungen. Die Teildatei bleibt
// zwischen den Versuchen erhalten und dient als Wiederaufnahmepunkt.
func (w *worker) fetchPair(ctx context.Context, dir string, pair providers.Pair, workDir string) (int64, error) {
	var total int64
	attempts, err := w.do(ctx, func(c Conn) error {
		n, err := downloadPair(c, dir, pair, workDir, w.opts.IdleTimeout)
		total += n
		return err
	})
	if err != nil {
		if !w.opts.KeepPartial {
			_ = os.Remove(filepath.Join(workDir, pair.Data.Name+PartialSuffix))
		}
		return total, &PairError{Pair: pair, Attempts: attempts, Err: err}
	}
	return total, nil
}

// downloadPair führt einen einzelnen Versuch aus: erst die Prüfsumme, dann
// die Datendatei ab dem bereits vorhandenen Offset. Die Datei erscheint erst
// nach erfolgreicher Prüfung unter ihrem endgültigen Namen.
func downloadPair(c Conn, dir string, pair providers.Pair, workDir string, idle time.Duration) (int64, error) {
	dataPath := filepath.Join(workDir, pair.Data.Name)
	hashPath := filepath.Join(workDir, pair.Hash.Name)
	partial := dataPath + PartialSuffix

	expected, err := fetchChecksum(c, path.Join(dir, pair.Hash.Name), hashPath, idle)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(partial, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return 0, err
	}
	h := md5.New()
	offset, err := io.Copy(h, f)
	if err != nil {
		f.Close()
		return 0, fmt.Errorf("rehash %s: %w", partial, err)
	}

	var downloaded int64
	if offset < pair.Data.Size {
		rc, err := c.Retr(path.Join(dir, pair.Data.Name), offset)
		if err != nil {
			f.Close()
			return 0, err
		}
		downloaded, err = io.Copy(io.MultiWriter(f, h), withIdleTimeout(rc, idle))
		closeErr := rc.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			f.Close()
			return downloaded, err
		}
	}
	if err := f.Close(); err != nil {
		return downloaded, err
	}

	if got := hex.EncodeToString(h.Sum(nil)); got != expected {
		_ = os.Remove(partial)
		_ = os.Remove(hashPath)
		return downloaded, fmt.Errorf("%w: %s expected %s got %s", ErrHashMismatch, pair.Data.Name, expected, got)
	}
	return downloaded, os.Rename(partial, dataPath)
}

func fetchChecksum(c Conn, remote, local string, idle time.Duration) (string, error) {
	rc, err := c.Retr(remote, 0)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	_, err = io.Copy(&buf, withIdleTimeout(rc, idle))
	closeErr := rc.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return "", err
	}

	_, digest, err := ParseChecksum(buf.Bytes())
	if err != nil {
		return "", err
	}
	tmp := local + PartialSuffix
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return "", err
	}
	return digest, os.Rename(tmp, local)
}
