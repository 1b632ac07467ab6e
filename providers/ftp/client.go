package ftp

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pubmed-graph/config"
	"pubmed-graph/providers"
)

// Options steuert Pool, Wiederholungen und Fortschrittsmeldungen.
type Options struct {
	Connections      int
	Retries          int
	ReconnectEvery   int
	ReconnectDelay   time.Duration
	IdleTimeout      time.Duration
	ProgressInterval time.Duration
	// FailFast bricht das ganze Verzeichnis beim ersten endgültigen Paarfehler ab.
	FailFast bool
	// KeepPartial behält .downloading-Dateien nach endgültigem Fehlschlag.
	KeepPartial bool
}

func (o Options) normalize() Options {
	if o.Connections < 1 {
		o.Connections = 1
	}
	if o.Retries < 1 {
		o.Retries = 1
	}
	if o.ReconnectEvery < 1 {
		o.ReconnectEvery = 1
	}
	return o
}

// OptionsFromConfig übernimmt die FTP_*-Einstellungen.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Connections:      cfg.FTPConnections,
		Retries:          cfg.FTPRetries,
		ReconnectEvery:   cfg.FTPReconnectEvery,
		ReconnectDelay:   cfg.FTPReconnectDelay,
		IdleTimeout:      cfg.FTPIdleTimeout,
		ProgressInterval: cfg.FTPProgressInterval,
		FailFast:         cfg.FTPFailFast,
	}
}

// FileDone wird nach jedem Paar aufgerufen, erfolgreich oder nicht.
type FileDone func(pair providers.Pair, bytes int64, err error)

// Client implementiert providers.Source über einen Pool von FTP-Verbindungen.
type Client struct {
	Dial    Dialer
	Options Options
	Logger  *zap.Logger
	OnFile  FileDone
}

var _ providers.Source = (*Client)(nil)

// NewClient erstellt einen Client für den konfigurierten Server.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	return &Client{
		Dial:    NewDialer(cfg.FTPAddr, cfg.FTPUser, cfg.FTPPassword, cfg.FTPIdleTimeout),
		Options: OptionsFromConfig(cfg),
		Logger:  logger,
	}
}

// Name gibt den Namen der Quelle zurück.
func (c *Client) Name() string {
	return "ftp"
}

func (c *Client) newWorker(logger *zap.Logger) *worker {
	return &worker{dial: c.Dial, opts: c.Options.normalize(), logger: logger}
}

// ListPairs listet ein Verzeichnis und ordnet die Paare zu.
func (c *Client) ListPairs(ctx context.Context, dir string) ([]providers.Pair, error) {
	w := c.newWorker(c.Logger.With(zap.String("dir", dir)))
	defer w.close()

	var files []providers.File
	if _, err := w.do(ctx, func(conn Conn) error {
		var err error
		files, err = conn.List(dir)
		return err
	}); err != nil {
		return nil, err
	}
	return MatchPairs(files)
}

// syncState ist der gemeinsame Zustand aller Worker eines Syncs, geschützt durch mu.
type syncState struct {
	mu       sync.Mutex
	queue    []providers.Pair
	report   *providers.SyncReport
	progress *Progress
}

func (s *syncState) next() (providers.Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return providers.Pair{}, false
	}
	p := s.queue[0]
	s.queue = s.queue[1:]
	return p, true
}

// Sync lädt alle Paare mit min(Connections, len(pairs)) Verbindungen.
// Laufende Übertragungen werden bei Abbruch nicht unterbrochen.
func (c *Client) Sync(ctx context.Context, dir string, pairs []providers.Pair, workDir string) (*providers.SyncReport, error) {
	report := &providers.SyncReport{Failed: make(map[string]error)}
	if len(pairs) == 0 {
		return report, nil
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return report, err
	}

	opts := c.Options.normalize()
	var totalBytes int64
	for _, p := range pairs {
		totalBytes += p.Data.Size
	}
	state := &syncState{
		queue:    append([]providers.Pair(nil), pairs...),
		report:   report,
		progress: NewProgress(len(pairs), totalBytes, opts.ProgressInterval),
	}

	workers := min(opts.Connections, len(pairs))
	log := c.Logger.With(zap.String("dir", dir))
	log.Info("Starte FTP-Sync", zap.Int("pairs", len(pairs)), zap.Int("connections", workers), zap.Int64("bytes", totalBytes))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		w := c.newWorker(log.With(zap.Int("conn", i)))
		g.Go(func() error {
			defer w.close()
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				pair, ok := state.next()
				if !ok {
					return nil
				}
				started := time.Now()
				n, err := w.fetchPair(gctx, dir, pair, workDir)
				if c.OnFile != nil {
					c.OnFile(pair, n, err)
				}
				if ferr := c.record(state, log, pair, n, time.Since(started), err); ferr != nil {
					return ferr
				}
			}
		})
	}
	err := g.Wait()
	log.Info("FTP-Sync beendet",
		zap.Int("downloaded", report.Downloaded),
		zap.Int("failed", len(report.Failed)),
		zap.Int("mismatches", report.Mismatches),
		zap.Int64("bytes", report.Bytes))
	return report, err
}

// record verbucht ein Paar und meldet den Fortschritt gedrosselt.
func (c *Client) record(s *syncState, log *zap.Logger, pair providers.Pair, n int64, took time.Duration, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.report.Bytes += n
	s.progress.Add(n, took, true)
	if err != nil {
		s.report.Failed[pair.Data.Name] = err
		if errors.Is(err, ErrHashMismatch) {
			s.report.Mismatches++
		}
		log.Error("Paar endgültig fehlgeschlagen", zap.String("file", pair.Data.Name), zap.Error(err))
		if c.Options.FailFast {
			return err
		}
	} else {
		s.report.Downloaded++
	}

	if s.progress.Due() {
		log.Info("FTP-Fortschritt",
			zap.Int("files_done", s.progress.DoneFiles()),
			zap.Int("files_total", s.progress.TotalFiles()),
			zap.Float64("rate_mb_s", s.progress.Rate()/1e6),
			zap.Duration("eta", s.progress.ETA()))
	}
	return nil
}
