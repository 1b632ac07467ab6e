package services

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrRunInProgress = errors.New("services: ingestion already running")

// Run lädt fehlende Dateien herunter und verarbeitet sie anschließend.
func (m *Manager) Run(ctx context.Context) error {
	if err := m.Sync(ctx); err != nil {
		return err
	}
	return m.Extract(ctx)
}

// Scheduler startet Läufe nach Cron-Ausdruck. Überlappende Läufe werden übersprungen.
type Scheduler struct {
	run     func(context.Context) error
	cron    *cron.Cron
	logger  *zap.Logger
	running atomic.Bool
}

// cronLogger leitet die Meldungen von cron an zap weiter.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

func NewScheduler(schedule string, run func(context.Context) error, logger *zap.Logger) (*Scheduler, error) {
	cl := cronLogger{s: logger.Sugar()}
	s := &Scheduler{
		run:    run,
		cron:   cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl))),
		logger: logger,
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.Trigger(context.Background()); err != nil && !errors.Is(err, ErrRunInProgress) {
			s.logger.Error("Geplanter Lauf fehlgeschlagen", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop hält den Scheduler an; der zurückgegebene Context endet mit dem laufenden Job.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Running ist true, solange ein Lauf aktiv ist.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Trigger führt sofort einen Lauf aus, sofern keiner aktiv ist.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Lauf übersprungen, vorheriger Lauf aktiv")
		return ErrRunInProgress
	}
	defer s.running.Store(false)

	s.logger.Info("Starte Ingestion-Lauf")
	if err := s.run(ctx); err != nil {
		return err
	}
	s.logger.Info("Ingestion-Lauf abgeschlossen")
	return nil
}
