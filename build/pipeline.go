package build

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultWindow entspricht der Anzahl der Stufen.
const DefaultWindow = 3

var ErrPipelineStopped = errors.New("build: pipeline stopped")

type stageFunc func(context.Context, *Packet) error

// Pipeline verkettet Duplikatfilter und Stufen-Worker über beschränkte Channels.
type Pipeline struct {
	Builder   *Builder
	Window    int
	QueueSize int
	// Careful führt alle Stufen in einem einzigen Worker aus.
	Careful bool
	// OnDone wird für jedes fertige Paket in Eingangsreihenfolge aufgerufen.
	OnDone func(*Packet)
	Logger *zap.Logger

	mu    sync.Mutex
	utils []*Utilisation
}

// Run ist eine laufende Pipeline.
type Run struct {
	in   chan *Packet
	ctx  context.Context
	g    *errgroup.Group
	once sync.Once
	err  error
}

// Start startet Filter und Worker. Pakete werden mit Submit eingeliefert,
// Close wartet auf das Abarbeiten aller Pakete.
func (p *Pipeline) Start(ctx context.Context) *Run {
	window := p.Window
	if window <= 0 {
		window = DefaultWindow
	}
	queue := max(p.QueueSize, 0)

	var names []string
	var stages []stageFunc
	if p.Careful {
		names, stages = []string{"all"}, []stageFunc{p.Builder.RunAll}
	} else {
		names = []string{"stage1", "stage2", "stage3"}
		stages = []stageFunc{p.Builder.Stage1, p.Builder.Stage2, p.Builder.Stage3}
	}

	utils := make([]*Utilisation, len(stages))
	for i, n := range names {
		utils[i] = NewUtilisation(n, DefaultUtilisationWindow)
	}
	p.mu.Lock()
	p.utils = utils
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	run := &Run{in: make(chan *Packet, queue), ctx: gctx, g: g}

	next := make(chan *Packet, queue)
	g.Go(func() error { return p.filter(gctx, window, run.in, next) })
	for i, stage := range stages {
		in := next
		var out chan *Packet
		if i < len(stages)-1 {
			out = make(chan *Packet, queue)
			next = out
		}
		g.Go(func() error { return p.work(gctx, names[i], stage, utils[i], in, out) })
	}
	return run
}

// Submit liefert ein Paket ein und blockiert, solange die erste Queue voll ist.
func (r *Run) Submit(pkt *Packet) error {
	select {
	case r.in <- pkt:
		return nil
	case <-r.ctx.Done():
		return ErrPipelineStopped
	}
}

// Close signalisiert das Ende der Eingabe und wartet auf alle Worker.
func (r *Run) Close() error {
	r.once.Do(func() {
		close(r.in)
		r.err = r.g.Wait()
	})
	return r.err
}

// filter hält die letzten window Pakete zurück. Verlässt ein Paket das Fenster,
// werden Artikel entfernt, deren PMID in einem noch wartenden Paket vorkommt.
func (p *Pipeline) filter(ctx context.Context, window int, in <-chan *Packet, out chan<- *Packet) error {
	defer close(out)

	var resident []*Packet
	emit := func() error {
		head := resident[0]
		resident = resident[1:]
		later := mapset.NewThreadUnsafeSet[int64]()
		for _, r := range resident {
			later = later.Union(r.PMIDs())
		}
		if n := head.Strip(later); n > 0 {
			p.Logger.Debug("Doppelte Artikel aus Paket entfernt",
				zap.Int("packet", head.Seq), zap.String("source", head.Source), zap.Int("stripped", n))
		}
		select {
		case out <- head:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-in:
			if !ok {
				for len(resident) > 0 {
					if err := emit(); err != nil {
						return err
					}
				}
				return nil
			}
			resident = append(resident, pkt)
			if len(resident) > window {
				if err := emit(); err != nil {
					return err
				}
			}
		}
	}
}

// work verarbeitet Pakete in Eingangsreihenfolge. Ein Fehler beendet die ganze Pipeline.
func (p *Pipeline) work(ctx context.Context, name string, fn stageFunc, u *Utilisation, in <-chan *Packet, out chan<- *Packet) error {
	if out != nil {
		defer close(out)
	}
	for {
		var (
			pkt *Packet
			ok  bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok = <-in:
		}
		if !ok {
			return nil
		}

		u.Begin()
		err := fn(ctx, pkt)
		u.End()
		if err != nil {
			p.Logger.Error("Paket fehlgeschlagen",
				zap.String("stage", name), zap.Int("packet", pkt.Seq), zap.String("source", pkt.Source), zap.Error(err))
			return fmt.Errorf("%s packet %d (%s): %w", name, pkt.Seq, pkt.Source, err)
		}

		if out == nil {
			if p.OnDone != nil {
				p.OnDone(pkt)
			}
			continue
		}
		select {
		case out <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Utilisation liefert die Auslastung je Worker als "a% | b% | c%".
func (p *Pipeline) Utilisation() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return FormatUtilisation(p.utils)
}

// Stages liefert die Auslastungszähler der aktuellen Konfiguration.
func (p *Pipeline) Stages() []*Utilisation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Utilisation(nil), p.utils...)
}
