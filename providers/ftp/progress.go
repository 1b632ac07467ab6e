package ftp

import (
	"time"
)

const (
	rateWindow = 16
	// bytesWeight gewichtet die Byte-Schätzung gegenüber der Datei-Schätzung.
	bytesWeight = 0.7
)

type sample struct {
	bytes int64
	took  time.Duration
}

// Progress schätzt Durchsatz und Restlaufzeit eines Syncs. Die Rate ist ein
// gleitender Mittelwert der letzten Übertragungen. Nicht threadsicher; der
// Aufrufer hält den Sync-Mutex.
type Progress struct {
	totalFiles int
	totalBytes int64
	doneFiles  int
	doneBytes  int64

	samples []sample
	next    int

	started    time.Time
	interval   time.Duration
	lastReport time.Time
	now        func() time.Time
}

// NewProgress erstellt einen Schätzer für files Dateien mit insgesamt bytes Bytes.
func NewProgress(files int, bytes int64, interval time.Duration) *Progress {
	p := &Progress{totalFiles: files, totalBytes: bytes, interval: interval, now: time.Now}
	p.started = p.now()
	p.lastReport = p.started
	return p
}

// Add verbucht eine abgeschlossene Übertragung.
func (p *Progress) Add(bytes int64, took time.Duration, fileDone bool) {
	p.doneBytes += bytes
	if fileDone {
		p.doneFiles++
	}
	s := sample{bytes: bytes, took: took}
	if len(p.samples) < rateWindow {
		p.samples = append(p.samples, s)
		return
	}
	p.samples[p.next] = s
	p.next = (p.next + 1) % rateWindow
}

// Rate liefert Bytes pro Sekunde über das gleitende Fenster.
func (p *Progress) Rate() float64 {
	var bytes int64
	var took time.Duration
	for _, s := range p.samples {
		bytes += s.bytes
		took += s.took
	}
	if took <= 0 {
		return 0
	}
	return float64(bytes) / took.Seconds()
}

// ETA mischt die Schätzung über verbleibende Bytes mit der über verbleibende Dateien.
func (p *Progress) ETA() time.Duration {
	remainingFiles := p.totalFiles - p.doneFiles
	if remainingFiles <= 0 {
		return 0
	}

	var byFiles float64
	if p.doneFiles > 0 {
		perFile := p.now().Sub(p.started).Seconds() / float64(p.doneFiles)
		byFiles = perFile * float64(remainingFiles)
	}

	rate := p.Rate()
	remainingBytes := p.totalBytes - p.doneBytes
	if rate <= 0 || remainingBytes <= 0 {
		return time.Duration(byFiles * float64(time.Second))
	}
	byBytes := float64(remainingBytes) / rate
	if p.doneFiles == 0 {
		return time.Duration(byBytes * float64(time.Second))
	}
	blended := bytesWeight*byBytes + (1-bytesWeight)*byFiles
	return time.Duration(blended * float64(time.Second))
}

// Due ist true, wenn seit der letzten Meldung interval vergangen ist oder alles fertig ist.
func (p *Progress) Due() bool {
	now := p.now()
	if p.doneFiles < p.totalFiles && now.Sub(p.lastReport) < p.interval {
		return false
	}
	p.lastReport = now
	return true
}

func (p *Progress) DoneFiles() int  { return p.doneFiles }
func (p *Progress) TotalFiles() int { return p.totalFiles }
