package build

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultUtilisationWindow ist das Fenster, über das die Auslastung gemittelt wird.
const DefaultUtilisationWindow = time.Minute

type busySpan struct {
	start, end time.Time
}

// Utilisation misst den Anteil der Zeit, den ein Worker arbeitet statt auf seine Queues zu warten.
type Utilisation struct {
	Name string

	mu        sync.Mutex
	window    time.Duration
	spans     []busySpan
	busySince time.Time
	busy      bool
	created   time.Time
	now       func() time.Time
}

func NewUtilisation(name string, window time.Duration) *Utilisation {
	u := &Utilisation{Name: name, window: window, now: time.Now}
	u.created = u.now()
	return u
}

// Begin markiert den Beginn der Arbeit an einem Paket.
func (u *Utilisation) Begin() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.busy = true
	u.busySince = u.now()
}

// End markiert das Ende der Arbeit an einem Paket.
func (u *Utilisation) End() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if !u.busy {
		return
	}
	now := u.now()
	u.spans = append(u.spans, busySpan{start: u.busySince, end: now})
	u.busy = false
	u.prune(now)
}

func (u *Utilisation) prune(now time.Time) {
	cut := now.Add(-u.window)
	i := 0
	for i < len(u.spans) && !u.spans[i].end.After(cut) {
		i++
	}
	u.spans = u.spans[i:]
}

// Fraction liefert die Auslastung im Fenster zwischen 0 und 1.
func (u *Utilisation) Fraction() float64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	now := u.now()
	from := now.Add(-u.window)
	if u.created.After(from) {
		from = u.created
	}
	total := now.Sub(from)
	if total <= 0 {
		return 0
	}

	var busy time.Duration
	add := func(start, end time.Time) {
		if start.Before(from) {
			start = from
		}
		if end.After(start) {
			busy += end.Sub(start)
		}
	}
	for _, s := range u.spans {
		add(s.start, s.end)
	}
	if u.busy {
		add(u.busySince, now)
	}
	return min(float64(busy)/float64(total), 1)
}

// FormatUtilisation verbindet die Auslastungen als "a% | b% | c%".
func FormatUtilisation(us []*Utilisation) string {
	parts := make([]string, len(us))
	for i, u := range us {
		parts[i] = fmt.Sprintf("%.0f%%", u.Fraction()*100)
	}
	return strings.Join(parts, " | ")
}
