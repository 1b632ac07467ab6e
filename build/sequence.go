package build

import "sync/atomic"

// Sequence vergibt prozessweit eindeutige, monoton steigende Graph-IDs.
type Sequence interface {
	Next() int64
}

// Counter ist eine Sequence im Speicher, gestartet beim bisherigen Maximum.
type Counter struct {
	n atomic.Int64
}

// NewCounter liefert einen Counter, dessen erstes Next() last+1 ergibt.
func NewCounter(last int64) *Counter {
	c := &Counter{}
	c.n.Store(last)
	return c
}

func (c *Counter) Next() int64 {
	return c.n.Add(1)
}

// Last liefert die zuletzt vergebene ID.
func (c *Counter) Last() int64 {
	return c.n.Load()
}
