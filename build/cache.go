package build

import (
	"sync"
)

// GenerationCache bildet natürliche Schlüssel auf Graph-IDs ab. Jede Add-Runde
// legt eine neue Generation an; übersteigt die Gesamtzahl der Einträge die
// Obergrenze, fallen die ältesten Generationen als Ganzes weg, nie die neueste.
// Ein Treffer in einer älteren Generation wird in die neueste verschoben.
type GenerationCache[K comparable, V any] struct {
	mu      sync.Mutex
	gens    []map[K]V // älteste zuerst
	size    int
	ceiling int
}

// NewGenerationCache erstellt einen Cache mit der gegebenen Obergrenze.
func NewGenerationCache[K comparable, V any](ceiling int) *GenerationCache[K, V] {
	return &GenerationCache[K, V]{ceiling: ceiling}
}

// Get sucht k von der neuesten zur ältesten Generation.
func (c *GenerationCache[K, V]) Get(k K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.get(k)
}

func (c *GenerationCache[K, V]) get(k K) (V, bool) {
	newest := len(c.gens) - 1
	for i := newest; i >= 0; i-- {
		v, ok := c.gens[i][k]
		if !ok {
			continue
		}
		if i != newest {
			delete(c.gens[i], k)
			c.gens[newest][k] = v
		}
		return v, true
	}
	var zero V
	return zero, false
}

// Lookup teilt keys in Treffer und Fehlschläge auf.
func (c *GenerationCache[K, V]) Lookup(keys []K) (hits map[K]V, misses []K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hits = make(map[K]V, len(keys))
	for _, k := range keys {
		if v, ok := c.get(k); ok {
			hits[k] = v
		} else {
			misses = append(misses, k)
		}
	}
	return hits, misses
}

// Add legt m als neue Generation an und verdrängt danach alte Generationen.
// Schlüssel aus älteren Generationen wandern in die neue.
func (c *GenerationCache[K, V]) Add(m map[K]V) {
	if len(m) == 0 {
		return
	}
	gen := make(map[K]V, len(m))
	for k, v := range m {
		gen[k] = v
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.gens {
		for k := range gen {
			if _, ok := g[k]; ok {
				delete(g, k)
				c.size--
			}
		}
	}
	c.gens = append(c.gens, gen)
	c.size += len(gen)
	for c.size > c.ceiling && len(c.gens) > 1 {
		c.size -= len(c.gens[0])
		c.gens[0] = nil
		c.gens = c.gens[1:]
	}
}

// Remove entfernt keys aus allen Generationen.
func (c *GenerationCache[K, V]) Remove(keys ...K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		for _, g := range c.gens {
			if _, ok := g[k]; ok {
				delete(g, k)
				c.size--
			}
		}
	}
}

// Len liefert die Anzahl Einträge über alle Generationen.
func (c *GenerationCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Generations liefert die Größe jeder Generation, älteste zuerst.
func (c *GenerationCache[K, V]) Generations() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.gens))
	for i, g := range c.gens {
		out[i] = len(g)
	}
	return out
}

// Cache bündelt die Caches eines Laufs. MeshIDs wird einmal pro Lauf geladen
// und danach nur gelesen.
type Cache struct {
	Journals     *GenerationCache[string, int64]
	Authors      *GenerationCache[string, int64]
	Affiliations *GenerationCache[string, int64]
	MeshIDs      map[int64]int64
}

// Limits sind die Obergrenzen je Entitätstyp.
type Limits struct {
	Journals     int
	Authors      int
	Affiliations int
}

func NewCache(l Limits) *Cache {
	return &Cache{
		Journals:     NewGenerationCache[string, int64](l.Journals),
		Authors:      NewGenerationCache[string, int64](l.Authors),
		Affiliations: NewGenerationCache[string, int64](l.Affiliations),
	}
}
