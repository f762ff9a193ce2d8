package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrNotFound = errors.New("catalog code not found")

// Catalog is an immutable in-memory snapshot of the code vocabulary. It is
// built once at startup and safe for any number of concurrent readers.
type Catalog struct {
	entries []Entry
	byCode  map[string]int
}

// New builds a Catalog from entries, keeping load order. Later duplicates of a
// code are ignored.
func New(entries []*Entry) *Catalog {
	c := &Catalog{byCode: make(map[string]int, len(entries))}
	for _, e := range entries {
		if e == nil {
			continue
		}
		key := normalize(e.Code)
		if key == "" {
			continue
		}
		if _, dup := c.byCode[key]; dup {
			continue
		}
		c.byCode[key] = len(c.entries)
		c.entries = append(c.entries, *e)
	}
	return c
}

// Load reads every entry from repo into a new Catalog.
func Load(ctx context.Context, repo Repository) (*Catalog, error) {
	entries, err := repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return New(entries), nil
}

// Lookup returns the entry for code. Matching ignores case and surrounding
// whitespace. The returned Entry is a copy.
func (c *Catalog) Lookup(code string) (Entry, bool) {
	i, ok := c.byCode[normalize(code)]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}

// All returns a copy of every entry in load order.
func (c *Catalog) All() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Len() int { return len(c.entries) }

// Designated returns the entry used when no prediction reconciles: the
// preferred code if the catalog holds it, otherwise the first entry.
func (c *Catalog) Designated(preferred string) (Entry, bool) {
	if e, ok := c.Lookup(preferred); ok {
		return e, true
	}
	if len(c.entries) == 0 {
		return Entry{}, false
	}
	return c.entries[0], true
}

func normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
