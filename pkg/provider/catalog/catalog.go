// Package catalog is an in-memory search provider over a fixed list of
// destinations. Every word of an item's name, location and tags is indexed
// in a patricia trie so partial words match as the user types.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"

	"github.com/tchap/go-patricia/v2/patricia"

	"github.com/rubiojr/yatra/pkg/core"
	"github.com/rubiojr/yatra/pkg/log"
)

//go:embed catalog.json
var defaultCatalog []byte

func init() {
	core.RegisterProvider("catalog", func(cfg core.ProviderConfig) (core.SearchProvider, error) {
		// For this provider the endpoint is an optional catalog file.
		var (
			c   *Catalog
			err error
		)
		if cfg.Endpoint == "" {
			c, err = Default()
		} else {
			c, err = LoadFile(cfg.Endpoint, cfg.Strict)
		}
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

type Catalog struct {
	items []core.CandidateItem
	text  []string // lower-cased searchable text per item
	trie  *patricia.Trie
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultCatalog), true)
}

// LoadFile reads a catalog from a JSON file.
func LoadFile(path string, strict bool) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}
	defer f.Close()
	return Load(f, strict)
}

// Load reads a JSON array of items. Invalid items fail the load when strict
// is set and are skipped otherwise.
func Load(r io.Reader, strict bool) (*Catalog, error) {
	var items []core.CandidateItem
	if err := json.NewDecoder(r).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}

	valid := items[:0]
	for i, it := range items {
		if err := it.Validate(); err != nil {
			if strict {
				return nil, fmt.Errorf("catalog item %d: %w", i, err)
			}
			log.For("catalog").Warnf("skipping item %d: %v", i, err)
			continue
		}
		valid = append(valid, it)
	}
	return New(valid), nil
}

// New indexes items. They are assumed valid.
func New(items []core.CandidateItem) *Catalog {
	c := &Catalog{
		items: append([]core.CandidateItem(nil), items...),
		text:  make([]string, len(items)),
		trie:  patricia.NewTrie(),
	}
	for i, it := range c.items {
		fields := []string{it.Name, it.Location, it.Description, it.Tags.String()}
		c.text[i] = strings.ToLower(strings.Join(fields, "\n"))

		for _, w := range words(it.Name + " " + it.Location + " " + strings.Join(it.Tags, " ")) {
			c.index(w, i)
		}
	}
	return c
}

func (c *Catalog) index(word string, item int) {
	key := patricia.Prefix(word)
	if existing := c.trie.Get(key); existing != nil {
		ids := existing.([]int)
		if ids[len(ids)-1] != item {
			c.trie.Set(key, append(ids, item))
		}
		return
	}
	c.trie.Insert(key, []int{item})
}

func (c *Catalog) Len() int {
	return len(c.items)
}

// Items returns a copy of the catalog.
func (c *Catalog) Items() []core.CandidateItem {
	return append([]core.CandidateItem(nil), c.items...)
}

// Search returns items, in catalog order, whose text contains the whole
// query or that have, for every query word, an indexed word starting with it.
func (c *Catalog) Search(ctx context.Context, query string) ([]core.CandidateItem, error) {
	q := strings.ToLower(core.NormalizeQuery(query))
	if q == "" {
		return nil, nil
	}

	matched := make(map[int]bool)
	for i, text := range c.text {
		if strings.Contains(text, q) {
			matched[i] = true
		}
	}

	var common map[int]bool
	for _, w := range words(q) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hits := c.prefixHits(w)
		if common == nil {
			common = hits
			continue
		}
		for id := range common {
			if !hits[id] {
				delete(common, id)
			}
		}
	}
	for id := range common {
		matched[id] = true
	}

	ids := make([]int, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]core.CandidateItem, len(ids))
	for i, id := range ids {
		out[i] = c.items[id]
	}
	return out, nil
}

func (c *Catalog) prefixHits(prefix string) map[int]bool {
	hits := make(map[int]bool)
	_ = c.trie.VisitSubtree(patricia.Prefix(prefix), func(_ patricia.Prefix, item patricia.Item) error {
		for _, id := range item.([]int) {
			hits[id] = true
		}
		return nil
	})
	return hits
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
