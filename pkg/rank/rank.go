// Package rank scores and orders search candidates for a query.
package rank

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/rubiojr/yatra/pkg/core"
)

// MaxResults caps the ranked list.
const MaxResults = 10

// Weights is the scoring policy. Name weights are exclusive tiers; the other
// components add up.
type Weights struct {
	NameExact     int
	NamePrefix    int
	NameSubstring int
	Location      int
	Tag           int
	Description   int
	Popular       int
}

// DefaultWeights is the production scoring policy.
var DefaultWeights = Weights{
	NameExact:     100,
	NamePrefix:    80,
	NameSubstring: 60,
	Location:      40,
	Tag:           30,
	Description:   20,
	Popular:       10,
}

// Ranker scores candidates. It holds no per-query state and is safe for
// concurrent use.
type Ranker struct {
	weights Weights
	popular []string
	limit   int
}

type Option func(*Ranker)

func WithWeights(w Weights) Option {
	return func(r *Ranker) { r.weights = w }
}

// WithLimit overrides MaxResults. Values below 1 are ignored.
func WithLimit(n int) Option {
	return func(r *Ranker) {
		if n > 0 {
			r.limit = n
		}
	}
}

// New returns a ranker boosting items whose name is one of the popular
// destinations.
func New(popular []string, opts ...Option) *Ranker {
	r := &Ranker{weights: DefaultWeights, limit: MaxResults}
	fold := cases.Fold()
	for _, p := range popular {
		if p = strings.TrimSpace(p); p != "" {
			r.popular = append(r.popular, fold.String(p))
		}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank scores candidates against query and returns at most the configured
// number of items, highest score first. Equal scores are ordered by type
// priority, then by provider order. Candidates are never modified. A blank
// query yields no results.
func (r *Ranker) Rank(candidates []core.CandidateItem, query string) []core.RankedItem {
	// cases.Caser is stateful, so each call gets its own.
	fold := cases.Fold()
	q := fold.String(core.NormalizeQuery(query))
	if q == "" || len(candidates) == 0 {
		return nil
	}

	ranked := make([]core.RankedItem, len(candidates))
	for i, c := range candidates {
		ranked[i] = core.RankedItem{CandidateItem: c, Score: r.score(fold, c, q)}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Type.Priority() > ranked[j].Type.Priority()
	})

	if len(ranked) > r.limit {
		ranked = ranked[:r.limit]
	}
	return ranked
}

// Score returns the relevance of a single candidate.
func (r *Ranker) Score(c core.CandidateItem, query string) int {
	fold := cases.Fold()
	q := fold.String(core.NormalizeQuery(query))
	if q == "" {
		return 0
	}
	return r.score(fold, c, q)
}

func (r *Ranker) score(fold cases.Caser, c core.CandidateItem, q string) int {
	w := r.weights
	name := fold.String(c.Name)
	location := fold.String(c.Location)

	score := 0
	switch {
	case name == q:
		score += w.NameExact
	case strings.HasPrefix(name, q):
		score += w.NamePrefix
	case strings.Contains(name, q):
		score += w.NameSubstring
	}

	if location != "" && strings.Contains(location, q) {
		score += w.Location
	}
	if c.Description != "" && strings.Contains(fold.String(c.Description), q) {
		score += w.Description
	}
	for _, tag := range c.Tags {
		if strings.Contains(fold.String(tag), q) {
			score += w.Tag
			break
		}
	}
	if r.isPopular(name) {
		score += w.Popular
	}
	return score
}

func (r *Ranker) isPopular(name string) bool {
	for _, p := range r.popular {
		if name == p {
			return true
		}
	}
	return false
}
