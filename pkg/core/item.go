package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedItem is returned for candidates violating the provider contract.
var ErrMalformedItem = errors.New("malformed candidate item")

// ItemType is the kind of a search candidate.
type ItemType string

const (
	TypePlace      ItemType = "Place"
	TypeAttraction ItemType = "Attraction"
	TypeHotel      ItemType = "Hotel"
	TypeRestaurant ItemType = "Restaurant"
)

// ItemTypes lists the valid types from highest to lowest tie-break priority.
var ItemTypes = []ItemType{TypePlace, TypeAttraction, TypeHotel, TypeRestaurant}

// Priority orders equally scored results: Place 4, Attraction 3, Hotel 2,
// Restaurant 1. Unknown types get 0.
func (t ItemType) Priority() int {
	switch t {
	case TypePlace:
		return 4
	case TypeAttraction:
		return 3
	case TypeHotel:
		return 2
	case TypeRestaurant:
		return 1
	}
	return 0
}

func (t ItemType) Valid() bool {
	return t.Priority() > 0
}

// ParseItemType matches s case-insensitively against the known types.
func ParseItemType(s string) (ItemType, error) {
	s = strings.TrimSpace(s)
	for _, t := range ItemTypes {
		if strings.EqualFold(s, string(t)) {
			return t, nil
		}
	}
	return ItemType(s), fmt.Errorf("%w: unknown type %q", ErrMalformedItem, s)
}

// UnmarshalText canonicalizes the casing of known types. Unknown values are
// kept as-is so Validate can report them.
func (t *ItemType) UnmarshalText(text []byte) error {
	parsed, _ := ParseItemType(string(text))
	*t = parsed
	return nil
}

// Tags decodes from a JSON array or from a comma separated string such as
// "heritage,temple".
type Tags []string

func (t *Tags) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = nil
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = cleanTags(list)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: tags must be a string or an array of strings", ErrMalformedItem)
	}
	*t = ParseTags(s)
	return nil
}

// ParseTags splits a comma separated tag list.
func ParseTags(s string) Tags {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return cleanTags(strings.Split(s, ","))
}

func cleanTags(in []string) Tags {
	out := make(Tags, 0, len(in))
	for _, tag := range in {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (t Tags) String() string {
	return strings.Join(t, ",")
}

// CandidateItem is a search result as returned by a SearchProvider.
type CandidateItem struct {
	Name        string   `json:"name" msgpack:"name"`
	Type        ItemType `json:"type" msgpack:"type"`
	Location    string   `json:"location,omitempty" msgpack:"location,omitempty"`
	Description string   `json:"description,omitempty" msgpack:"description,omitempty"`
	Tags        Tags     `json:"tags,omitempty" msgpack:"tags,omitempty"`
	Images      []string `json:"images,omitempty" msgpack:"images,omitempty"`
}

// Validate reports whether the item satisfies the provider contract.
func (c CandidateItem) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrMalformedItem)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q has unknown type %q", ErrMalformedItem, c.Name, c.Type)
	}
	return nil
}

// RankedItem is a candidate annotated with its relevance score.
type RankedItem struct {
	CandidateItem
	Score int `json:"score" msgpack:"score"`
}

// NormalizeQuery trims surrounding whitespace. An empty result means browse
// mode.
func NormalizeQuery(raw string) string {
	return strings.TrimSpace(raw)
}
