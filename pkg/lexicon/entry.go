package lexicon

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/japaniel/lexigraph/pkg/snapshot"
)

// ErrMalformedRecord marks a sense record missing a required field.
var ErrMalformedRecord = errors.New("malformed sense record")

// ErrEmptyValue marks an option without a value or a link without a target.
var ErrEmptyValue = errors.New("empty relation value")

// OptionPair is one typed attribute of a sense.
type OptionPair struct {
	Type  OptionType
	Value string
}

// LinkPair is one typed relation from a sense to another sense.
type LinkPair struct {
	Target string
	Type   LinkType
}

// Rejected is a quarantined option or link: its category is outside the
// taxonomy, or its value or target is empty.
type Rejected struct {
	Kind  string // "option" or "link"
	Type  string
	Value string // option value or link target
	Err   error
}

// Entry is the normalized view of a sense record used for graph construction.
type Entry struct {
	Lemma    string
	SenseID  string
	Gloss    string
	Options  []OptionPair
	Links    []LinkPair
	Rejected []Rejected
}

// Normalize extracts the identifiers and typed relations of a sense record.
// Links are ordered by target identifier so output does not depend on map order.
// The gloss is part of the Sense identity and is kept exactly as delivered.
func Normalize(rec snapshot.SenseRecord) (Entry, error) {
	e := Entry{
		Lemma:   strings.TrimSpace(rec.Lemma),
		SenseID: strings.TrimSpace(rec.ID),
		Gloss:   rec.Gloss,
	}
	if e.SenseID == "" {
		return Entry{}, fmt.Errorf("%w: missing sense identifier (lemma %q)", ErrMalformedRecord, e.Lemma)
	}
	if e.Lemma == "" {
		return Entry{}, fmt.Errorf("%w: missing lemma (sense %q)", ErrMalformedRecord, e.SenseID)
	}

	for _, o := range rec.Options {
		value := strings.TrimSpace(o.Value)
		if value == "" {
			e.Rejected = append(e.Rejected, Rejected{Kind: "option", Type: o.Type, Err: fmt.Errorf("option %s: %w", o.Type, ErrEmptyValue)})
			continue
		}
		t, err := ParseOptionType(o.Type)
		if err != nil {
			e.Rejected = append(e.Rejected, Rejected{Kind: "option", Type: o.Type, Value: value, Err: err})
			continue
		}
		e.Options = append(e.Options, OptionPair{Type: t, Value: value})
	}

	targets := make([]string, 0, len(rec.Links))
	for target := range rec.Links {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	for _, target := range targets {
		raw := rec.Links[target]
		id := strings.TrimSpace(target)
		if id == "" {
			e.Rejected = append(e.Rejected, Rejected{Kind: "link", Type: raw, Err: fmt.Errorf("link %s: %w", raw, ErrEmptyValue)})
			continue
		}
		t, err := ParseLinkType(raw)
		if err != nil {
			e.Rejected = append(e.Rejected, Rejected{Kind: "link", Type: raw, Value: id, Err: err})
			continue
		}
		e.Links = append(e.Links, LinkPair{Target: id, Type: t})
	}
	return e, nil
}
