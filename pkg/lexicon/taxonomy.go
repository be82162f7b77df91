package lexicon

import (
	"errors"
	"fmt"
	"strings"
)

// HasSense is the relationship type from a Lemma to one of its senses.
const HasSense = "HAS_SENSE"

// ErrUnknownRelation is returned for option or link categories outside the taxonomy.
var ErrUnknownRelation = errors.New("unknown relation type")

// OptionType enumerates the categories of typed sense attributes.
// The zero value is not a valid category.
type OptionType int

const (
	OptionPOS OptionType = iota + 1
	OptionGender
	OptionAnimacy
	OptionAspect
	OptionRegister
	OptionDomain
)

var optionNames = map[OptionType]string{
	OptionPOS:      "POS",
	OptionGender:   "GENDER",
	OptionAnimacy:  "ANIMACY",
	OptionAspect:   "ASPECT",
	OptionRegister: "REGISTER",
	OptionDomain:   "DOMAIN",
}

var optionAliases = map[string]OptionType{
	"PART_OF_SPEECH": OptionPOS,
	"PARTOFSPEECH":   OptionPOS,
	"STYLE":          OptionRegister,
	"SUBJECT":        OptionDomain,
}

// LinkType enumerates the categories of sense-to-sense relations.
// The zero value is not a valid category.
type LinkType int

const (
	LinkSynonym LinkType = iota + 1
	LinkAntonym
	LinkHypernym
	LinkHyponym
	LinkCohyponym
	LinkHolonym
	LinkMeronym
)

var linkNames = map[LinkType]string{
	LinkSynonym:   "SYNONYM",
	LinkAntonym:   "ANTONYM",
	LinkHypernym:  "HYPERNYM",
	LinkHyponym:   "HYPONYM",
	LinkCohyponym: "COHYPONYM",
	LinkHolonym:   "HOLONYM",
	LinkMeronym:   "MERONYM",
}

var linkAliases = map[string]LinkType{
	"SYNONYMS":   LinkSynonym,
	"ANTONYMS":   LinkAntonym,
	"HYPERNYMS":  LinkHypernym,
	"HYPONYMS":   LinkHyponym,
	"COHYPONYMS": LinkCohyponym,
	"HOLONYMS":   LinkHolonym,
	"MERONYMS":   LinkMeronym,
}

// Valid reports whether t is a declared category.
func (t OptionType) Valid() bool {
	_, ok := optionNames[t]
	return ok
}

// RelType is the store-level relationship name. It is empty for invalid values.
func (t OptionType) RelType() string { return optionNames[t] }

func (t OptionType) String() string {
	if n, ok := optionNames[t]; ok {
		return n
	}
	return fmt.Sprintf("OptionType(%d)", int(t))
}

// Valid reports whether t is a declared category.
func (t LinkType) Valid() bool {
	_, ok := linkNames[t]
	return ok
}

// RelType is the store-level relationship name. It is empty for invalid values.
func (t LinkType) RelType() string { return linkNames[t] }

func (t LinkType) String() string {
	if n, ok := linkNames[t]; ok {
		return n
	}
	return fmt.Sprintf("LinkType(%d)", int(t))
}

// ParseOptionType maps a raw category name onto the taxonomy.
func ParseOptionType(s string) (OptionType, error) {
	key := canonical(s)
	for t, n := range optionNames {
		if n == key {
			return t, nil
		}
	}
	if t, ok := optionAliases[key]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("option %q: %w", s, ErrUnknownRelation)
}

// ParseLinkType maps a raw category name onto the taxonomy.
func ParseLinkType(s string) (LinkType, error) {
	key := canonical(s)
	for t, n := range linkNames {
		if n == key {
			return t, nil
		}
	}
	if t, ok := linkAliases[key]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("link %q: %w", s, ErrUnknownRelation)
}

// OptionTypes lists every option category in declaration order.
func OptionTypes() []OptionType {
	out := make([]OptionType, 0, len(optionNames))
	for t := OptionPOS; t <= OptionDomain; t++ {
		out = append(out, t)
	}
	return out
}

// LinkTypes lists every link category in declaration order.
func LinkTypes() []LinkType {
	out := make([]LinkType, 0, len(linkNames))
	for t := LinkSynonym; t <= LinkMeronym; t++ {
		out = append(out, t)
	}
	return out
}

func canonical(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ReplaceAll(s, " ", "_")
}
