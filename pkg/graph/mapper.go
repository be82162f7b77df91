package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/japaniel/lexigraph/pkg/lexicon"
	"github.com/japaniel/lexigraph/pkg/snapshot"
)

// SensePolicy controls how the Lemma->Sense write treats an existing Sense.
type SensePolicy int

const (
	// SenseMatch reuses a Sense with the same identifier and gloss.
	SenseMatch SensePolicy = iota
	// SenseCreate creates a new Sense node on every write. Reruns duplicate
	// Sense nodes; kept only for parity with old exports.
	SenseCreate
)

// EdgePolicy controls relationship creation.
type EdgePolicy int

const (
	// EdgeCreate always creates the relationship, so reruns add parallel edges.
	EdgeCreate EdgePolicy = iota
	// EdgeMerge matches an existing relationship of the same type first.
	EdgeMerge
)

func ParseSensePolicy(s string) (SensePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "match":
		return SenseMatch, nil
	case "create":
		return SenseCreate, nil
	}
	return 0, fmt.Errorf("unknown sense policy %q (want match|create)", s)
}

func (p SensePolicy) String() string {
	if p == SenseCreate {
		return "create"
	}
	return "match"
}

func ParseEdgePolicy(s string) (EdgePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "create":
		return EdgeCreate, nil
	case "merge":
		return EdgeMerge, nil
	}
	return 0, fmt.Errorf("unknown edge policy %q (want create|merge)", s)
}

func (p EdgePolicy) String() string {
	if p == EdgeMerge {
		return "merge"
	}
	return "create"
}

// Resolver looks up link targets. *snapshot.Snapshot satisfies it.
type Resolver interface {
	Lookup(id string) (snapshot.SenseRecord, bool)
}

// SkipReason says why an option or link produced no mutation.
type SkipReason string

const (
	SkipDanglingLink    SkipReason = "dangling_link"
	SkipUnknownRelation SkipReason = "unknown_relation"
	SkipEmptyValue      SkipReason = "empty_value"
)

// Skip records an option or link left out of a plan.
type Skip struct {
	Reason SkipReason
	Kind   string // "option" or "link"
	Type   string
	Value  string // option value or link target
	Err    error
}

// Plan is the ordered mutation list for one sense.
type Plan struct {
	SenseID    string
	LemmaSense Mutation
	Options    []Mutation
	Links      []Mutation
	Skipped    []Skip
}

// Units returns every mutation in write order.
func (p Plan) Units() []Mutation {
	out := make([]Mutation, 0, 1+len(p.Options)+len(p.Links))
	out = append(out, p.LemmaSense)
	out = append(out, p.Options...)
	return append(out, p.Links...)
}

// Identities returns the sorted, distinct node identities the plan touches.
func (p Plan) Identities() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range p.Units() {
		for _, k := range m.Identities() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Mapper turns normalized entries into mutation plans.
type Mapper struct {
	SensePolicy SensePolicy
	EdgePolicy  EdgePolicy
}

// Map builds the plan for one entry: the Lemma->Sense write first, then one
// write per option, then one write per resolvable link. Options or links with
// a category outside the taxonomy, options or links with an empty value, and
// links whose target is missing from the snapshot are reported in Plan.Skipped.
func (m Mapper) Map(e lexicon.Entry, r Resolver) (Plan, error) {
	if e.Lemma == "" || e.SenseID == "" {
		return Plan{}, fmt.Errorf("%w: lemma %q sense %q", lexicon.ErrMalformedRecord, e.Lemma, e.SenseID)
	}
	key := SenseKey{Name: e.SenseID, Gloss: e.Gloss}
	plan := Plan{
		SenseID: e.SenseID,
		LemmaSense: Mutation{
			Op:          OpLemmaSense,
			SenseID:     e.SenseID,
			Lemma:       e.Lemma,
			Source:      key,
			CreateSense: m.SensePolicy == SenseCreate,
			MergeEdge:   m.EdgePolicy == EdgeMerge,
		},
	}

	for _, rej := range e.Rejected {
		reason := SkipUnknownRelation
		if errors.Is(rej.Err, lexicon.ErrEmptyValue) {
			reason = SkipEmptyValue
		}
		plan.Skipped = append(plan.Skipped, Skip{
			Reason: reason, Kind: rej.Kind, Type: rej.Type, Value: rej.Value, Err: rej.Err,
		})
	}

	for _, o := range e.Options {
		mut, err := m.OptionMutation(key, o)
		if err != nil {
			plan.Skipped = append(plan.Skipped, Skip{
				Reason: SkipUnknownRelation, Kind: "option", Type: o.Type.String(), Value: o.Value, Err: err,
			})
			continue
		}
		plan.Options = append(plan.Options, mut)
	}

	for _, l := range e.Links {
		if !l.Type.Valid() {
			plan.Skipped = append(plan.Skipped, Skip{
				Reason: SkipUnknownRelation, Kind: "link", Type: l.Type.String(), Value: l.Target,
				Err: fmt.Errorf("link %s: %w", l.Type, lexicon.ErrUnknownRelation),
			})
			continue
		}
		target, ok := r.Lookup(l.Target)
		if !ok {
			plan.Skipped = append(plan.Skipped, Skip{
				Reason: SkipDanglingLink, Kind: "link", Type: l.Type.RelType(), Value: l.Target,
				Err: fmt.Errorf("link target %q not in snapshot", l.Target),
			})
			continue
		}
		plan.Links = append(plan.Links, Mutation{
			Op:        OpSenseLink,
			SenseID:   e.SenseID,
			Source:    key,
			Target:    SenseKey{Name: strings.TrimSpace(target.ID), Gloss: target.Gloss},
			RelType:   l.Type.RelType(),
			MergeEdge: m.EdgePolicy == EdgeMerge,
		})
	}
	return plan, nil
}

// OptionMutation builds the Sense->Option write, rejecting categories outside the taxonomy.
func (m Mapper) OptionMutation(sense SenseKey, o lexicon.OptionPair) (Mutation, error) {
	if !o.Type.Valid() {
		return Mutation{}, fmt.Errorf("option %s: %w", o.Type, lexicon.ErrUnknownRelation)
	}
	return Mutation{
		Op:        OpSenseOption,
		SenseID:   sense.Name,
		Lemma:     o.Value,
		Source:    sense,
		RelType:   o.Type.RelType(),
		MergeEdge: m.EdgePolicy == EdgeMerge,
	}, nil
}
