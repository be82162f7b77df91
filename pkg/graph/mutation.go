package graph

import (
	"fmt"
	"strings"

	"github.com/japaniel/lexigraph/pkg/lexicon"
)

// Op identifies the shape of a mutation.
type Op int

const (
	OpLemmaSense Op = iota + 1
	OpSenseOption
	OpSenseLink
)

func (o Op) String() string {
	switch o {
	case OpLemmaSense:
		return "lemma_sense"
	case OpSenseOption:
		return "sense_option"
	case OpSenseLink:
		return "sense_link"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// SenseKey is the identity of a Sense node.
type SenseKey struct {
	Name  string
	Gloss string
}

// LemmaIdentity is the lock/identity key of a Lemma node.
func LemmaIdentity(name string) string { return "lemma\x00" + name }

// Identity is the lock/identity key of the Sense node.
func (k SenseKey) Identity() string { return "sense\x00" + k.Name + "\x00" + k.Gloss }

// Mutation is one independently committed graph write. Node data travels as
// parameters; only RelType, which was checked against the taxonomy, is part
// of the query text.
type Mutation struct {
	Op      Op
	SenseID string // owning sense, for error reporting
	// Lemma is the headword for OpLemmaSense and the option value for OpSenseOption.
	Lemma   string
	Source  SenseKey
	Target  SenseKey // OpSenseLink only
	RelType string
	// CreateSense makes OpLemmaSense create a new Sense node unconditionally.
	CreateSense bool
	// MergeEdge makes the relationship match-or-create instead of create.
	MergeEdge bool
}

// Cypher renders the parameterized statement for the mutation.
func (m Mutation) Cypher() string {
	edge := "CREATE"
	if m.MergeEdge {
		edge = "MERGE"
	}
	var b strings.Builder
	switch m.Op {
	case OpLemmaSense:
		b.WriteString("MERGE (l:Lemma {name: $lemma_name})\n")
		if m.CreateSense {
			b.WriteString("CREATE (s:Sense {name: $sense_name, gloss_text: $gloss_text})\n")
		} else {
			b.WriteString("MERGE (s:Sense {name: $sense_name, gloss_text: $gloss_text})\n")
		}
		fmt.Fprintf(&b, "%s (l)-[:%s]->(s)", edge, lexicon.HasSense)
	case OpSenseOption:
		b.WriteString("MERGE (l:Lemma {name: $option})\n")
		b.WriteString("MERGE (s:Sense {name: $sense_name, gloss_text: $gloss_text})\n")
		fmt.Fprintf(&b, "%s (s)-[:%s]->(l)", edge, m.RelType)
	case OpSenseLink:
		b.WriteString("MERGE (source:Sense {name: $source_name, gloss_text: $source_gloss_text})\n")
		b.WriteString("MERGE (target:Sense {name: $target_name, gloss_text: $target_gloss_text})\n")
		fmt.Fprintf(&b, "%s (source)-[:%s]->(target)", edge, m.RelType)
	}
	return b.String()
}

// Params returns the statement parameters.
func (m Mutation) Params() map[string]any {
	switch m.Op {
	case OpLemmaSense:
		return map[string]any{
			"lemma_name": m.Lemma,
			"sense_name": m.Source.Name,
			"gloss_text": m.Source.Gloss,
		}
	case OpSenseOption:
		return map[string]any{
			"option":     m.Lemma,
			"sense_name": m.Source.Name,
			"gloss_text": m.Source.Gloss,
		}
	case OpSenseLink:
		return map[string]any{
			"source_name":       m.Source.Name,
			"source_gloss_text": m.Source.Gloss,
			"target_name":       m.Target.Name,
			"target_gloss_text": m.Target.Gloss,
		}
	}
	return nil
}

// Identities lists the node identity keys the mutation matches or creates.
func (m Mutation) Identities() []string {
	switch m.Op {
	case OpLemmaSense, OpSenseOption:
		return []string{LemmaIdentity(m.Lemma), m.Source.Identity()}
	case OpSenseLink:
		return []string{m.Source.Identity(), m.Target.Identity()}
	}
	return nil
}

func (m Mutation) String() string {
	switch m.Op {
	case OpLemmaSense:
		return fmt.Sprintf("%s %q -[%s]-> %q", m.Op, m.Lemma, lexicon.HasSense, m.Source.Name)
	case OpSenseOption:
		return fmt.Sprintf("%s %q -[%s]-> %q", m.Op, m.Source.Name, m.RelType, m.Lemma)
	default:
		return fmt.Sprintf("%s %q -[%s]-> %q", m.Op, m.Source.Name, m.RelType, m.Target.Name)
	}
}
