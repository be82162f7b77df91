package lexicon

import (
	"errors"
	"testing"

	"github.com/japaniel/lexigraph/pkg/snapshot"
)

func TestParseOptionType(t *testing.T) {
	tests := []struct {
		in   string
		want OptionType
		ok   bool
	}{
		{"POS", OptionPOS, true},
		{" pos ", OptionPOS, true},
		{"part-of-speech", OptionPOS, true},
		{"gender", OptionGender, true},
		{"Style", OptionRegister, true},
		{"DOMAIN", OptionDomain, true},
		{"SYNONYM", 0, false},
		{"POS]->(x) DETACH DELETE x //", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseOptionType(tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseOptionType(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrUnknownRelation) {
			t.Errorf("ParseOptionType(%q) error = %v; want ErrUnknownRelation", tt.in, err)
		}
	}
}

func TestParseLinkType(t *testing.T) {
	tests := []struct {
		in   string
		want LinkType
		ok   bool
	}{
		{"SYNONYM", LinkSynonym, true},
		{"synonyms", LinkSynonym, true},
		{"Hypernym", LinkHypernym, true},
		{"cohyponyms", LinkCohyponym, true},
		{"MERONYM", LinkMeronym, true},
		{"POS", 0, false},
		{"RELATED", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseLinkType(tt.in)
		if tt.ok {
			if err != nil || got != tt.want {
				t.Errorf("ParseLinkType(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
			continue
		}
		if !errors.Is(err, ErrUnknownRelation) {
			t.Errorf("ParseLinkType(%q) error = %v; want ErrUnknownRelation", tt.in, err)
		}
	}
}

func TestTaxonomyIsClosed(t *testing.T) {
	for _, ot := range OptionTypes() {
		if !ot.Valid() || ot.RelType() == "" {
			t.Errorf("declared option type %d is not valid", ot)
		}
		back, err := ParseOptionType(ot.RelType())
		if err != nil || back != ot {
			t.Errorf("option %s does not round-trip: %v %v", ot, back, err)
		}
	}
	for _, lt := range LinkTypes() {
		if !lt.Valid() || lt.RelType() == "" {
			t.Errorf("declared link type %d is not valid", lt)
		}
		back, err := ParseLinkType(lt.RelType())
		if err != nil || back != lt {
			t.Errorf("link %s does not round-trip: %v %v", lt, back, err)
		}
	}
	if len(OptionTypes()) != len(optionNames) || len(LinkTypes()) != len(linkNames) {
		t.Error("declaration order lists are out of sync with the name tables")
	}
	if OptionType(0).Valid() || OptionType(99).Valid() || LinkType(0).Valid() || LinkType(42).Valid() {
		t.Error("undeclared values must be invalid")
	}
	if OptionType(99).RelType() != "" || LinkType(42).RelType() != "" {
		t.Error("undeclared values must not have a relationship name")
	}
}

func TestNormalizeBankRecord(t *testing.T) {
	e, err := Normalize(snapshot.SenseRecord{
		Lemma:   "bank",
		ID:      "bank#1",
		Gloss:   "a financial institution",
		Options: []snapshot.Option{{Type: "POS", Value: "noun"}},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if e.Lemma != "bank" || e.SenseID != "bank#1" || e.Gloss != "a financial institution" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if len(e.Options) != 1 || e.Options[0] != (OptionPair{Type: OptionPOS, Value: "noun"}) {
		t.Errorf("unexpected options: %+v", e.Options)
	}
	if len(e.Links) != 0 || len(e.Rejected) != 0 {
		t.Errorf("expected no links or rejections: %+v", e)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	cases := []snapshot.SenseRecord{
		{Lemma: "", ID: "x#1", Gloss: "g"},
		{Lemma: "   ", ID: "x#1"},
		{Lemma: "x", ID: ""},
		{Lemma: "x", ID: "\t"},
	}
	for _, rec := range cases {
		if _, err := Normalize(rec); !errors.Is(err, ErrMalformedRecord) {
			t.Errorf("Normalize(%+v) error = %v; want ErrMalformedRecord", rec, err)
		}
	}
}

func TestNormalizeOrdersAndQuarantines(t *testing.T) {
	e, err := Normalize(snapshot.SenseRecord{
		Lemma: "  cat ",
		ID:    "cat#1",
		Gloss: "  a small feline  ",
		Options: []snapshot.Option{
			{Type: "POS", Value: "noun"},
			{Type: "COLOR", Value: "black"},
			{Type: "GENDER", Value: "  "},
			{Type: "ANIMACY", Value: "animate"},
		},
		Links: map[string]string{
			"kitten#1": "HYPONYM",
			"animal#1": "HYPERNYM",
			"dog#1":    "FRIEND",
		},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if e.Lemma != "cat" {
		t.Errorf("lemma not trimmed: %q", e.Lemma)
	}
	if e.Gloss != "  a small feline  " {
		t.Errorf("gloss should be kept verbatim, got %q", e.Gloss)
	}
	wantOpts := []OptionPair{{OptionPOS, "noun"}, {OptionAnimacy, "animate"}}
	if len(e.Options) != len(wantOpts) {
		t.Fatalf("options = %+v, want %+v", e.Options, wantOpts)
	}
	for i := range wantOpts {
		if e.Options[i] != wantOpts[i] {
			t.Errorf("option %d = %+v, want %+v", i, e.Options[i], wantOpts[i])
		}
	}
	wantLinks := []LinkPair{{"animal#1", LinkHypernym}, {"kitten#1", LinkHyponym}}
	if len(e.Links) != len(wantLinks) {
		t.Fatalf("links = %+v, want %+v", e.Links, wantLinks)
	}
	for i := range wantLinks {
		if e.Links[i] != wantLinks[i] {
			t.Errorf("link %d = %+v, want %+v", i, e.Links[i], wantLinks[i])
		}
	}
	if len(e.Rejected) != 3 {
		t.Fatalf("expected 3 quarantined relations, got %+v", e.Rejected)
	}
	if r := e.Rejected[0]; r.Kind != "option" || r.Type != "COLOR" || !errors.Is(r.Err, ErrUnknownRelation) {
		t.Errorf("unexpected first rejection: %+v", r)
	}
	if r := e.Rejected[1]; r.Kind != "option" || r.Type != "GENDER" || !errors.Is(r.Err, ErrEmptyValue) {
		t.Errorf("empty option value should be quarantined, got %+v", r)
	}
	if r := e.Rejected[2]; r.Kind != "link" || r.Value != "dog#1" || !errors.Is(r.Err, ErrUnknownRelation) {
		t.Errorf("unexpected third rejection: %+v", r)
	}
}

func TestNormalizeQuarantinesEmptyLinkTarget(t *testing.T) {
	e, err := Normalize(snapshot.SenseRecord{
		Lemma: "cat",
		ID:    "cat#1",
		Links: map[string]string{" ": "SYNONYM", "dog#1": "COHYPONYM"},
	})
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if len(e.Links) != 1 || e.Links[0].Target != "dog#1" {
		t.Errorf("links = %+v", e.Links)
	}
	if len(e.Rejected) != 1 || e.Rejected[0].Kind != "link" || !errors.Is(e.Rejected[0].Err, ErrEmptyValue) {
		t.Errorf("empty link target should be quarantined, got %+v", e.Rejected)
	}
}
