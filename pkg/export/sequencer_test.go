package export

import (
	"context"
	"errors"
	"testing"

	"github.com/japaniel/lexigraph/pkg/graph"
	"github.com/japaniel/lexigraph/pkg/lexicon"
	"github.com/japaniel/lexigraph/pkg/snapshot"
	"github.com/japaniel/lexigraph/pkg/store"
)

func riverPlan(t *testing.T) graph.Plan {
	t.Helper()
	snap := snapshot.New([]snapshot.SenseRecord{
		{Lemma: "bank", ID: "bank#2", Gloss: "edge of a river"},
		{Lemma: "river", ID: "river#1", Gloss: "flowing water"},
		{Lemma: "shore", ID: "shore#1", Gloss: "land along water"},
	})
	e := lexicon.Entry{
		Lemma:   "bank",
		SenseID: "bank#2",
		Gloss:   "edge of a river",
		Options: []lexicon.OptionPair{
			{Type: lexicon.OptionPOS, Value: "noun"},
			{Type: lexicon.OptionDomain, Value: "geography"},
		},
		Links: []lexicon.LinkPair{
			{Target: "river#1", Type: lexicon.LinkHolonym},
			{Target: "shore#1", Type: lexicon.LinkSynonym},
		},
	}
	plan, err := graph.Mapper{}.Map(e, snap)
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	return plan
}

func TestSequencerWritesInOrder(t *testing.T) {
	st := store.NewMemStore()
	seq := &Sequencer{Store: st}
	res := seq.Run(context.Background(), riverPlan(t))
	if !res.OK() || res.State != Done {
		t.Fatalf("expected done, got %s errors=%v", res.State, res.Errors)
	}
	if res.Attempts != 5 {
		t.Errorf("attempts = %d, want 5", res.Attempts)
	}
	edges := st.Edges()
	want := []string{lexicon.HasSense, "POS", "DOMAIN", "HOLONYM", "SYNONYM"}
	if len(edges) != len(want) {
		t.Fatalf("edges = %d, want %d", len(edges), len(want))
	}
	for i, w := range want {
		if edges[i].Type != w {
			t.Errorf("edge %d = %s, want %s", i, edges[i].Type, w)
		}
	}
}

func TestSequencerStopsAfterLemmaSenseFailure(t *testing.T) {
	st := store.NewMemStore()
	boom := errors.New("write refused")
	st.FailOn = func(m graph.Mutation) error {
		if m.Op == graph.OpLemmaSense {
			return boom
		}
		return nil
	}
	res := (&Sequencer{Store: st}).Run(context.Background(), riverPlan(t))
	if res.State != Failed || res.FailedStep != LemmaSenseWritten {
		t.Fatalf("state=%s step=%s, want failed at lemma_sense_written", res.State, res.FailedStep)
	}
	if res.Attempts != 1 {
		t.Errorf("remaining units must not be attempted, attempts = %d", res.Attempts)
	}
	if len(res.Errors) != 1 || !errors.Is(res.Errors[0], boom) {
		t.Fatalf("unexpected errors %v", res.Errors)
	}
	if res.Errors[0].Op != graph.OpLemmaSense || res.Errors[0].SenseID != "bank#2" {
		t.Errorf("unexpected unit error %+v", res.Errors[0])
	}
	if st.CountEdges("") != 0 {
		t.Error("no relationship should exist")
	}
}

func TestSequencerContinuesAfterOptionFailure(t *testing.T) {
	st := store.NewMemStore()
	st.FailOn = func(m graph.Mutation) error {
		if m.Op == graph.OpSenseOption && m.RelType == "POS" {
			return errors.New("transient")
		}
		return nil
	}
	res := (&Sequencer{Store: st}).Run(context.Background(), riverPlan(t))
	if res.State != Failed || res.FailedStep != OptionsWritten {
		t.Fatalf("state=%s step=%s, want failed at options_written", res.State, res.FailedStep)
	}
	if res.Attempts != 5 {
		t.Errorf("every unit should be attempted, attempts = %d", res.Attempts)
	}
	if len(res.Errors) != 1 || res.Errors[0].RelType != "POS" || res.Errors[0].Target != "noun" {
		t.Fatalf("unexpected errors %+v", res.Errors)
	}
	// committed units stay
	if st.CountEdges(lexicon.HasSense) != 1 || st.CountEdges("DOMAIN") != 1 || st.CountEdges("SYNONYM") != 1 {
		t.Errorf("committed units missing: %+v", st.Edges())
	}
	if st.CountEdges("POS") != 0 {
		t.Error("failed unit must leave no edge")
	}
}

func TestSequencerRecordsFirstFailingStep(t *testing.T) {
	st := store.NewMemStore()
	st.FailOn = func(m graph.Mutation) error {
		if m.Op != graph.OpLemmaSense {
			return errors.New("down")
		}
		return nil
	}
	var seen int
	seq := &Sequencer{Store: st, OnUnit: func(graph.Mutation, error) { seen++ }}
	res := seq.Run(context.Background(), riverPlan(t))
	if res.FailedStep != OptionsWritten {
		t.Errorf("failed step = %s, want options_written", res.FailedStep)
	}
	if len(res.Errors) != 4 {
		t.Errorf("errors = %d, want 4", len(res.Errors))
	}
	if seen != 5 {
		t.Errorf("OnUnit calls = %d, want 5", seen)
	}
	link := res.Errors[2]
	if link.Op != graph.OpSenseLink || link.Target != "river#1" || link.RelType != "HOLONYM" {
		t.Errorf("unexpected link error %+v", link)
	}
	if link.Error() == "" {
		t.Error("empty error message")
	}
}
