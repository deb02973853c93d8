package editset

import (
	"strings"
	"testing"
)

func TestReplaceAssignsFreshPrefixedIDs(t *testing.T) {
	s := NewStore()
	style := s.ReplaceStyleSuggestions([]Proposal{
		{MatchText: "very good", Replacement: "excellent"},
		{MatchText: "a lot of", Replacement: "many"},
	})
	grammar := s.ReplaceGrammarErrors([]Proposal{
		{MatchText: "Teh", Replacement: "The", Annotation: "Spelling"},
	})

	seen := map[string]bool{}
	for _, e := range style {
		if !strings.HasPrefix(e.ID, "sug_") {
			t.Errorf("style id %q missing prefix", e.ID)
		}
		if e.Kind != KindStyle {
			t.Errorf("style edit has kind %q", e.Kind)
		}
		if seen[e.ID] {
			t.Errorf("duplicate id %q", e.ID)
		}
		seen[e.ID] = true
	}
	for _, e := range grammar {
		if !strings.HasPrefix(e.ID, "gram_") {
			t.Errorf("grammar id %q missing prefix", e.ID)
		}
		if seen[e.ID] {
			t.Errorf("id %q reused across sets", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestReplaceDiscardsPreviousSet(t *testing.T) {
	s := NewStore()
	s.ReplaceGrammarErrors([]Proposal{{MatchText: "old", Replacement: "new"}})
	s.ReplaceGrammarErrors([]Proposal{{MatchText: "fresh", Replacement: "fresher"}})

	got := s.GrammarErrors()
	if len(got) != 1 || got[0].MatchText != "fresh" {
		t.Errorf("expected only the fresh set, got %+v", got)
	}
}

func TestOrderPreserved(t *testing.T) {
	s := NewStore()
	s.ReplaceStyleSuggestions([]Proposal{
		{MatchText: "first"}, {MatchText: "second"}, {MatchText: "third"},
	})
	got := s.StyleSuggestions()
	for i, want := range []string{"first", "second", "third"} {
		if got[i].MatchText != want {
			t.Fatalf("order broken at %d: %+v", i, got)
		}
	}
}

func TestFindAndRemoveAcrossSets(t *testing.T) {
	s := NewStore()
	style := s.ReplaceStyleSuggestions([]Proposal{{MatchText: "a", Replacement: "b"}})
	grammar := s.ReplaceGrammarErrors([]Proposal{{MatchText: "c", Replacement: "d"}})

	if _, ok := s.Find(style[0].ID); !ok {
		t.Error("style edit should be findable")
	}
	if _, ok := s.Find(grammar[0].ID); !ok {
		t.Error("grammar edit should be findable")
	}
	if _, ok := s.Find("gram_nope"); ok {
		t.Error("unknown id should not be found")
	}

	removed, ok := s.Remove(grammar[0].ID)
	if !ok || removed.MatchText != "c" {
		t.Fatalf("remove failed: %+v ok=%v", removed, ok)
	}
	if len(s.GrammarErrors()) != 0 {
		t.Error("grammar set should be empty after removal")
	}
	if len(s.StyleSuggestions()) != 1 {
		t.Error("style set must be untouched by a grammar removal")
	}
}

func TestClearAll(t *testing.T) {
	s := NewStore()
	s.ReplaceStyleSuggestions([]Proposal{{MatchText: "a"}})
	s.ReplaceGrammarErrors([]Proposal{{MatchText: "b"}})

	s.ClearAll()

	if !s.Empty() {
		t.Error("store should be empty after ClearAll")
	}
}

func TestDuplicateMatchTextAllowed(t *testing.T) {
	s := NewStore()
	edits := s.ReplaceGrammarErrors([]Proposal{
		{MatchText: "teh", Replacement: "the"},
		{MatchText: "teh", Replacement: "the"},
	})
	if len(edits) != 2 {
		t.Fatalf("expected both duplicates kept, got %d", len(edits))
	}
	if edits[0].ID == edits[1].ID {
		t.Error("duplicates must still get distinct ids")
	}
}
