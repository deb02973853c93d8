// Package editset holds the pending edits proposed by the text service
// until the user accepts or rejects them.
package editset

import (
	"sync"

	"inkwell/api/internal/util"
)

type Kind string

const (
	KindStyle   Kind = "style"
	KindGrammar Kind = "grammar"
)

// Proposal is an edit as it arrives from the text service, before an id has
// been assigned. MatchText is the literal fragment of the source text the
// edit targets; it is re-located in the live document at render time.
type Proposal struct {
	MatchText   string
	Replacement string
	Annotation  string
}

// PendingEdit is a proposal that has been ingested into a store. The id is
// process-unique and stable until the edit is resolved; service responses
// never carry ids of their own.
type PendingEdit struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	MatchText   string `json:"matchText"`
	Replacement string `json:"replacement"`
	Annotation  string `json:"annotation"`
}

// Store keeps the two pending collections, one per kind, each ordered as
// the service returned them. Handlers run concurrently so every operation
// takes the lock, even though each editor session's flow is logically
// serial.
type Store struct {
	mu      sync.Mutex
	style   []PendingEdit
	grammar []PendingEdit
}

func NewStore() *Store {
	return &Store{}
}

func ingest(kind Kind, prefix string, proposals []Proposal) []PendingEdit {
	edits := make([]PendingEdit, 0, len(proposals))
	for _, p := range proposals {
		edits = append(edits, PendingEdit{
			ID:          util.NewID(prefix),
			Kind:        kind,
			MatchText:   p.MatchText,
			Replacement: p.Replacement,
			Annotation:  p.Annotation,
		})
	}
	return edits
}

// ReplaceStyleSuggestions discards the previous style set and ingests the
// given proposals with fresh ids.
func (s *Store) ReplaceStyleSuggestions(proposals []Proposal) []PendingEdit {
	edits := ingest(KindStyle, "sug", proposals)
	s.mu.Lock()
	s.style = edits
	s.mu.Unlock()
	return append([]PendingEdit(nil), edits...)
}

// ReplaceGrammarErrors discards the previous grammar set and ingests the
// given proposals with fresh ids.
func (s *Store) ReplaceGrammarErrors(proposals []Proposal) []PendingEdit {
	edits := ingest(KindGrammar, "gram", proposals)
	s.mu.Lock()
	s.grammar = edits
	s.mu.Unlock()
	return append([]PendingEdit(nil), edits...)
}

// StyleSuggestions returns a copy of the pending style set.
func (s *Store) StyleSuggestions() []PendingEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingEdit(nil), s.style...)
}

// GrammarErrors returns a copy of the pending grammar set.
func (s *Store) GrammarErrors() []PendingEdit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PendingEdit(nil), s.grammar...)
}

// Find looks an edit up by id across both sets.
func (s *Store) Find(id string) (PendingEdit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.grammar {
		if e.ID == id {
			return e, true
		}
	}
	for _, e := range s.style {
		if e.ID == id {
			return e, true
		}
	}
	return PendingEdit{}, false
}

// Remove deletes an edit by id from whichever set contains it and returns
// the removed edit.
func (s *Store) Remove(id string) (PendingEdit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.grammar {
		if e.ID == id {
			s.grammar = append(s.grammar[:i], s.grammar[i+1:]...)
			return e, true
		}
	}
	for i, e := range s.style {
		if e.ID == id {
			s.style = append(s.style[:i], s.style[i+1:]...)
			return e, true
		}
	}
	return PendingEdit{}, false
}

// ClearAll drops both sets. Called on any user content change and on full
// regeneration: edits computed against the previous text are unsound.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.style = nil
	s.grammar = nil
	s.mu.Unlock()
}

// Empty reports whether no edits are pending in either set.
func (s *Store) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.style) == 0 && len(s.grammar) == 0
}
