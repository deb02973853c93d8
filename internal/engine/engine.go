// Package engine owns one editor session's document and reconciles the
// text service's proposed edits against it: debounced grammar checks,
// explicit style suggestions, accept/reject resolution, full regeneration
// and selection rewrites.
package engine

import (
	"context"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	"inkwell/api/internal/editset"
	"inkwell/api/internal/overlay"
	"inkwell/api/internal/textservice"
)

// Op tags one stream of service work. Each stream is tracked independently
// so a manual suggestion request and a debounce-triggered grammar check can
// be in flight at the same time.
type Op string

const (
	OpGenerate Op = "generate"
	OpSuggest  Op = "suggest"
	OpGrammar  Op = "grammar"
	OpRewrite  Op = "rewrite"
)

// ApologyText replaces the document when a full generation fails.
const ApologyText = "Sorry, something went wrong while generating your draft. Please try again."

const (
	DefaultDebounceDelay   = 1500 * time.Millisecond
	DefaultGrammarMinChars = 10
	DefaultSuggestMinChars = 50
)

type Options struct {
	Service         textservice.Service
	DebounceDelay   time.Duration
	GrammarMinChars int
	SuggestMinChars int
	// OnChange fires after every document mutation, outside the lock.
	// Used for autosave.
	OnChange func()
}

// Controller is the per-session reconciliation state machine. The document
// markup stored here never contains overlay spans; overlays are rendered on
// demand and folded back in during resolution.
type Controller struct {
	mu    sync.Mutex
	svc   textservice.Service
	edits *editset.Store

	markup  string
	version int

	// Monotonic sequence numbers, one per proposal stream. A response is
	// applied only while the sequence captured at request time is still
	// current; anything superseded by a newer request or a document
	// mutation is discarded instead of clobbering the cleared sets.
	grammarSeq int
	suggestSeq int

	inFlight map[Op]bool

	debounce      *time.Timer
	debounceDelay time.Duration
	grammarMin    int
	suggestMin    int

	selection *Selection
	onChange  func()
	closed    bool
}

func New(opts Options) *Controller {
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounceDelay
	}
	if opts.GrammarMinChars <= 0 {
		opts.GrammarMinChars = DefaultGrammarMinChars
	}
	if opts.SuggestMinChars <= 0 {
		opts.SuggestMinChars = DefaultSuggestMinChars
	}
	return &Controller{
		svc:           opts.Service,
		edits:         editset.NewStore(),
		inFlight:      make(map[Op]bool),
		debounceDelay: opts.DebounceDelay,
		grammarMin:    opts.GrammarMinChars,
		suggestMin:    opts.SuggestMinChars,
		onChange:      opts.OnChange,
	}
}

// Close stops the debounce timer. In-flight service calls are not
// cancelled; their results are discarded by the sequence check.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
	c.mu.Unlock()
}

// Markup returns the base document markup without overlays.
func (c *Controller) Markup() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markup
}

// Rendered returns the document annotated with one overlay span per
// locatable pending edit, grammar first.
func (c *Controller) Rendered() string {
	c.mu.Lock()
	markup := c.markup
	c.mu.Unlock()
	return overlay.Render(markup, c.edits.GrammarErrors(), c.edits.StyleSuggestions())
}

// PlainText returns the document's plain-text projection.
func (c *Controller) PlainText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return overlay.PlainText(c.markup)
}

// Version counts document mutations; selection captures are validated
// against it.
func (c *Controller) Version() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Edits exposes the pending edit sets.
func (c *Controller) Edits() *editset.Store {
	return c.edits
}

// Flags reports which streams currently have a service call in flight.
func (c *Controller) Flags() map[Op]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Op]bool, len(c.inFlight))
	for op, busy := range c.inFlight {
		if busy {
			out[op] = true
		}
	}
	return out
}

// SetDocument is the user-content-change path: the previous edit sets are
// unsound against the new text and are cleared synchronously, any armed
// grammar timer is reset, and a new debounce window starts.
func (c *Controller) SetDocument(markup string) {
	c.mu.Lock()
	c.markup = overlay.Strip(markup)
	c.bumpLocked()
	c.armDebounceLocked()
	c.mu.Unlock()
	c.notifyChange()
}

// bumpLocked records a document mutation: version moves, both proposal
// streams are invalidated, the pending sets are dropped and any captured
// selection becomes stale.
func (c *Controller) bumpLocked() {
	c.version++
	c.grammarSeq++
	c.suggestSeq++
	c.edits.ClearAll()
}

func (c *Controller) armDebounceLocked() {
	if c.debounce != nil {
		c.debounce.Stop()
	}
	if c.closed {
		return
	}
	c.debounce = time.AfterFunc(c.debounceDelay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		c.CheckGrammarNow(ctx)
	})
}

// CheckGrammarNow runs a grammar check against the current text. The timer
// takes this same path when the debounce window elapses. Texts at or under
// the minimum length are never sent; service failures are indistinguishable
// from a clean report.
func (c *Controller) CheckGrammarNow(ctx context.Context) []editset.PendingEdit {
	c.mu.Lock()
	plain := overlay.PlainText(c.markup)
	if len(plain) <= c.grammarMin {
		c.mu.Unlock()
		return nil
	}
	c.grammarSeq++
	seq := c.grammarSeq
	c.inFlight[OpGrammar] = true
	c.mu.Unlock()

	issues, err := c.svc.CheckGrammar(ctx, plain)
	if err != nil {
		log.Printf("engine: grammar check failed: %v", err)
		issues = nil
	}

	c.mu.Lock()
	c.inFlight[OpGrammar] = false
	if seq != c.grammarSeq {
		// Superseded while in flight; the text has moved on.
		c.mu.Unlock()
		return nil
	}
	proposals := make([]editset.Proposal, 0, len(issues))
	for _, issue := range issues {
		proposals = append(proposals, editset.Proposal{
			MatchText:   issue.ErrorText,
			Replacement: issue.Correction,
			Annotation:  issue.Explanation,
		})
	}
	applied := c.edits.ReplaceGrammarErrors(proposals)
	c.mu.Unlock()
	return applied
}

// Suggest requests style suggestions for the current text. Texts at or
// under the minimum length yield an empty result without a service call.
func (c *Controller) Suggest(ctx context.Context) []editset.PendingEdit {
	c.mu.Lock()
	plain := overlay.PlainText(c.markup)
	if len(plain) <= c.suggestMin {
		c.mu.Unlock()
		return nil
	}
	c.suggestSeq++
	seq := c.suggestSeq
	c.inFlight[OpSuggest] = true
	c.mu.Unlock()

	suggestions, err := c.svc.SuggestStyle(ctx, plain)
	if err != nil {
		log.Printf("engine: style suggestions failed: %v", err)
		suggestions = nil
	}

	c.mu.Lock()
	c.inFlight[OpSuggest] = false
	if seq != c.suggestSeq {
		c.mu.Unlock()
		return nil
	}
	proposals := make([]editset.Proposal, 0, len(suggestions))
	for _, s := range suggestions {
		proposals = append(proposals, editset.Proposal{
			MatchText:   s.MatchText,
			Replacement: s.Replacement,
			Annotation:  s.Replacement,
		})
	}
	applied := c.edits.ReplaceStyleSuggestions(proposals)
	c.mu.Unlock()
	return applied
}

// Resolve settles one pending edit. Accepting replaces the overlay-wrapped
// fragment with the proposed text; rejecting restores the original fragment
// byte for byte. Either way the edit leaves its set. An edit whose anchor
// was never locatable is simply discarded. Resolution does not clear the
// other pending edits and does not restart the debounce window.
func (c *Controller) Resolve(id string, accept bool) (editset.PendingEdit, error) {
	c.mu.Lock()

	edit, ok := c.edits.Find(id)
	if !ok {
		c.mu.Unlock()
		return editset.PendingEdit{}, ErrUnknownEdit
	}

	rendered := overlay.Render(c.markup, c.edits.GrammarErrors(), c.edits.StyleSuggestions())
	resolved, found := overlay.ResolveSpan(rendered, id, accept, edit.Replacement)
	c.edits.Remove(id)
	if !found {
		// Anchor text vanished before the edit was rendered; nothing to
		// apply against.
		c.mu.Unlock()
		log.Printf("engine: edit %s had no anchor at resolution, dropped", id)
		return edit, nil
	}
	mutated := false
	if accept {
		c.markup = overlay.Strip(resolved)
		c.version++
		c.grammarSeq++
		c.suggestSeq++
		c.selection = nil
		mutated = true
	}
	c.mu.Unlock()
	if mutated {
		c.notifyChange()
	}
	return edit, nil
}

// Generate replaces the whole document from a prompt. Failure substitutes
// the apology placeholder as document text; nothing propagates. Both edit
// sets are cleared either way.
func (c *Controller) Generate(ctx context.Context, prompt string, files []textservice.AttachedFile) string {
	c.mu.Lock()
	c.inFlight[OpGenerate] = true
	c.mu.Unlock()

	text, err := c.svc.GenerateDraft(ctx, prompt, files)
	if err != nil {
		log.Printf("engine: draft generation failed: %v", err)
		text = ApologyText
	}

	c.mu.Lock()
	c.inFlight[OpGenerate] = false
	c.markup = MarkupFromText(text)
	c.bumpLocked()
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.selection = nil
	c.mu.Unlock()
	c.notifyChange()
	return text
}

func (c *Controller) notifyChange() {
	if c.onChange != nil {
		c.onChange()
	}
}

// MarkupFromText wraps plain text in paragraph markup, splitting on blank
// lines. Generated drafts and rewrite results enter the document this way.
func MarkupFromText(text string) string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var b strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(p), "\n", "<br>"))
		b.WriteString("</p>")
	}
	if b.Len() == 0 {
		return "<p></p>"
	}
	return b.String()
}
