package engine

import (
	"context"
	"errors"
	"html"
	"log"

	"inkwell/api/internal/overlay"
)

var (
	ErrUnknownEdit      = errors.New("engine: no pending edit with that id")
	ErrNoSelection      = errors.New("engine: no selection captured")
	ErrStaleSelection   = errors.New("engine: selection captured against an older document")
	ErrInvalidSelection = errors.New("engine: selection does not match the document")
)

// Selection is the captured range for a rewrite: the selected text plus its
// [Start, End) byte range in the plain-text projection, bound to the
// document version at capture time. Single use; consumed by the next
// rewrite attempt whether or not it succeeds.
type Selection struct {
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	version int
}

// CaptureSelection records a non-collapsed selection. The offsets must
// address exactly the given text in the current plain-text projection;
// anything else is rejected rather than left to splice at an undefined
// location later.
func (c *Controller) CaptureSelection(text string, start, end int) error {
	if text == "" || start < 0 || end <= start {
		return ErrInvalidSelection
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	plain := overlay.PlainText(c.markup)
	if end > len(plain) || plain[start:end] != text {
		return ErrInvalidSelection
	}
	c.selection = &Selection{Text: text, Start: start, End: end, version: c.version}
	return nil
}

// Selection returns the currently captured selection, if any.
func (c *Controller) Selection() (Selection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selection == nil {
		return Selection{}, false
	}
	return *c.selection, true
}

// RewriteSelection sends the captured selection and the instruction to the
// text service and splices the result over the captured range. The capture
// is consumed first: a second attempt needs a fresh selection. A capture
// older than the current document version is refused as stale. On service
// failure the document is left untouched and the original text is returned.
func (c *Controller) RewriteSelection(ctx context.Context, instruction string) (string, error) {
	c.mu.Lock()
	sel := c.selection
	c.selection = nil
	if sel == nil {
		c.mu.Unlock()
		return "", ErrNoSelection
	}
	if sel.version != c.version {
		c.mu.Unlock()
		return "", ErrStaleSelection
	}
	c.inFlight[OpRewrite] = true
	version := c.version
	c.mu.Unlock()

	rewritten, err := c.svc.RewriteSpan(ctx, sel.Text, instruction)

	c.mu.Lock()
	c.inFlight[OpRewrite] = false
	if err != nil {
		c.mu.Unlock()
		log.Printf("engine: rewrite failed, keeping original selection: %v", err)
		return sel.Text, nil
	}
	if c.version != version {
		// The document moved while the rewrite was in flight; the
		// captured range no longer addresses the same text.
		c.mu.Unlock()
		return "", ErrStaleSelection
	}
	mstart, mend, ok := overlay.MapRange(c.markup, sel.Start, sel.End)
	if !ok {
		c.mu.Unlock()
		return "", ErrStaleSelection
	}
	c.markup = c.markup[:mstart] + html.EscapeString(rewritten) + c.markup[mend:]
	c.bumpLocked()
	c.mu.Unlock()
	c.notifyChange()
	return rewritten, nil
}
