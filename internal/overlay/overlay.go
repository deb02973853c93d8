// Package overlay renders pending edits as inline highlight spans over the
// document markup and maps them back out again. All functions are pure; the
// document itself is owned by the engine.
package overlay

import (
	"html"
	"strings"

	"inkwell/api/internal/editset"
)

const (
	// ClassGrammar and ClassStyle discriminate overlay kind in the markup.
	ClassGrammar = "ink-grammar"
	ClassStyle   = "ink-style"

	spanPrefix = `<span class="ink-`
	spanClose  = `</span>`
)

// region is a half-open byte range [start, end) of the markup that anchor
// matching must not touch: tag bodies and the contents of overlay spans.
type region struct {
	start int
	end   int
}

// forbiddenRegions scans the markup once and collects every tag plus the
// full extent of every existing overlay span. Overlay spans wrap plain text
// only, so scanning for the next close tag is enough.
func forbiddenRegions(markup string) []region {
	var regions []region
	i := 0
	for i < len(markup) {
		open := strings.IndexByte(markup[i:], '<')
		if open < 0 {
			break
		}
		open += i
		if strings.HasPrefix(markup[open:], spanPrefix) {
			end := strings.Index(markup[open:], spanClose)
			if end < 0 {
				// Unterminated span, treat the rest as off limits.
				regions = append(regions, region{open, len(markup)})
				break
			}
			end += open + len(spanClose)
			regions = append(regions, region{open, end})
			i = end
			continue
		}
		close := strings.IndexByte(markup[open:], '>')
		if close < 0 {
			regions = append(regions, region{open, len(markup)})
			break
		}
		close += open + 1
		regions = append(regions, region{open, close})
		i = close
	}
	return regions
}

func intersects(regions []region, start, end int) bool {
	for _, reg := range regions {
		if start < reg.end && end > reg.start {
			return true
		}
	}
	return false
}

// Match locates the first occurrence of matchText in the markup that lies
// entirely outside tags and previously inserted overlay spans. Returns -1
// when matchText is empty or no such occurrence exists. Matching is literal:
// an occurrence interrupted by user markup does not count, and when the text
// repeats the first unwrapped occurrence wins.
func Match(markup, matchText string) int {
	if matchText == "" {
		return -1
	}
	regions := forbiddenRegions(markup)
	from := 0
	for {
		idx := strings.Index(markup[from:], matchText)
		if idx < 0 {
			return -1
		}
		idx += from
		if !intersects(regions, idx, idx+len(matchText)) {
			return idx
		}
		from = idx + 1
	}
}

// escapeAttr escapes a string for use inside a double-quoted attribute.
func escapeAttr(s string) string {
	return html.EscapeString(s)
}

// wrap builds the overlay span for one edit around the matched fragment.
func wrap(class string, e editset.PendingEdit, fragment string) string {
	var b strings.Builder
	b.WriteString(`<span class="`)
	b.WriteString(class)
	b.WriteString(`" data-edit-id="`)
	b.WriteString(escapeAttr(e.ID))
	b.WriteString(`" title="`)
	b.WriteString(escapeAttr(e.Annotation))
	b.WriteString(`">`)
	b.WriteString(fragment)
	b.WriteString(spanClose)
	return b.String()
}

func apply(markup, class string, e editset.PendingEdit) string {
	idx := Match(markup, e.MatchText)
	if idx < 0 {
		// Hallucinated or outdated anchor: the edit stays pending but is
		// not rendered.
		return markup
	}
	end := idx + len(e.MatchText)
	return markup[:idx] + wrap(class, e, markup[idx:end]) + markup[end:]
}

// Render annotates the markup with one overlay span per locatable edit.
// Grammar overlays are applied first, then style overlays, each pass working
// on the output of the previous one so no fragment is wrapped twice. With
// both sets empty the markup is returned untouched.
func Render(markup string, grammar, style []editset.PendingEdit) string {
	if len(grammar) == 0 && len(style) == 0 {
		return markup
	}
	out := markup
	for _, e := range grammar {
		out = apply(out, ClassGrammar, e)
	}
	for _, e := range style {
		out = apply(out, ClassStyle, e)
	}
	return out
}

// findSpan returns the bounds of the overlay span carrying the given edit id
// and the bounds of its inner content. ok is false when the edit was never
// rendered (anchor not found) or the id is unknown.
func findSpan(markup, id string) (start, innerStart, innerEnd, end int, ok bool) {
	needle := `data-edit-id="` + escapeAttr(id) + `"`
	attr := strings.Index(markup, needle)
	if attr < 0 {
		return 0, 0, 0, 0, false
	}
	start = strings.LastIndex(markup[:attr], spanPrefix)
	if start < 0 {
		return 0, 0, 0, 0, false
	}
	gt := strings.IndexByte(markup[attr:], '>')
	if gt < 0 {
		return 0, 0, 0, 0, false
	}
	innerStart = attr + gt + 1
	closeIdx := strings.Index(markup[innerStart:], spanClose)
	if closeIdx < 0 {
		return 0, 0, 0, 0, false
	}
	innerEnd = innerStart + closeIdx
	end = innerEnd + len(spanClose)
	return start, innerStart, innerEnd, end, true
}

// ResolveSpan replaces the overlay span with id in the rendered markup.
// Accepting substitutes the escaped replacement text; rejecting restores the
// span's inner content byte for byte. The second return is false when no
// span with that id is present.
func ResolveSpan(markup, id string, accept bool, replacement string) (string, bool) {
	start, innerStart, innerEnd, end, ok := findSpan(markup, id)
	if !ok {
		return markup, false
	}
	if accept {
		return markup[:start] + html.EscapeString(replacement) + markup[end:], true
	}
	return markup[:start] + markup[innerStart:innerEnd] + markup[end:], true
}

// Strip removes every overlay span from the markup, keeping the wrapped
// text. Rendering then stripping yields the original markup unchanged.
func Strip(markup string) string {
	out := markup
	for {
		open := strings.Index(out, spanPrefix)
		if open < 0 {
			return out
		}
		gt := strings.IndexByte(out[open:], '>')
		if gt < 0 {
			return out
		}
		innerStart := open + gt + 1
		closeIdx := strings.Index(out[innerStart:], spanClose)
		if closeIdx < 0 {
			return out
		}
		innerEnd := innerStart + closeIdx
		out = out[:open] + out[innerStart:innerEnd] + out[innerEnd+len(spanClose):]
	}
}

// PlainText is the document's plain-text projection: all tags removed and
// entities decoded. Length thresholds and service calls operate on this.
func PlainText(markup string) string {
	var b strings.Builder
	i := 0
	for i < len(markup) {
		open := strings.IndexByte(markup[i:], '<')
		if open < 0 {
			b.WriteString(markup[i:])
			break
		}
		b.WriteString(markup[i : i+open])
		close := strings.IndexByte(markup[i+open:], '>')
		if close < 0 {
			break
		}
		i += open + close + 1
	}
	return html.UnescapeString(b.String())
}

// MapRange translates a [start, end) byte range of the plain-text projection
// back into markup offsets. ok is false when either boundary falls inside a
// tag or an entity, or the range runs past the document.
func MapRange(markup string, start, end int) (mstart, mend int, ok bool) {
	if start < 0 || end < start {
		return 0, 0, false
	}
	plainPos := 0
	mstart, mend = -1, -1
	i := 0
	for i < len(markup) {
		if plainPos == start && mstart < 0 {
			mstart = i
		}
		if plainPos == end {
			mend = i
			break
		}
		switch markup[i] {
		case '<':
			gt := strings.IndexByte(markup[i:], '>')
			if gt < 0 {
				return 0, 0, false
			}
			i += gt + 1
		case '&':
			semi := strings.IndexByte(markup[i:], ';')
			if semi >= 0 && semi <= 9 {
				entity := markup[i : i+semi+1]
				decoded := html.UnescapeString(entity)
				if decoded != entity {
					plainPos += len(decoded)
					i += semi + 1
					continue
				}
			}
			plainPos++
			i++
		default:
			plainPos++
			i++
		}
	}
	if mstart < 0 && plainPos == start {
		mstart = len(markup)
	}
	if mend < 0 && plainPos == end {
		mend = len(markup)
	}
	if mstart < 0 || mend < 0 {
		return 0, 0, false
	}
	return mstart, mend, true
}
