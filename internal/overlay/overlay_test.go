package overlay

import (
	"strings"
	"testing"

	"inkwell/api/internal/editset"
)

func grammarEdit(id, match, replacement, note string) editset.PendingEdit {
	return editset.PendingEdit{ID: id, Kind: editset.KindGrammar, MatchText: match, Replacement: replacement, Annotation: note}
}

func styleEdit(id, match, replacement string) editset.PendingEdit {
	return editset.PendingEdit{ID: id, Kind: editset.KindStyle, MatchText: match, Replacement: replacement, Annotation: replacement}
}

func TestRenderWrapsFirstOccurrence(t *testing.T) {
	markup := "<p>Teh cat sat.</p>"
	edit := grammarEdit("gram_1", "Teh", "The", "Spelling")

	out := Render(markup, []editset.PendingEdit{edit}, nil)

	if strings.Count(out, `data-edit-id="gram_1"`) != 1 {
		t.Fatalf("expected exactly one overlay, got %q", out)
	}
	if !strings.Contains(out, `<span class="ink-grammar" data-edit-id="gram_1" title="Spelling">Teh</span>`) {
		t.Errorf("overlay span malformed: %q", out)
	}
}

func TestRenderStripRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		markup  string
		grammar []editset.PendingEdit
		style   []editset.PendingEdit
	}{
		{
			name:    "single grammar edit",
			markup:  "<p>Teh cat sat.</p>",
			grammar: []editset.PendingEdit{grammarEdit("gram_1", "Teh", "The", "Spelling")},
		},
		{
			name:   "style over user markup",
			markup: `<p>A <b>very good</b> day with a <a href="https://example.com">link</a>.</p>`,
			style:  []editset.PendingEdit{styleEdit("sug_1", "day", "afternoon")},
		},
		{
			name:    "both kinds disjoint",
			markup:  "<p>Teh dog was very good today.</p>",
			grammar: []editset.PendingEdit{grammarEdit("gram_1", "Teh", "The", "Spelling")},
			style:   []editset.PendingEdit{styleEdit("sug_1", "very good", "excellent")},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rendered := Render(tc.markup, tc.grammar, tc.style)
			if got := Strip(rendered); got != tc.markup {
				t.Errorf("round trip mismatch:\n  original: %q\n  stripped: %q", tc.markup, got)
			}
		})
	}
}

func TestRenderEmptySetsIsIdentity(t *testing.T) {
	markup := `<p>User <b>markup</b> with an <a href="x">anchor</a> stays untouched.</p>`
	if got := Render(markup, nil, nil); got != markup {
		t.Errorf("expected identity, got %q", got)
	}
}

func TestRenderAbsentMatchLeavesDocumentUnchanged(t *testing.T) {
	markup := "<p>The text has changed since the request.</p>"
	edit := styleEdit("sug_1", "very good", "excellent")

	if got := Render(markup, nil, []editset.PendingEdit{edit}); got != markup {
		t.Errorf("absent anchor must not alter markup, got %q", got)
	}
}

func TestRenderSkipsAlreadyWrappedOccurrence(t *testing.T) {
	markup := "<p>cat and cat and cat</p>"
	first := grammarEdit("gram_1", "cat", "dog", "first")
	second := grammarEdit("gram_2", "cat", "dog", "second")

	out := Render(markup, []editset.PendingEdit{first, second}, nil)

	firstIdx := strings.Index(out, `data-edit-id="gram_1"`)
	secondIdx := strings.Index(out, `data-edit-id="gram_2"`)
	if firstIdx < 0 || secondIdx < 0 {
		t.Fatalf("both duplicates should render: %q", out)
	}
	if firstIdx > secondIdx {
		t.Errorf("first edit should bind the earlier occurrence: %q", out)
	}
	if strings.Count(out, "<span") != 2 {
		t.Errorf("expected exactly two spans, got %q", out)
	}
	if got := Strip(out); got != markup {
		t.Errorf("round trip mismatch with duplicates: %q", got)
	}
}

func TestRenderDoesNotMatchInsideTagsOrTitles(t *testing.T) {
	// The first edit's tooltip contains the second edit's match text; the
	// second overlay must land in document text, not in the attribute.
	markup := "<p>alpha beta</p>"
	first := grammarEdit("gram_1", "alpha", "beta", "use beta")
	out := Render(markup, []editset.PendingEdit{first}, nil)

	second := styleEdit("sug_1", "beta", "gamma")
	out = Render(out, nil, []editset.PendingEdit{second})

	if !strings.Contains(out, `<span class="ink-style" data-edit-id="sug_1" title="gamma">beta</span></p>`) {
		t.Errorf("style overlay should wrap the document text occurrence: %q", out)
	}
}

func TestRenderEscapesAnnotationQuotes(t *testing.T) {
	markup := "<p>fine words</p>"
	edit := grammarEdit("gram_1", "fine", "good", `say "good" <here>`)

	out := Render(markup, []editset.PendingEdit{edit}, nil)

	if strings.Contains(out, `title="say "good"`) {
		t.Fatalf("unescaped quote breaks the attribute: %q", out)
	}
	if !strings.Contains(out, "title=\"say &#34;good&#34; &lt;here&gt;\"") {
		t.Errorf("annotation not escaped as expected: %q", out)
	}
	if got := Strip(out); got != markup {
		t.Errorf("round trip mismatch after escaping: %q", got)
	}
}

func TestMatchEmptyAndMissing(t *testing.T) {
	if idx := Match("<p>text</p>", ""); idx != -1 {
		t.Errorf("empty matchText should not match, got %d", idx)
	}
	if idx := Match("<p>text</p>", "absent"); idx != -1 {
		t.Errorf("missing matchText should not match, got %d", idx)
	}
}

func TestResolveSpanAccept(t *testing.T) {
	markup := "<p>Teh cat sat.</p>"
	edit := grammarEdit("gram_1", "Teh", "The", "Spelling")
	rendered := Render(markup, []editset.PendingEdit{edit}, nil)

	resolved, ok := ResolveSpan(rendered, "gram_1", true, edit.Replacement)
	if !ok {
		t.Fatal("span should be found")
	}
	if got := Strip(resolved); got != "<p>The cat sat.</p>" {
		t.Errorf("accept should substitute the correction, got %q", got)
	}
}

func TestResolveSpanReject(t *testing.T) {
	markup := "<p>Teh cat sat.</p>"
	edit := grammarEdit("gram_1", "Teh", "The", "Spelling")
	rendered := Render(markup, []editset.PendingEdit{edit}, nil)

	resolved, ok := ResolveSpan(rendered, "gram_1", false, edit.Replacement)
	if !ok {
		t.Fatal("span should be found")
	}
	if got := Strip(resolved); got != markup {
		t.Errorf("reject must restore the original bytes, got %q", got)
	}
}

func TestResolveSpanUnknownID(t *testing.T) {
	markup := "<p>plain</p>"
	out, ok := ResolveSpan(markup, "gram_missing", true, "x")
	if ok || out != markup {
		t.Errorf("unknown id must leave markup unchanged, got ok=%v %q", ok, out)
	}
}

func TestPlainText(t *testing.T) {
	cases := []struct {
		markup string
		want   string
	}{
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"<p>a &amp; b &lt;c&gt;</p>", "a & b <c>"},
		{"plain already", "plain already"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := PlainText(tc.markup); got != tc.want {
			t.Errorf("PlainText(%q) = %q, want %q", tc.markup, got, tc.want)
		}
	}
}

func TestPlainTextIgnoresOverlays(t *testing.T) {
	markup := "<p>Teh cat sat.</p>"
	rendered := Render(markup, []editset.PendingEdit{grammarEdit("gram_1", "Teh", "The", "Spelling")}, nil)
	if got := PlainText(rendered); got != "Teh cat sat." {
		t.Errorf("overlays must not leak into plain text, got %q", got)
	}
}

func TestMapRange(t *testing.T) {
	markup := "<p>a &amp; b</p>"
	// Plain projection is "a & b"; select "& b".
	mstart, mend, ok := MapRange(markup, 2, 5)
	if !ok {
		t.Fatal("range should map")
	}
	if markup[mstart:mend] != "&amp; b" {
		t.Errorf("mapped %q", markup[mstart:mend])
	}
}

func TestMapRangePastEnd(t *testing.T) {
	if _, _, ok := MapRange("<p>ab</p>", 0, 5); ok {
		t.Error("range past the document must not map")
	}
}
