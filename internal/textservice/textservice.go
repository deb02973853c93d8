// Package textservice is the boundary to the external text-generation
// service. The engine layers the product's recovery behavior (apology
// placeholder, pass-through rewrites, empty suggestion sets) on top of the
// errors returned here.
package textservice

import "context"

// AttachedFile is a file the user attached to a draft-generation request.
// Immutable once constructed; Data is the base64-encoded payload.
type AttachedFile struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// StyleSuggestion proposes replacing a literal phrase of the source text
// with an improved one.
type StyleSuggestion struct {
	MatchText   string `json:"original"`
	Replacement string `json:"suggestion"`
}

// GrammarIssue flags a literal erroneous phrase with its correction and a
// short explanation.
type GrammarIssue struct {
	ErrorText   string `json:"error"`
	Correction  string `json:"correction"`
	Explanation string `json:"explanation"`
}

// Service is the contract the reconciliation engine consumes. Responses for
// the two structured operations are schema-validated by the implementation;
// a response that cannot be decoded as the expected list shape comes back
// as an empty list, not an error.
type Service interface {
	GenerateDraft(ctx context.Context, prompt string, files []AttachedFile) (string, error)
	RewriteSpan(ctx context.Context, text, instruction string) (string, error)
	SuggestStyle(ctx context.Context, plain string) ([]StyleSuggestion, error)
	CheckGrammar(ctx context.Context, plain string) ([]GrammarIssue, error)
}
