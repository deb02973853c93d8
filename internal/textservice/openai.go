package textservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	hc      *http.Client
	url     string
	apiKey  string
	model   string
	timeout time.Duration
}

type ClientOptions struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

func NewClient(opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4.1-mini"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Client{
		hc:      &http.Client{Timeout: opts.Timeout},
		url:     strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		apiKey:  opts.APIKey,
		model:   opts.Model,
		timeout: opts.Timeout,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
	Strict bool            `json:"strict"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chat performs one completion round trip and returns the assistant text.
func (c *Client) chat(ctx context.Context, system, user string, format *responseFormat) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("call text service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read text service response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("text service status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode text service response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("text service returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

const (
	generateSystem = "You are a writing assistant. Write a well-structured draft for the user's request. Respond with the draft text only, paragraphs separated by blank lines."
	rewriteSystem  = "You rewrite a passage of text according to an instruction. Respond with the rewritten passage only, no commentary."
	suggestSystem  = "You are an editor. Propose stylistic improvements for the text. Each suggestion must quote a literal phrase from the text as 'original' and give a replacement as 'suggestion'."
	grammarSystem  = "You are a proofreader. Find grammar and spelling errors in the text. Each item must quote the literal erroneous phrase as 'error', the corrected phrase as 'correction', and a short 'explanation'."
)

var suggestionSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"suggestions": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"original": {"type": "string"},
					"suggestion": {"type": "string"}
				},
				"required": ["original", "suggestion"],
				"additionalProperties": false
			}
		}
	},
	"required": ["suggestions"],
	"additionalProperties": false
}`)

var grammarSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"errors": {
			"type": "array",
			"items": {
				"type": "object",
				"properties": {
					"error": {"type": "string"},
					"correction": {"type": "string"},
					"explanation": {"type": "string"}
				},
				"required": ["error", "correction", "explanation"],
				"additionalProperties": false
			}
		}
	},
	"required": ["errors"],
	"additionalProperties": false
}`)

func (c *Client) GenerateDraft(ctx context.Context, prompt string, files []AttachedFile) (string, error) {
	var b strings.Builder
	b.WriteString(prompt)
	for _, f := range files {
		b.WriteString("\n\nAttached file ")
		b.WriteString(f.Name)
		b.WriteString(" (")
		b.WriteString(f.MimeType)
		b.WriteString("), base64:\n")
		b.WriteString(f.Data)
	}
	return c.chat(ctx, generateSystem, b.String(), nil)
}

func (c *Client) RewriteSpan(ctx context.Context, text, instruction string) (string, error) {
	user := fmt.Sprintf("Instruction: %s\n\nPassage:\n%s", instruction, text)
	return c.chat(ctx, rewriteSystem, user, nil)
}

func (c *Client) SuggestStyle(ctx context.Context, plain string) ([]StyleSuggestion, error) {
	content, err := c.chat(ctx, suggestSystem, plain, &responseFormat{
		Type:       "json_schema",
		JSONSchema: &jsonSchema{Name: "style_suggestions", Schema: suggestionSchema, Strict: true},
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Suggestions []StyleSuggestion `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		// Structured output that fails to parse is treated as no
		// suggestions, not as a failure.
		log.Printf("textservice: malformed style suggestions, dropping: %v", err)
		return []StyleSuggestion{}, nil
	}
	return parsed.Suggestions, nil
}

func (c *Client) CheckGrammar(ctx context.Context, plain string) ([]GrammarIssue, error) {
	content, err := c.chat(ctx, grammarSystem, plain, &responseFormat{
		Type:       "json_schema",
		JSONSchema: &jsonSchema{Name: "grammar_errors", Schema: grammarSchema, Strict: true},
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Errors []GrammarIssue `json:"errors"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		log.Printf("textservice: malformed grammar response, dropping: %v", err)
		return []GrammarIssue{}, nil
	}
	return parsed.Errors, nil
}
