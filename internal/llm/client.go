// Package llm adapts an Ollama-compatible chat endpoint into the
// engine's advisory collaborators. Responses are treated as untrusted:
// the JSON is extracted tolerantly here and schema-validated by the
// calling packages.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cognicore/hanpin/pkg/hanpin/internalerr"
	"github.com/cognicore/hanpin/pkg/hanpin/review"
	"github.com/cognicore/hanpin/pkg/hanpin/segment"
)

const segmentSystemPrompt = `You are a Chinese NLP tagger.
Task: segment each span text into tokens and tag each token with:
- upos: UDv2 UPOS tag (ADJ, ADP, ADV, AUX, CCONJ, DET, INTJ, NOUN, NUM, PART, PRON, PROPN, PUNCT, SCONJ, SYM, VERB, X)
- xpos: CTB tag (string, e.g., NN, VV, AD, etc.)
- ner: CoNLL NER tag (O, PER, LOC, ORG, MISC)

Rules:
1. You MUST output STRICT JSON only, shaped {"spans": [{"span_id": "...", "tokens": [{"text": "...", "upos": "...", "xpos": "...", "ner": "..."}]}]}. No extra text.
2. For each span: concatenation of token text MUST equal the original span text exactly.
3. Each token must have text, upos, xpos, and ner fields.`

const doubleCheckSystemPrompt = `You are helping to disambiguate Chinese polyphonic characters.
Given input text, spans, tokens (with POS/NER), and a list of review items,
return STRICT JSON only, shaped {"items": [...]}, with recommended pinyin
(tone marks) for each item. If context is insufficient or ambiguous, set
needs_user=true for that item. No extra text.`

// Client calls an Ollama /api/chat endpoint. It implements both
// segment.Tagger and review.Checker.
type Client struct {
	Host  string // e.g. http://localhost:11434
	Model string

	HTTPClient *http.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Message *chatMessage `json:"message"`
	Error   string       `json:"error,omitempty"`
}

// SegmentAndTag implements segment.Tagger.
func (c *Client) SegmentAndTag(ctx context.Context, req segment.TagRequest) (segment.TagResponse, error) {
	var resp segment.TagResponse
	if err := c.completeJSON(ctx, segmentSystemPrompt, req, &resp); err != nil {
		return segment.TagResponse{}, fmt.Errorf("%w: %v", internalerr.ErrAdvisory, err)
	}
	return resp, nil
}

// DoubleCheck implements review.Checker.
func (c *Client) DoubleCheck(ctx context.Context, req review.CheckRequest) (review.CheckResponse, error) {
	var resp review.CheckResponse
	if err := c.completeJSON(ctx, doubleCheckSystemPrompt, req, &resp); err != nil {
		return review.CheckResponse{}, fmt.Errorf("%w: %v", internalerr.ErrAdvisory, err)
	}
	return resp, nil
}

func (c *Client) completeJSON(ctx context.Context, system string, payload, out any) error {
	user, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	content, err := c.chat(ctx, system, string(user))
	if err != nil {
		return err
	}
	raw, err := ExtractJSONObject(content)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	if c.Host == "" || c.Model == "" {
		return "", fmt.Errorf("llm: host and model required")
	}
	body, err := json.Marshal(chatRequest{
		Model:  c.Model,
		Stream: false,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}

	url := strings.TrimRight(c.Host, "/") + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("llm: http %d", resp.StatusCode)
	}

	var payload chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Error != "" {
		return "", fmt.Errorf("llm error: %s", payload.Error)
	}
	if payload.Message == nil {
		return "", fmt.Errorf("llm: missing message")
	}
	return payload.Message.Content, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// ExtractJSONObject pulls a JSON value out of a chat completion that
// should be strict JSON but may be wrapped in code fences or prose.
func ExtractJSONObject(text string) ([]byte, error) {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil, fmt.Errorf("llm: empty response")
	}

	if strings.Contains(t, "```") {
		t = stripCodeFences(t)
	}

	if json.Valid([]byte(t)) {
		return []byte(t), nil
	}

	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start != -1 && end > start {
		snippet := t[start : end+1]
		if json.Valid([]byte(snippet)) {
			return []byte(snippet), nil
		}
		return nil, fmt.Errorf("llm: invalid JSON snippet")
	}

	return nil, fmt.Errorf("llm: no JSON object found")
}

func stripCodeFences(t string) string {
	t = strings.TrimSpace(t)
	if strings.HasPrefix(t, "```") {
		t = strings.TrimPrefix(t, "```json")
		t = strings.TrimPrefix(t, "```")
	}
	t = strings.TrimSuffix(strings.TrimSpace(t), "```")
	return strings.TrimSpace(t)
}
