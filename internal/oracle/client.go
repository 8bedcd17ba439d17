package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

// #region config

// ClientConfig holds connection settings for the model endpoint.
type ClientConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults for an OpenAI-compatible
// chat endpoint.
func DefaultClientConfig(apiKey string) ClientConfig {
	return ClientConfig{
		BaseURL: "https://api.openai.com/v1",
		APIKey:  apiKey,
		Model:   "gpt-4o-mini",
		Timeout: 60 * time.Second,
	}
}

// #endregion config

// #region client

// Client implements ConceptTagger and ConceptCreator over a chat-completions
// HTTP endpoint.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
}

// NewClient creates a client with its own HTTP transport.
func NewClient(config ClientConfig) *Client {
	return NewClientWithHTTP(config, &http.Client{Timeout: config.Timeout})
}

// NewClientWithHTTP creates a client with an injected HTTP transport.
// Used for testing without a live endpoint.
func NewClientWithHTTP(config ClientConfig, hc *http.Client) *Client {
	return &Client{config: config, httpClient: hc}
}

// #endregion client

// #region wire-types

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// #endregion wire-types

// #region complete

// complete sends one system+user exchange and returns the raw content.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat endpoint status %d: %s", resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat endpoint error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("chat endpoint returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// #endregion complete

// #region tag-state

const tagSystemPrompt = `You label plant operator notes against a fixed concept vocabulary.
Respond with a JSON array only. Each element: {"concept_id": "<id>", "polarity": "present"|"absent"}.
Mention only concepts you are confident about; omit the rest.`

type tagEntry struct {
	ConceptID string `json:"concept_id"`
	Polarity  string `json:"polarity"`
}

// TagState asks the model to label the observation against the universe's
// current STATE concepts. Any entry referencing an unknown concept or an
// invalid polarity fails the whole call; unmentioned concepts stay Unknown.
func (c *Client) TagState(ctx context.Context, observation string, u *concept.Universe) (concept.Activations, error) {
	var sb strings.Builder
	sb.WriteString("Concept vocabulary:\n")
	for _, sc := range u.StateConcepts() {
		fmt.Fprintf(&sb, "- %s: %s\n", sc.ID, sc.Definition)
	}
	fmt.Fprintf(&sb, "\nOperator note:\n%s\n", observation)

	content, err := c.complete(ctx, tagSystemPrompt, sb.String())
	if err != nil {
		return nil, fmt.Errorf("tag state: %w", err)
	}

	var entries []tagEntry
	if err := json.Unmarshal([]byte(stripFences(content)), &entries); err != nil {
		return nil, fmt.Errorf("tag state: malformed payload: %w", err)
	}

	acts := make(concept.Activations, len(entries))
	for _, e := range entries {
		if !u.Has(e.ConceptID) || !u.IsState(e.ConceptID) {
			return nil, fmt.Errorf("tag state: unknown state concept %q in payload", e.ConceptID)
		}
		switch e.Polarity {
		case "present":
			acts[e.ConceptID] = concept.Present
		case "absent":
			acts[e.ConceptID] = concept.Absent
		default:
			return nil, fmt.Errorf("tag state: invalid polarity %q for %s", e.Polarity, e.ConceptID)
		}
	}
	return acts, nil
}

// #endregion tag-state

// #region create

const createSystemPrompt = `You name recurring patterns in plant operator notes.
Given two correlated concepts and example notes, propose one new concept capturing
what the matching notes share. Respond with JSON only:
{"id": "<short_snake_case_id>", "definition": "<one sentence>"}.`

// Create asks the model to name the pattern shared by a correlated parent
// pair. The returned concept is llm-sourced; an id collision with the
// universe is an error.
func (c *Client) Create(
	ctx context.Context,
	u *concept.Universe,
	parents [2]concept.Concept,
	patternDescription string,
	positive []string,
	negative []string,
) (concept.Concept, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Correlated concepts:\n- %s: %s\n- %s: %s\n",
		parents[0].ID, parents[0].Definition, parents[1].ID, parents[1].Definition)
	fmt.Fprintf(&sb, "\nPattern: %s\n", patternDescription)
	sb.WriteString("\nMatching notes:\n")
	for _, ex := range positive {
		fmt.Fprintf(&sb, "- %s\n", ex)
	}
	sb.WriteString("\nNon-matching notes:\n")
	for _, ex := range negative {
		fmt.Fprintf(&sb, "- %s\n", ex)
	}
	sb.WriteString("\nExisting ids (do not reuse):\n")
	for _, id := range u.ConceptIDs() {
		fmt.Fprintf(&sb, "- %s\n", id)
	}

	content, err := c.complete(ctx, createSystemPrompt, sb.String())
	if err != nil {
		return concept.Concept{}, fmt.Errorf("create concept: %w", err)
	}

	var out struct {
		ID         string `json:"id"`
		Definition string `json:"definition"`
	}
	if err := json.Unmarshal([]byte(stripFences(content)), &out); err != nil {
		return concept.Concept{}, fmt.Errorf("create concept: malformed payload: %w", err)
	}
	if out.Definition == "" {
		return concept.Concept{}, fmt.Errorf("create concept: empty definition in payload")
	}
	if out.ID == "" {
		out.ID = "llm_" + uuid.New().String()[:8]
	}
	if u.Has(out.ID) {
		return concept.Concept{}, fmt.Errorf("create concept: id %q already in universe", out.ID)
	}

	return concept.Concept{
		ID:         out.ID,
		Definition: out.Definition,
		Source:     concept.SourceLLM,
	}, nil
}

// #endregion create

// #region helpers

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// #endregion helpers
