// Package reasoning wraps the external LLM used to classify tickets,
// expand search queries, and propose KB mutations from agent feedback.
// Every failure surfaces as ErrService so callers can decide whether to
// degrade or retry; nothing here guesses on the model's behalf.
package reasoning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/rcliao/support-kb/internal/model"
)

// ErrService indicates the reasoning call failed or returned an
// unusable payload. Recoverable: callers may retry.
var ErrService = errors.New("reasoning service error")

// Client calls an OpenAI-compatible chat API with JSON-shaped prompts.
type Client struct {
	api   *openai.Client
	model string
}

// New creates a reasoning client. An empty model falls back to
// gpt-4o-mini.
func New(baseURL, apiKey, chatModel string) *Client {
	if chatModel == "" {
		chatModel = "gpt-4o-mini"
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return &Client{api: openai.NewClientWithConfig(cfg), model: chatModel}
}

// AnalyzeResolution decides how a resolved ticket should change the KB:
// add a new article, update or remove an existing one, or nothing.
func (c *Client) AnalyzeResolution(ctx context.Context, item *model.FeedbackItem, candidates []model.SearchResult) (model.Recommendation, error) {
	var rec model.Recommendation
	prompt := analyzePrompt(item, candidates)

	raw, err := c.completeJSON(ctx, "You maintain a help-desk knowledge base. Answer with JSON only.", prompt)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return rec, fmt.Errorf("%w: decode recommendation: %v", ErrService, err)
	}
	return rec, nil
}

// Classify extracts routing fields from raw ticket text.
func (c *Client) Classify(ctx context.Context, ticketText string) (model.Classification, error) {
	var cls model.Classification
	prompt := fmt.Sprintf(`Classify this support ticket.

Ticket:
%s

Return JSON with exactly these keys (empty string when unknown):
{"category": "", "sub_category": "", "syndicator": "", "provider": "", "dealer_name": ""}`, ticketText)

	raw, err := c.completeJSON(ctx, "You classify help-desk tickets. Answer with JSON only.", prompt)
	if err != nil {
		return cls, err
	}
	if err := json.Unmarshal([]byte(raw), &cls); err != nil {
		return cls, fmt.Errorf("%w: decode classification: %v", ErrService, err)
	}
	return cls, nil
}

// Expand rephrases a search query and extracts keywords so the lexical
// path catches synonyms and acronym variants.
func (c *Client) Expand(ctx context.Context, query string, cls model.Classification) (model.Expansion, error) {
	exp := model.Expansion{OriginalQuery: query}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this support ticket query and generate search terms for knowledge base lookup.\n\nQuery: %q\n", query)
	if !cls.Empty() {
		fmt.Fprintf(&b, "\nContext:\n- Category: %s\n- Sub-Category: %s\n- Syndicator: %s\n- Provider: %s\n",
			orNA(cls.Category), orNA(cls.SubCategory), orNA(cls.Syndicator), orNA(cls.Provider))
	}
	b.WriteString(`
Generate:
1. Expanded queries: rephrase the query 2-3 different ways
2. Keywords: extract 3-5 key searchable terms
3. Intent: what is the user trying to do (e.g. "troubleshoot", "activate", "cancel", "configure")

Rules:
- Expand acronyms if present
- Include synonyms (e.g. "broken" -> "failed", "not working", "error")
- Keep syndicator/provider names intact

Return JSON:
{"expanded_queries": ["..."], "keywords": ["..."], "intent": "action_verb"}`)

	raw, err := c.completeJSON(ctx, "You expand help-desk search queries. Answer with JSON only.", b.String())
	if err != nil {
		return exp, err
	}
	if err := json.Unmarshal([]byte(raw), &exp); err != nil {
		return exp, fmt.Errorf("%w: decode expansion: %v", ErrService, err)
	}
	exp.OriginalQuery = query
	return exp, nil
}

func (c *Client) completeJSON(ctx context.Context, system, prompt string) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrService)
	}
	return resp.Choices[0].Message.Content, nil
}

func analyzePrompt(item *model.FeedbackItem, candidates []model.SearchResult) string {
	var b strings.Builder

	t := item.TicketData
	fmt.Fprintf(&b, `Ticket Classification:
- Category: %s
- Sub-Category: %s
- Syndicator: %s
- Provider: %s
- Dealer: %s

Ticket Content: %s

Resolution Provided:
%s

Resolution Worked: %t
`,
		orNA(t.Category), orNA(t.SubCategory), orNA(t.Syndicator), orNA(t.Provider),
		orNA(t.DealerName), t.Text, item.AgentFeedback.ActualSolution, item.ResolutionWorked)

	if len(candidates) > 0 {
		b.WriteString("\nExisting KB Articles (top matches):\n")
		for i, c := range candidates {
			if i >= 3 {
				break
			}
			a := c.Article
			fmt.Fprintf(&b, `
Article %d (ID: %d):
- Title: %s
- Problem: %s
- Solution: %s
- Success Rate: %.0f%% (%d uses)
`, i+1, a.ID, a.Title, a.Problem, a.Solution, a.SuccessRate*100, a.UsageCount)
		}
	}

	b.WriteString(`
Based on this ticket and resolution, decide the best KB action:

1. add_new: a completely NEW type of issue not covered by existing articles
2. update_existing: an existing article covers this but the resolution is BETTER or more complete
3. remove: an existing article is outdated and should be removed
4. none: resolution didn't work OR duplicate of existing knowledge

Return JSON:
{
  "action": "add_new|update_existing|remove|none",
  "target_id": <article id if update/remove, else null>,
  "reasoning": "why this action",
  "confidence": 0-100,
  "new_article": {"title": "...", "problem": "...", "solution": "...", "steps": ["..."], "tags": ["..."], "category": "...", "sub_category": "...", "syndicator": "...", "provider": "..."}
}

Only include "new_article" if action is "add_new".`)

	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
