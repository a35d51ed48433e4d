package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Clause is a single contract clause the model flagged, with its reasoning.
type Clause struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	Explanation string `json:"explanation"`
}

// ReviewResult is the structured outcome of a legal document analysis.
type ReviewResult struct {
	Summary            string   `json:"summary"`
	GoodClauses        []Clause `json:"good_clauses"`
	ConcerningClauses  []Clause `json:"concerning_clauses"`
	ProblematicClauses []Clause `json:"problematic_clauses"`
	LegalImplications  string   `json:"legal_implications"`
}

// Analyzer is the external analysis capability; the document pipeline only
// sees this interface.
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, name, content, docContext string) (*ReviewResult, error)
}

type Client struct {
	api   *openai.Client
	model string
}

func NewClient() *Client {
	key := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{api: openai.NewClient(key), model: model}
}

const systemPrompt = `You are a legal document reviewer. Analyze the contract text and respond with a JSON object with exactly these keys:
"summary": a short plain-language summary of the document,
"good_clauses": array of {"id","text","explanation"} for clauses that protect the reader,
"concerning_clauses": array of {"id","text","explanation"} for clauses that deserve attention,
"problematic_clauses": array of {"id","text","explanation"} for clauses that are risky or likely unenforceable,
"legal_implications": a short paragraph on the combined legal exposure.
Quote clause text verbatim where possible. Respond with JSON only.`

// AnalyzeDocument sends the extracted text for review and parses the JSON
// verdict.
func (c *Client) AnalyzeDocument(ctx context.Context, name, content, docContext string) (*ReviewResult, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Document name: %s\n", name)
	if docContext != "" {
		fmt.Fprintf(&prompt, "Reader context: %s\n", docContext)
	}
	prompt.WriteString("\nDocument text:\n")
	prompt.WriteString(content)

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt.String()},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("analysis request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("analysis returned no choices")
	}

	var result ReviewResult
	raw := resp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("analysis returned invalid JSON: %w", err)
	}
	if result.Summary == "" {
		return nil, errors.New("analysis returned empty summary")
	}
	return &result, nil
}
