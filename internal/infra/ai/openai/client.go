package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/propcheck/inspections/internal/domain/assistant"
	"github.com/propcheck/inspections/internal/domain/inspections"
	"github.com/propcheck/inspections/internal/domain/issues"
	"github.com/propcheck/inspections/internal/domain/jobs"
	"github.com/propcheck/inspections/internal/infra/ai/prompt"
)

const maxTokens = 2048

type Client struct {
	*openai.Client
	Model string
}

func NewClient(apiKey, model string) *Client {
	return &Client{Client: openai.NewClient(apiKey), Model: model}
}

// findingsEnvelope mirrors the JSON schema the system prompt demands.
type findingsEnvelope struct {
	Findings []struct {
		ComponentID string  `json:"component_id"`
		Type        string  `json:"type"`
		Severity    string  `json:"severity"`
		Confidence  float64 `json:"confidence"`
		Notes       string  `json:"notes"`
	} `json:"findings"`
}

// AnalyzeInspection sends the component inventory to the model and parses
// the structured findings it returns.
func (c *Client) AnalyzeInspection(ctx context.Context, insp *inspections.Inspection, components []*inspections.Component, deep bool) ([]jobs.Finding, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model(),
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetAnalysisSystemPrompt(deep)},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetAnalysisUserPrompt(insp, components)},
		},
	}
	c.applyTokenLimit(&req)

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("empty completion response")
	}

	var env findingsEnvelope
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &env); err != nil {
		return nil, fmt.Errorf("parsing findings: %w", err)
	}

	out := make([]jobs.Finding, 0, len(env.Findings))
	for _, f := range env.Findings {
		sev := issues.Severity(strings.ToLower(f.Severity))
		if !issues.ValidSeverity(sev) {
			// Unknown severities from the model degrade to moderate
			// rather than dropping the observation.
			sev = issues.SeverityModerate
		}
		out = append(out, jobs.Finding{
			ComponentID: inspections.ComponentID(f.ComponentID),
			Type:        f.Type,
			Severity:    sev,
			Confidence:  clampConfidence(f.Confidence),
			Notes:       f.Notes,
		})
	}
	return out, nil
}

// GenerateReport renders the inspection report as markdown.
func (c *Client) GenerateReport(ctx context.Context, insp *inspections.Inspection) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetReportSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: prompt.GetReportUserPrompt(insp)},
		},
	}
	c.applyTokenLimit(&req)

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

// Chat serves the in-app assistant.
func (c *Client) Chat(ctx context.Context, tenant, message string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model(),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt.GetChatSystemPrompt(tenant)},
			{Role: openai.ChatMessageRoleUser, Content: message},
		},
	}
	c.applyTokenLimit(&req)

	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", wrapAPIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) model() string {
	if c.Model == "" {
		return "gpt-4o-2024-08-06"
	}
	return c.Model
}

// For reasoning models (o1/o3/o4/gpt-5*) use MaxCompletionTokens instead of MaxTokens
func (c *Client) applyTokenLimit(req *openai.ChatCompletionRequest) {
	model := req.Model
	if strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4") || strings.HasPrefix(model, "gpt-5") {
		req.MaxCompletionTokens = maxTokens
	} else {
		req.MaxTokens = maxTokens
	}
}

func wrapAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 429 {
		return assistant.ErrQuotaExceeded
	}
	return fmt.Errorf("failed to create chat completion: %w", err)
}

func clampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
