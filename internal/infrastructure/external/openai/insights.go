package openai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/garyjia/budget-approval/internal/application/port"
	"github.com/garyjia/budget-approval/internal/domain/entity"
)

// chatCompleter is the slice of the OpenAI client used here
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds OpenAI settings for the insights generator
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// InsightsGenerator implements port.InsightsGenerator over chat completions
type InsightsGenerator struct {
	client  chatCompleter
	model   string
	prompts *PromptConfig
	logger  *zap.Logger
}

// NewInsightsGenerator creates a generator using the given prompts
func NewInsightsGenerator(cfg Config, prompts *PromptConfig, logger *zap.Logger) *InsightsGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4oMini
	}
	if prompts == nil {
		prompts = DefaultPrompts()
	}

	return &InsightsGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   model,
		prompts: prompts,
		logger:  logger,
	}
}

// GenerateInsights asks the model for a JSON summary of the request
func (g *InsightsGenerator) GenerateInsights(ctx context.Context, input *port.InsightsInput) (*port.InsightsResult, error) {
	section := g.prompts.RequestInsights
	prompt, err := renderTemplate(section.UserTemplate, newPromptView(input))
	if err != nil {
		return nil, err
	}

	g.logger.Debug("Requesting insights",
		zap.String("request_id", input.Request.ID),
		zap.String("model", g.model))

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: section.Temperature,
		MaxTokens:   section.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: section.System},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		g.logger.Error("OpenAI API call failed", zap.Error(err))
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	content := resp.Choices[0].Message.Content
	var result port.InsightsResult
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		jsonStr := extractJSON(content)
		if jsonStr == "" || json.Unmarshal([]byte(jsonStr), &result) != nil {
			g.logger.Error("Failed to parse OpenAI response",
				zap.Error(err),
				zap.String("content", content))
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}
	if result.Summary == "" {
		return nil, fmt.Errorf("response has no summary")
	}

	g.logger.Info("Insights generated",
		zap.String("request_id", input.Request.ID),
		zap.Int("risks", len(result.Risks)))
	return &result, nil
}

type promptLevel struct {
	Name   string
	Status string
	Actor  string
	Reason string
}

type promptItem struct {
	Number    int
	Employee  string
	Location  string
	HireDate  string
	Type      string
	Amount    string
	Deduction bool
}

type promptView struct {
	RequestNumber string
	Title         string
	BudgetName    string
	Currency      string
	Status        string
	Stage         string
	NetAmount     string
	MaxLimit      string
	ControlLimit  string
	Location      string
	TenureGroup   string
	Levels        []promptLevel
	Items         []promptItem
}

func newPromptView(input *port.InsightsInput) promptView {
	view := promptView{
		RequestNumber: input.Request.RequestNumber,
		Title:         input.Request.Title,
		Status:        input.Request.OverallStatus,
		Stage:         input.Stage,
		NetAmount:     entity.NetAmount(input.LineItems).StringFixed(2),
	}
	if b := input.Budget; b != nil {
		view.BudgetName = b.Name
		view.Currency = b.Currency
		view.MaxLimit = b.MaxLimit.StringFixed(2)
		view.ControlLimit = b.ControlLimit.StringFixed(2)
		view.Location = b.Location
		view.TenureGroup = b.TenureGroup
	}
	for _, l := range input.Levels {
		view.Levels = append(view.Levels, promptLevel{
			Name:   l.LevelName,
			Status: l.Status,
			Actor:  l.ApproverName,
			Reason: l.RejectionReason,
		})
	}
	for _, item := range input.LineItems {
		view.Items = append(view.Items, promptItem{
			Number:    item.ItemNumber,
			Employee:  item.EmployeeName,
			Location:  item.Location,
			HireDate:  item.HireDate,
			Type:      item.ItemType,
			Amount:    item.Amount.StringFixed(2),
			Deduction: item.IsDeduction,
		})
	}
	return view
}

// extractJSON returns the first balanced JSON object in content, e.g. inside a markdown fence
func extractJSON(content string) string {
	start := -1
	for i := 0; i < len(content); i++ {
		if content[i] == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escapeNext := false
	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case escapeNext:
			escapeNext = false
		case c == '\\':
			escapeNext = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// Verify interface compliance
var _ port.InsightsGenerator = (*InsightsGenerator)(nil)
