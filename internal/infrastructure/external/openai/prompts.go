package openai

import (
	"bytes"
	"fmt"
	"os"
	"text/template"

	"gopkg.in/yaml.v3"
)

// PromptSection is one system/user prompt pair with its model parameters
type PromptSection struct {
	Temperature  float32 `yaml:"temperature"`
	MaxTokens    int     `yaml:"max_tokens"`
	System       string  `yaml:"system"`
	UserTemplate string  `yaml:"user_template"`
}

// PromptConfig holds the prompts used by the insights generator
type PromptConfig struct {
	RequestInsights PromptSection `yaml:"request_insights"`
}

const defaultPromptsYAML = `
request_insights:
  temperature: 0.2
  max_tokens: 600
  system: |
    You review employee payment requests for budget approvers.
    Respond only with a JSON object of the form
    {"summary": string, "highlights": [string], "risks": [string]}.
    Keep the summary under 80 words. Never invent data that is not in the request.
  user_template: |
    Request {{.RequestNumber}} ({{.Title}}) against budget "{{.BudgetName}}" in {{.Currency}}.
    Status: {{.Status}}; stage: {{.Stage}}.
    Net amount: {{.NetAmount}}; budget max limit: {{.MaxLimit}}; control limit: {{.ControlLimit}}.
    Budget scope: location={{.Location}} tenure={{.TenureGroup}}.

    Approval ledger:
    {{range .Levels}}- {{.Name}}: {{.Status}}{{if .Actor}} by {{.Actor}}{{end}}{{if .Reason}} ({{.Reason}}){{end}}
    {{end}}
    Line items ({{len .Items}}):
    {{range .Items}}- #{{.Number}} {{.Employee}} [{{.Location}}, hired {{.HireDate}}] {{.Type}} {{.Amount}}{{if .Deduction}} (deduction){{end}}
    {{end}}
`

// DefaultPrompts returns the built-in prompt configuration
func DefaultPrompts() *PromptConfig {
	prompts, err := ParsePrompts([]byte(defaultPromptsYAML))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in prompts: %v", err))
	}
	return prompts
}

// LoadPrompts loads prompt configuration from a YAML file.
// An empty path yields the built-in prompts.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	if promptsPath == "" {
		return DefaultPrompts(), nil
	}

	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	return ParsePrompts(data)
}

// ParsePrompts decodes and checks a YAML prompt configuration
func ParsePrompts(data []byte) (*PromptConfig, error) {
	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if prompts.RequestInsights.System == "" || prompts.RequestInsights.UserTemplate == "" {
		return nil, fmt.Errorf("request_insights prompt requires system and user_template")
	}
	if _, err := template.New("prompt").Parse(prompts.RequestInsights.UserTemplate); err != nil {
		return nil, fmt.Errorf("invalid request_insights template: %w", err)
	}
	return &prompts, nil
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
