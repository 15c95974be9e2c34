package llms

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"budgetrag/pkg/logger"
)

// OpenAIGenerator produces answers through the OpenAI chat completion API.
// Temperature stays low so answers are reproducible enough for caching.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	log    *logger.Logger
}

// NewOpenAIGenerator creates a generator for the given model.
func NewOpenAIGenerator(apiKey, model string, log *logger.Logger) *OpenAIGenerator {
	config := openai.DefaultConfig(apiKey)
	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(config),
		model:  model,
		log:    log,
	}
}

// Complete sends a system and user prompt and returns the model's text.
func (g *OpenAIGenerator) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	temperature := float32(0.1)
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: &temperature,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

var (
	cityLineRe = regexp.MustCompile(`City:\s*(.+)`)
	fyLineRe   = regexp.MustCompile(`Fiscal Year:\s*(.+)`)
)

// ExtractDocumentMetadata asks the model to identify the city name and
// fiscal year from the opening text of a budget document. Both values are
// "Unknown" when the model cannot find them or the call fails.
func (g *OpenAIGenerator) ExtractDocumentMetadata(ctx context.Context, text string) (cityName, fiscalYear string) {
	sample := []rune(text)
	if len(sample) > 3000 {
		sample = sample[:3000]
	}

	prompt := fmt.Sprintf(`Analyze this government budget document and extract:
1. The city name (just the city name, not "City of X")
2. The fiscal year (in format YYYY-YY or YYYY-YYYY)
If you can't find this information, respond with "Unknown" for that field.
Document text:
%s
Respond in this exact format:
City: [city name]
Fiscal Year: [fiscal year]`, string(sample))

	result, err := g.Complete(ctx, "You are an expert at extracting information from government documents.", prompt)
	if err != nil {
		g.log.WithError(err).Warn("Failed to extract document metadata with LLM")
		return "Unknown", "Unknown"
	}

	cityName, fiscalYear = "Unknown", "Unknown"
	if m := cityLineRe.FindStringSubmatch(result); m != nil {
		cityName = strings.TrimSpace(m[1])
	}
	if m := fyLineRe.FindStringSubmatch(result); m != nil {
		fiscalYear = strings.TrimSpace(m[1])
	}
	return cityName, fiscalYear
}
