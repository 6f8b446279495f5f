package recognizer

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/dustin/go-humanize"
	openai "github.com/sashabaranov/go-openai"

	"github.com/pavelanni/omrscore/internal/omr"
	"github.com/pavelanni/omrscore/internal/recognizer/prompts"
)

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIDetector reads sheets through an OpenAI-compatible vision model.
type OpenAIDetector struct {
	api     *openai.Client
	apiKey  string
	model   string
	variant prompts.PromptVariant
}

// NewOpenAI creates a detector for an OpenAI-compatible API.
func NewOpenAI(baseURL, apiKey, modelName string, variant prompts.PromptVariant) *OpenAIDetector {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if modelName == "" {
		modelName = DefaultOpenAIModel
	}
	return &OpenAIDetector{
		api:     openai.NewClientWithConfig(config),
		apiKey:  apiKey,
		model:   modelName,
		variant: variant,
	}
}

func (o *OpenAIDetector) Name() string { return string(ProviderOpenAI) }

// Ping checks that the endpoint answers and accepts the key.
func (o *OpenAIDetector) Ping(ctx context.Context) error {
	if _, err := o.api.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Detect sends the sheet as a data URL alongside the bubble-reading prompt.
func (o *OpenAIDetector) Detect(ctx context.Context, img Image, numQuestions int) (omr.Detections, error) {
	if o.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	prompt, err := prompts.BuildDetectPrompt(o.variant, numQuestions)
	if err != nil {
		return nil, err
	}

	mime := mimeTypeOf(img)
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	slog.Debug("openai detect", "model", o.model, "image", img.Name,
		"mime", mime, "size", humanize.Bytes(uint64(len(img.Data))))

	resp, err := o.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: prompt},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("LLM API call: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("LLM returned no choices")
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)

	return ParseReply(raw)
}
