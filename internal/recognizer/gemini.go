package recognizer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/omrscore/internal/omr"
	"github.com/pavelanni/omrscore/internal/recognizer/prompts"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiDetector reads sheets with a Gemini multimodal model.
type GeminiDetector struct {
	apiKey   string
	model    string
	variant  prompts.PromptVariant
	attempts int
}

// NewGemini creates a Gemini detector. attempts bounds retries on
// transport errors.
func NewGemini(apiKey, model string, variant prompts.PromptVariant, attempts int) *GeminiDetector {
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiDetector{
		apiKey:   strings.TrimSpace(apiKey),
		model:    model,
		variant:  variant,
		attempts: max(attempts, 1),
	}
}

func (g *GeminiDetector) Name() string { return string(ProviderGemini) }

// Detect sends the sheet image with the bubble-reading prompt and parses
// the JSON reply.
func (g *GeminiDetector) Detect(ctx context.Context, img Image, numQuestions int) (omr.Detections, error) {
	if g.apiKey == "" {
		return nil, ErrNoAPIKey
	}
	prompt, err := prompts.BuildDetectPrompt(g.variant, numQuestions)
	if err != nil {
		return nil, err
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(g.model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      ptrFloat32(0),
		ResponseMIMEType: "application/json",
	}

	mime := mimeTypeOf(img)
	parts := []genai.Part{
		genai.Text(prompt),
		&genai.Blob{MIMEType: mime, Data: img.Data},
	}
	slog.Debug("gemini detect", "model", g.model, "image", img.Name,
		"mime", mime, "size", humanize.Bytes(uint64(len(img.Data))))

	var lastErr error
	for attempt := 1; attempt <= g.attempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err != nil {
			lastErr = err
			slog.Warn("gemini call failed", "attempt", attempt, "error", err)
			if attempt == g.attempts {
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
			}
			continue
		}
		return ParseReply(firstText(resp))
	}
	return nil, fmt.Errorf("gemini generate: %w", lastErr)
}

// firstText joins the text parts of the first candidate that has any.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var sb strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			return sb.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
