// Package recognizer reads bubble marks off a sheet photo by asking a
// multimodal model and decoding its JSON reply.
package recognizer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/pavelanni/omrscore/internal/omr"
	"github.com/pavelanni/omrscore/internal/recognizer/prompts"
)

var (
	// ErrNoAPIKey is returned when a detector is used without credentials.
	ErrNoAPIKey = errors.New("recognizer: API key is empty")
	// ErrEmptyReply is returned when the model answers with no text.
	ErrEmptyReply = errors.New("recognizer: empty response from model")
	// ErrNoJSON is returned when no JSON object can be found in the reply.
	ErrNoJSON = errors.New("recognizer: could not parse JSON from model response")
)

var (
	fencedJSONRegex = regexp.MustCompile("(?i)```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")
	bareJSONRegex   = regexp.MustCompile(`(\{[\s\S]*\})`)
)

// Image is an uploaded sheet photo.
type Image struct {
	Name     string
	Data     []byte
	MIMEType string // optional; sniffed when empty
}

// Detector reports the raw marks for each question visible on a sheet.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img Image, numQuestions int) (omr.Detections, error)
}

// Pinger is implemented by detectors that can check their endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Provider names a Detector implementation.
type Provider string

const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// Config selects and configures a Detector.
type Config struct {
	Provider      Provider
	APIKey        string
	BaseURL       string // OpenAI-compatible endpoints only
	Model         string
	PromptVariant prompts.PromptVariant
	Attempts      int
}

// New creates the detector named by cfg.Provider.
func New(cfg Config) (Detector, error) {
	if cfg.PromptVariant == "" {
		cfg.PromptVariant = prompts.PromptStrict
	}
	if !prompts.IsValidVariant(string(cfg.PromptVariant)) {
		return nil, fmt.Errorf("invalid prompt variant %q", cfg.PromptVariant)
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	switch cfg.Provider {
	case ProviderGemini, "":
		return NewGemini(cfg.APIKey, cfg.Model, cfg.PromptVariant, cfg.Attempts), nil
	case ProviderOpenAI:
		return NewOpenAI(cfg.BaseURL, cfg.APIKey, cfg.Model, cfg.PromptVariant), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Recognize detects the marks on img and normalizes them into a sheet
// covering questions 1..numQuestions.
func Recognize(ctx context.Context, d Detector, img Image, numQuestions int) (omr.Sheet, error) {
	raw, err := d.Detect(ctx, img, numQuestions)
	if err != nil {
		return nil, fmt.Errorf("%s detect %s: %w", d.Name(), img.Name, err)
	}
	sheet := omr.NormalizeDetections(raw, numQuestions)
	slog.Debug("recognized sheet", "detector", d.Name(), "image", img.Name,
		"reported", len(raw), "num_questions", numQuestions)
	return sheet, nil
}

// reply is the JSON object the prompt asks the model for.
type reply struct {
	Answers json.RawMessage `json:"answers"`
}

// ParseReply extracts the answers object from a model reply. The reply may
// be bare JSON, a fenced ```json block, or JSON surrounded by prose.
// Keys that are not question numbers are ignored.
func ParseReply(text string) (omr.Detections, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyReply
	}

	candidates := []string{text}
	if m := fencedJSONRegex.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := bareJSONRegex.FindStringSubmatch(text); m != nil {
		candidates = append(candidates, m[1])
	}

	for _, c := range candidates {
		var r reply
		if err := json.Unmarshal([]byte(c), &r); err != nil {
			continue
		}
		return decodeAnswers(r.Answers), nil
	}
	return nil, ErrNoJSON
}

// decodeAnswers reads the question map. Anything but an object is no answers.
// Only canonical decimal keys count, so "01" or " 1" never shadow "1".
func decodeAnswers(raw json.RawMessage) omr.Detections {
	out := make(omr.Detections)
	var byKey map[string]omr.RawDetection
	if len(raw) == 0 || json.Unmarshal(raw, &byKey) != nil {
		return out
	}
	for k, v := range byKey {
		q, err := strconv.Atoi(k)
		if err != nil || strconv.Itoa(q) != k {
			continue
		}
		out[q] = v
	}
	return out
}

var extMIME = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// mimeTypeOf picks the explicit type, then the sniffed one, then the one
// implied by the file extension.
func mimeTypeOf(img Image) string {
	if t := strings.TrimSpace(img.MIMEType); t != "" && t != "application/octet-stream" {
		return t
	}
	if len(img.Data) > 0 {
		if m := mimetype.Detect(img.Data); strings.HasPrefix(m.String(), "image/") {
			return m.String()
		}
	}
	if t, ok := extMIME[strings.ToLower(filepath.Ext(img.Name))]; ok {
		return t
	}
	return "image/jpeg"
}
