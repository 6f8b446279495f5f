package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"text/template"
)

//go:embed templates/*.txt
var templateFS embed.FS

// PromptVariant represents a detection prompt variant.
type PromptVariant string

const (
	// PromptStrict reports any doubtful fill as "half". This is the default.
	PromptStrict PromptVariant = "strict"
	// PromptStandard only reports visibly partial fills as "half".
	PromptStandard PromptVariant = "standard"
)

var validVariants = map[PromptVariant]bool{
	PromptStrict:   true,
	PromptStandard: true,
}

var (
	loadOnce        sync.Once
	loadErr         error
	detectTemplates map[PromptVariant]*template.Template
)

// IsValidVariant checks if a prompt variant name is valid.
func IsValidVariant(v string) bool {
	return validVariants[PromptVariant(v)]
}

// DetectData holds template data for detection prompts.
type DetectData struct {
	NumQuestions int
}

// Load parses the detection templates from fsys.
// Only the first call has any effect.
func Load(fsys fs.FS) error {
	loadOnce.Do(func() {
		detectTemplates = make(map[PromptVariant]*template.Template)

		for _, v := range []PromptVariant{PromptStrict, PromptStandard} {
			file := "templates/detect_" + string(v) + ".txt"

			content, err := fs.ReadFile(fsys, file)
			if err != nil {
				loadErr = errors.New("failed to read prompt file " + file + ": " + err.Error())
				return
			}

			tmpl, err := template.New("detect").Parse(string(content))
			if err != nil {
				loadErr = errors.New("failed to parse prompt template " + file + ": " + err.Error())
				return
			}
			detectTemplates[v] = tmpl
		}
	})
	return loadErr
}

// BuildDetectPrompt renders the bubble-reading prompt for numQuestions
// questions. The embedded templates are used unless Load was called first.
func BuildDetectPrompt(variant PromptVariant, numQuestions int) (string, error) {
	if err := Load(templateFS); err != nil {
		return "", fmt.Errorf("templates load failed: %w", err)
	}
	tmpl, ok := detectTemplates[variant]
	if !ok {
		return "", errors.New("invalid prompt variant: " + string(variant))
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, DetectData{NumQuestions: numQuestions}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
