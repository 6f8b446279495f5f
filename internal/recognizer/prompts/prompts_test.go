package prompts

import (
	"strings"
	"testing"
)

func TestBuildDetectPrompt(t *testing.T) {
	t.Run("strict", func(t *testing.T) {
		prompt, err := BuildDetectPrompt(PromptStrict, 42)
		if err != nil {
			t.Fatalf("BuildDetectPrompt: %v", err)
		}
		if !strings.Contains(prompt, "include only the first 42") {
			t.Error("prompt should carry the question count")
		}
		if !strings.Contains(prompt, "STRICT RULE") {
			t.Error("strict prompt should contain the strict rule")
		}
		if !strings.Contains(prompt, `"answers"`) {
			t.Error("prompt should describe the answers schema")
		}
	})

	t.Run("standard", func(t *testing.T) {
		prompt, err := BuildDetectPrompt(PromptStandard, 10)
		if err != nil {
			t.Fatalf("BuildDetectPrompt: %v", err)
		}
		if strings.Contains(prompt, "STRICT RULE") {
			t.Error("standard prompt should not contain the strict rule")
		}
		if !strings.Contains(prompt, "first 10") {
			t.Error("prompt should carry the question count")
		}
	})

	t.Run("unknown variant", func(t *testing.T) {
		if _, err := BuildDetectPrompt("lenient", 10); err == nil {
			t.Error("expected error for unknown variant")
		}
	})
}

func TestIsValidVariant(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"strict", true},
		{"standard", true},
		{"lenient", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidVariant(tt.in); got != tt.want {
			t.Errorf("IsValidVariant(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
