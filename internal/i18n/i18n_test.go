package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "AppTitle")
	if got != "OMR Scorer" {
		t.Errorf("T(AppTitle) = %q, want 'OMR Scorer'", got)
	}

	got = T(ctx, "ErrSheetRequired")
	if got != "Student OMR file is required" {
		t.Errorf("T(ErrSheetRequired) = %q, want 'Student OMR file is required'", got)
	}
}

func TestTranslateRussian(t *testing.T) {
	ctx := initLang(t, "ru")

	got := T(ctx, "SubmitScore")
	if got != "Проверить" {
		t.Errorf("T(SubmitScore) = %q, want 'Проверить'", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got1 := Tp(ctx, "QuestionsRange", 1)
	if got1 != "Up to 1 question." {
		t.Errorf("Tp(QuestionsRange, 1) = %q, want 'Up to 1 question.'", got1)
	}

	got300 := Tp(ctx, "QuestionsRange", 300)
	if got300 != "Up to 300 questions." {
		t.Errorf("Tp(QuestionsRange, 300) = %q, want 'Up to 300 questions.'", got300)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrRecognition", map[string]any{"Error": "timeout"})
	if got != "Could not read the answer sheet: timeout" {
		t.Errorf("Td(ErrRecognition) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	got := T(ctx, "NonExistentKey")
	if got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareAcceptLanguage(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}

	var got string
	h := Middleware("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ErrNumQuestions")
	}))

	tests := []struct {
		header string
		want   string
	}{
		{"", "Invalid number of questions"},
		{"ru-RU,ru;q=0.9,en;q=0.8", "Недопустимое количество вопросов"},
		{"de-DE", "Invalid number of questions"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Accept-Language", tt.header)
		}
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != tt.want {
			t.Errorf("Accept-Language %q: got %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestRussianPlural(t *testing.T) {
	ctx := initLang(t, "ru")

	tests := []struct {
		count int
		want  string
	}{
		{1, "Не более 1 вопроса."},
		{21, "Не более 21 вопроса."},
		{300, "Не более 300 вопросов."},
	}
	for _, tt := range tests {
		if got := Tp(ctx, "QuestionsRange", tt.count); got != tt.want {
			t.Errorf("Tp(QuestionsRange, %d) = %q, want %q", tt.count, got, tt.want)
		}
	}
}

func TestInitUnsupportedLanguage(t *testing.T) {
	if err := Init("de"); err == nil {
		t.Error("expected error for a language without messages")
	}
	if err := Init("not a tag"); err == nil {
		t.Error("expected error for an unparsable tag")
	}
}
