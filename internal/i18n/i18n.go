// Package i18n holds the localized page strings and API error messages.
package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

var (
	supported  []language.Tag // fallback first
	matcher    language.Matcher
	localizers map[language.Tag]*i18n.Localizer
	fallback   *i18n.Localizer
)

// Init loads every embedded locale and makes lang the fallback language.
// lang must be one of the loaded locales.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	var tags []language.Tag
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		mf, err := b.ParseMessageFileBytes(data, e.Name())
		if err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
		tags = append(tags, mf.Tag)
		slog.Debug("loaded locale file", "file", e.Name(), "messages", len(mf.Messages))
	}

	if !slices.Contains(tags, tag) {
		return fmt.Errorf("no messages for language %q", lang)
	}

	locs := make(map[language.Tag]*i18n.Localizer, len(tags))
	for _, t := range tags {
		locs[t] = i18n.NewLocalizer(b, t.String())
	}

	// The fallback goes first so that Match returns it on no confidence.
	ordered := append([]language.Tag{tag}, slices.DeleteFunc(slices.Clone(tags), func(t language.Tag) bool {
		return t == tag
	})...)

	supported = ordered
	matcher = language.NewMatcher(ordered)
	localizers = locs
	fallback = locs[tag]
	return nil
}

// NewLocalizer picks the loaded locale that best matches langs. Entries may
// be plain tags or Accept-Language header values. Without any match the
// fallback language from Init is used.
func NewLocalizer(langs ...string) *i18n.Localizer {
	var prefs []language.Tag
	for _, l := range langs {
		if l == "" {
			continue
		}
		tags, _, err := language.ParseAcceptLanguage(l)
		if err != nil {
			continue
		}
		prefs = append(prefs, tags...)
	}
	if len(prefs) == 0 {
		return fallback
	}
	_, idx, conf := matcher.Match(prefs...)
	if conf == language.No {
		return fallback
	}
	return localizers[supported[idx]]
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer)
	if !ok {
		loc = fallback
	}
	s, err := loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message by ID with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a message pluralized by count; the template sees it as .Count.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}
