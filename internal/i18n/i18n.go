// Package i18n resolves the user language and translates UI strings.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/text/language"

	"plaichat/internal/tokens"
)

//go:embed locales/*.json
var locales embed.FS

// Supported languages; the first one is the default.
var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

type Translator struct {
	lang     string
	messages map[string]string
}

// For returns the translator for lang, falling back to English.
func For(lang string) *Translator {
	base := baseOf(lang)
	messages, err := load(base)
	if err != nil {
		base = "en"
		messages, _ = load(base)
	}
	return &Translator{lang: base, messages: messages}
}

// Detect prefers the stored user_lang value and then the process locale
// (LC_ALL/LANG style, e.g. "es_ES.UTF-8").
func Detect(store tokens.Store, envLang string) *Translator {
	if store != nil {
		if v, ok := store.Get(tokens.UserLang); ok && v != "" {
			return For(Match(v))
		}
	}
	return For(Match(envLang))
}

// Match maps a locale string onto a supported language code.
func Match(locale string) string {
	locale, _, _ = strings.Cut(locale, ".")
	locale, _, _ = strings.Cut(locale, "@")
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" || locale == "C" || locale == "POSIX" {
		return "en"
	}
	_, idx := language.MatchStrings(matcher, locale)
	return baseOf(supported[idx].String())
}

func baseOf(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return "en"
	}
	base, _ := tag.Base()
	return base.String()
}

func load(lang string) (map[string]string, error) {
	raw, err := locales.ReadFile("locales/" + lang + ".json")
	if err != nil {
		return nil, fmt.Errorf("no translations for %q: %w", lang, err)
	}
	messages := map[string]string{}
	if err := json.Unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("parsing %s translations: %w", lang, err)
	}
	return messages, nil
}

// T returns the translation for key, or key itself when there is none.
func (t *Translator) T(key string) string {
	if v, ok := t.messages[key]; ok {
		return v
	}
	return key
}

func (t *Translator) Lang() string { return t.lang }
