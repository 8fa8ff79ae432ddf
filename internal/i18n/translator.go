// Package i18n renders user-facing messages from embedded TOML catalogues.
package i18n

import (
	"embed"
	"log/slog"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed active.*.toml
var localeFS embed.FS

var catalogues = []string{"active.en.toml", "active.id.toml"}

// Translator is a thin wrapper around go-i18n's Bundle/Localizer.
type Translator struct {
	bundle          *i18n.Bundle
	defaultLanguage language.Tag
	logger          *slog.Logger
}

// NewTranslator builds a Translator using the given default locale (e.g. "en").
func NewTranslator(defaultLocale string, logger *slog.Logger) *Translator {
	if logger == nil {
		logger = slog.Default()
	}
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		tag = language.English
	}
	bundle := i18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	for _, file := range catalogues {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			logger.Error("i18n: failed to load catalogue", "file", file, "error", err)
		}
	}

	return &Translator{
		bundle:          bundle,
		defaultLanguage: tag,
		logger:          logger,
	}
}

// T renders the message identified by key for locale, which may be a tag
// ("id") or an Accept-Language value ("id-ID,id;q=0.9,en;q=0.8").
// Unknown keys fall back to the default locale, then to the key itself.
func (t *Translator) T(locale, key string, data map[string]any) string {
	if key == "" {
		return ""
	}

	languages := []string{}
	if locale != "" {
		languages = append(languages, locale)
	}
	languages = append(languages, t.defaultLanguage.String())

	localizer := i18n.NewLocalizer(t.bundle, languages...)
	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    key,
		TemplateData: data,
	})
	if err != nil && msg == "" {
		t.logger.Warn("i18n: localize failed", "key", key, "locales", languages, "error", err)
		return key
	}
	return msg
}
