package translation

import (
	"strings"

	"github.com/leonelquinteros/gotext"
)

// Configure loads the translations for lang from the locales directory.
// An empty or unknown language falls back to the untranslated message ids.
func Configure(localesDir, lang string) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = "en"
	}
	gotext.Configure(localesDir, lang, "default")
}

func GetLanguage() string {
	lang := gotext.GetLanguage()

	if lang == "und" || lang == "" {
		return "en"
	}

	return lang
}

func Translate(msgID string, vars ...interface{}) string {
	return gotext.Get(msgID, vars...)
}
