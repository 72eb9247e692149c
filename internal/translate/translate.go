// Package translate renders user-facing diagnostics and error texts in the
// language of the current locale.
package translate

import (
	"log"

	"github.com/jeandeaual/go-locale"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer *message.Printer

func init() {
	for key, ja := range japanese {
		_ = message.SetString(language.Japanese, key, ja)
	}

	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("mzmml: locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{"en-US"}
	}

	printer = message.NewPrinter(message.MatchLanguage(locales...))
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return printer.Sprintf(key, args...)
}

// In translates key for an explicit language, ignoring the process locale.
func In(tag language.Tag, key message.Reference, args ...any) string {
	return message.NewPrinter(tag).Sprintf(key, args...)
}
