package auth

import (
	"embed"
	"io/fs"
	"sync"

	goerrors "github.com/goliatone/go-errors"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

const messageUnexpected = "UNEXPECTED_ERROR"

var (
	bundleOnce sync.Once
	bundle     *i18n.Bundle
)

func messageBundle() *i18n.Bundle {
	bundleOnce.Do(func() {
		bundle = i18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

		files, _ := fs.ReadDir(localeFS, "locales")
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			data, err := localeFS.ReadFile("locales/" + f.Name())
			if err != nil {
				continue
			}
			if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
				defLogger{}.Warn("failed to parse locale %s: %v", f.Name(), err)
			}
		}
	})
	return bundle
}

// FailureMessage returns the user facing text for err in the first matching
// language, English by default. Errors without a known text code get a
// generic message so internal details never reach the user.
func FailureMessage(err error, langs ...string) string {
	if err == nil {
		return ""
	}

	localizer := i18n.NewLocalizer(messageBundle(), langs...)

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" {
		if msg, lerr := localizer.Localize(&i18n.LocalizeConfig{MessageID: richErr.TextCode}); lerr == nil {
			return msg
		}
	}

	msg, lerr := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageUnexpected})
	if lerr != nil {
		return messageUnexpected
	}
	return msg
}
