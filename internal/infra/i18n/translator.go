package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLang is used when no locale is configured.
const DefaultLang = "en"

//go:embed locales
var LocalesFS embed.FS

// Translator holds the user-facing strings of one language.
type Translator struct {
	lang         string
	translations map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys.
func NewTranslator(fsys fs.FS, lang string) (*Translator, error) {
	if lang == "" {
		lang = DefaultLang
	}
	filePath := path.Join("locales", lang+".yaml")
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	t, err := newTranslatorFromBytes(data)
	if err != nil {
		return nil, err
	}
	t.lang = lang
	return t, nil
}

// Load reads an embedded locale.
func Load(lang string) (*Translator, error) {
	return NewTranslator(LocalesFS, lang)
}

var (
	defaultOnce sync.Once
	defaultT    *Translator
)

// Default returns the embedded English catalog.
func Default() *Translator {
	defaultOnce.Do(func() {
		t, err := Load(DefaultLang)
		if err != nil {
			panic(err)
		}
		defaultT = t
	})
	return defaultT
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

func (t *Translator) Lang() string { return t.lang }

// T formats the message under key with args. Unknown keys are returned as is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}

// Keys reports the message keys of the catalog.
func (t *Translator) Keys() []string {
	keys := make([]string, 0, len(t.translations))
	for k := range t.translations {
		keys = append(keys, k)
	}
	return keys
}
