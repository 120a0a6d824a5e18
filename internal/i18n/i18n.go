// internal/i18n/i18n.go
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Lang string

const (
	RU Lang = "ru"
	EN Lang = "en"
	DE Lang = "de"
	PL Lang = "pl"

	Default = RU
)

var supported = []Lang{RU, EN, DE, PL}

func Supported() []Lang {
	out := make([]Lang, len(supported))
	copy(out, supported)
	return out
}

// Parse maps a stored or user supplied code onto a supported language.
func Parse(code string) (Lang, bool) {
	l := Lang(strings.ToLower(strings.TrimSpace(code)))
	for _, s := range supported {
		if s == l {
			return l, true
		}
	}
	return "", false
}

// OrDefault is Parse with a fallback to Default.
func OrDefault(code string) Lang {
	if l, ok := Parse(code); ok {
		return l
	}
	return Default
}

//go:embed locales/*.yaml
var localesFS embed.FS

type Catalog struct {
	messages map[Lang]map[string]string
}

func Load() (*Catalog, error) {
	c := &Catalog{messages: make(map[Lang]map[string]string, len(supported))}
	for _, l := range supported {
		name := path.Join("locales", string(l)+".yaml")
		raw, err := localesFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		m := map[string]string{}
		if err := yaml.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		c.messages[l] = m
	}
	return c, nil
}

func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

// T looks the key up in lang, then English, then Russian. A missing key is
// returned as is. Args are applied with fmt verbs.
func (c *Catalog) T(lang Lang, key string, args ...any) string {
	for _, l := range []Lang{lang, EN, RU} {
		if msg, ok := c.messages[l][key]; ok {
			if len(args) == 0 {
				return msg
			}
			return fmt.Sprintf(msg, args...)
		}
	}
	return key
}

// Keys lists the keys defined for lang in sorted order.
func (c *Catalog) Keys(lang Lang) []string {
	keys := make([]string, 0, len(c.messages[lang]))
	for k := range c.messages[lang] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
