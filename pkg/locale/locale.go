// Package locale resolves the English strings the suite asserts on.
package locale

import (
	_ "embed"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed en.yaml
var enYAML []byte

var (
	english  map[string]string
	htmlTags = regexp.MustCompile(`<[^>]*>`)
)

func init() {
	var err error
	english, err = Parse(enYAML)
	if err != nil {
		panic(fmt.Sprintf("locale: embedded en.yaml: %v", err))
	}
}

// Parse decodes a flat key -> string YAML document.
func Parse(data []byte) (map[string]string, error) {
	dict := make(map[string]string)
	if err := yaml.Unmarshal(data, &dict); err != nil {
		return nil, fmt.Errorf("failed to parse locale: %w", err)
	}
	return dict, nil
}

// Keys lists the known keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(english))
	for k := range english {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LocalizedString is a lookup that can take {token} arguments.
type LocalizedString struct {
	key  string
	args map[string]string
}

// EnglishStrippedStr looks up key in the English dictionary. The rendered
// string has its HTML tags removed.
func EnglishStrippedStr(key string) *LocalizedString {
	return &LocalizedString{key: key}
}

// WithArgs sets the {token} substitutions.
func (s *LocalizedString) WithArgs(args map[string]string) *LocalizedString {
	s.args = args
	return s
}

// String renders the string. Unknown keys render as the key itself.
func (s *LocalizedString) String() string {
	raw, ok := english[s.key]
	if !ok {
		return s.key
	}
	for token, value := range s.args {
		raw = strings.ReplaceAll(raw, "{"+token+"}", value)
	}
	return htmlTags.ReplaceAllString(raw, "")
}
