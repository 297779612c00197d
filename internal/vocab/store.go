// Package vocab loads the localized lexicon used for page labels and persona whitelists.
package vocab

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultLanguage is the mandatory fallback entry of the document.
const DefaultLanguage = "en"

// Lexicon is one language entry of the localization document.
type Lexicon struct {
	Code             string            `yaml:"-"`
	Name             string            `yaml:"_language"`
	HTML             map[string]any    `yaml:"html"`
	Industries       map[string]string `yaml:"industries"`
	BusinessProblems map[string]string `yaml:"business_problems"`
}

// DisplayName returns the language name used in prompts.
func (l *Lexicon) DisplayName() string {
	if l == nil || strings.TrimSpace(l.Name) == "" {
		return "English"
	}
	return l.Name
}

// Store is a read-only lookup built once at startup.
type Store struct {
	entries          map[string]*Lexicon
	industries       map[string]struct{}
	businessProblems map[string]struct{}
}

// Load reads and parses the localization document at path.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary file: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, err
	}
	slog.Info("Vocabulary loaded", "path", path, "languages", len(s.entries))
	return s, nil
}

// Parse builds a Store from a JSON or YAML document.
func Parse(data []byte) (*Store, error) {
	var raw map[string]*Lexicon
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode vocabulary: %w", err)
	}

	entries := make(map[string]*Lexicon, len(raw))
	for code, lex := range raw {
		if lex == nil {
			continue
		}
		code = strings.ToLower(strings.TrimSpace(code))
		lex.Code = code
		entries[code] = lex
	}

	en, ok := entries[DefaultLanguage]
	if !ok {
		return nil, fmt.Errorf("vocabulary has no %q entry", DefaultLanguage)
	}
	if len(en.Industries) == 0 || len(en.BusinessProblems) == 0 {
		return nil, fmt.Errorf("vocabulary %q entry must list industries and business_problems", DefaultLanguage)
	}

	return &Store{
		entries:          entries,
		industries:       keySet(en.Industries),
		businessProblems: keySet(en.BusinessProblems),
	}, nil
}

// VocabFor returns the lexicon for code, falling back to English.
func (s *Store) VocabFor(code string) *Lexicon {
	if lex, ok := s.entries[strings.ToLower(strings.TrimSpace(code))]; ok {
		return lex
	}
	slog.Debug("Language missing, falling back", "requested", code, "fallback", DefaultLanguage)
	return s.entries[DefaultLanguage]
}

// Industries returns the canonical industry slugs.
func (s *Store) Industries() map[string]struct{} {
	return s.industries
}

// BusinessProblems returns the canonical business problem slugs.
func (s *Store) BusinessProblems() map[string]struct{} {
	return s.businessProblems
}

func keySet(m map[string]string) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}
