package voice

import (
	"regexp"
	"strings"
)

var spaceRun = regexp.MustCompile(`\s+`)

// NormalizeText lower-cases, trims and collapses internal whitespace.
func NormalizeText(text string) string {
	return spaceRun.ReplaceAllString(lowerTrim(text), " ")
}

func lowerTrim(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// TriggerSet holds the configured hotword phrases.
type TriggerSet struct {
	phrases []string
}

// NewTriggerSet lower-cases and trims phrases and drops empty entries.
func NewTriggerSet(phrases []string) *TriggerSet {
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		if s := lowerTrim(p); s != "" {
			out = append(out, s)
		}
	}
	return &TriggerSet{phrases: out}
}

// Phrases returns a copy of the phrases as matched.
func (t *TriggerSet) Phrases() []string {
	return append([]string(nil), t.phrases...)
}

// Match reports the first phrase contained in text. Matching is a plain
// substring test on the lower-cased, trimmed text, so "heyyou" matches
// "hey" while "he y" does not. Internal whitespace is compared as is.
func (t *TriggerSet) Match(text string) (string, bool) {
	s := lowerTrim(text)
	if s == "" {
		return "", false
	}
	for _, p := range t.phrases {
		if strings.Contains(s, p) {
			return p, true
		}
	}
	return "", false
}
