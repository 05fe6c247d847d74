package patterns

import (
	"strings"
	"unicode"
	"unicode/utf8"

	ahocorasick "github.com/cloudflare/ahocorasick"
)

// KeywordSet matches a fixed dictionary of phrases in a single pass.
// It is safe for concurrent use.
type KeywordSet struct {
	matcher  *ahocorasick.Matcher
	keywords []string
}

// NewKeywordSet builds an Aho-Corasick automaton over the normalised keywords.
func NewKeywordSet(keywords []string) *KeywordSet {
	set := &KeywordSet{}
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		normalized := NormalizeText(kw)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		set.keywords = append(set.keywords, normalized)
	}
	if len(set.keywords) > 0 {
		set.matcher = ahocorasick.NewStringMatcher(set.keywords)
	}
	return set
}

// Count returns how many distinct keywords occur in text.
func (s *KeywordSet) Count(text string) int {
	return len(s.Matches(text))
}

// Has reports whether any keyword occurs in text.
func (s *KeywordSet) Has(text string) bool {
	return s.Count(text) > 0
}

// Matches returns the distinct keywords found in text, in dictionary order. A
// keyword edge that is a letter or digit must not touch another letter or digit,
// so "cart" does not match "cartoon".
func (s *KeywordSet) Matches(text string) []string {
	if s == nil || s.matcher == nil {
		return nil
	}
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}
	hits := s.matcher.MatchThreadSafe([]byte(normalized))
	if len(hits) == 0 {
		return nil
	}
	found := make([]bool, len(s.keywords))
	for _, idx := range hits {
		if idx >= 0 && idx < len(found) {
			found[idx] = true
		}
	}
	out := make([]string, 0, len(hits))
	for idx, ok := range found {
		if ok && occursBounded(normalized, s.keywords[idx]) {
			out = append(out, s.keywords[idx])
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func occursBounded(text, keyword string) bool {
	for from := 0; from+len(keyword) <= len(text); {
		i := strings.Index(text[from:], keyword)
		if i < 0 {
			return false
		}
		start := from + i
		if bounded(text, keyword, start, start+len(keyword)) {
			return true
		}
		from = start + 1
	}
	return false
}

func bounded(text, keyword string, start, end int) bool {
	if first, _ := utf8.DecodeRuneInString(keyword); isWordRune(first) && start > 0 {
		if prev, _ := utf8.DecodeLastRuneInString(text[:start]); isWordRune(prev) {
			return false
		}
	}
	if last, _ := utf8.DecodeLastRuneInString(keyword); isWordRune(last) && end < len(text) {
		if next, _ := utf8.DecodeRuneInString(text[end:]); isWordRune(next) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Len returns the dictionary size.
func (s *KeywordSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keywords)
}

// NormalizeText lower-cases text and collapses whitespace runs to single spaces.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	space := false
	for _, r := range strings.ToLower(text) {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}
