package search

import (
	"unicode"

	"github.com/kljensen/snowball"

	"github.com/siftdata/sift/internal/schema"
)

// KeywordMatcher evaluates a keyword search against text values live, with
// no precomputed index. Offsets in returned spans are rune offsets.
type KeywordMatcher struct {
	query      string
	stem       bool
	queryRunes []rune
	queryStems map[string]bool
}

// NewKeywordMatcher builds a matcher for the given query. With stem=false it
// performs case-insensitive substring matching; with stem=true it matches
// stemmed tokens (English snowball stemming).
func NewKeywordMatcher(query string, stem bool) *KeywordMatcher {
	m := &KeywordMatcher{query: query, stem: stem}
	if stem {
		m.queryStems = make(map[string]bool)
		for _, tok := range tokenizeRunes([]rune(query)) {
			m.queryStems[stemToken(tok.text)] = true
		}
	} else {
		m.queryRunes = lowerRunes([]rune(query))
	}
	return m
}

// Spans returns every match of the query in the text. An empty result means
// the row does not match this search.
func (m *KeywordMatcher) Spans(text string) []schema.Span {
	if m.stem {
		return m.stemmedSpans(text)
	}
	return m.substringSpans(text)
}

// Matches reports whether the text satisfies the search. For stemmed
// matching every query token must be present.
func (m *KeywordMatcher) Matches(text string) bool {
	if !m.stem {
		return len(m.substringSpans(text)) > 0
	}
	found := make(map[string]bool, len(m.queryStems))
	for _, tok := range tokenizeRunes([]rune(text)) {
		s := stemToken(tok.text)
		if m.queryStems[s] {
			found[s] = true
		}
	}
	return len(found) == len(m.queryStems) && len(m.queryStems) > 0
}

func (m *KeywordMatcher) substringSpans(text string) []schema.Span {
	if len(m.queryRunes) == 0 {
		return nil
	}
	runes := lowerRunes([]rune(text))
	var spans []schema.Span
	for i := 0; i+len(m.queryRunes) <= len(runes); i++ {
		match := true
		for j, qr := range m.queryRunes {
			if runes[i+j] != qr {
				match = false
				break
			}
		}
		if match {
			spans = append(spans, schema.Span{Start: i, End: i + len(m.queryRunes)})
			i += len(m.queryRunes) - 1
		}
	}
	return spans
}

func (m *KeywordMatcher) stemmedSpans(text string) []schema.Span {
	if len(m.queryStems) == 0 {
		return nil
	}
	var spans []schema.Span
	for _, tok := range tokenizeRunes([]rune(text)) {
		if m.queryStems[stemToken(tok.text)] {
			spans = append(spans, schema.Span{Start: tok.start, End: tok.end})
		}
	}
	return spans
}

type token struct {
	text  string
	start int
	end   int
}

// tokenizeRunes splits on non-alphanumeric runes, tracking rune offsets.
func tokenizeRunes(runes []rune) []token {
	var (
		tokens  []token
		current []rune
		start   int
	)
	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if len(current) == 0 {
				start = i
			}
			current = append(current, unicode.ToLower(r))
			continue
		}
		if len(current) > 0 {
			tokens = append(tokens, token{text: string(current), start: start, end: i})
			current = current[:0]
		}
	}
	if len(current) > 0 {
		tokens = append(tokens, token{text: string(current), start: start, end: len(runes)})
	}
	return tokens
}

func stemToken(tok string) string {
	stemmed, err := snowball.Stem(tok, "english", true)
	if err != nil {
		return tok
	}
	return stemmed
}

func lowerRunes(runes []rune) []rune {
	out := make([]rune, len(runes))
	for i, r := range runes {
		out[i] = unicode.ToLower(r)
	}
	return out
}
