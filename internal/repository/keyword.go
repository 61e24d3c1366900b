package repository

import (
	"strings"
	"unicode"
)

// minTermRunes drops short/stop-like terms; anything of length <= 2 carries
// no lexical signal worth matching on.
const minTermRunes = 3

// keywordTerms tokenizes a query into lowercase terms, discarding terms
// shorter than minTermRunes and duplicates while preserving order.
// Surrounding punctuation is stripped so "Rocks?" matches "rocks", while
// interior punctuation survives and terms like "90-day" stay intact.
func keywordTerms(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	seen := make(map[string]struct{}, len(fields))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len([]rune(f)) < minTermRunes {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
	}
	return terms
}

// keywordScore is the fraction of query terms found as substrings of the
// lowercased content, in [0,1].
func keywordScore(content string, terms []string) float32 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	matched := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			matched++
		}
	}
	return float32(matched) / float32(len(terms))
}

// likePattern wraps a term for a LIKE match, escaping LIKE metacharacters.
func likePattern(term string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
	return "%" + escaped + "%"
}
