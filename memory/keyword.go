package memory

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minKeywordLen is the shortest token kept as a keyword.
const minKeywordLen = 3

// wordPattern matches word tokens (letters, digits, underscore).
var wordPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// stopWords are common English words ignored by keyword matching.
var stopWords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "with": true, "for": true, "not": true, "on": true,
	"at": true, "this": true, "but": true, "by": true, "from": true,
}

// KeywordMatcher scores text by the share of query keywords it contains.
type KeywordMatcher struct{}

// Keywords extracts the lower-cased, stopword-filtered keywords of query.
// Duplicates are kept; each occurrence counts once toward the score.
func (KeywordMatcher) Keywords(query string) []string {
	var keywords []string
	for _, w := range wordPattern.FindAllString(strings.ToLower(query), -1) {
		if stopWords[w] || utf8.RuneCountInString(w) < minKeywordLen {
			continue
		}
		keywords = append(keywords, w)
	}
	return keywords
}

// Score returns matched keywords / keywords in [0,1]. A keyword matches when
// it appears as a substring of the lower-cased corpus. Queries without
// keywords score 0.
func (k KeywordMatcher) Score(query, corpus string) float64 {
	return k.scoreKeywords(k.Keywords(query), strings.ToLower(corpus))
}

func (KeywordMatcher) scoreKeywords(keywords []string, lowerCorpus string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lowerCorpus, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}
