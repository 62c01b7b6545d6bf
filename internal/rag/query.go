// Package rag answers questions about the CRM manuals: it detects the query
// language, retrieves ranked chunks from the language's partitions and has a
// chat model compose a cited answer.
package rag

import (
	"strings"
	"unicode"

	"github.com/ziadkadry99/crm-manual-rag/internal/metadata"
)

var stopWords = map[string]map[string]bool{
	metadata.Korean: set("은", "는", "이", "가", "을", "를", "의", "에", "에서",
		"으로", "로", "과", "와", "하는", "하다", "있다"),
	metadata.English: set("the", "a", "an", "in", "on", "at", "to", "for",
		"of", "with", "is", "are", "how", "what", "when"),
}

func set(words ...string) map[string]bool {
	out := make(map[string]bool, len(words))
	for _, w := range words {
		out[w] = true
	}
	return out
}

// QueryProcessor normalises user questions. The zero value is ready to use.
type QueryProcessor struct{}

// DetectLanguage returns korean for text containing Hangul or no letters at
// all, and english otherwise.
func (QueryProcessor) DetectLanguage(text string) string {
	if metadata.HasHangul(text) {
		return metadata.Korean
	}
	for _, r := range text {
		if unicode.IsLetter(r) {
			return metadata.English
		}
	}
	return metadata.Korean
}

// LanguageCode maps korean to "ko" and anything else to "en".
func (QueryProcessor) LanguageCode(language string) string {
	if language == metadata.Korean {
		return "ko"
	}
	return "en"
}

// Optimize collapses whitespace and drops question and exclamation marks.
func (QueryProcessor) Optimize(query string) string {
	query = strings.Join(strings.Fields(query), " ")
	query = strings.NewReplacer("?", "", "!", "").Replace(query)
	return strings.TrimSpace(query)
}

// Keywords splits query on whitespace and removes the language's stop words.
func (QueryProcessor) Keywords(query, language string) []string {
	stop := stopWords[metadata.English]
	if language == metadata.Korean {
		stop = stopWords[metadata.Korean]
	}
	var out []string
	for _, w := range strings.Fields(query) {
		if !stop[strings.ToLower(w)] {
			out = append(out, w)
		}
	}
	return out
}
