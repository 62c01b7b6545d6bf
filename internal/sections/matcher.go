package sections

import (
	"regexp"
	"strings"
)

// Pattern is a named header rule.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// DefaultPatterns are the header forms found in the CRM manuals, in match order.
var DefaultPatterns = []Pattern{
	{Name: "markdown", Re: regexp.MustCompile(`^#{1,6}\s+.+$`)},
	{Name: "numbered", Re: regexp.MustCompile(`^\d+\.\s+.+$`)},
	{Name: "numbered2", Re: regexp.MustCompile(`^\d+\.\d+\s+.+$`)},
	{Name: "numbered3", Re: regexp.MustCompile(`^\d+\.\d+\.\d+\s+.+$`)},
	{Name: "caps", Re: regexp.MustCompile(`^[A-Z][^a-z]*$`)},
	{Name: "chapter", Re: regexp.MustCompile(`^제\d+장.+$`)},
	{Name: "section", Re: regexp.MustCompile(`^제\d+절.+$`)},
}

// Matcher decides whether a line is a section header. Semantic chunking and
// content metadata extraction share one instance so their section boundaries
// always agree.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher returns a Matcher over the given patterns, or DefaultPatterns
// when none are given.
func NewMatcher(patterns ...Pattern) *Matcher {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Matcher{patterns: patterns}
}

// Default is the matcher used when callers do not supply their own.
var Default = NewMatcher()

// Match reports whether line (after trimming) is a header and, if so, the
// name of the first pattern that matched.
func (m *Matcher) Match(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	for _, p := range m.patterns {
		if p.Re.MatchString(line) {
			return p.Name, true
		}
	}
	return "", false
}

// IsHeader reports whether line is a header.
func (m *Matcher) IsHeader(line string) bool {
	_, ok := m.Match(line)
	return ok
}

// Section is a titled span of text.
type Section struct {
	Title string
	Body  string
}

// PreambleTitle names the section holding text that precedes the first header.
const PreambleTitle = "Document"

// Split breaks text into sections at header lines. Header lines become titles
// and are not repeated in the body. Non-blank text before the first header
// forms a section titled PreambleTitle; a text without headers is returned as
// one such section.
func (m *Matcher) Split(text string) []Section {
	lines := strings.Split(text, "\n")

	var out []Section
	title := PreambleTitle
	var body []string
	started := false

	flush := func() {
		joined := strings.Join(body, "\n")
		if started || strings.TrimSpace(joined) != "" {
			out = append(out, Section{Title: title, Body: joined})
		}
	}

	for _, line := range lines {
		if m.IsHeader(line) {
			flush()
			title = strings.TrimSpace(line)
			body = nil
			started = true
			continue
		}
		body = append(body, line)
	}
	flush()

	if len(out) == 0 {
		return []Section{{Title: PreambleTitle, Body: text}}
	}
	return out
}

// Headers returns up to limit header lines (trimmed) in document order.
// A limit <= 0 means no limit.
func (m *Matcher) Headers(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if m.IsHeader(line) {
			out = append(out, strings.TrimSpace(line))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}
