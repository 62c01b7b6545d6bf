package chunker

import (
	"strings"
	"unicode"
)

// pseudoTokens segments text into units that each cost about one estimated
// token. A unit ends at a whitespace boundary (the whitespace leads the next
// word) or once its estimated cost reaches one token, so long words and CJK
// runs are cut into sub-word pieces. Joining the units reproduces text.
func pseudoTokens(text string) []string {
	var out []string
	var cur strings.Builder
	cost := 0.0
	prevSpace := false

	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
			cost = 0
		}
	}

	for i, r := range text {
		space := unicode.IsSpace(r)
		if i > 0 && space && !prevSpace {
			flush()
		}
		cur.WriteRune(r)
		prevSpace = space
		if !space {
			cost += runeCost(r)
			if cost >= 1 {
				flush()
			}
		}
	}
	flush()
	return out
}

// splitTokens windows text over pseudo-tokens with a budget of size tokens
// and overlap tokens shared between neighbouring windows.
func splitTokens(text string, size, overlap int) []string {
	if size < 1 {
		size = 1
	}
	if overlap >= size {
		overlap = size / 4
	}
	step := size - overlap

	tokens := pseudoTokens(text)
	var out []string
	for start := 0; start < len(tokens); start += step {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		if piece := strings.TrimSpace(strings.Join(tokens[start:end], "")); piece != "" {
			out = append(out, piece)
		}
		if end == len(tokens) {
			break
		}
	}
	return out
}
