package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// Strategy selects how a document is split.
type Strategy int

const (
	Fixed Strategy = iota + 1
	Recursive
	Semantic
	Token
)

// ErrInvalidStrategy is returned for strategy names or values outside the
// supported set.
var ErrInvalidStrategy = errors.New("invalid chunking strategy")

// Strategies lists every supported strategy.
var Strategies = []Strategy{Fixed, Recursive, Semantic, Token}

func (s Strategy) String() string {
	switch s {
	case Fixed:
		return "fixed"
	case Recursive:
		return "recursive"
	case Semantic:
		return "semantic"
	case Token:
		return "token"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// Valid reports whether s is one of the supported strategies.
func (s Strategy) Valid() bool {
	switch s {
	case Fixed, Recursive, Semantic, Token:
		return true
	default:
		return false
	}
}

// ParseStrategy maps a strategy name to its value.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "fixed":
		return Fixed, nil
	case "recursive":
		return Recursive, nil
	case "semantic":
		return Semantic, nil
	case "token":
		return Token, nil
	default:
		return 0, fmt.Errorf("%w: %q (want fixed, recursive, semantic or token)", ErrInvalidStrategy, name)
	}
}

// StrategyNames returns the names accepted by ParseStrategy.
func StrategyNames() []string {
	out := make([]string, len(Strategies))
	for i, s := range Strategies {
		out[i] = s.String()
	}
	return out
}
