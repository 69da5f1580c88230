package cli

import (
	"errors"
	"strings"
	"unicode"
)

var ErrUnclosedQuote = errors.New("unclosed quote")

type wordState int

const (
	stateOutside wordState = iota
	stateSingleQuote
	stateDoubleQuote
)

// SplitWords splits a command line into words. Double and single quotes
// group whitespace. A backslash escapes whitespace or a quote character;
// any other backslash is kept so that path escapes reach the path layer
// untouched.
func SplitWords(line string) ([]string, error) {
	var (
		words   []string
		cur     strings.Builder
		inWord  bool
		state   wordState
		escaped bool
	)

	flush := func() {
		if inWord {
			words = append(words, cur.String())
			cur.Reset()
			inWord = false
		}
	}

	for _, ch := range line {
		if escaped {
			escaped = false
			if !consumesEscape(state, ch) {
				cur.WriteRune('\\')
			}
			cur.WriteRune(ch)
			inWord = true
			continue
		}

		switch state {
		case stateOutside:
			switch {
			case unicode.IsSpace(ch):
				flush()
			case ch == '"':
				state = stateDoubleQuote
				inWord = true
			case ch == '\'':
				state = stateSingleQuote
				inWord = true
			case ch == '\\':
				escaped = true
			default:
				cur.WriteRune(ch)
				inWord = true
			}
		case stateDoubleQuote:
			switch ch {
			case '"':
				state = stateOutside
			case '\\':
				escaped = true
			default:
				cur.WriteRune(ch)
			}
		case stateSingleQuote:
			if ch == '\'' {
				state = stateOutside
			} else {
				cur.WriteRune(ch)
			}
		}
	}

	if state != stateOutside {
		return nil, ErrUnclosedQuote
	}
	if escaped {
		cur.WriteRune('\\')
		inWord = true
	}
	flush()
	return words, nil
}

// consumesEscape reports whether a backslash before ch is dropped.
func consumesEscape(state wordState, ch rune) bool {
	if state == stateDoubleQuote {
		return ch == '"'
	}
	return unicode.IsSpace(ch) || ch == '"' || ch == '\''
}
