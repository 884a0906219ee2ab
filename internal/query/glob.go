package query

import (
	"fmt"
	"regexp"
	"strings"
)

// GlobExpr is the predicate matching column against one glob argument.
func GlobExpr(dialect Dialect, column string) string {
	if dialect == Postgres {
		return column + " ~ ?"
	}
	return column + " GLOB ?"
}

// GlobArg converts pattern into the argument GlobExpr expects.
func GlobArg(dialect Dialect, pattern string) string {
	if dialect == Postgres {
		return GlobToRegexp(pattern)
	}
	return pattern
}

// ValidateGlob reports a malformed pattern: a "[" class that is never
// closed. Like SQLite GLOB there is no escape character, so "\" is a
// literal anywhere in the pattern.
func ValidateGlob(pattern string) error {
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '[' {
			continue
		}
		end := classEnd(runes, i)
		if end < 0 {
			return fmt.Errorf("invalid pattern %q: unterminated character class at offset %d", pattern, i)
		}
		i = end
	}
	return nil
}

// GlobToRegexp translates SQLite GLOB syntax into an anchored POSIX
// regular expression: "*" any run, "?" one character, "[...]" a class and
// "[^...]" its negation. Everything else matches literally.
func GlobToRegexp(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")

	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			sb.WriteString(".*")
		case '?':
			sb.WriteString(".")
		case '[':
			end := classEnd(runes, i)
			if end < 0 {
				sb.WriteString(`\[`)
				continue
			}
			sb.WriteString(classToRegexp(runes[i+1 : end]))
			i = end
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	sb.WriteString("$")
	return sb.String()
}

// classEnd finds the "]" closing the class opened at runes[open], or -1.
// A "]" right after "[" or "[^" is a literal member.
func classEnd(runes []rune, open int) int {
	j := open + 1
	if j < len(runes) && runes[j] == '^' {
		j++
	}
	if j < len(runes) && runes[j] == ']' {
		j++
	}
	for ; j < len(runes); j++ {
		if runes[j] == ']' {
			return j
		}
	}
	return -1
}

func classToRegexp(body []rune) string {
	var sb strings.Builder
	sb.WriteString("[")
	for k, c := range body {
		switch {
		case k == 0 && c == '^':
			sb.WriteRune('^')
		case c == '\\' || c == '[':
			sb.WriteRune('\\')
			sb.WriteRune(c)
		case c == ']':
			// only reachable as the leading literal member
			sb.WriteString(`\]`)
		default:
			sb.WriteRune(c)
		}
	}
	sb.WriteString("]")
	return sb.String()
}
