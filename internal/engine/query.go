package engine

import (
	"fmt"
	"strings"
)

// clause is a top-level SQL keyword and its byte offset in the query.
type clause struct {
	word string
	pos  int
}

var clauseWords = map[string]bool{
	"WHERE": true, "GROUP": true, "HAVING": true, "WINDOW": true, "ORDER": true,
	"LIMIT": true, "OFFSET": true, "FETCH": true, "FOR": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true,
}

// these make appending a WHERE or ORDER BY to the statement unsafe
var wrapWords = map[string]bool{
	"LIMIT": true, "OFFSET": true, "FETCH": true, "FOR": true,
	"UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true,
}

func isWordChar(c byte) bool {
	return c == '_' || c == '$' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

// skipQuoted returns the offset just past the literal opened at q[i].
// A doubled quote character is an escape.
func skipQuoted(q string, i int, quote byte) int {
	for j := i + 1; j < len(q); j++ {
		if q[j] != quote {
			continue
		}
		if j+1 < len(q) && q[j+1] == quote {
			j++
			continue
		}
		return j + 1
	}
	return len(q)
}

// topLevelClauses finds clause keywords outside parentheses, literals,
// quoted identifiers and comments.
func topLevelClauses(q string) []clause {
	var out []clause
	depth := 0
	prev := ""
	for i := 0; i < len(q); {
		c := q[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			i = skipQuoted(q, i, c)
			continue
		case c == '[':
			j := strings.IndexByte(q[i:], ']')
			if j < 0 {
				return out
			}
			i += j + 1
			continue
		case c == '-' && i+1 < len(q) && q[i+1] == '-':
			j := strings.IndexByte(q[i:], '\n')
			if j < 0 {
				return out
			}
			i += j + 1
			continue
		case c == '/' && i+1 < len(q) && q[i+1] == '*':
			j := strings.Index(q[i+2:], "*/")
			if j < 0 {
				return out
			}
			i += j + 4
			continue
		case c == '(':
			depth++
		case c == ')':
			depth--
		case isWordChar(c):
			j := i
			for j < len(q) && isWordChar(q[j]) {
				j++
			}
			word := strings.ToUpper(q[i:j])
			// WITHIN GROUP (ORDER BY ...) belongs to an aggregate
			if depth == 0 && clauseWords[word] && !(word == "GROUP" && prev == "WITHIN") {
				out = append(out, clause{word: word, pos: i})
			}
			prev = word
			i = j
			continue
		}
		i++
	}
	return out
}

// normalizeQuery trims whitespace and trailing semicolons.
func normalizeQuery(q string) string {
	return strings.TrimSpace(strings.TrimRight(strings.TrimSpace(q), ";"))
}

// splitOrderBy separates a trailing top-level ORDER BY from the query.
// Queries where something follows the ORDER BY are returned unchanged.
func splitOrderBy(q string) (string, string) {
	q = normalizeQuery(q)
	cls := topLevelClauses(q)
	for i, c := range cls {
		if c.word != "ORDER" {
			continue
		}
		if i+1 < len(cls) {
			return q, ""
		}
		rest := strings.TrimSpace(q[c.pos+len("ORDER"):])
		if len(rest) >= 2 && strings.EqualFold(rest[:2], "BY") {
			rest = strings.TrimSpace(rest[2:])
		}
		return strings.TrimSpace(q[:c.pos]), rest
	}
	return q, ""
}

// mergeCondition adds cond to the query's top-level WHERE with AND, or
// inserts a WHERE before GROUP BY / HAVING / ORDER BY. Compound statements
// and statements that already limit their rows are wrapped in a derived
// table instead.
func mergeCondition(q, cond string) string {
	q = normalizeQuery(q)
	cls := topLevelClauses(q)

	for _, c := range cls {
		if wrapWords[c.word] {
			return fmt.Sprintf("SELECT * FROM (%s) src WHERE %s", q, cond)
		}
	}

	where := -1
	end := len(q)
	for _, c := range cls {
		if c.word == "WHERE" && where < 0 {
			where = c.pos
			continue
		}
		if c.pos > where && c.word != "WHERE" {
			end = c.pos
			break
		}
	}

	tail := strings.TrimSpace(q[end:])
	if tail != "" {
		tail = " " + tail
	}
	if where >= 0 {
		existing := strings.TrimSpace(q[where+len("WHERE") : end])
		return fmt.Sprintf("%s WHERE (%s) AND %s%s", strings.TrimSpace(q[:where]), existing, cond, tail)
	}
	return fmt.Sprintf("%s WHERE %s%s", strings.TrimSpace(q[:end]), cond, tail)
}
