package sqlite

import (
	"errors"
	"strings"
	"unicode"
)

// ErrNotReadOnly is returned for statements that could modify the database.
var ErrNotReadOnly = errors.New("only single read-only SELECT statements are allowed")

var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true,
	"DROP": true, "ALTER": true, "CREATE": true, "TRUNCATE": true,
	"ATTACH": true, "DETACH": true, "PRAGMA": true, "VACUUM": true,
	"REINDEX": true, "UPSERT": true,
}

// scalarFunctions share a name with a write keyword. They only count as a
// write when not called.
var scalarFunctions = map[string]bool{"REPLACE": true}

type sqlWord struct {
	text string
	call bool
}

// CheckReadOnly accepts a single SELECT (or WITH ... SELECT) statement. One
// trailing semicolon is allowed.
func CheckReadOnly(query string) error {
	words, statements := scanSQL(query)
	if len(words) == 0 || statements > 1 {
		return ErrNotReadOnly
	}
	if words[0].text != "SELECT" && words[0].text != "WITH" {
		return ErrNotReadOnly
	}
	for _, w := range words {
		if !writeKeywords[w.text] {
			continue
		}
		if w.call && scalarFunctions[w.text] {
			continue
		}
		return ErrNotReadOnly
	}
	return nil
}

// scanSQL returns the upper-cased bare words of query, skipping string
// literals, quoted identifiers and comments, and counts the statements.
// A word directly followed by an opening parenthesis is marked as a call.
func scanSQL(query string) ([]sqlWord, int) {
	var (
		words      []sqlWord
		word       strings.Builder
		statements int
		pending    bool
		afterWord  bool
	)
	flush := func() {
		if word.Len() > 0 {
			words = append(words, sqlWord{text: strings.ToUpper(word.String())})
			word.Reset()
			pending = true
			afterWord = true
		}
	}

	rs := []rune(query)
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\'' || r == '"' || r == '`' || r == '[':
			flush()
			closing := r
			if r == '[' {
				closing = ']'
			}
			for i++; i < len(rs) && rs[i] != closing; i++ {
			}
			pending = true
			afterWord = false
		case r == '-' && i+1 < len(rs) && rs[i+1] == '-':
			flush()
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '/' && i+1 < len(rs) && rs[i+1] == '*':
			flush()
			for i += 2; i+1 < len(rs) && !(rs[i] == '*' && rs[i+1] == '/'); i++ {
			}
			i++
		case r == ';':
			flush()
			afterWord = false
			if pending {
				statements++
				pending = false
			}
		case unicode.IsLetter(r) || r == '_' || (word.Len() > 0 && unicode.IsDigit(r)):
			word.WriteRune(r)
		default:
			flush()
			if unicode.IsSpace(r) {
				continue
			}
			if r == '(' && afterWord {
				words[len(words)-1].call = true
			}
			afterWord = false
			pending = true
		}
	}
	flush()
	if pending {
		statements++
	}
	return words, statements
}
