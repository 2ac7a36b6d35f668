package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/jdkato/prose/v2"
)

func HashString(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// NormalizeQuestion reduces a question to its lower-cased word and number
// tokens so trivially different phrasings share a cache key.
func NormalizeQuestion(question string) string {
	question = strings.TrimSpace(question)
	if question == "" {
		return ""
	}

	doc, err := prose.NewDocument(question,
		prose.WithTagging(false),
		prose.WithExtraction(false),
		prose.WithSegmentation(false),
	)
	if err != nil {
		return strings.Join(strings.Fields(strings.ToLower(question)), " ")
	}

	var words []string
	for _, tok := range doc.Tokens() {
		if !hasWordRune(tok.Text) {
			continue
		}
		words = append(words, strings.ToLower(tok.Text))
	}
	return strings.Join(words, " ")
}

// QuestionKey is the cache key for a question.
func QuestionKey(question string) string {
	return HashString(NormalizeQuestion(question))
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
