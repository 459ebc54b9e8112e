package analyzer

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into lowercase word tokens with optional stopword removal.
type Tokenizer struct {
	stopwords map[string]struct{}
	dropStops bool
}

// NewTokenizer creates a new Tokenizer.
func NewTokenizer(removeStopwords bool) *Tokenizer {
	return &Tokenizer{
		stopwords: defaultStopwords(),
		dropStops: removeStopwords,
	}
}

// Tokenize splits text into lowercase tokens.
func (t *Tokenizer) Tokenize(text string) []string {
	words := SplitWords(text)
	tokens := make([]string, 0, len(words))

	for _, word := range words {
		word = strings.ToLower(word)
		if t.dropStops {
			if _, isStop := t.stopwords[word]; isStop {
				continue
			}
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// CountTokens returns an approximate LLM token count for budget display.
func (t *Tokenizer) CountTokens(text string) int {
	words := SplitWords(text)
	if len(words) == 0 {
		return 0
	}
	// average word is about 1.3 subword tokens
	return int(float64(len(words)) * 1.3)
}

// SplitWords splits text into runs of letters, digits and underscores.
func SplitWords(text string) []string {
	var words []string
	var current strings.Builder

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			current.WriteRune(r)
		} else if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}
	if current.Len() > 0 {
		words = append(words, current.String())
	}

	return words
}

func defaultStopwords() map[string]struct{} {
	stops := []string{
		"a", "an", "and", "are", "as", "at", "be", "by", "for",
		"from", "has", "in", "is", "it", "its", "of", "on",
		"that", "the", "to", "was", "were", "will", "with", "this",
		"or", "so", "if", "do", "does", "what", "when", "where",
		"which", "who", "why", "how",
	}
	m := make(map[string]struct{}, len(stops))
	for _, s := range stops {
		m[s] = struct{}{}
	}
	return m
}
