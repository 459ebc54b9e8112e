// Package sparse hashes text into fixed-dimension lexical vectors used as an
// exact-match proxy alongside dense embeddings.
package sparse

import (
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"ragcore/internal/adapter/analyzer"
	"ragcore/internal/domain"
)

// NgramMode selects the unit n-grams are built from.
type NgramMode string

const (
	NgramChar NgramMode = "char"
	NgramWord NgramMode = "word"
)

const (
	DefaultDimension = 2048
	DefaultNgramSize = 3
)

// Options configures a HashingIndex.
type Options struct {
	Dimension int
	NgramSize int
	Mode      NgramMode
}

// HashingIndex hashes text into signed, L2-normalized n-gram count vectors.
// It holds no mutable state and is safe for concurrent use.
type HashingIndex struct {
	dim       int
	n         int
	mode      NgramMode
	tokenizer *analyzer.Tokenizer
}

// NewHashingIndex creates a HashingIndex, applying defaults for zero options.
func NewHashingIndex(opts Options) *HashingIndex {
	if opts.Dimension <= 0 {
		opts.Dimension = DefaultDimension
	}
	if opts.NgramSize <= 0 {
		opts.NgramSize = DefaultNgramSize
	}
	if opts.Mode != NgramWord {
		opts.Mode = NgramChar
	}
	return &HashingIndex{
		dim:       opts.Dimension,
		n:         opts.NgramSize,
		mode:      opts.Mode,
		tokenizer: analyzer.NewTokenizer(false),
	}
}

// Dimension returns the vector length produced by Hash.
func (h *HashingIndex) Dimension() int {
	return h.dim
}

// Hash maps text to a SparseVector. Empty text yields the zero vector.
func (h *HashingIndex) Hash(text string) domain.SparseVector {
	vec := make(domain.SparseVector, h.dim)

	for _, gram := range h.ngrams(text) {
		sum := xxhash.Sum64String(gram)
		bucket := sum % uint64(h.dim)
		// the top bit is independent of the bucket for any dim below 2^63
		if sum>>63 == 1 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (h *HashingIndex) ngrams(text string) []string {
	if h.mode == NgramWord {
		return wordNgrams(h.tokenizer.Tokenize(text), h.n)
	}
	return charNgrams(normalize(text), h.n)
}

// normalize lowercases text and collapses whitespace runs to one space.
func normalize(text string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(text), unicode.IsSpace), " ")
}

func charNgrams(text string, n int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if len(runes) <= n {
		return []string{text}
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		grams = append(grams, string(runes[i:i+n]))
	}
	return grams
}

func wordNgrams(words []string, n int) []string {
	if len(words) == 0 {
		return nil
	}
	if len(words) <= n {
		return []string{strings.Join(words, " ")}
	}
	grams := make([]string, 0, len(words)-n+1)
	for i := 0; i+n <= len(words); i++ {
		grams = append(grams, strings.Join(words[i:i+n], " "))
	}
	return grams
}

// CosineSimilarity returns the normalized dot product of a and b in [-1, 1].
// It returns 0 if either vector has zero magnitude or the lengths differ.
func CosineSimilarity(a, b domain.SparseVector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

var (
	acronymPattern = regexp.MustCompile(`\b[A-Z]{2,}[0-9]*s?\b`)
	mixedCase      = regexp.MustCompile(`\b[a-zA-Z]*[a-z][A-Z][a-zA-Z0-9]*\b`)
	metricPattern  = regexp.MustCompile(`(?i)\b(p\d{2,3}|\w+_\w+|\d+(\.\d+)?\s?(ms|us|ns|kb|mb|gb|qps|rps|tps|s))\b|\d+(\.\d+)?%`)
	quotedPattern  = regexp.MustCompile("\"[^\"]+\"|'[^']+'|`[^`]+`")
)

// ShouldUseNgramMatching reports whether query looks like it names something
// exactly (acronyms, capitalized or mixed-case identifiers, metric names,
// quoted phrases), in which case lexical matching should complement dense
// similarity.
func ShouldUseNgramMatching(query string) bool {
	if strings.TrimSpace(query) == "" {
		return false
	}
	if acronymPattern.MatchString(query) || mixedCase.MatchString(query) ||
		metricPattern.MatchString(query) || quotedPattern.MatchString(query) {
		return true
	}

	// a capitalized word after the first is likely a proper name
	words := strings.Fields(query)
	for _, w := range words[1:] {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		runes := []rune(w)
		if len(runes) >= 2 && unicode.IsUpper(runes[0]) {
			return true
		}
	}
	return false
}
