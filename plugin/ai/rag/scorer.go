package rag

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Blend weights of the vector signal per query class.
const (
	AlphaDateQuery     = 0.1
	AlphaSemanticQuery = 0.9
	AlphaDefault       = 0.7

	// keywordHitWeight is the keyword score contributed by one matched token.
	keywordHitWeight = 0.3
)

var (
	// covers YYYY, YYYY-MM, YYYY.MM, YYYY/MM, 2019년 and 2019年
	yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	// two digit year with zero padded month: 22.07, 19-12
	shortYearMonthPattern = regexp.MustCompile(`\b\d{2}[.\-](0[1-9]|1[0-2])\b`)
)

// Scorer computes hybrid scores. It is stateless apart from its lexicon and
// safe for concurrent use.
type Scorer struct {
	lexicon *Lexicon
}

// NewScorer creates a scorer; a nil lexicon means the default one.
func NewScorer(lexicon *Lexicon) *Scorer {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Scorer{lexicon: lexicon}
}

// Query holds the per-query features, computed once and reused for every candidate.
type Query struct {
	Text   string
	Tokens []string
	Alpha  float64
}

// Prepare tokenizes the query and picks its blend weight.
func (s *Scorer) Prepare(query string) *Query {
	return &Query{
		Text:   query,
		Tokens: Tokenize(query),
		Alpha:  s.Alpha(query),
	}
}

// Alpha returns the vector weight for query. Date constraints win over
// emotion words: "happy 2019" still needs the year matched literally.
func (s *Scorer) Alpha(query string) float64 {
	if yearPattern.MatchString(query) || shortYearMonthPattern.MatchString(query) {
		return AlphaDateQuery
	}
	if s.lexicon.Matches(strings.Fields(strings.ToLower(query))) {
		return AlphaSemanticQuery
	}
	return AlphaDefault
}

// Score blends the candidate's vector distance with its keyword overlap.
func (q *Query) Score(distance float64, text string) float64 {
	return q.Alpha*VectorScore(distance) + (1-q.Alpha)*KeywordScore(q.Tokens, text)
}

// Score is a convenience for one-off scoring.
func (s *Scorer) Score(query string, distance float64, text string) float64 {
	return s.Prepare(query).Score(distance, text)
}

// VectorScore maps a cosine distance in [0,2] to a similarity in [0,1].
// Out of range distances are clamped; NaN counts as orthogonal.
func VectorScore(distance float64) float64 {
	if math.IsNaN(distance) {
		distance = 1
	}
	score := 1 - distance/2
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// KeywordScore counts tokens occurring in text, 0.3 each, capped at 1.
func KeywordScore(tokens []string, text string) float64 {
	if len(tokens) == 0 || text == "" {
		return 0
	}
	lower := strings.ToLower(text)
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			matched++
		}
	}
	return math.Min(keywordHitWeight*float64(matched), 1)
}

// Tokenize splits on whitespace, lowercases and drops one-rune tokens.
// Repeated tokens are kept once so "beach beach" cannot inflate the score.
func Tokenize(query string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if utf8.RuneCountInString(tok) <= 1 || seen[tok] {
			continue
		}
		seen[tok] = true
		tokens = append(tokens, tok)
	}
	return tokens
}
