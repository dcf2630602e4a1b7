package rag

import (
	"os"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// defaultLexiconWords are emotion and season words, with Korean translations,
// whose queries are better served by semantic similarity than by keywords.
var defaultLexiconWords = []string{
	"happy", "sad", "joy", "fun", "love",
	"summer", "winter", "spring", "autumn",
	"행복", "기쁨", "슬픔", "여름", "겨울", "봄", "가을",
}

// Lexicon is the set of words that shift a query towards the vector signal.
type Lexicon struct {
	words []string
}

type lexiconFile struct {
	Words []string `yaml:"words"`
}

// DefaultLexicon returns the built-in bilingual lexicon.
func DefaultLexicon() *Lexicon {
	return NewLexicon(defaultLexiconWords)
}

// NewLexicon lowercases and de-duplicates words; blanks are dropped.
func NewLexicon(words []string) *Lexicon {
	l := &Lexicon{}
	seen := make(map[string]bool, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		l.words = append(l.words, w)
	}
	return l
}

// LoadLexicon reads a YAML file of the form:
//
//	words:
//	  - happy
//	  - 여름
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read lexicon file %s", path)
	}
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrapf(err, "failed to parse lexicon file %s", path)
	}
	if len(f.Words) == 0 {
		return nil, errors.Errorf("lexicon file %s has no words", path)
	}
	return NewLexicon(f.Words), nil
}

// Words returns the lexicon entries.
func (l *Lexicon) Words() []string {
	return append([]string(nil), l.words...)
}

// Matches reports whether a token equals a lexicon word, ignoring surrounding
// punctuation. Hangul words also match as a token prefix, since Korean
// attaches particles and endings to the stem ("여름에", "행복한").
func (l *Lexicon) Matches(tokens []string) bool {
	for _, tok := range tokens {
		tok = strings.TrimFunc(tok, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if tok == "" {
			continue
		}
		for _, w := range l.words {
			if tok == w || (isHangul(w) && strings.HasPrefix(tok, w)) {
				return true
			}
		}
	}
	return false
}

func isHangul(word string) bool {
	for _, r := range word {
		if !unicode.Is(unicode.Hangul, r) {
			return false
		}
	}
	return word != ""
}
