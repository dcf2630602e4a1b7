package rag

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlpha(t *testing.T) {
	s := NewScorer(nil)

	tests := []struct {
		query string
		want  float64
	}{
		{"trip in 2019", AlphaDateQuery},
		{"happy beach day", AlphaSemanticQuery},
		{"my dog", AlphaDefault},
		{"happy 2019", AlphaDateQuery},
		{"jeju 22.07", AlphaDateQuery},
		{"2020-08 camping", AlphaDateQuery},
		{"2018년 여름", AlphaDateQuery},
		{"여름 바다", AlphaSemanticQuery},
		{"봄", AlphaSemanticQuery},
		{"Summer picnic", AlphaSemanticQuery},
		{"happy!", AlphaSemanticQuery},
		{"여름에 바다", AlphaSemanticQuery},
		{"Springfield picnic", AlphaDefault},
		{"funeral", AlphaDefault},
		{"lost glove", AlphaDefault},
		{"room 12345", AlphaDefault},
		{"", AlphaDefault},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Alpha(tt.query))
		})
	}
}

func TestAlpha_CustomLexicon(t *testing.T) {
	s := NewScorer(NewLexicon([]string{"cozy"}))

	assert.Equal(t, AlphaSemanticQuery, s.Alpha("cozy evening"))
	assert.Equal(t, AlphaDefault, s.Alpha("happy evening"))
}

func TestVectorScore(t *testing.T) {
	tests := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{1, 0.5},
		{2, 0},
		{-0.5, 1},
		{3, 0},
		{math.NaN(), 0.5},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, VectorScore(tt.distance), 1e-9, "distance %v", tt.distance)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"beach", "family"}, Tokenize("a Beach  beach 여 FAMILY"))
	assert.Empty(t, Tokenize("  a b  "))
}

func TestKeywordScore(t *testing.T) {
	text := "Date: 2022-07-10. Location: Jeju. AI Description: Family at the beach"

	assert.InDelta(t, 0.6, KeywordScore([]string{"beach", "family"}, text), 1e-9)
	assert.InDelta(t, 0.3, KeywordScore([]string{"beach", "office"}, text), 1e-9)
	assert.InDelta(t, 1.0, KeywordScore([]string{"beach", "family", "jeju", "date"}, text), 1e-9)
	assert.Zero(t, KeywordScore(nil, text))
	assert.Zero(t, KeywordScore([]string{"beach"}, ""))
}

func TestScore_EmptyTokensIsScaledVectorScore(t *testing.T) {
	s := NewScorer(nil)
	q := s.Prepare("a")

	assert.Empty(t, q.Tokens)
	assert.InDelta(t, AlphaDefault*0.75, q.Score(0.5, "anything"), 1e-9)
}

func TestScore_Monotonic(t *testing.T) {
	s := NewScorer(nil)
	q := s.Prepare("beach family jeju sunset")
	texts := []string{
		"nothing relevant",
		"beach",
		"beach family",
		"beach family jeju",
		"beach family jeju sunset",
	}

	for _, distance := range []float64{0, 0.4, 1, 1.7} {
		prev := -1.0
		for _, text := range texts {
			score := q.Score(distance, text)
			assert.GreaterOrEqual(t, score, prev, "more keywords at distance %v", distance)
			prev = score
		}
	}

	for _, text := range texts {
		prev := math.Inf(1)
		for d := 0.0; d <= 2.0; d += 0.25 {
			score := q.Score(d, text)
			assert.LessOrEqual(t, score, prev, "larger distance for %q", text)
			prev = score
		}
	}
}

func TestScore_Range(t *testing.T) {
	s := NewScorer(nil)
	for _, d := range []float64{-3, 0, 1, 2, 5} {
		score := s.Score("beach family", d, "beach family")
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestLexicon(t *testing.T) {
	l := NewLexicon([]string{" Happy", "happy", "", "여름"})
	assert.Equal(t, []string{"happy", "여름"}, l.Words())
	assert.True(t, l.Matches([]string{"happy"}))
	assert.True(t, l.Matches([]string{"(happy)"}))
	assert.False(t, l.Matches([]string{"unhappy"}))
	assert.False(t, l.Matches([]string{"happyland"}))
	assert.True(t, l.Matches([]string{"여름에"}))
	assert.False(t, l.Matches([]string{"한여름"}))
	assert.False(t, l.Matches([]string{"dog"}))
	assert.Len(t, DefaultLexicon().Words(), 16)
}

func TestLoadLexicon(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "lexicon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("words:\n  - cozy\n  - 설날\n"), 0o600))
	l, err := LoadLexicon(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"cozy", "설날"}, l.Words())

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("words: []\n"), 0o600))
	_, err = LoadLexicon(empty)
	assert.Error(t, err)

	_, err = LoadLexicon(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
