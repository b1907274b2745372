package lexical

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenizeLowercasesAndSplits(t *testing.T) {
	require.Equal(t, []string{"the", "quick", "brown", "fox"}, Tokenize("The Quick-Brown Fox!"))
}

func TestBuildAndScoreRanksExactTermMatchHighest(t *testing.T) {
	texts := []string{
		"the quick brown fox jumps over the lazy dog",
		"a completely unrelated passage about weather patterns",
		"foxes are quick and clever animals",
	}
	idx := Build(texts)
	require.Equal(t, 3, idx.N)

	scores := idx.Score("quick fox")
	require.Contains(t, scores, uint32(0))
	require.Contains(t, scores, uint32(2))
	require.NotContains(t, scores, uint32(1))
	require.Greater(t, scores[0], 0.0)
}

func TestScoreEmptyQueryReturnsEmpty(t *testing.T) {
	idx := Build([]string{"some text"})
	scores := idx.Score("")
	require.Empty(t, scores)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	idx := Build([]string{"hello world", "goodbye world"})
	require.NoError(t, idx.Save(dir, "idx"))
	require.True(t, Exists(dir, "idx"))

	loaded, err := Load(dir, "idx")
	require.NoError(t, err)
	require.Equal(t, idx.N, loaded.N)
	require.Equal(t, idx.Postings, loaded.Postings)
}

func TestLoadDetectsTokenizerMismatch(t *testing.T) {
	dir := t.TempDir()
	idx := Build([]string{"hello world"})
	idx.Tokenizer = "some-older-tokenizer"
	require.NoError(t, idx.Save(dir, "idx"))

	_, err := Load(dir, "idx")
	require.ErrorIs(t, err, ErrTokenizerMismatch)
}
