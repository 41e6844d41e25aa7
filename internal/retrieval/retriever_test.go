package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeywordIndexRanksByOverlap(t *testing.T) {
	idx := NewKeywordIndex([]Document{
		{Source: "a", Text: "CTD devices measure conductivity temperature and depth"},
		{Source: "b", Text: "hydrophones record underwater acoustics"},
		{Source: "c", Text: "seawater temperature is measured by CTD sensors at CBYIP"},
	})

	snippets, err := idx.Retrieve(t.Context(), "seawater temperature from the CTD at CBYIP", 2)
	require.NoError(t, err)

	require.Len(t, snippets, 2)
	assert.Equal(t, "c", snippets[0].Source)
	assert.Greater(t, snippets[0].Score, snippets[1].Score)
}

func TestKeywordIndexOmitsZeroOverlap(t *testing.T) {
	idx := NewKeywordIndex([]Document{
		{Source: "a", Text: "chlorophyll fluorometer calibration"},
	})

	snippets, err := idx.Retrieve(t.Context(), "completely unrelated query words", 5)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestKeywordIndexEmptyQuery(t *testing.T) {
	idx := NewKeywordIndex(DefaultKnowledgeBase())

	snippets, err := idx.Retrieve(t.Context(), "   ", 3)
	require.NoError(t, err)
	assert.Empty(t, snippets)
}

func TestDefaultKnowledgeBaseCoversCoreVocabulary(t *testing.T) {
	idx := NewKeywordIndex(DefaultKnowledgeBase())

	snippets, err := idx.Retrieve(t.Context(), "which location code is the Cambridge Bay underwater platform", 1)
	require.NoError(t, err)
	require.NotEmpty(t, snippets)
	assert.Contains(t, snippets[0].Text, "CBYIP")
}
