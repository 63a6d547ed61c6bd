package responder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supreme-bot/internal/storage"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "pricing plan", Normalize("  PRICÍNG \t plan "))
	assert.Equal(t, "strasse", Normalize("STRASSE"))
	assert.Equal(t, "", Normalize("   "))
}

func TestMatchExactBeatsSubstring(t *testing.T) {
	corpus := []storage.Training{
		{ID: 1, Query: "pricing", UsageCount: 50},
		{ID: 2, Query: "Pricing Plan", UsageCount: 1},
	}
	entry, ok := Match(corpus, "pricing plan")
	require.True(t, ok)
	assert.Equal(t, int64(2), entry.ID)
}

func TestMatchSubstringBothDirections(t *testing.T) {
	corpus := []storage.Training{{ID: 1, Query: "how do i open a ticket"}}

	entry, ok := Match(corpus, "open a ticket")
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.ID)

	corpus = []storage.Training{{ID: 3, Query: "refund"}}
	entry, ok = Match(corpus, "can I get a refund please")
	require.True(t, ok)
	assert.Equal(t, int64(3), entry.ID)
}

func TestMatchTieBreaksByUsageThenID(t *testing.T) {
	corpus := []storage.Training{
		{ID: 4, Query: "fee", UsageCount: 2},
		{ID: 2, Query: "fees", UsageCount: 9},
		{ID: 1, Query: "fee", UsageCount: 9},
	}
	entry, ok := Match(corpus, "what is the fee structure")
	require.True(t, ok)
	assert.Equal(t, int64(1), entry.ID)

	again, _ := Match(corpus, "what is the fee structure")
	assert.Equal(t, entry.ID, again.ID)
}

func TestMatchNothing(t *testing.T) {
	corpus := []storage.Training{{ID: 1, Query: "pricing"}, {ID: 2, Query: "   "}}
	_, ok := Match(corpus, "hello")
	assert.False(t, ok)
	_, ok = Match(corpus, "")
	assert.False(t, ok)
}
