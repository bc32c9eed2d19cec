package application

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-council/internal/domain"
)

// TestParseRanking tests label extraction from peer reviews with and
// without the final ranking marker.
func TestParseRanking(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "numbered list after marker",
			text: "Response A is thorough.\nResponse B is vague.\n\nFINAL RANKING:\n1. Response C\n2. Response A\n3. Response B",
			want: []string{"Response C", "Response A", "Response B"},
		},
		{
			name: "labels before the marker are ignored",
			text: "I liked Response A the most.\nFINAL RANKING:\n1. Response B\n2. Response A",
			want: []string{"Response B", "Response A"},
		},
		{
			name: "numbered entries without a space",
			text: "FINAL RANKING:\n1.Response B\n2.Response A",
			want: []string{"Response B", "Response A"},
		},
		{
			name: "unnumbered labels after marker",
			text: "FINAL RANKING:\nResponse B, then Response A",
			want: []string{"Response B", "Response A"},
		},
		{
			name: "no marker scans whole text",
			text: "Response B beats Response A, and Response C trails.",
			want: []string{"Response B", "Response A", "Response C"},
		},
		{
			name: "only the first marker counts",
			text: "FINAL RANKING:\n1. Response A\nFINAL RANKING:\n1. Response B",
			want: []string{"Response A", "Response B"},
		},
		{
			name: "duplicates are kept",
			text: "FINAL RANKING:\n1. Response A\n2. Response A",
			want: []string{"Response A", "Response A"},
		},
		{
			name: "no labels",
			text: "I cannot rank these.",
			want: []string{},
		},
		{
			name: "marker with nothing after",
			text: "FINAL RANKING:",
			want: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRanking(tt.text)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestResponseLabel tests the anonymized label sequence.
func TestResponseLabel(t *testing.T) {
	assert.Equal(t, "Response A", ResponseLabel(0))
	assert.Equal(t, "Response C", ResponseLabel(2))
	assert.Equal(t, "Response Z", ResponseLabel(MaxCouncilSize-1))
}

// TestAggregateRankings tests average positions, rounding and tie order.
func TestAggregateRankings(t *testing.T) {
	labels := map[string]string{
		"Response A": "model-a",
		"Response B": "model-b",
		"Response C": "model-c",
	}

	tests := []struct {
		name     string
		rankings [][]string
		want     []domain.AggregateRankingEntry
	}{
		{
			name: "ties keep first-mention order",
			rankings: [][]string{
				{"Response A", "Response B", "Response C"},
				{"Response B", "Response A", "Response C"},
			},
			want: []domain.AggregateRankingEntry{
				{Model: "model-a", AverageRank: 1.5, RankingsCount: 2},
				{Model: "model-b", AverageRank: 1.5, RankingsCount: 2},
				{Model: "model-c", AverageRank: 3, RankingsCount: 2},
			},
		},
		{
			name: "averages round to two decimals",
			rankings: [][]string{
				{"Response C", "Response A"},
				{"Response C", "Response A"},
				{"Response A", "Response C"},
			},
			want: []domain.AggregateRankingEntry{
				{Model: "model-c", AverageRank: 1.33, RankingsCount: 3},
				{Model: "model-a", AverageRank: 1.67, RankingsCount: 3},
			},
		},
		{
			name:     "unknown labels are ignored but keep their position",
			rankings: [][]string{{"Response Z", "Response B"}},
			want: []domain.AggregateRankingEntry{
				{Model: "model-b", AverageRank: 2, RankingsCount: 1},
			},
		},
		{
			name:     "no rankings",
			rankings: [][]string{{}, {}},
			want:     []domain.AggregateRankingEntry{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]domain.Stage2Result, len(tt.rankings))
			for i, r := range tt.rankings {
				results[i] = domain.Stage2Result{Model: "rater", ParsedRanking: r}
			}
			assert.Equal(t, tt.want, AggregateRankings(results, labels))
		})
	}
}

// TestAggregateRankings_RaterOrder tests that reordering raters leaves every
// model's average and count unchanged. Only the order of tied entries may
// differ, since ties follow first mention.
func TestAggregateRankings_RaterOrder(t *testing.T) {
	labels := map[string]string{
		"Response A": "a",
		"Response B": "b",
		"Response C": "c",
	}
	r1 := domain.Stage2Result{Model: "r1", ParsedRanking: []string{"Response A", "Response C", "Response B"}}
	r2 := domain.Stage2Result{Model: "r2", ParsedRanking: []string{"Response C", "Response B", "Response A"}}
	r3 := domain.Stage2Result{Model: "r3", ParsedRanking: []string{"Response B", "Response A"}}

	forward := AggregateRankings([]domain.Stage2Result{r1, r2, r3}, labels)
	reversed := AggregateRankings([]domain.Stage2Result{r3, r2, r1}, labels)

	assert.ElementsMatch(t, forward, reversed)
	assert.Equal(t, []domain.AggregateRankingEntry{
		{Model: "c", AverageRank: 1.5, RankingsCount: 2},
		{Model: "a", AverageRank: 2, RankingsCount: 3},
		{Model: "b", AverageRank: 2, RankingsCount: 3},
	}, forward)
	assert.Equal(t, []domain.AggregateRankingEntry{
		{Model: "c", AverageRank: 1.5, RankingsCount: 2},
		{Model: "b", AverageRank: 2, RankingsCount: 3},
		{Model: "a", AverageRank: 2, RankingsCount: 3},
	}, reversed)
}
