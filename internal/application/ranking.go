package application

import (
	"math"
	"regexp"
	"slices"
	"strings"

	"github.com/ahrav/go-council/internal/domain"
)

// FinalRankingMarker introduces the ordered list at the end of a peer review.
const FinalRankingMarker = "FINAL RANKING:"

// MaxCouncilSize is the number of distinct single-letter labels.
const MaxCouncilSize = 26

var (
	numberedLabelPattern = regexp.MustCompile(`\d+\.\s*Response [A-Z]`)
	labelPattern         = regexp.MustCompile(`Response [A-Z]`)
)

// ResponseLabel returns the anonymized label of the i-th Stage 1 answer:
// "Response A", "Response B", and so on.
func ResponseLabel(i int) string {
	return "Response " + string(rune('A'+i))
}

// ParseRanking extracts the ordered labels from one peer review.
//
// Text after the first FINAL RANKING: marker is searched for numbered
// entries ("1. Response C"); if there are none, any labels after the marker
// are taken in order. Without the marker every label in the text is taken.
// Labels are not deduplicated and the result may be empty.
func ParseRanking(text string) []string {
	if _, after, found := strings.Cut(text, FinalRankingMarker); found {
		if numbered := numberedLabelPattern.FindAllString(after, -1); len(numbered) > 0 {
			labels := make([]string, len(numbered))
			for i, m := range numbered {
				labels[i] = labelPattern.FindString(m)
			}
			return labels
		}
		return nonNil(labelPattern.FindAllString(after, -1))
	}
	return nonNil(labelPattern.FindAllString(text, -1))
}

// AggregateRankings averages each model's 1-based position across every
// parsed ranking. Labels that do not resolve through labelToModel are
// ignored, and models no rater mentioned are omitted. The result is sorted
// by average rank, best first; ties keep first-mention order.
func AggregateRankings(results []domain.Stage2Result, labelToModel map[string]string) []domain.AggregateRankingEntry {
	positions := make(map[string][]int)
	var order []string

	for _, r := range results {
		for i, label := range r.ParsedRanking {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			if _, seen := positions[model]; !seen {
				order = append(order, model)
			}
			positions[model] = append(positions[model], i+1)
		}
	}

	aggregate := make([]domain.AggregateRankingEntry, 0, len(order))
	for _, model := range order {
		ranks := positions[model]
		sum := 0
		for _, p := range ranks {
			sum += p
		}
		aggregate = append(aggregate, domain.AggregateRankingEntry{
			Model:         model,
			AverageRank:   math.Round(float64(sum)/float64(len(ranks))*100) / 100,
			RankingsCount: len(ranks),
		})
	}

	// Stable so tied models stay in first-mention order.
	slices.SortStableFunc(aggregate, func(a, b domain.AggregateRankingEntry) int {
		switch {
		case a.AverageRank < b.AverageRank:
			return -1
		case a.AverageRank > b.AverageRank:
			return 1
		}
		return 0
	})
	return aggregate
}

func nonNil(labels []string) []string {
	if labels == nil {
		return []string{}
	}
	return labels
}
