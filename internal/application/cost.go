package application

import (
	"math"

	"github.com/ahrav/go-council/internal/domain"
)

// SummarizeCost totals the spend of a turn per stage and per model. The
// chairman is charged for Stages 3 and 4 on top of any council spend.
// All values are rounded to six decimal places.
func SummarizeCost(
	stage1 []domain.Stage1Result,
	stage2 []domain.Stage2Result,
	stage3 domain.Stage3Result,
	stage4 *domain.Stage4Result,
	chairman string,
) domain.CostSummary {
	byModel := make(map[string]float64)

	var s1, s2 float64
	for _, r := range stage1 {
		s1 += r.Cost
		byModel[r.Model] += r.Cost
	}
	for _, r := range stage2 {
		s2 += r.Cost
		byModel[r.Model] += r.Cost
	}
	s3 := stage3.Cost
	var s4 float64
	if stage4 != nil {
		s4 = stage4.Cost
	}
	byModel[chairman] += s3 + s4

	for m, c := range byModel {
		byModel[m] = roundUSD(c)
	}
	return domain.CostSummary{
		Stage1:  roundUSD(s1),
		Stage2:  roundUSD(s2),
		Stage3:  roundUSD(s3),
		Stage4:  roundUSD(s4),
		Total:   roundUSD(s1 + s2 + s3 + s4),
		ByModel: byModel,
	}
}

func roundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
