package domain

import "encoding/json"

// Stage1Result is one council model's independent answer.
type Stage1Result struct {
	Model     string           `json:"model"`
	Response  string           `json:"response"`
	Usage     Usage            `json:"usage"`
	Cost      float64          `json:"cost"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
}

// Stage2Result is one council model's peer review of the anonymized answers.
type Stage2Result struct {
	Model         string   `json:"model"`
	Ranking       string   `json:"ranking"`
	ParsedRanking []string `json:"parsed_ranking"`
	Usage         Usage    `json:"usage"`
	Cost          float64  `json:"cost"`
}

// Stage3Result is the chairman's synthesis.
type Stage3Result struct {
	Model    string  `json:"model"`
	Response string  `json:"response"`
	Usage    Usage   `json:"usage"`
	Cost     float64 `json:"cost"`
}

// Stage4Result is the chairman's self-reflection on the completed run.
type Stage4Result struct {
	Model                 string  `json:"model"`
	Critique              string  `json:"critique"`
	Comparison            string  `json:"comparison"`
	SuggestedSystemPrompt string  `json:"suggested_system_prompt"`
	SuggestedQuery        string  `json:"suggested_query"`
	RawResponse           string  `json:"raw_response"`
	Usage                 Usage   `json:"usage"`
	Cost                  float64 `json:"cost"`
}

// AggregateRankingEntry is one model's standing across all peer reviews.
type AggregateRankingEntry struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// TurnMetadata accompanies Stage 2 output. A turn that never reached
// Stage 2 has empty metadata, encoded as {}.
type TurnMetadata struct {
	LabelToModel      map[string]string       `json:"label_to_model"`
	AggregateRankings []AggregateRankingEntry `json:"aggregate_rankings"`
}

// MarshalJSON encodes empty metadata as {} and never emits null rankings.
func (m TurnMetadata) MarshalJSON() ([]byte, error) {
	if m.LabelToModel == nil {
		return []byte("{}"), nil
	}
	type plain TurnMetadata
	if m.AggregateRankings == nil {
		m.AggregateRankings = []AggregateRankingEntry{}
	}
	return json.Marshal(plain(m))
}

// CostSummary totals the spend of one turn. All values are USD rounded to six
// decimal places.
type CostSummary struct {
	Stage1  float64            `json:"stage1"`
	Stage2  float64            `json:"stage2"`
	Stage3  float64            `json:"stage3"`
	Stage4  float64            `json:"stage4"`
	Total   float64            `json:"total"`
	ByModel map[string]float64 `json:"by_model"`
}

// PreviousIteration carries the context of an earlier run of the same
// question so the chairman can compare against it.
type PreviousIteration struct {
	Query          string `json:"query,omitempty"`
	SystemPrompt   string `json:"system_prompt,omitempty"`
	Stage3Response string `json:"stage3_response,omitempty"`
	Critique       string `json:"critique,omitempty"`
}

// RunConfig records how a turn was configured.
type RunConfig struct {
	SystemPrompt  string   `json:"system_prompt"`
	CouncilModels []string `json:"council_models"`
	ChairmanModel string   `json:"chairman_model"`
}
