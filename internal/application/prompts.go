package application

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/ahrav/go-council/internal/domain"
)

// Section headers the chairman is asked to use in its self-reflection.
const (
	HeaderCritique              = "CRITIQUE:"
	HeaderComparison            = "COMPARISON:"
	HeaderSuggestedSystemPrompt = "SUGGESTED_SYSTEM_PROMPT:"
	HeaderSuggestedQuery        = "SUGGESTED_QUERY:"
)

// stage1PreviewRunes is how much of each Stage 1 answer the reflection
// prompt quotes.
const stage1PreviewRunes = 200

// promptFuncs are the helpers available to the prompt templates.
var promptFuncs = template.FuncMap{
	// orDefault returns s, or fallback when s is empty.
	"orDefault": func(s, fallback string) string {
		if s == "" {
			return fallback
		}
		return s
	},
	// preview keeps at most n runes of s.
	"preview": func(s string, n int) string {
		return domain.TruncateRunes(s, n)
	},
}

const rankingPromptText = `You are evaluating different responses to the following question:

Question: {{.Query}}

Here are the responses from different models (anonymized):

{{range $i, $r := .Responses}}{{if $i}}

{{end}}{{$r.Label}}:
{{$r.Text}}{{end}}

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`

const synthesisPromptText = `You are the Chairman of an LLM Council. Multiple AI models have provided responses to a user's question, and then ranked each other's responses.

Original Question: {{.Query}}

STAGE 1 - Individual Responses:
{{range $i, $r := .Stage1}}{{if $i}}

{{end}}Model: {{$r.Model}}
Response: {{$r.Response}}{{end}}

STAGE 2 - Peer Rankings:
{{range $i, $r := .Stage2}}{{if $i}}

{{end}}Model: {{$r.Model}}
Ranking: {{$r.Ranking}}{{end}}{{with .Previous}}

PREVIOUS ITERATION CONTEXT:
This is a re-analysis. In the previous iteration:
- Previous Query: {{orDefault .Query "N/A"}}
- Previous System Prompt: {{orDefault .SystemPrompt "None"}}
- Previous Synthesis: {{orDefault .Stage3Response "N/A"}}
- Critique of Previous Analysis: {{orDefault .Critique "N/A"}}

Consider how the current responses compare to the previous iteration. Note improvements or regressions.{{end}}

Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
- The peer rankings and what they reveal about response quality
- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`

const reflectionPromptText = `You are the Chairman of an LLM Council. You just completed a full analysis. Now reflect on how it could be improved.

Original Query: {{.Query}}
System Prompt Used: {{orDefault .SystemPrompt "None"}}

Stage 1 Responses (summarized):
{{range $i, $r := .Stage1}}{{if $i}}
{{end}}- {{$r.Model}}: {{preview $r.Response .PreviewRunes}}...{{end}}

Stage 3 Final Synthesis:
{{.Synthesis}}{{with .Previous}}

PREVIOUS ITERATION:
- Previous Query: {{orDefault .Query "N/A"}}
- Previous System Prompt: {{orDefault .SystemPrompt "None"}}
- Previous Synthesis: {{orDefault .Stage3Response "N/A"}}{{end}}

Provide your self-reflection using EXACTLY these section headers:

CRITIQUE:
What were the weaknesses or gaps in this analysis? What could the council have done better? Be specific and actionable.
{{if .Previous}}
COMPARISON:
How does this iteration compare to the previous one? What improved? What regressed or remained unaddressed?
{{end}}
SUGGESTED_SYSTEM_PROMPT:
Write an improved system prompt that would help the council models produce better responses. If the current system prompt was good, refine it. If none was used, suggest one. Output ONLY the system prompt text.

SUGGESTED_QUERY:
Write an improved version of the user's query that would elicit better responses. Make it more specific, clearer, or better structured. Output ONLY the query text.`

const titlePromptText = `Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: {{.Query}}

Title:`

// OptimizerSystemPrompt instructs the optimizer model to rewrite a prompt.
const OptimizerSystemPrompt = `You are a prompt engineering expert. Your task is to improve the user's prompt to get better responses from an LLM council.

Rewrite the prompt to be:
- More specific and clear
- Well-structured with context
- Explicit about desired format and depth
- Free of ambiguity

Return ONLY the improved prompt text, nothing else. Do not add preamble like "Here's the improved prompt:", just output the prompt itself.`

var (
	rankingPrompt    = template.Must(template.New("ranking").Funcs(promptFuncs).Parse(rankingPromptText))
	synthesisPrompt  = template.Must(template.New("synthesis").Funcs(promptFuncs).Parse(synthesisPromptText))
	reflectionPrompt = template.Must(template.New("reflection").Funcs(promptFuncs).Parse(reflectionPromptText))
	titlePrompt      = template.Must(template.New("title").Funcs(promptFuncs).Parse(titlePromptText))
)

type labeledResponse struct {
	Label string
	Text  string
}

type reflectionStage1 struct {
	Model        string
	Response     string
	PreviewRunes int
}

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}

// buildRankingPrompt renders the Stage 2 peer-review prompt.
func buildRankingPrompt(query string, responses []labeledResponse) (string, error) {
	return render(rankingPrompt, struct {
		Query     string
		Responses []labeledResponse
	}{query, responses})
}

// buildSynthesisPrompt renders the Stage 3 chairman prompt.
func buildSynthesisPrompt(
	query string,
	stage1 []domain.Stage1Result,
	stage2 []domain.Stage2Result,
	previous *domain.PreviousIteration,
) (string, error) {
	return render(synthesisPrompt, struct {
		Query    string
		Stage1   []domain.Stage1Result
		Stage2   []domain.Stage2Result
		Previous *domain.PreviousIteration
	}{query, stage1, stage2, previous})
}

// buildReflectionPrompt renders the Stage 4 self-reflection prompt.
func buildReflectionPrompt(
	query, systemPrompt string,
	stage1 []domain.Stage1Result,
	synthesis string,
	previous *domain.PreviousIteration,
) (string, error) {
	summaries := make([]reflectionStage1, len(stage1))
	for i, r := range stage1 {
		summaries[i] = reflectionStage1{Model: r.Model, Response: r.Response, PreviewRunes: stage1PreviewRunes}
	}
	return render(reflectionPrompt, struct {
		Query        string
		SystemPrompt string
		Stage1       []reflectionStage1
		Synthesis    string
		Previous     *domain.PreviousIteration
	}{query, systemPrompt, summaries, synthesis, previous})
}

func buildTitlePrompt(query string) (string, error) {
	return render(titlePrompt, struct{ Query string }{query})
}

// withAttachedFiles prefixes query with the attached-file block when there
// is any file context.
func withAttachedFiles(query, fileContext string) string {
	if fileContext == "" {
		return query
	}
	return "[ATTACHED FILES]\n" + fileContext + "\n[END ATTACHED FILES]\n\n" + query
}

// withPreviousContext prefixes query with the critique of an earlier run so
// council members can address it.
func withPreviousContext(query string, previous *domain.PreviousIteration) string {
	critique := previous.Critique
	if critique == "" {
		critique = "N/A"
	}
	return fmt.Sprintf(
		"[CONTEXT FROM PREVIOUS ANALYSIS]\nThis is a re-analysis. The previous query was: \"%s\"\nThe chairman's critique of the previous analysis: %s\n[END CONTEXT]\n\n%s",
		previous.Query, critique, query,
	)
}
