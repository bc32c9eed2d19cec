// Command council-ask runs one question through the council and writes the
// full result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahrav/go-council/infrastructure/llm"
	"github.com/ahrav/go-council/internal/application"
	"github.com/ahrav/go-council/internal/config"
	"github.com/ahrav/go-council/internal/domain"
	"github.com/ahrav/go-council/internal/observability"
)

func main() {
	var (
		question     = flag.String("question", "", "Question to put to the council")
		models       = flag.String("models", "", "Comma-separated council models (default from council config)")
		chairman     = flag.String("chairman", "", "Chairman model (default from council config)")
		systemPrompt = flag.String("system-prompt", "", "System prompt for Stage 1")
		effort       = flag.String("reasoning-effort", "", "Reasoning effort: off, low, medium, high")
		outputPath   = flag.String("output", "council_result.json", "Output file path")
		timeout      = flag.Duration("timeout", 10*time.Minute, "Overall run timeout")
	)
	flag.Parse()

	if strings.TrimSpace(*question) == "" {
		log.Fatal("-question is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	observability.InitLogger(cfg.LogLevel, true)

	councilCfg := application.DefaultCouncilConfig()
	if cfg.CouncilConfig != "" {
		if councilCfg, err = application.LoadCouncilConfig(cfg.CouncilConfig); err != nil {
			log.Fatalf("Failed to load council config: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	router, err := llm.NewRouter(ctx, llm.RouterConfig{
		OpenAI:    llm.ClientConfig{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL},
		Anthropic: llm.ClientConfig{APIKey: cfg.AnthropicAPIKey, BaseURL: cfg.AnthropicBaseURL},
		Google: llm.ClientConfig{
			APIKey:      cfg.GoogleAPIKey,
			BaseURL:     cfg.GoogleBaseURL,
			UseVertexAI: cfg.UseVertexAI,
			Project:     cfg.GCPProject,
			Location:    cfg.GCPLocation,
		},
		Loop:   llm.LoopConfig{MaxToolRounds: councilCfg.MaxToolRounds, ToolResultLimit: councilCfg.ToolResultLimit},
		Logger: observability.GetLogger(),
	})
	if err != nil {
		log.Fatalf("Failed to build providers: %v", err)
	}

	in := application.RunInput{
		Query:           *question,
		CouncilModels:   councilCfg.DefaultCouncilModels,
		ChairmanModel:   councilCfg.DefaultChairmanModel,
		SystemPrompt:    *systemPrompt,
		ReasoningEffort: domain.ReasoningEffort(*effort),
	}
	if *models != "" {
		in.CouncilModels = strings.Split(*models, ",")
	}
	if *chairman != "" {
		in.ChairmanModel = *chairman
	}

	council := application.NewCouncil(router, councilCfg, application.WithLogger(observability.GetLogger()))
	result, err := council.Run(ctx, in)
	if err != nil {
		log.Fatalf("Council run failed: %v", err)
	}

	if err := saveResult(result, *outputPath); err != nil {
		log.Fatalf("Failed to save result: %v", err)
	}

	fmt.Printf("Council result:\n")
	fmt.Printf("- Path: %s\n", *outputPath)
	fmt.Printf("- Answers: %d of %d models\n", len(result.Stage1), len(in.CouncilModels))
	fmt.Printf("- Rankings: %d\n", len(result.Stage2))
	if len(result.Metadata.AggregateRankings) > 0 {
		top := result.Metadata.AggregateRankings[0]
		fmt.Printf("- Top ranked: %s (%.2f)\n", top.Model, top.AverageRank)
	}
	if result.CostSummary != nil {
		fmt.Printf("- Total cost: $%.6f\n", result.CostSummary.Total)
	}
	fmt.Printf("\n%s\n", result.Stage3.Response)
}

func saveResult(result *application.RunResult, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
