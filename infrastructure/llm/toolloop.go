package llm

import (
	"context"
	"fmt"

	"github.com/ahrav/go-council/internal/domain"
)

const (
	// DefaultMaxToolRounds is the number of tool-bearing requests before the
	// loop forces a tool-less answer.
	DefaultMaxToolRounds = 5
	// DefaultToolResultLimit is the number of characters of a tool result
	// kept in its ToolCallRecord.
	DefaultToolResultLimit = 2000
)

// toolLoop executes tool invocations for one Send call and records them in
// invocation order. It is used by a single goroutine.
type toolLoop struct {
	tools   map[string]domain.ToolDefinition
	limit   int
	records []domain.ToolCallRecord
}

func newToolLoop(defs []domain.ToolDefinition, limit int) *toolLoop {
	tools := make(map[string]domain.ToolDefinition, len(defs))
	for _, d := range defs {
		tools[d.Name] = d
	}
	return &toolLoop{tools: tools, limit: limit}
}

// rounds returns how many tool-bearing requests to issue. Requests without
// tools skip the loop and go straight to the final request.
func (l *toolLoop) rounds(cfg LoopConfig) int {
	if len(l.tools) == 0 {
		return 0
	}
	return cfg.MaxToolRounds
}

// execute runs one tool and returns the full text to feed back to the
// model. Handler errors and panics become error text; they never abort the loop.
func (l *toolLoop) execute(ctx context.Context, name string, args map[string]any) string {
	if args == nil {
		args = map[string]any{}
	}
	result := runTool(ctx, l.tools, name, args)
	l.records = append(l.records, domain.ToolCallRecord{
		ToolName:   name,
		Arguments:  args,
		ResultText: domain.TruncateRunes(result, l.limit),
	})
	return result
}

// calls returns the recorded invocations, or nil when none were made.
func (l *toolLoop) calls() []domain.ToolCallRecord {
	if len(l.records) == 0 {
		return nil
	}
	return l.records
}

func runTool(ctx context.Context, tools map[string]domain.ToolDefinition, name string, args map[string]any) (result string) {
	tool, ok := tools[name]
	if !ok || tool.Handler == nil {
		return fmt.Sprintf("Error: Unknown tool '%s'", name)
	}
	defer func() {
		if r := recover(); r != nil {
			result = fmt.Sprintf("Error executing tool '%s': %v", name, r)
		}
	}()
	out, err := tool.Handler(ctx, args)
	if err != nil {
		return fmt.Sprintf("Error executing tool '%s': %v", name, err)
	}
	return out
}

// toolSchema normalizes a tool's parameter schema into an object schema.
func toolSchema(def domain.ToolDefinition) map[string]any {
	if def.Parameters != nil {
		return def.Parameters
	}
	return map[string]any{"type": "object", "properties": map[string]any{}}
}
