// Package llmgen adapts an llm.Provider into the core's Generator interface,
// using the context engine to fit conversation history into the model's
// token budget.
package llmgen

import (
	"context"
	"fmt"
	"strings"

	ctxengine "github.com/user/notifyr/internal/context"
	"github.com/user/notifyr/internal/types"
	"github.com/user/notifyr/pkg/llm"
)

// Generator produces reply text through an LLM provider.
type Generator struct {
	provider llm.Provider
	engine   *ctxengine.Engine
}

// New creates a Generator over the given provider and context engine.
func New(provider llm.Provider, engine *ctxengine.Engine) *Generator {
	return &Generator{provider: provider, engine: engine}
}

// Generate builds a budgeted prompt from the conversation and asks the
// provider for a completion.
func (g *Generator) Generate(ctx context.Context, conv *types.Conversation, history []*types.Message, target *types.Message) (string, error) {
	messages := g.engine.BuildPrompt(conv, history, target)
	resp, err := g.provider.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("complete: %w", err)
	}
	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return "", fmt.Errorf("provider returned empty reply")
	}
	return text, nil
}
