// internal/context/engine.go
package context

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/notifyr/internal/types"
	"github.com/user/notifyr/pkg/llm"
)

// Engine assembles token-budgeted prompts for reply generation.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	maxTokens int
	reserve   int
}

// New creates a context engine with the specified token budget.
// model is used to select the appropriate tokenizer (e.g. "gpt-4").
// maxTokens is the model's context window size.
// reserve is the number of tokens to reserve for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	return &Engine{
		tokenizer: enc,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

// countTokens returns the token count for a string.
func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// BuildPrompt assembles a token-budgeted prompt from a conversation's
// message history. The newest messages are kept when the budget runs out;
// the target message always survives trimming since the reply is to it.
func (e *Engine) BuildPrompt(conv *types.Conversation, history []*types.Message, target *types.Message) []llm.Message {
	inputBudget := e.maxTokens - e.reserve

	sysPrompt := buildSystemPrompt(conv)
	remaining := inputBudget - e.countTokens(sysPrompt)

	targetMsg := messageToPrompt(target)
	remaining -= e.countTokens(targetMsg.Content)

	// Walk history newest-first so the freshest context wins the budget,
	// then restore chronological order.
	var kept []llm.Message
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].ID == target.ID {
			continue
		}
		msg := messageToPrompt(history[i])
		cost := e.countTokens(msg.Content)
		if cost > remaining {
			break
		}
		kept = append(kept, msg)
		remaining -= cost
	}

	messages := make([]llm.Message, 0, len(kept)+2)
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	for i := len(kept) - 1; i >= 0; i-- {
		messages = append(messages, kept[i])
	}
	messages = append(messages, targetMsg)
	return messages
}

func buildSystemPrompt(conv *types.Conversation) string {
	return fmt.Sprintf(
		"You draft short chat replies on behalf of the local user in their conversation with %s. "+
			"Reply in the user's voice, matching the tone of the conversation. Output only the reply text.",
		conv.DisplayName,
	)
}

func messageToPrompt(msg *types.Message) llm.Message {
	role := "user"
	if msg.Direction == types.Outgoing {
		role = "assistant"
	}
	return llm.Message{Role: role, Content: msg.Content}
}
