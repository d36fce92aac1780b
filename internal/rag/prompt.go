package rag

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/onedesk/internal/llm"
	"github.com/Aman-CERP/onedesk/internal/store"
)

const systemPrompt = `You are an HR assistant helping employees with policy questions.

INSTRUCTIONS:
1. Answer questions using ONLY the provided context from HR policies
2. If the answer is not in the context, say "I don't have that information in the available HR policies"
3. Be specific and cite relevant policy sections when possible
4. Keep answers concise but complete
5. If multiple contexts are relevant, synthesize information appropriately

IMPORTANT: Do not make up information not present in the contexts.`

// buildMessages labels each context with its position and source.
func buildMessages(query string, contexts []store.Result) []llm.Message {
	parts := make([]string, len(contexts))
	for i, c := range contexts {
		parts[i] = fmt.Sprintf("[Context %d - %s]:\n%s", i+1, c.Meta.Source, c.Text)
	}

	user := fmt.Sprintf(`Question: %s

Available Context:
%s

Please provide a clear, helpful answer based on the context above.`, query, strings.Join(parts, "\n\n"))

	return []llm.Message{llm.System(systemPrompt), llm.User(user)}
}
