package summary

import (
	"fmt"

	"github.com/Aman-CERP/onedesk/internal/llm"
)

const systemPrompt = `You are an expert meeting summarizer. Create concise, structured summaries of meeting transcripts.

SUMMARY FORMAT:
## Meeting Overview
[Brief 1-2 sentence overview]

## Key Discussions
[Main topics and decisions, bullet points]

## Action Items
[Who needs to do what, with deadlines if mentioned]

## Next Steps
[Follow-up meetings, decisions needed, etc.]

Keep summaries professional, actionable, and well-organized.`

func buildMessages(text, title string) []llm.Message {
	user := fmt.Sprintf(`Meeting Title: %s

Meeting Content:
%s

Please provide a structured summary following the format above.`, title, text)
	return []llm.Message{llm.System(systemPrompt), llm.User(user)}
}
