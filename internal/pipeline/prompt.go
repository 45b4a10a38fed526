package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
)

const extractSystem = `You maintain long-term memory for a persona chatbot. Be conservative: writing nothing is better than writing something wrong.
Extract only durable facts or preferences the USER stated about themselves (name, goals, preferences, recurring constraints).
Never store secrets, credentials, health diagnoses or anything the assistant said.
Keys are short snake_case identifiers. Use scope "global" only for facts that hold across every conversation.
Also update the session summary: 2-4 sentences on what the conversation is about, plus open loops (unanswered questions, promised follow-ups).
Return a single JSON object and nothing else.`

const extractSchema = `{
  "items": [
    {"scope": "session|global", "key": "snake_case_key", "value": "string (<=400 chars)", "confidence": 0.0}
  ],
  "summary_patch": {
    "summary": "string",
    "open_loops": ["string"]
  }
}`

// buildExtractPrompt renders the extraction request. Blank messages are skipped.
func buildExtractPrompt(p persona.Persona, summary *model.SessionSummary, recent []*model.Message, allowed []model.Scope) string {
	summaryText, loops := "", []string{}
	if summary != nil {
		summaryText = summary.Summary
		if summary.OpenLoops != nil {
			loops = summary.OpenLoops
		}
	}
	loopsJSON, _ := json.Marshal(loops)
	scopesJSON, _ := json.Marshal(allowed)

	var convo []string
	for _, m := range recent {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if m.Role == model.RoleAssistant {
			convo = append(convo, "ASSISTANT: "+content)
		} else {
			convo = append(convo, "USER: "+content)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MEMORY POLICY:\nenabled=%t\npersona_scope_preference=%s\nallowed_scopes=%s\n\n",
		p.MemoryPolicy.Enabled, p.MemoryScope(), scopesJSON)
	fmt.Fprintf(&b, "CURRENT SESSION SUMMARY (may be empty):\nsummary: %s\nopen_loops_json: %s\n\n", summaryText, loopsJSON)
	fmt.Fprintf(&b, "RECENT CONVERSATION (last %d messages):\n%s\n\n", len(recent), strings.Join(convo, "\n"))
	fmt.Fprintf(&b, "OUTPUT JSON SCHEMA:\n%s", extractSchema)
	return b.String()
}
