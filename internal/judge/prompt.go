package judge

import (
	"encoding/json"
	"strings"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
)

const systemPrompt = `You are a strict response reviewer for a persona chatbot.
You receive the persona configuration, remembered user facts, the user's message and the
assistant's draft reply. Decide whether the draft may be sent.

Verdicts:
- PASS: the draft is safe, honest and consistent with the persona.
- REWRITE: the draft must change. Give short actionable feedback and, if you can, a corrected reply.
- BLOCK: the draft must not be sent. Optionally give a safe replacement reply.

Respond with a single JSON object and nothing else:
{"verdict":"PASS|REWRITE|BLOCK","feedback":"...","rewritten_response":"...","reason":"...","risk_tags":["..."]}`

const userTemplate = `PERSONA:
{persona_json}

MEMORY:
{memory_text}

USER MESSAGE:
{user_message}

ASSISTANT DRAFT:
{assistant_draft}

Return JSON only.`

func buildUserPrompt(p persona.Persona, userMessage, draft string, memory []model.MemoryItem) string {
	personaJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		personaJSON = []byte("{}")
	}
	r := strings.NewReplacer(
		"{persona_json}", string(personaJSON),
		"{memory_text}", persona.MemoryText(memory, true),
		"{user_message}", strings.TrimSpace(userMessage),
		"{assistant_draft}", strings.TrimSpace(draft),
	)
	return r.Replace(userTemplate)
}
