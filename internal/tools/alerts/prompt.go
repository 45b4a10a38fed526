package alerts

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/companionos/companion/internal/model"
	"github.com/companionos/companion/internal/persona"
	"github.com/companionos/companion/internal/tools"
)

const systemPrompt = `You detect reminder requests in a conversation between a user and an assistant.
Create an alert only when the user clearly asked to be reminded or alerted about something at a specific time.
Resolve relative times ("tomorrow at 9", "in 2 hours") against CURRENT TIME.
Return a single JSON object and nothing else:
{"create":[{"title":"short title","body":"optional details","due_at":"YYYY-MM-DD HH:MM:SS","repeat_rule":null}]}
repeat_rule is null, "DAILY" or "WEEKLY". Return {"create":[]} when there is nothing to create. Never create more than 2 alerts.`

const userTemplate = `CURRENT TIME ({timezone}): {current_time}

PERSONA:
{persona_json}

MEMORY:
{memory_text}

RECENT MESSAGES:
{recent_messages_json}

ASSISTANT FINAL REPLY:
{assistant_final_text}`

const maxPromptMessages = 10

type promptMessage struct {
	Role    model.Role `json:"role"`
	Content string     `json:"content"`
}

func buildUserPrompt(tc tools.Context, now time.Time) string {
	personaJSON, err := json.MarshalIndent(tc.Persona, "", "  ")
	if err != nil {
		personaJSON = []byte("{}")
	}

	recent := tc.Recent
	if len(recent) > maxPromptMessages {
		recent = recent[len(recent)-maxPromptMessages:]
	}
	msgs := make([]promptMessage, 0, len(recent))
	for _, m := range recent {
		if c := strings.TrimSpace(m.Content); c != "" {
			msgs = append(msgs, promptMessage{Role: m.Role, Content: c})
		}
	}
	msgsJSON, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		msgsJSON = []byte("[]")
	}

	r := strings.NewReplacer(
		"{timezone}", now.Location().String(),
		"{current_time}", now.Format("2006-01-02 15:04:05"),
		"{persona_json}", string(personaJSON),
		"{memory_text}", persona.MemoryText(tc.Memory, false),
		"{recent_messages_json}", string(msgsJSON),
		"{assistant_final_text}", strings.TrimSpace(tc.AssistantFinal),
	)
	return r.Replace(userTemplate)
}
