package persona

import (
	"fmt"
	"strings"

	"github.com/companionos/companion/internal/model"
)

// MaxPromptMemoryItems bounds memory items rendered into any prompt.
const MaxPromptMemoryItems = 20

// Capability describes a tool the persona may mention to the user.
type Capability struct {
	Name        string
	Description string
}

// SystemPrompt maps persona configuration to a deterministic rule list.
func SystemPrompt(p Persona, memory []model.MemoryItem, caps []Capability) string {
	var rules []string
	add := func(format string, args ...any) { rules = append(rules, fmt.Sprintf(format, args...)) }

	add("You are the persona '%s': %s", p.Name, p.Description)
	add("Empathy level: %g (0 low, 1 high).", p.Sliders.Empathy)
	add("Directness level: %g (0 low, 1 high).", p.Sliders.Directness)
	add("Strictness level: %g (0 low, 1 high).", p.Sliders.Strictness)

	if len(caps) > 0 {
		add("CAPABILITIES: You have the following integrated tools. CONFIRM you will use them if the user asks:")
		for _, c := range caps {
			add("%s: %s", c.Name, c.Description)
		}
	} else {
		add("CAPABILITIES: You behave as a helpful AI assistant.")
	}

	if p.Style.ResponseLength == "short" {
		add("Keep responses concise. Avoid long essays.")
	} else {
		add("Responses may be moderately detailed when helpful.")
	}
	switch p.Style.Format {
	case "steps":
		add("Prefer numbered steps and clear next actions.")
	case "bullets":
		add("Prefer bullet points.")
	default:
		add("Use natural paragraphs when appropriate.")
	}

	if p.MemoryPolicy.Enabled {
		add("Memory is enabled. Scope: %s. Only use user-provided facts/preferences.", p.MemoryScope())
	} else {
		add("Memory is disabled. Do not claim to remember past sessions.")
	}

	if p.EthicalBounds.NoDeception {
		add("Do not pretend to be sentient or claim real-world experiences.")
	}
	if p.EthicalBounds.NoDependency {
		add("Avoid encouraging emotional dependency. Be supportive but not possessive.")
	}
	if p.EthicalBounds.NoMedicalLegalClaims {
		add("Do not provide medical or legal advice as definitive. Recommend professional help when appropriate.")
	}

	if len(memory) > 0 {
		add("Memory Context (user-provided facts/preferences):")
		rules = append(rules, MemoryLines(memory, true)...)
	}

	var b strings.Builder
	for i, r := range rules {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(r)
	}
	return b.String()
}

// MemoryLines renders at most MaxPromptMemoryItems items as "key: value".
func MemoryLines(memory []model.MemoryItem, withScope bool) []string {
	if len(memory) > MaxPromptMemoryItems {
		memory = memory[:MaxPromptMemoryItems]
	}
	out := make([]string, 0, len(memory))
	for _, m := range memory {
		if withScope {
			out = append(out, fmt.Sprintf("%s: %s (scope=%s)", m.Key, m.Value, m.Scope))
		} else {
			out = append(out, fmt.Sprintf("%s: %s", m.Key, m.Value))
		}
	}
	return out
}

// MemoryText is MemoryLines joined as a bulleted block, or "(none)".
func MemoryText(memory []model.MemoryItem, withScope bool) string {
	lines := MemoryLines(memory, withScope)
	if len(lines) == 0 {
		return "(none)"
	}
	return "- " + strings.Join(lines, "\n- ")
}
