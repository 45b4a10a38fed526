// Package persona loads the read-only persona catalog and renders persona rules
// into a system prompt.
package persona

import "github.com/companionos/companion/internal/model"

// Sliders are 0..1 behavioural dials.
type Sliders struct {
	Empathy    float64 `yaml:"empathy" json:"empathy"`
	Directness float64 `yaml:"directness" json:"directness"`
	Strictness float64 `yaml:"strictness" json:"strictness"`
}

// Style preferences. ResponseLength is short|long, Format is freeform|steps|bullets.
type Style struct {
	ResponseLength string `yaml:"response_length" json:"responseLength"`
	Format         string `yaml:"format" json:"format"`
}

// MemoryPolicy gates the memory read path and pipeline writes.
type MemoryPolicy struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Scope   model.Scope `yaml:"scope" json:"scope"`
}

type EthicalBounds struct {
	NoDeception          bool `yaml:"no_deception" json:"noDeception"`
	NoDependency         bool `yaml:"no_dependency" json:"noDependency"`
	NoMedicalLegalClaims bool `yaml:"no_medical_legal_claims" json:"noMedicalLegalClaims"`
}

// Persona is immutable configuration; the turn pipeline only reads it.
type Persona struct {
	ID              string        `yaml:"id" json:"id"`
	Name            string        `yaml:"name" json:"name"`
	Description     string        `yaml:"description" json:"description"`
	Sliders         Sliders       `yaml:"sliders" json:"sliders"`
	Style           Style         `yaml:"style" json:"style"`
	MemoryPolicy    MemoryPolicy  `yaml:"memory_policy" json:"memoryPolicy"`
	EthicalBounds   EthicalBounds `yaml:"ethical_bounds" json:"ethicalBounds"`
	ToolPermissions []string      `yaml:"tool_permissions" json:"toolPermissions"`
}

// defaults are applied before decoding so absent fields keep them.
func defaults() Persona {
	return Persona{
		Sliders:       Sliders{Empathy: 0.5, Directness: 0.5, Strictness: 0.5},
		Style:         Style{ResponseLength: "short", Format: "freeform"},
		MemoryPolicy:  MemoryPolicy{Scope: model.ScopeSession},
		EthicalBounds: EthicalBounds{NoDeception: true, NoDependency: true, NoMedicalLegalClaims: true},
	}
}

// MemoryScope returns the persona's preferred scope, defaulting to session.
func (p Persona) MemoryScope() model.Scope {
	if p.MemoryPolicy.Scope == model.ScopeGlobal {
		return model.ScopeGlobal
	}
	return model.ScopeSession
}
