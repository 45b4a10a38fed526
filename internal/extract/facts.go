package extract

import (
	"regexp"
	"unicode/utf8"

	"github.com/companionos/companion/internal/model"
)

const (
	// MaxFactCandidates is how many raw items are examined per extraction.
	MaxFactCandidates = 5
	MaxFactValueLen   = 400
)

var factKeyRx = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// FactRules controls which fact candidates survive validation.
type FactRules struct {
	Threshold   float64
	AllowGlobal bool
}

// AllowedScopes lists the scopes a candidate may target.
func (r FactRules) AllowedScopes() []model.Scope {
	if r.AllowGlobal {
		return []model.Scope{model.ScopeSession, model.ScopeGlobal}
	}
	return []model.Scope{model.ScopeSession}
}

func (r FactRules) allows(s model.Scope) bool {
	for _, a := range r.AllowedScopes() {
		if a == s {
			return true
		}
	}
	return false
}

// FactCandidate is a validated durable fact ready to be upserted.
type FactCandidate struct {
	Scope      model.Scope
	Key        string
	Value      string
	Confidence float64
}

// SummaryPatch is the model's proposed session summary.
type SummaryPatch struct {
	Summary   string
	OpenLoops []string
}

// ValidateFacts reads {"items":[...], "summary_patch":{...}} and returns the
// surviving candidates plus the normalised patch. A nil obj yields nothing.
func ValidateFacts(obj map[string]any, rules FactRules) ([]FactCandidate, SummaryPatch) {
	patch := SummaryPatch{OpenLoops: []string{}}
	if obj == nil {
		return nil, patch
	}

	var accepted []FactCandidate
	for _, it := range Objects(obj["items"], MaxFactCandidates) {
		scope := model.Scope(String(it["scope"]))
		if !rules.allows(scope) {
			continue
		}
		key, ok := it["key"].(string)
		if !ok || !factKeyRx.MatchString(key) {
			continue
		}
		value := String(it["value"])
		if n := utf8.RuneCountInString(value); n < 1 || n > MaxFactValueLen {
			continue
		}
		conf, ok := Float(it["confidence"])
		if !ok {
			conf = 0
		}
		conf = Clamp01(conf)
		if conf < rules.Threshold {
			continue
		}
		accepted = append(accepted, FactCandidate{Scope: scope, Key: key, Value: value, Confidence: conf})
	}

	if sp, ok := obj["summary_patch"].(map[string]any); ok {
		patch.Summary = String(sp["summary"])
		patch.OpenLoops = StringList(sp["open_loops"], model.MaxOpenLoops, 400)
	}
	return accepted, patch
}
