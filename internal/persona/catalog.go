package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

var requiredFields = []string{
	"id", "name", "description", "sliders", "style",
	"memory_policy", "ethical_bounds", "tool_permissions",
}

// Catalog is an ordered, read-only set of personas keyed by id.
type Catalog struct {
	byID  map[string]Persona
	order []string
}

// NewCatalog builds a catalog from in-memory personas. Later duplicates are ignored.
func NewCatalog(personas ...Persona) *Catalog {
	c := &Catalog{byID: make(map[string]Persona)}
	for _, p := range personas {
		c.add(p)
	}
	return c
}

func (c *Catalog) add(p Persona) bool {
	if _, dup := c.byID[p.ID]; dup {
		return false
	}
	c.byID[p.ID] = p
	c.order = append(c.order, p.ID)
	return true
}

// Get returns the persona with id.
func (c *Catalog) Get(id string) (Persona, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// List returns personas in load order.
func (c *Catalog) List() []Persona {
	out := make([]Persona, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// Len reports how many personas are loaded.
func (c *Catalog) Len() int { return len(c.order) }

// LoadDir reads every *.json, *.yaml and *.yml file in dir, in name order.
// Files that fail to parse, miss a required field or repeat an id are skipped
// with a warning. A missing directory yields an empty catalog.
func LoadDir(dir string, log zerolog.Logger) (*Catalog, error) {
	c := NewCatalog()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("dir", dir).Msg("personas directory not found")
			return c, nil
		}
		return nil, fmt.Errorf("read personas dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("failed to read persona")
			continue
		}
		if strings.EqualFold(filepath.Ext(name), ".json") {
			if data, err = jsonToYAML(data); err != nil {
				log.Warn().Err(err).Str("file", name).Msg("skipping invalid persona")
				continue
			}
		}
		p, err := Parse(data)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("skipping invalid persona")
			continue
		}
		if !c.add(p) {
			log.Warn().Str("persona_id", p.ID).Str("file", name).Msg("duplicate persona id, skipping")
		}
	}
	log.Info().Int("count", c.Len()).Str("dir", dir).Msg("personas loaded")
	return c, nil
}

// Parse decodes one persona document (JSON or YAML) and checks required fields.
func Parse(data []byte) (Persona, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Persona{}, fmt.Errorf("decode persona: %w", err)
	}
	var missing []string
	for _, f := range requiredFields {
		if _, ok := raw[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return Persona{}, fmt.Errorf("missing fields: %s", strings.Join(missing, ", "))
	}

	p := defaults()
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Persona{}, fmt.Errorf("decode persona: %w", err)
	}
	if strings.TrimSpace(p.ID) == "" {
		return Persona{}, fmt.Errorf("persona id is empty")
	}
	if !p.MemoryPolicy.Scope.Valid() {
		return Persona{}, fmt.Errorf("invalid memory_policy.scope %q", p.MemoryPolicy.Scope)
	}
	return p, nil
}

// jsonToYAML re-encodes a JSON document as YAML. JSON files indented with tabs
// are not valid YAML block content.
func jsonToYAML(data []byte) ([]byte, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode persona json: %w", err)
	}
	return yaml.Marshal(v)
}
