package agent

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed personas.yaml
var defaultPersonas []byte

// LoadDescriptors reads agent personas from path, or the built-in set when
// path is empty. Every agent ID must be described exactly once.
func LoadDescriptors(path string) (map[ID]Descriptor, error) {
	data := defaultPersonas
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read agents file: %w", err)
		}
		data = b
	}

	var doc struct {
		Agents []Descriptor `yaml:"agents"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse agents: %w", err)
	}

	out := make(map[ID]Descriptor, len(doc.Agents))
	for _, d := range doc.Agents {
		id, ok := ParseID(string(d.ID))
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, d.ID)
		}
		if _, dup := out[id]; dup {
			return nil, fmt.Errorf("agent %s described twice", id)
		}
		d.ID = id
		out[id] = d
	}
	for _, id := range IDs {
		if _, ok := out[id]; !ok {
			return nil, fmt.Errorf("agent %s has no description", id)
		}
	}
	return out, nil
}
