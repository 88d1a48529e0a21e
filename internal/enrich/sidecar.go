package enrich

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sidecar maps normalized route display names to curated relation ids.
type Sidecar map[string]int64

// Lookup normalizes the name (trim, lowercase) before the lookup, matching
// how keys were normalized at load time.
func (s Sidecar) Lookup(name string) (int64, bool) {
	id, ok := s[normalizeKey(name)]
	return id, ok
}

type sidecarRecord struct {
	Name     string `yaml:"name" json:"name"`
	Relation int64  `yaml:"relation" json:"relation"`
}

// LoadSidecar reads the route→relation mapping from a YAML or JSON file.
// Both shapes are accepted: a plain name→id mapping, or an array of
// {name, relation} records. Keys are trimmed and lowercased.
func LoadSidecar(path string) (Sidecar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sidecar: %w", err)
	}

	sc := make(Sidecar)

	var asMap map[string]int64
	if err := yaml.Unmarshal(data, &asMap); err == nil && len(asMap) > 0 {
		for name, id := range asMap {
			sc[normalizeKey(name)] = id
		}
		return sc, nil
	}

	var asRecords []sidecarRecord
	if err := yaml.Unmarshal(data, &asRecords); err != nil {
		return nil, fmt.Errorf("parse sidecar: %w", err)
	}
	for _, rec := range asRecords {
		if rec.Name == "" || rec.Relation == 0 {
			continue
		}
		sc[normalizeKey(rec.Name)] = rec.Relation
	}
	return sc, nil
}

func normalizeKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
