package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// ParseSchema decodes schema entries keyed by template name. Comments and
// trailing commas are allowed.
func ParseSchema(data []byte) (map[string]*Entry, error) {
	standard, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid schema document: %w", err)
	}
	entries := map[string]*Entry{}
	if err := json.Unmarshal(standard, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode schema: %w", err)
	}
	for name, entry := range entries {
		if entry == nil {
			return nil, fmt.Errorf("schema entry %s is empty", name)
		}
	}
	return entries, nil
}

// LoadSchemaFile reads a schema document from path.
func LoadSchemaFile(path string) (map[string]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
	}
	return ParseSchema(data)
}
