package unlock

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Tool is one unlockable catalog entry.
type Tool struct {
	Name          string `yaml:"-"`
	Label         string `yaml:"label"`
	Cost          int    `yaml:"cost"`
	Description   string `yaml:"description,omitempty"`
	Priority      int    `yaml:"priority,omitempty"` // lower sorts first
	UnlockMessage string `yaml:"unlock_message,omitempty"`
}

// Catalog is the set of tools that can be unlocked with credits.
type Catalog struct {
	Tools map[string]Tool `yaml:"tools"`
}

// Validate checks every entry and fills derived fields.
func (c *Catalog) Validate() error {
	if len(c.Tools) == 0 {
		return fmt.Errorf("catalog defines no tools")
	}
	for name, tool := range c.Tools {
		if name == "" {
			return fmt.Errorf("catalog contains a tool with an empty name")
		}
		if tool.Cost < 0 {
			return fmt.Errorf("tool '%s': cost must be >= 0, got %d", name, tool.Cost)
		}
		tool.Name = name
		if tool.Label == "" {
			tool.Label = name
		}
		c.Tools[name] = tool
	}
	return nil
}

// Lookup returns the named tool.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	t, ok := c.Tools[name]
	return t, ok
}

// Sorted returns the tools ordered by priority, then name.
func (c *Catalog) Sorted() []Tool {
	out := make([]Tool, 0, len(c.Tools))
	for _, t := range c.Tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// LoadCatalog reads and validates a catalog YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog YAML: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid catalog: %w", err)
	}
	return &c, nil
}
