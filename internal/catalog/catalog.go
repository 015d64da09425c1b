// Package catalog holds the ordered class labels and the care suggestions
// attached to each of them.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Fallback is returned for labels that have no table entry.
const Fallback = "No specific suggestions available for this class."

//go:embed wounds.yaml
var defaultDocument []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

type document struct {
	Labels      []string            `yaml:"labels"`
	Suggestions map[string][]string `yaml:"suggestions"`
}

// Catalog is immutable once built and safe for concurrent use.
type Catalog struct {
	labels      []string
	suggestions map[string][]string
}

// Default returns the catalog embedded in the binary.
func Default() (*Catalog, error) {
	return Parse(defaultDocument)
}

// Load reads a catalog document from path.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML catalog document. The suggestion table
// must cover exactly the label set, with a non-empty list per label.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	if len(doc.Labels) == 0 {
		return nil, fmt.Errorf("%w: no labels", ErrInvalidCatalog)
	}

	seen := make(map[string]struct{}, len(doc.Labels))
	suggestions := make(map[string][]string, len(doc.Labels))
	for _, label := range doc.Labels {
		if label == "" {
			return nil, fmt.Errorf("%w: empty label", ErrInvalidCatalog)
		}
		if _, dup := seen[label]; dup {
			return nil, fmt.Errorf("%w: duplicate label %q", ErrInvalidCatalog, label)
		}
		seen[label] = struct{}{}

		list := doc.Suggestions[label]
		if len(list) == 0 {
			return nil, fmt.Errorf("%w: no suggestions for %q", ErrInvalidCatalog, label)
		}
		suggestions[label] = append([]string(nil), list...)
	}

	for label := range doc.Suggestions {
		if _, ok := seen[label]; !ok {
			return nil, fmt.Errorf("%w: suggestions for unknown label %q", ErrInvalidCatalog, label)
		}
	}

	return &Catalog{
		labels:      append([]string(nil), doc.Labels...),
		suggestions: suggestions,
	}, nil
}

// Labels returns the class labels in model output order.
func (c *Catalog) Labels() []string {
	return append([]string(nil), c.labels...)
}

func (c *Catalog) Len() int {
	return len(c.labels)
}

// Label maps a model output index to its label.
func (c *Catalog) Label(i int) (string, bool) {
	if i < 0 || i >= len(c.labels) {
		return "", false
	}
	return c.labels[i], true
}

// Suggestions returns the care instructions for label, or a single Fallback
// entry when the label is unknown.
func (c *Catalog) Suggestions(label string) []string {
	list, ok := c.suggestions[label]
	if !ok {
		return []string{Fallback}
	}
	return append([]string(nil), list...)
}
