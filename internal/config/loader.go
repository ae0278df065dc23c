package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"slices"

	"rent360_assistant/pkg"

	"gopkg.in/yaml.v3"
)

//go:embed data/*.yaml
var embedded embed.FS

// ErrInvalidCatalog is wrapped by every consistency failure
var ErrInvalidCatalog = errors.New("invalid catalog")

// Default loads the catalog bundled with the binary
func Default() (*Catalog, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, fmt.Errorf("error opening embedded catalog: %w", err)
	}
	return Load(sub)
}

// LoadDir loads the catalog from a directory, or the embedded one when dir is empty
func LoadDir(dir string) (*Catalog, error) {
	if dir == "" {
		return Default()
	}
	return Load(os.DirFS(dir))
}

// Load reads, compiles and validates every catalog file found in fsys
func Load(fsys fs.FS) (*Catalog, error) {
	var intents struct {
		Intents []IntentRule `yaml:"intents"`
	}
	catalog := &Catalog{}

	files := []struct {
		name string
		dest any
	}{
		{"intents.yaml", &intents},
		{"security.yaml", &catalog.Security},
		{"knowledge.yaml", &catalog.Knowledge},
		{"agents.yaml", &catalog.Agents},
		{"dataset.yaml", &catalog.Dataset},
		{"lexicon.yaml", &catalog.Lexicon},
	}
	for _, file := range files {
		if err := readYAML(fsys, file.name, file.dest); err != nil {
			return nil, err
		}
	}
	catalog.Intents = intents.Intents

	if err := catalog.compile(); err != nil {
		return nil, err
	}
	if err := catalog.Validate(); err != nil {
		return nil, err
	}
	return catalog, nil
}

func readYAML(fsys fs.FS, name string, dest any) error {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("error reading catalog file %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("error parsing %s: %w", name, err)
	}
	return nil
}

// compile turns every pattern string into a regexp
func (c *Catalog) compile() error {
	for i := range c.Intents {
		rule := &c.Intents[i]
		matchers, err := compileAll(rule.Patterns, false)
		if err != nil {
			return fmt.Errorf("intent %q: %w", rule.Name, err)
		}
		rule.Matchers = matchers
		for j := range rule.SubIntents {
			sub := &rule.SubIntents[j]
			if sub.Matchers, err = compileAll(sub.Patterns, false); err != nil {
				return fmt.Errorf("sub-intent %s/%s: %w", rule.Name, sub.Name, err)
			}
		}
	}

	lex := &c.Lexicon
	var err error
	for i := range lex.Sentiment {
		family := &lex.Sentiment[i]
		if family.Matchers, err = compileAll(family.Patterns, false); err != nil {
			return fmt.Errorf("sentiment family %q: %w", family.Family, err)
		}
	}
	for i := range lex.Roles {
		mention := &lex.Roles[i]
		if mention.Matchers, err = compileAll(mention.Patterns, true); err != nil {
			return fmt.Errorf("role mention %q: %w", mention.Role, err)
		}
	}
	if lex.AmountMatchers, err = compileAll(lex.Amounts, false); err != nil {
		return fmt.Errorf("amount patterns: %w", err)
	}
	return nil
}

func compileAll(patterns []string, bounded bool) ([]*regexp.Regexp, error) {
	matchers := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		if bounded {
			pattern = WordBounded(pattern)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidCatalog, pattern, err)
		}
		matchers = append(matchers, re)
	}
	return matchers, nil
}

// WordBounded wraps pattern so it only matches whole words, treating
// accented letters as word characters. The match is capture group 1.
func WordBounded(pattern string) string {
	return `(?:^|[^\p{L}\p{N}])(` + pattern + `)(?:[^\p{L}\p{N}]|$)`
}

// Validate checks cross-table consistency
func (c *Catalog) Validate() error {
	if len(c.Intents) == 0 {
		return fmt.Errorf("%w: no intents declared", ErrInvalidCatalog)
	}

	seen := make(map[string]bool, len(c.Intents))
	for _, rule := range c.Intents {
		if rule.Name == "" {
			return fmt.Errorf("%w: intent without name", ErrInvalidCatalog)
		}
		if seen[rule.Name] {
			return fmt.Errorf("%w: duplicate intent %q", ErrInvalidCatalog, rule.Name)
		}
		seen[rule.Name] = true
		if rule.Weight < 0 || rule.Weight > 1 {
			return fmt.Errorf("%w: intent %q weight %.2f out of range", ErrInvalidCatalog, rule.Name, rule.Weight)
		}
		if len(rule.Matchers) == 0 {
			return fmt.Errorf("%w: intent %q has no patterns", ErrInvalidCatalog, rule.Name)
		}

		// An intent that is on-topic for a role must not be a topic the role is denied.
		for _, role := range rule.Roles {
			profile := c.Security.Profile(pkg.NormalizeRole(role))
			if slices.Contains(profile.Restricted, rule.Topic) {
				return fmt.Errorf("%w: intent %q is relevant for %s but topic %q is restricted",
					ErrInvalidCatalog, rule.Name, role, rule.Topic)
			}
		}
	}

	for intent := range c.Knowledge.Entries {
		if !seen[intent] {
			return fmt.Errorf("%w: knowledge entry for unknown intent %q", ErrInvalidCatalog, intent)
		}
	}

	if _, ok := c.Agents.Find(c.Agents.DefaultAgent); !ok {
		return fmt.Errorf("%w: default agent %q not in registry", ErrInvalidCatalog, c.Agents.DefaultAgent)
	}
	if _, ok := c.Agents.Find(c.Agents.MaintenanceAgent); !ok {
		return fmt.Errorf("%w: maintenance agent %q not in registry", ErrInvalidCatalog, c.Agents.MaintenanceAgent)
	}
	for role, ids := range c.Agents.RoleAgents {
		for _, id := range ids {
			if _, ok := c.Agents.Find(id); !ok {
				return fmt.Errorf("%w: role %s references unknown agent %q", ErrInvalidCatalog, role, id)
			}
		}
	}

	for role, category := range c.Dataset.RoleCategories {
		if _, ok := c.Dataset.Category(category); !ok {
			return fmt.Errorf("%w: role %s maps to unknown dataset category %q", ErrInvalidCatalog, role, category)
		}
	}
	if c.Dataset.GeneralCategory != "" {
		if _, ok := c.Dataset.Category(c.Dataset.GeneralCategory); !ok {
			return fmt.Errorf("%w: unknown general category %q", ErrInvalidCatalog, c.Dataset.GeneralCategory)
		}
	}
	return nil
}

// IntentByName returns the rule declared under name
func (c *Catalog) IntentByName(name string) (IntentRule, bool) {
	for _, rule := range c.Intents {
		if rule.Name == name {
			return rule, true
		}
	}
	return IntentRule{}, false
}
