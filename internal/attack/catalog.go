package attack

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog holds the loaded attack definitions in file order. Loaded
// once per run; read-only afterwards.
type Catalog struct {
	byID    map[string]Definition
	ordered []Definition
}

func NewCatalog() *Catalog {
	return &Catalog{byID: make(map[string]Definition)}
}

type attackFile struct {
	Attacks []attackRecord `yaml:"attacks"`
}

type attackRecord struct {
	ID                string              `yaml:"id"`
	Name              string              `yaml:"name"`
	Description       string              `yaml:"description"`
	Category          string              `yaml:"category"`
	Complexity        string              `yaml:"complexity"`
	PromptTemplate    string              `yaml:"prompt_template"`
	SystemPrompt      string              `yaml:"system_prompt"`
	TurnTemplates     []string            `yaml:"turn_templates"`
	Parameters        map[string][]string `yaml:"parameters"`
	SuccessIndicators []string            `yaml:"success_indicators"`
	FailureIndicators []string            `yaml:"failure_indicators"`
	ComplianceTags    []string            `yaml:"compliance_tags"`
}

// LoadFile parses one YAML attack file and adds its definitions.
func (c *Catalog) LoadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read attack file: %w", err)
	}
	var file attackFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse attack file %s: %w", path, err)
	}
	for _, rec := range file.Attacks {
		def, err := rec.toDefinition()
		if err != nil {
			return fmt.Errorf("attack file %s: %w", path, err)
		}
		if err := c.Add(def); err != nil {
			return fmt.Errorf("attack file %s: %w", path, err)
		}
	}
	return nil
}

// LoadDir walks a directory tree and loads every .yaml/.yml file.
func (c *Catalog) LoadDir(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		return c.LoadFile(path)
	})
}

func (rec attackRecord) toDefinition() (Definition, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return Definition{}, fmt.Errorf("attack %q has no id", rec.Name)
	}
	if strings.TrimSpace(rec.PromptTemplate) == "" {
		// Multi-turn attacks may omit prompt_template; the first
		// turn is the canonical prompt.
		if len(rec.TurnTemplates) == 0 {
			return Definition{}, fmt.Errorf("attack %q is missing prompt_template", rec.ID)
		}
		rec.PromptTemplate = rec.TurnTemplates[0]
	}
	category, err := ParseCategory(rec.Category)
	if err != nil {
		return Definition{}, fmt.Errorf("attack %q: %w", rec.ID, err)
	}
	complexity, err := ParseComplexity(rec.Complexity)
	if err != nil {
		return Definition{}, fmt.Errorf("attack %q: %w", rec.ID, err)
	}
	return Definition{
		ID:                rec.ID,
		Name:              rec.Name,
		Description:       rec.Description,
		Category:          category,
		Complexity:        complexity,
		PromptTemplate:    rec.PromptTemplate,
		SystemPrompt:      rec.SystemPrompt,
		TurnTemplates:     rec.TurnTemplates,
		Parameters:        rec.Parameters,
		SuccessIndicators: rec.SuccessIndicators,
		FailureIndicators: rec.FailureIndicators,
		ComplianceTags:    rec.ComplianceTags,
	}, nil
}

func (c *Catalog) Add(def Definition) error {
	if _, exists := c.byID[def.ID]; exists {
		return fmt.Errorf("duplicate attack id %q", def.ID)
	}
	c.byID[def.ID] = def
	c.ordered = append(c.ordered, def)
	return nil
}

func (c *Catalog) Get(id string) (Definition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// All returns definitions in load order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

func (c *Catalog) Len() int { return len(c.ordered) }

// Filter returns the definitions whose category and complexity are
// both in the requested sets, preserving load order. Empty sets match
// nothing; a nil set matches everything of that dimension.
func (c *Catalog) Filter(categories []Category, complexities []Complexity) []Definition {
	catSet := make(map[Category]bool, len(categories))
	for _, cat := range categories {
		catSet[cat] = true
	}
	compSet := make(map[Complexity]bool, len(complexities))
	for _, comp := range complexities {
		compSet[comp] = true
	}
	var out []Definition
	for _, def := range c.ordered {
		if categories != nil && !catSet[def.Category] {
			continue
		}
		if complexities != nil && !compSet[def.Complexity] {
			continue
		}
		out = append(out, def)
	}
	return out
}
