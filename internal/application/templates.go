package application

import (
	_ "embed"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-council/internal/domain"
)

//go:embed templates.yaml
var templatesYAML []byte

var placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// TemplateField is one configurable placeholder of a system-prompt template.
type TemplateField struct {
	ID      string   `yaml:"id" json:"id"`
	Label   string   `yaml:"label" json:"label"`
	Type    string   `yaml:"type" json:"type"`
	Options []string `yaml:"options" json:"options"`
	Default string   `yaml:"default" json:"default"`
}

// PromptTemplate is a reusable system prompt with {{field}} placeholders.
type PromptTemplate struct {
	ID                 string          `yaml:"id" json:"id"`
	Name               string          `yaml:"name" json:"name"`
	Description        string          `yaml:"description" json:"description"`
	SystemPrompt       string          `yaml:"system_prompt" json:"system_prompt"`
	ConfigurableFields []TemplateField `yaml:"configurable_fields" json:"configurable_fields"`
}

// TemplateCatalog is the immutable set of system-prompt templates.
type TemplateCatalog struct {
	templates []PromptTemplate
	byID      map[string]int
}

// NewTemplateCatalog parses a YAML list of templates.
func NewTemplateCatalog(data []byte) (*TemplateCatalog, error) {
	var templates []PromptTemplate
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	c := &TemplateCatalog{templates: templates, byID: make(map[string]int, len(templates))}
	for i, t := range templates {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: template %d has no id", domain.ErrInvalidConfiguration, i)
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate template id %q", domain.ErrInvalidConfiguration, t.ID)
		}
		if c.templates[i].ConfigurableFields == nil {
			c.templates[i].ConfigurableFields = []TemplateField{}
		}
		c.byID[t.ID] = i
	}
	return c, nil
}

// DefaultTemplateCatalog returns the built-in templates.
func DefaultTemplateCatalog() *TemplateCatalog {
	c, err := NewTemplateCatalog(templatesYAML)
	if err != nil {
		panic(err)
	}
	return c
}

// List returns every template in catalog order.
func (c *TemplateCatalog) List() []PromptTemplate {
	return append([]PromptTemplate(nil), c.templates...)
}

// Get returns the template with id.
func (c *TemplateCatalog) Get(id string) (PromptTemplate, bool) {
	i, ok := c.byID[id]
	if !ok {
		return PromptTemplate{}, false
	}
	return c.templates[i], true
}

// Render fills a template's placeholders with values merged over the field
// defaults. Placeholders with no value are left as written. An unknown id
// returns domain.ErrUnknownTemplate.
func (c *TemplateCatalog) Render(id string, values map[string]string) (string, error) {
	t, ok := c.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTemplate, id)
	}
	if t.SystemPrompt == "" {
		return "", nil
	}

	merged := make(map[string]string, len(t.ConfigurableFields)+len(values))
	for _, f := range t.ConfigurableFields {
		merged[f.ID] = f.Default
	}
	for k, v := range values {
		merged[k] = v
	}

	return placeholderPattern.ReplaceAllStringFunc(t.SystemPrompt, func(m string) string {
		key := placeholderPattern.FindStringSubmatch(m)[1]
		if v, ok := merged[key]; ok {
			return v
		}
		return m
	}), nil
}
