// ABOUTME: Skill catalog loaded from embedded YAML into one global total order
// ABOUTME: Provides ordinal, successor, and label lookups plus per-skill prompt banks
package catalog

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/harper/sitjournal/internal/models"
)

//go:embed skills.yaml
var skillsYAML []byte

//go:embed prompts.yaml
var promptsYAML []byte

// PromptBank holds the reflection prompts for one skill
type PromptBank struct {
	Understanding string   `yaml:"understanding"`
	Balance       string   `yaml:"balance"`
	Curiosity     []string `yaml:"curiosity"`
}

// Prompts is the full prompt catalog
type Prompts struct {
	Samatha string                `yaml:"samatha"`
	Banks   map[string]PromptBank `yaml:"banks"`
}

type catalogFile struct {
	Cultivations []models.Cultivation `yaml:"cultivations"`
}

// Catalog is an immutable, validated curriculum
type Catalog struct {
	cultivations []models.Cultivation
	skills       []models.Skill
	index        map[string]int
	markers      map[string]string
	hindrances   map[string]string
	prompts      Prompts
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog; a malformed embed is a build defect and panics
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(skillsYAML, promptsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded skill catalog is invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse builds a catalog from skill and prompt YAML documents
func Parse(skillsDoc, promptsDoc []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(skillsDoc, &file); err != nil {
		return nil, fmt.Errorf("failed to parse skills: %w", err)
	}
	var prompts Prompts
	if err := yaml.Unmarshal(promptsDoc, &prompts); err != nil {
		return nil, fmt.Errorf("failed to parse prompts: %w", err)
	}

	c := &Catalog{
		index:      make(map[string]int),
		markers:    make(map[string]string),
		hindrances: make(map[string]string),
		prompts:    prompts,
	}

	for ci := range file.Cultivations {
		cult := &file.Cultivations[ci]
		if cult.Name == "" {
			return nil, fmt.Errorf("cultivation %d has no name", ci)
		}
		for si := range cult.Skills {
			cult.Skills[si].Cultivation = cult.Name
			skill := cult.Skills[si]

			want := fmt.Sprintf("%02d", len(c.skills))
			if skill.ID != want {
				return nil, fmt.Errorf("skill %q out of order, expected %s", skill.ID, want)
			}
			if skill.Marker.Code == "" || skill.Hindrance.Code == "" {
				return nil, fmt.Errorf("skill %s is missing a marker or hindrance", skill.ID)
			}
			if _, dup := c.markers[skill.Marker.Code]; dup {
				return nil, fmt.Errorf("duplicate marker code %q", skill.Marker.Code)
			}
			if _, dup := c.hindrances[skill.Hindrance.Code]; dup {
				return nil, fmt.Errorf("duplicate hindrance code %q", skill.Hindrance.Code)
			}

			c.index[skill.ID] = len(c.skills)
			c.markers[skill.Marker.Code] = skill.Marker.Label
			c.hindrances[skill.Hindrance.Code] = skill.Hindrance.Label
			c.skills = append(c.skills, skill)
		}
	}
	if len(c.skills) == 0 {
		return nil, fmt.Errorf("catalog has no skills")
	}
	c.cultivations = file.Cultivations

	for _, s := range c.skills {
		bank, ok := prompts.Banks[s.ID]
		if !ok || bank.Understanding == "" || bank.Balance == "" || len(bank.Curiosity) == 0 {
			return nil, fmt.Errorf("skill %s has an incomplete prompt bank", s.ID)
		}
	}
	if prompts.Samatha == "" {
		return nil, fmt.Errorf("samatha prompt is empty")
	}

	return c, nil
}

// All returns every skill in global order
func (c *Catalog) All() []models.Skill {
	out := make([]models.Skill, len(c.skills))
	copy(out, c.skills)
	return out
}

// Cultivations returns the ordered cultivation groups
func (c *Catalog) Cultivations() []models.Cultivation {
	return c.cultivations
}

// Len is the number of skills
func (c *Catalog) Len() int {
	return len(c.skills)
}

// First is the entry point of the curriculum
func (c *Catalog) First() models.Skill {
	return c.skills[0]
}

// Valid reports whether id names a catalog skill
func (c *Catalog) Valid(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Get looks up a skill by id
func (c *Catalog) Get(id string) (models.Skill, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.Skill{}, false
	}
	return c.skills[i], true
}

// Ordinal returns the position of id in the global order, or -1
func (c *Catalog) Ordinal(id string) int {
	i, ok := c.index[id]
	if !ok {
		return -1
	}
	return i
}

// At returns the skill at ordinal i
func (c *Catalog) At(i int) (models.Skill, bool) {
	if i < 0 || i >= len(c.skills) {
		return models.Skill{}, false
	}
	return c.skills[i], true
}

// Next returns the immediate successor, or false at the terminal skill
func (c *Catalog) Next(id string) (models.Skill, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.Skill{}, false
	}
	return c.At(i + 1)
}

// Prev returns the immediate predecessor, or false at the first skill
func (c *Catalog) Prev(id string) (models.Skill, bool) {
	i, ok := c.index[id]
	if !ok {
		return models.Skill{}, false
	}
	return c.At(i - 1)
}

// Distance is ordinal(b) - ordinal(a); positive means b lies above a
func (c *Catalog) Distance(a, b string) (int, error) {
	ia, ok := c.index[a]
	if !ok {
		return 0, fmt.Errorf("unknown skill %q", a)
	}
	ib, ok := c.index[b]
	if !ok {
		return 0, fmt.Errorf("unknown skill %q", b)
	}
	return ib - ia, nil
}

// MarkerLabel maps a marker code to its label, echoing unknown codes
func (c *Catalog) MarkerLabel(code string) string {
	if l, ok := c.markers[code]; ok {
		return l
	}
	return code
}

// HindranceLabel maps a hindrance code to its label, echoing unknown codes
func (c *Catalog) HindranceLabel(code string) string {
	if l, ok := c.hindrances[code]; ok {
		return l
	}
	return code
}

// SamathaPrompt is the fixed first question of every reflection
func (c *Catalog) SamathaPrompt() string {
	return c.prompts.Samatha
}

// Bank returns the prompt bank for a skill
func (c *Catalog) Bank(id string) (PromptBank, bool) {
	b, ok := c.prompts.Banks[id]
	return b, ok
}

// NormalizeID accepts "2", "02" or " 02 " and returns the canonical two-digit id
func (c *Catalog) NormalizeID(raw string) (string, bool) {
	if c.Valid(raw) {
		return raw, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	id := fmt.Sprintf("%02d", n)
	return id, c.Valid(id)
}
