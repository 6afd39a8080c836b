// ABOUTME: Skill and Cultivation describe the fixed meditation curriculum
// ABOUTME: Skill ids are two-digit ordinals forming one global total order
package models

// Marker is an observable sign that a skill's capacity is present
type Marker struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

// Hindrance is the obstacle a skill pairs against
type Hindrance struct {
	Code  string `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
}

// Skill is one unit in the curriculum
type Skill struct {
	ID                  string    `json:"id" yaml:"id"`
	Name                string    `json:"name" yaml:"name"`
	Cultivation         string    `json:"cultivation" yaml:"-"`
	Marker              Marker    `json:"marker" yaml:"marker"`
	Hindrance           Hindrance `json:"hindrance" yaml:"hindrance"`
	Antidote            string    `json:"antidote" yaml:"antidote"`
	Insight             string    `json:"insight" yaml:"insight"`
	Techniques          []string  `json:"techniques" yaml:"techniques"`
	AdvancementCriteria string    `json:"advancement_criteria" yaml:"advancement_criteria"`
	Reading             string    `json:"reading" yaml:"reading"`
}

// Cultivation is an ordered stage grouping several skills
type Cultivation struct {
	Name   string  `json:"name" yaml:"name"`
	Skills []Skill `json:"skills" yaml:"skills"`
}
