package models

import "time"

// OptionKind is the type of a configurable service option
type OptionKind string

const (
	OptionBool   OptionKind = "bool"
	OptionInt    OptionKind = "int"
	OptionSelect OptionKind = "select"
	OptionText   OptionKind = "text"
)

// OptionDescriptor describes one named option with its default and constraints
type OptionDescriptor struct {
	Key       string     `json:"key" yaml:"key"`
	Label     string     `json:"label" yaml:"label"`
	Kind      OptionKind `json:"kind" yaml:"kind"`
	Default   any        `json:"default" yaml:"default"`
	Min       int        `json:"min,omitempty" yaml:"min,omitempty"`
	Max       int        `json:"max,omitempty" yaml:"max,omitempty"`
	Choices   []string   `json:"choices,omitempty" yaml:"choices,omitempty"`
	MaxLength int        `json:"max_length,omitempty" yaml:"max_length,omitempty"`
}

// OptionSchema is the ordered set of options a service accepts
type OptionSchema []OptionDescriptor

// Lookup finds a descriptor by key
func (s OptionSchema) Lookup(key string) (OptionDescriptor, bool) {
	for _, d := range s {
		if d.Key == key {
			return d, true
		}
	}
	return OptionDescriptor{}, false
}

// OptionValues holds option values keyed by option key
type OptionValues map[string]any

// Clone returns a shallow copy of the values
func (v OptionValues) Clone() OptionValues {
	out := make(OptionValues, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Bool returns a boolean option or false
func (v OptionValues) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}

// Int returns an integer option or 0
func (v OptionValues) Int(key string) int {
	i, _ := v[key].(int)
	return i
}

// String returns a text or select option or ""
func (v OptionValues) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// ServiceDefinition describes one catalog entry. Immutable after startup.
type ServiceDefinition struct {
	ID           string        `json:"id" yaml:"id"`
	Name         string        `json:"name" yaml:"name"`
	Description  string        `json:"description" yaml:"description"`
	Category     string        `json:"category" yaml:"category"`
	Options      OptionSchema  `json:"options" yaml:"options"`
	Requirements []string      `json:"requirements" yaml:"requirements"`
	Timeout      time.Duration `json:"timeout_ns" yaml:"timeout"`
}

// RequiredProgramDef describes an external program a service depends on
type RequiredProgramDef struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Executable   string   `json:"executable" yaml:"executable"`
	DefaultPaths []string `json:"default_paths,omitempty" yaml:"default_paths,omitempty"`
}

// ProgramStatus reports whether a required program could be located
type ProgramStatus struct {
	RequiredProgramDef
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
}
