package models

// PresetItem is one (service id, option overrides) entry of a preset
type PresetItem struct {
	ServiceID string       `json:"service_id" yaml:"service_id"`
	Options   OptionValues `json:"options,omitempty" yaml:"options,omitempty"`
}

// ServicePreset represents a named, ordered bundle of services
type ServicePreset struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty"`
	BuiltIn     bool         `json:"built_in" yaml:"-"`
	Items       []PresetItem `json:"items" yaml:"items"`
}

// PlanRequest asks the resolver for a plan, either from a preset id or from an
// explicit custom service list.
type PlanRequest struct {
	PresetID  string                  `json:"preset_id,omitempty"`
	Services  []PresetItem            `json:"services,omitempty"`
	Overrides map[string]OptionValues `json:"overrides,omitempty"`
}

// PlanItem is one resolved entry with every option populated
type PlanItem struct {
	ServiceID string       `json:"service_id" yaml:"service_id"`
	Options   OptionValues `json:"options" yaml:"options"`
}

// RunPlan is the ordered output of preset resolution
type RunPlan struct {
	PresetID string     `json:"preset_id,omitempty" yaml:"preset_id,omitempty"`
	Items    []PlanItem `json:"items" yaml:"items"`
}
