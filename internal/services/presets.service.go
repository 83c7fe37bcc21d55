package services

import (
	"autoservice/internal/models"
	"fmt"
	"strings"
)

// CustomPresetSource supplies the user-defined presets from settings
type CustomPresetSource interface {
	CustomPresets() []models.ServicePreset
}

// PresetResolver expands presets and custom lists into validated run plans
type PresetResolver struct {
	registry *Registry
	builtins []models.ServicePreset
	custom   CustomPresetSource
}

// NewPresetResolver builds a resolver over registry. custom may be nil.
func NewPresetResolver(registry *Registry, custom CustomPresetSource) *PresetResolver {
	return &PresetResolver{
		registry: registry,
		builtins: BuiltinPresets(registry),
		custom:   custom,
	}
}

// BuiltinPresets returns the fixed Diagnostics, General and Complete presets
func BuiltinPresets(registry *Registry) []models.ServicePreset {
	diagnostics := []models.PresetItem{
		{ServiceID: "disk_space"},
		{ServiceID: "ping_test"},
	}
	general := append(clonePresetItems(diagnostics),
		models.PresetItem{ServiceID: "sfc_scan"},
		models.PresetItem{ServiceID: "dism_health", Options: models.OptionValues{"mode": "scan"}},
		models.PresetItem{ServiceID: "defender_scan", Options: models.OptionValues{"scan_type": "quick"}},
	)
	var complete []models.PresetItem
	for _, id := range registry.IDs() {
		complete = append(complete, models.PresetItem{ServiceID: id})
	}
	return []models.ServicePreset{
		{ID: "diagnostics", Name: "Diagnostics", BuiltIn: true,
			Description: "Quick read-only health checks", Items: diagnostics},
		{ID: "general", Name: "General", BuiltIn: true,
			Description: "Diagnostics plus system file repair and a quick malware scan", Items: general},
		{ID: "complete", Name: "Complete", BuiltIn: true,
			Description: "Every available service, cheap checks first", Items: complete},
	}
}

// Presets returns built-in presets followed by the current custom presets
func (p *PresetResolver) Presets() []models.ServicePreset {
	out := make([]models.ServicePreset, 0, len(p.builtins))
	for _, preset := range p.builtins {
		out = append(out, clonePreset(preset))
	}
	for _, preset := range p.customPresets() {
		preset.BuiltIn = false
		out = append(out, clonePreset(preset))
	}
	return out
}

// Preset looks up a preset id, case-insensitively
func (p *PresetResolver) Preset(id string) (models.ServicePreset, error) {
	key := strings.ToLower(strings.TrimSpace(id))
	for _, preset := range p.Presets() {
		if strings.ToLower(preset.ID) == key {
			return preset, nil
		}
	}
	return models.ServicePreset{}, fmt.Errorf("%w: %w: unknown preset %q", ErrNotFound, ErrInvalidPreset, id)
}

// Resolve expands req into an ordered plan with every option populated.
// Merge order per field: schema default, then preset options, then overrides.
// Nothing is returned unless every item validates.
func (p *PresetResolver) Resolve(req models.PlanRequest) (models.RunPlan, error) {
	var plan models.RunPlan
	var items []models.PresetItem
	switch {
	case strings.TrimSpace(req.PresetID) != "":
		preset, err := p.Preset(req.PresetID)
		if err != nil {
			return models.RunPlan{}, err
		}
		plan.PresetID = preset.ID
		items = preset.Items
	case len(req.Services) > 0:
		items = req.Services
	default:
		return models.RunPlan{}, fmt.Errorf("%w: no preset id and empty service list", ErrInvalidPreset)
	}

	used := make(map[string]bool, len(items))
	for _, item := range items {
		resolved, err := p.resolveItem(item, req.Overrides[item.ServiceID])
		if err != nil {
			return models.RunPlan{}, err
		}
		used[item.ServiceID] = true
		plan.Items = append(plan.Items, resolved)
	}
	for id := range req.Overrides {
		if !used[id] {
			if _, err := p.registry.DefinitionFor(id); err != nil {
				return models.RunPlan{}, err
			}
			return models.RunPlan{}, fmt.Errorf("%w: overrides for %q which is not in the plan", ErrInvalidOption, id)
		}
	}
	return plan, nil
}

func (p *PresetResolver) resolveItem(item models.PresetItem, overrides models.OptionValues) (models.PlanItem, error) {
	def, err := p.registry.DefinitionFor(item.ServiceID)
	if err != nil {
		return models.PlanItem{}, err
	}
	opts, err := DefaultOptions(def.Options)
	if err != nil {
		return models.PlanItem{}, fmt.Errorf("%s: %w", def.ID, err)
	}
	if opts, err = ApplyOptions(def.Options, opts, item.Options); err != nil {
		return models.PlanItem{}, fmt.Errorf("%s: %w", def.ID, err)
	}
	if opts, err = ApplyOptions(def.Options, opts, overrides); err != nil {
		return models.PlanItem{}, fmt.Errorf("%s: %w", def.ID, err)
	}
	if err := p.registry.ValidateOptions(def.ID, opts); err != nil {
		return models.PlanItem{}, fmt.Errorf("%s: %w", def.ID, err)
	}
	return models.PlanItem{ServiceID: def.ID, Options: opts}, nil
}

// ValidatePreset checks a custom preset before it is saved: a non-empty id that
// does not shadow a built-in, at least one item, and valid options.
func (p *PresetResolver) ValidatePreset(preset models.ServicePreset) error {
	id := strings.TrimSpace(preset.ID)
	if id == "" {
		return fmt.Errorf("%w: preset id is required", ErrInvalidPreset)
	}
	for _, b := range p.builtins {
		if strings.EqualFold(b.ID, id) {
			return fmt.Errorf("%w: %q is a built-in preset", ErrInvalidPreset, id)
		}
	}
	if len(preset.Items) == 0 {
		return fmt.Errorf("%w: preset %q has no services", ErrInvalidPreset, id)
	}
	for _, item := range preset.Items {
		if _, err := p.resolveItem(item, nil); err != nil {
			return fmt.Errorf("preset %q: %w", id, err)
		}
	}
	return nil
}

// NormalizePresets validates list and returns trimmed copies. Ids must be
// unique ignoring case.
func (p *PresetResolver) NormalizePresets(list []models.ServicePreset) ([]models.ServicePreset, error) {
	out := make([]models.ServicePreset, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, preset := range list {
		clone := clonePreset(preset)
		clone.ID = strings.TrimSpace(clone.ID)
		clone.Name = strings.TrimSpace(clone.Name)
		if clone.Name == "" {
			clone.Name = clone.ID
		}
		clone.BuiltIn = false
		if err := p.ValidatePreset(clone); err != nil {
			return nil, err
		}
		lower := strings.ToLower(clone.ID)
		if _, dup := seen[lower]; dup {
			return nil, fmt.Errorf("%w: duplicate preset id %q", ErrInvalidPreset, clone.ID)
		}
		seen[lower] = struct{}{}
		out = append(out, clone)
	}
	return out, nil
}

func (p *PresetResolver) customPresets() []models.ServicePreset {
	if p.custom == nil {
		return nil
	}
	return p.custom.CustomPresets()
}

func clonePreset(preset models.ServicePreset) models.ServicePreset {
	preset.Items = clonePresetItems(preset.Items)
	return preset
}

func clonePresetItems(items []models.PresetItem) []models.PresetItem {
	out := make([]models.PresetItem, len(items))
	for i, item := range items {
		out[i] = models.PresetItem{ServiceID: item.ServiceID}
		if item.Options != nil {
			out[i].Options = item.Options.Clone()
		}
	}
	return out
}
