package services

import (
	"autoservice/internal/models"
	"errors"
	"fmt"
	"slices"
)

// Registration pairs a service definition with its adapter
type Registration struct {
	Definition models.ServiceDefinition
	Adapter    Adapter
	// Validate checks a fully populated option set beyond the schema: formats
	// and rules across options. It may be nil.
	Validate func(opts models.OptionValues) error
}

// Registry is the fixed service catalog, built once at startup
type Registry struct {
	order    []string
	defs     map[string]models.ServiceDefinition
	adapters map[string]Adapter
	validate map[string]func(models.OptionValues) error
	locator  *ProgramLocator
}

// NewRegistry validates entries and builds the registry. It fails when an id is
// duplicated, an adapter requires an undefined program, or a default option
// value violates its own schema or the service validator.
func NewRegistry(locator *ProgramLocator, entries ...Registration) (*Registry, error) {
	r := &Registry{
		defs:     make(map[string]models.ServiceDefinition, len(entries)),
		adapters: make(map[string]Adapter, len(entries)),
		validate: make(map[string]func(models.OptionValues) error),
		locator:  locator,
	}
	for _, e := range entries {
		def := e.Definition
		if def.ID == "" {
			return nil, fmt.Errorf("service definition without id")
		}
		if e.Adapter == nil {
			return nil, fmt.Errorf("service %q: no adapter", def.ID)
		}
		if _, dup := r.defs[def.ID]; dup {
			return nil, fmt.Errorf("service %q registered twice", def.ID)
		}

		reqs := slices.Clone(e.Adapter.Requirements())
		for _, req := range def.Requirements {
			if !slices.Contains(reqs, req) {
				reqs = append(reqs, req)
			}
		}
		for _, req := range reqs {
			if !locator.Known(req) {
				return nil, fmt.Errorf("service %q requires undefined program %q", def.ID, req)
			}
		}
		def.Requirements = reqs
		if def.Options == nil {
			def.Options = models.OptionSchema{}
		}
		defaults, err := DefaultOptions(def.Options)
		if err != nil {
			return nil, fmt.Errorf("service %q: %w", def.ID, err)
		}
		if e.Validate != nil {
			if err := e.Validate(defaults); err != nil {
				return nil, fmt.Errorf("service %q: default options: %w", def.ID, err)
			}
			r.validate[def.ID] = e.Validate
		}

		r.order = append(r.order, def.ID)
		r.defs[def.ID] = def
		r.adapters[def.ID] = e.Adapter
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on a broken catalog
func MustRegistry(locator *ProgramLocator, entries ...Registration) *Registry {
	r, err := NewRegistry(locator, entries...)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) DefinitionFor(id string) (models.ServiceDefinition, error) {
	def, ok := r.defs[id]
	if !ok {
		return models.ServiceDefinition{}, fmt.Errorf("%w: service %q", ErrNotFound, id)
	}
	return def, nil
}

func (r *Registry) AdapterFor(id string) (Adapter, error) {
	a, ok := r.adapters[id]
	if !ok {
		return nil, fmt.Errorf("%w: service %q", ErrNotFound, id)
	}
	return a, nil
}

// ValidateOptions applies the service's own option rules to a populated
// option set. Failures wrap ErrInvalidOption.
func (r *Registry) ValidateOptions(id string, opts models.OptionValues) error {
	if _, err := r.DefinitionFor(id); err != nil {
		return err
	}
	validate := r.validate[id]
	if validate == nil {
		return nil
	}
	if err := validate(opts); err != nil {
		if errors.Is(err, ErrInvalidOption) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	return nil
}

// Definitions returns every definition in registration order
func (r *Registry) Definitions() []models.ServiceDefinition {
	out := make([]models.ServiceDefinition, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.defs[id])
	}
	return out
}

// IDs returns every service id in registration order
func (r *Registry) IDs() []string {
	return slices.Clone(r.order)
}

// Programs reports the availability of every required program
func (r *Registry) Programs() []models.ProgramStatus {
	return r.locator.Status()
}

// CheckRequirements resolves every program service id needs
func (r *Registry) CheckRequirements(id string) error {
	def, err := r.DefinitionFor(id)
	if err != nil {
		return err
	}
	for _, req := range def.Requirements {
		if _, err := r.locator.Resolve(req); err != nil {
			return err
		}
	}
	return nil
}
