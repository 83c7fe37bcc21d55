package services

import (
	"autoservice/internal/models"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// ProgramPathSource supplies user-configured program locations, keyed by program id
type ProgramPathSource interface {
	ProgramPath(id string) string
}

// ProgramResolver turns a required program id into an executable path
type ProgramResolver interface {
	Resolve(id string) (string, error)
}

// ProgramLocator resolves required programs: configured path first, then
// PATH lookup, then the program's well-known install locations.
type ProgramLocator struct {
	programs  map[string]models.RequiredProgramDef
	overrides ProgramPathSource
	lookPath  func(string) (string, error)
}

// NewProgramLocator builds a locator over defs. overrides may be nil.
func NewProgramLocator(defs []models.RequiredProgramDef, overrides ProgramPathSource) (*ProgramLocator, error) {
	programs := make(map[string]models.RequiredProgramDef, len(defs))
	for _, def := range defs {
		if def.ID == "" || def.Executable == "" {
			return nil, fmt.Errorf("required program %q: id and executable must be set", def.ID)
		}
		if _, dup := programs[def.ID]; dup {
			return nil, fmt.Errorf("required program %q defined twice", def.ID)
		}
		programs[def.ID] = def
	}
	return &ProgramLocator{
		programs:  programs,
		overrides: overrides,
		lookPath:  exec.LookPath,
	}, nil
}

// Known reports whether id names a defined program
func (l *ProgramLocator) Known(id string) bool {
	_, ok := l.programs[id]
	return ok
}

// Resolve returns the executable path for program id or ErrRequirementMissing
func (l *ProgramLocator) Resolve(id string) (string, error) {
	def, ok := l.programs[id]
	if !ok {
		return "", fmt.Errorf("%w: program %q", ErrNotFound, id)
	}
	if l.overrides != nil {
		if p := strings.TrimSpace(l.overrides.ProgramPath(id)); p != "" {
			if isExecutableFile(p) {
				return p, nil
			}
			return "", fmt.Errorf("%w: %s: configured path %q not usable", ErrRequirementMissing, def.Name, p)
		}
	}
	if p, err := l.lookPath(def.Executable); err == nil {
		return p, nil
	}
	for _, p := range def.DefaultPaths {
		if isExecutableFile(p) {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s (%s)", ErrRequirementMissing, def.Name, def.Executable)
}

// Status reports the availability of every defined program, sorted by id
func (l *ProgramLocator) Status() []models.ProgramStatus {
	out := make([]models.ProgramStatus, 0, len(l.programs))
	for _, def := range l.programs {
		st := models.ProgramStatus{RequiredProgramDef: def}
		if p, err := l.Resolve(def.ID); err == nil {
			st.Path = p
			st.Available = true
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
