package config

import (
	"autoservice/internal/models"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultSettings are used when no settings file exists yet
func DefaultSettings() models.Settings {
	return models.Settings{
		AutoSave:      true,
		IncludeLogs:   false,
		RetentionDays: 90,
		CustomPresets: []models.ServicePreset{},
		ProgramPaths:  map[string]string{},
	}
}

// SettingsStore holds user settings backed by a YAML file
type SettingsStore struct {
	mu       sync.RWMutex
	path     string
	settings models.Settings
	validate *validator.Validate
}

// LoadSettings reads path, falling back to defaults when it does not exist
func LoadSettings(path string) (*SettingsStore, error) {
	s := &SettingsStore{
		path:     path,
		settings: DefaultSettings(),
		validate: validator.New(),
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	settings := DefaultSettings()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	if err := s.validate.Struct(settings); err != nil {
		return nil, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	s.settings = normalizeSettings(settings)
	return s, nil
}

func normalizeSettings(s models.Settings) models.Settings {
	if s.CustomPresets == nil {
		s.CustomPresets = []models.ServicePreset{}
	}
	if s.ProgramPaths == nil {
		s.ProgramPaths = map[string]string{}
	}
	return s
}

// Settings returns a copy of the current settings
func (s *SettingsStore) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSettings(s.settings)
}

func cloneSettings(in models.Settings) models.Settings {
	out := in
	out.CustomPresets = make([]models.ServicePreset, len(in.CustomPresets))
	for i, p := range in.CustomPresets {
		cp := p
		cp.Items = make([]models.PresetItem, len(p.Items))
		for j, item := range p.Items {
			cp.Items[j] = models.PresetItem{ServiceID: item.ServiceID}
			if item.Options != nil {
				cp.Items[j].Options = item.Options.Clone()
			}
		}
		out.CustomPresets[i] = cp
	}
	out.ProgramPaths = make(map[string]string, len(in.ProgramPaths))
	for k, v := range in.ProgramPaths {
		out.ProgramPaths[k] = v
	}
	return out
}

// CustomPresets returns the user-defined presets
func (s *SettingsStore) CustomPresets() []models.ServicePreset {
	return s.Settings().CustomPresets
}

// ProgramPath returns the configured location of program id, or ""
func (s *SettingsStore) ProgramPath(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.ProgramPaths[id]
}

// Update applies fn to a copy of the settings, validates and saves the result.
// On error the stored settings are unchanged.
func (s *SettingsStore) Update(fn func(*models.Settings)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneSettings(s.settings)
	fn(&next)
	next = normalizeSettings(next)
	if err := s.validate.Struct(next); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	if err := s.saveLocked(next); err != nil {
		return err
	}
	s.settings = next
	return nil
}

// SetCustomPresets replaces the custom preset list
func (s *SettingsStore) SetCustomPresets(presets []models.ServicePreset) error {
	return s.Update(func(st *models.Settings) {
		st.CustomPresets = presets
	})
}

func (s *SettingsStore) saveLocked(settings models.Settings) error {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}
