package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"autoservice/internal/config"
	"autoservice/internal/models"

	"github.com/stretchr/testify/require"
)

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	store, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)
	require.Equal(t, config.DefaultSettings(), store.Settings())
}

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	store, err := config.LoadSettings(path)
	require.NoError(t, err)

	presets := []models.ServicePreset{{
		ID:   "quick",
		Name: "Quick",
		Items: []models.PresetItem{
			{ServiceID: "ping_test", Options: models.OptionValues{"count": 2}},
		},
	}}
	require.NoError(t, store.SetCustomPresets(presets))
	require.NoError(t, store.Update(func(s *models.Settings) {
		s.IncludeLogs = true
		s.ProgramPaths["smartctl"] = `D:\tools\smartctl.exe`
	}))

	reloaded, err := config.LoadSettings(path)
	require.NoError(t, err)
	got := reloaded.Settings()
	require.True(t, got.IncludeLogs)
	require.Equal(t, `D:\tools\smartctl.exe`, reloaded.ProgramPath("smartctl"))
	require.Len(t, got.CustomPresets, 1)
	require.Equal(t, "quick", got.CustomPresets[0].ID)
	require.Equal(t, 2, got.CustomPresets[0].Items[0].Options["count"])
}

func TestSettingsUpdateRejectsInvalid(t *testing.T) {
	store, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	err = store.Update(func(s *models.Settings) { s.RetentionDays = -1 })
	require.Error(t, err)
	require.Equal(t, 90, store.Settings().RetentionDays)
}

func TestSettingsCopiesAreIndependent(t *testing.T) {
	store, err := config.LoadSettings(filepath.Join(t.TempDir(), "settings.yaml"))
	require.NoError(t, err)

	s := store.Settings()
	s.ProgramPaths["ping"] = "/tmp/ping"
	require.Empty(t, store.ProgramPath("ping"))
}

func TestLoadSettingsRejectsBrokenYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("auto_save: [oops"), 0o600))
	_, err := config.LoadSettings(path)
	require.Error(t, err)
}
