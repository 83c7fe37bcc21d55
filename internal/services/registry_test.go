package services

import (
	"autoservice/internal/models"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuiltinRegistry(t *testing.T) {
	t.Parallel()

	locator, err := NewProgramLocator(BuiltinPrograms(), nil)
	require.NoError(t, err)
	registry, err := NewRegistry(locator, BuiltinCatalog(locator)...)
	require.NoError(t, err)

	ids := registry.IDs()
	require.Equal(t, "disk_space", ids[0])
	require.Contains(t, ids, "ping_test")
	require.Contains(t, ids, "heavyload_stress")

	def, err := registry.DefinitionFor("ping_test")
	require.NoError(t, err)
	require.Equal(t, []string{ProgramPing}, def.Requirements)

	_, err = registry.DefinitionFor("nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = registry.AdapterFor("nope")
	require.ErrorIs(t, err, ErrNotFound)
	require.Len(t, registry.Programs(), len(BuiltinPrograms()))
}

func TestNewRegistryRejectsBrokenCatalog(t *testing.T) {
	t.Parallel()

	locator, err := NewProgramLocator([]models.RequiredProgramDef{{ID: "tool", Name: "Tool", Executable: "tool"}}, nil)
	require.NoError(t, err)
	ok := stubAdapter(models.ResultSuccess)

	var testCases = []struct {
		scenario string
		given    []Registration
	}{
		{"duplicate id", []Registration{
			{Definition: models.ServiceDefinition{ID: "a"}, Adapter: ok},
			{Definition: models.ServiceDefinition{ID: "a"}, Adapter: ok},
		}},
		{"missing id", []Registration{{Definition: models.ServiceDefinition{}, Adapter: ok}}},
		{"missing adapter", []Registration{{Definition: models.ServiceDefinition{ID: "a"}}}},
		{"undefined program", []Registration{
			{Definition: models.ServiceDefinition{ID: "a", Requirements: []string{"other"}}, Adapter: ok},
		}},
		{"invalid default", []Registration{
			{Definition: models.ServiceDefinition{ID: "a", Options: models.OptionSchema{
				{Key: "mode", Kind: models.OptionSelect, Default: "x", Choices: []string{"y"}},
			}}, Adapter: ok},
		}},
		{"default rejected by validator", []Registration{
			{Definition: models.ServiceDefinition{ID: "a", Options: models.OptionSchema{
				{Key: "drive", Kind: models.OptionText, Default: "ZZZ", MaxLength: 3},
			}}, Adapter: ok, Validate: validDrive},
		}},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			_, err := NewRegistry(locator, tt.given...)
			require.Error(t, err)
		})
	}

	require.Panics(t, func() {
		MustRegistry(locator, testCases[0].given...)
	})
}
