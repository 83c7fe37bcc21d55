package services

import (
	"autoservice/internal/models"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCoerceOption(t *testing.T) {
	t.Parallel()

	intDesc := models.OptionDescriptor{Key: "count", Kind: models.OptionInt, Min: 1, Max: 10}
	boolDesc := models.OptionDescriptor{Key: "fix", Kind: models.OptionBool}
	selectDesc := models.OptionDescriptor{Key: "mode", Kind: models.OptionSelect, Choices: []string{"scan", "restore"}}
	textDesc := models.OptionDescriptor{Key: "host", Kind: models.OptionText, MaxLength: 5}

	var testCases = []struct {
		scenario string
		desc     models.OptionDescriptor
		given    any
		then     any
		wantErr  bool
	}{
		{"int", intDesc, 4, 4, false},
		{"int from json number", intDesc, 4.0, 4, false},
		{"int from string", intDesc, " 7 ", 7, false},
		{"fractional int", intDesc, 4.5, nil, true},
		{"int below range", intDesc, 0, nil, true},
		{"int above range", intDesc, 11, nil, true},
		{"int wrong type", intDesc, true, nil, true},
		{"bool", boolDesc, true, true, false},
		{"bool from string", boolDesc, "false", false, false},
		{"bool garbage", boolDesc, "maybe", nil, true},
		{"select", selectDesc, "restore", "restore", false},
		{"select unknown choice", selectDesc, "repair", nil, true},
		{"text", textDesc, "héllo", "héllo", false},
		{"text too long", textDesc, "hello!", nil, true},
		{"unknown kind", models.OptionDescriptor{Key: "x", Kind: "color"}, "red", nil, true},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			got, err := CoerceOption(tt.desc, tt.given)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidOption)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.then, got)
		})
	}
}

func TestApplyOptions(t *testing.T) {
	t.Parallel()

	schema := models.OptionSchema{
		{Key: "host", Kind: models.OptionText, Default: "8.8.8.8"},
		{Key: "count", Kind: models.OptionInt, Default: 4, Min: 1, Max: 100},
	}
	defaults, err := DefaultOptions(schema)
	require.NoError(t, err)
	require.Equal(t, models.OptionValues{"host": "8.8.8.8", "count": 4}, defaults)

	got, err := ApplyOptions(schema, defaults, models.OptionValues{"count": "10"})
	require.NoError(t, err)
	require.Equal(t, 10, got["count"])
	require.Equal(t, 4, defaults["count"], "base must not be modified")

	_, err = ApplyOptions(schema, defaults, models.OptionValues{"size": 1})
	require.ErrorIs(t, err, ErrInvalidOption)

	_, err = DefaultOptions(models.OptionSchema{{Key: "count", Kind: models.OptionInt, Default: 0, Min: 1, Max: 2}})
	require.ErrorIs(t, err, ErrInvalidOption)
}
