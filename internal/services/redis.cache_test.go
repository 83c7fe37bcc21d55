package services

import (
	"path"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInvalidationPatternMatchesOnlyItsTarget(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		given    string
		other    string
	}{
		{"plain service", "ping_test", "ping_test2"},
		{"star in preset id", "preset:a*", "preset:ab"},
		{"question mark", "preset:a?", "preset:ab"},
		{"character class", "preset:[ab]", "preset:a"},
		{"colon prefix", "preset:x", "preset:x:y"},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			pattern := invalidationPattern(tt.given)

			ok, err := path.Match(pattern, predictionKey(tt.given, testFingerprint))
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = path.Match(pattern, predictionKey(tt.other, testFingerprint))
			require.NoError(t, err)
			require.False(t, ok)
		})
	}
}
