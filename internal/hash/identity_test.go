package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExternalIDDeterministic(t *testing.T) {
	t.Parallel()

	a := ExternalID("https://careers.ey.com/job/123")
	b := ExternalID("https://careers.ey.com/job/123")
	require.Equal(t, a, b)
	require.Len(t, a, 64)

	c := ExternalID("https://careers.ey.com/job/124")
	require.NotEqual(t, a, c)
}

func TestContentNormalizesFields(t *testing.T) {
	t.Parallel()

	require.Equal(t,
		Content("Engineer", "EY", "Build things"),
		Content("  engineer  ", "ey", "build things"),
	)
	require.NotEqual(t,
		Content("Engineer", "EY", "Build things"),
		Content("Engineer", "KPMG", "Build things"),
	)
}

func TestContentFieldBoundaries(t *testing.T) {
	t.Parallel()

	// Field separators keep adjacent fields from colliding.
	require.NotEqual(t, Content("ab", "c", ""), Content("a", "bc", ""))
}

func TestContentAllFieldsAbsentHasNoHash(t *testing.T) {
	t.Parallel()

	require.Empty(t, Content("", "", ""))
	require.Empty(t, Content("   ", "\t", "\n"))

	// A single present field is still hashable content.
	require.NotEmpty(t, Content("Engineer", "", ""))
	require.NotEmpty(t, Content("", "", "Build things"))
}
