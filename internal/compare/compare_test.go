package compare

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPreviousPeriod(t *testing.T) {
	got := Build("2026-01-10", "2026-01-19", PreviousPeriod)
	require.NotNil(t, got)
	assert.Equal(t, Range{Start: "2025-12-31", End: "2026-01-09"}, *got)
}

func TestBuildPreviousPeriodPreservesDayCount(t *testing.T) {
	cases := []struct{ from, to string }{
		{"2026-03-01", "2026-03-01"},
		{"2026-03-01", "2026-03-31"},
		{"2024-02-01", "2024-03-15"},
		{"2025-12-20", "2026-01-05"},
	}
	for _, tc := range cases {
		base := Range{Start: tc.from, End: tc.to}
		got := Build(tc.from, tc.to, PreviousPeriod)
		require.NotNil(t, got, tc.from)
		assert.Equal(t, base.Days(), got.Days(), "day count for %s..%s", tc.from, tc.to)
		// The comparison window ends the day before the base window starts.
		gap := Range{Start: got.End, End: tc.from}
		assert.Equal(t, 2, gap.Days(), "adjacency for %s..%s", tc.from, tc.to)
	}
}

func TestBuildPreviousYear(t *testing.T) {
	got := Build("2026-02-01", "2026-02-28", PreviousYear)
	require.NotNil(t, got)
	assert.Equal(t, Range{Start: "2025-02-01", End: "2025-02-28"}, *got)
}

func TestBuildPreviousYearLeapDay(t *testing.T) {
	got := Build("2024-02-01", "2024-02-29", PreviousYear)
	require.NotNil(t, got)
	assert.Equal(t, Range{Start: "2023-02-01", End: "2023-02-28"}, *got)

	got = Build("2024-02-29", "2024-03-01", PreviousYear)
	require.NotNil(t, got)
	assert.Equal(t, Range{Start: "2023-02-28", End: "2023-03-01"}, *got)
}

func TestBuildReturnsNilForUnusableInput(t *testing.T) {
	assert.Nil(t, Build("2026-01-10", "2026-01-19", Mode("previous_quarter")))
	assert.Nil(t, Build("2026-01-xx", "2026-01-19", PreviousPeriod))
	assert.Nil(t, Build("2026-01-10", "", PreviousYear))
	assert.Nil(t, Build("2026-01-19", "2026-01-10", PreviousPeriod))
}
