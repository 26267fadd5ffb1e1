package pdf

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagesOf(runs []run) []int {
	var all []int
	for _, r := range runs {
		all = append(all, r.pages...)
	}
	return all
}

func TestGroupRunsSubjectChange(t *testing.T) {
	runs := groupRuns([]string{"10", "", "20"})

	require.Len(t, runs, 2)
	assert.Equal(t, "10", runs[0].subjectID)
	assert.Equal(t, []int{0, 1}, runs[0].pages)
	assert.Equal(t, "20", runs[1].subjectID)
	assert.Equal(t, []int{2}, runs[1].pages)
}

func TestGroupRunsSingleSubjectNotSplit(t *testing.T) {
	assert.Nil(t, groupRuns([]string{"10", "10", "10"}))
	assert.Nil(t, groupRuns([]string{"10", "", ""}))
	assert.Nil(t, groupRuns([]string{"", "", ""}))
	assert.Nil(t, groupRuns([]string{""}))
	assert.Nil(t, groupRuns(nil))
}

func TestGroupRunsLeadingCoverSheet(t *testing.T) {
	runs := groupRuns([]string{"", "", "10", "20"})

	require.Len(t, runs, 2)
	assert.Equal(t, "10", runs[0].subjectID)
	assert.Equal(t, []int{0, 1, 2}, runs[0].pages)
	assert.Equal(t, "20", runs[1].subjectID)
	assert.Equal(t, []int{3}, runs[1].pages)
}

func TestGroupRunsRepeatedSubject(t *testing.T) {
	runs := groupRuns([]string{"10", "20", "10"})

	require.Len(t, runs, 3)
	assert.Equal(t, "10", runs[0].subjectID)
	assert.Equal(t, "20", runs[1].subjectID)
	assert.Equal(t, "10", runs[2].subjectID)
}

func TestGroupRunsUnlabeledPagesFollowSubject(t *testing.T) {
	runs := groupRuns([]string{"10", "", "", "20", ""})

	require.Len(t, runs, 2)
	assert.Equal(t, []int{0, 1, 2}, runs[0].pages)
	assert.Equal(t, []int{3, 4}, runs[1].pages)
}

// The emitted runs must partition the original page set exactly and
// preserve page order; a boundary error here misfiles pages to the
// wrong employee.
func TestGroupRunsPartitionInvariant(t *testing.T) {
	cases := [][]string{
		{"1", "2"},
		{"", "1", "", "2", "2", "", "3"},
		{"7", "7", "8", "", "", "9", "7"},
		{"", "", "5", "", "6", ""},
	}
	for _, ids := range cases {
		runs := groupRuns(ids)
		if runs == nil {
			continue
		}

		all := pagesOf(runs)
		assert.Len(t, all, len(ids))
		assert.True(t, sort.IntsAreSorted(all), "page order must survive grouping: %v", ids)

		seen := map[int]bool{}
		for _, p := range all {
			assert.False(t, seen[p], "page %d emitted twice for %v", p, ids)
			seen[p] = true
			assert.GreaterOrEqual(t, p, 0)
			assert.Less(t, p, len(ids))
		}

		for _, r := range runs {
			assert.NotEmpty(t, r.subjectID, "no unlabeled run may survive merging: %v", ids)
		}
	}
}
