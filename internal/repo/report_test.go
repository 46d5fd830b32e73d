package repo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/systemshift/mxvc/internal/store"
)

func TestRebaseReport_Summary(t *testing.T) {
	r := newReport()
	assert.True(t, r.Empty())
	assert.Nil(t, r.Summary())

	r.Skipped = 1
	r.Rewritten = 2
	r.RebasedDescendants = 3
	r.AbandonedEmpty = []store.CommitID{"baguqeeraa"}
	r.Conflicted = 1
	assert.False(t, r.Empty())
	assert.Equal(t, []string{
		"Skipped rebase of 1 commits that were already in place",
		"Rebased 2 commits to destination",
		"Rebased 3 descendant commits",
		"Abandoned 1 newly emptied commits",
		"1 commits have conflicts",
	}, r.Summary())
}
