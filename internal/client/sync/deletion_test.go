package sync

import (
	"context"
	"testing"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
)

func TestPlanDeletions(t *testing.T) {
	prev := SyncState{
		"kept.md":           {Hash: "k"},
		"deleted-local.md":  {Hash: "l"},
		"deleted-remote.md": {Hash: "r"},
		"gone.md":           {Hash: "g"},
	}
	local := mapset.NewSet("kept.md", "deleted-remote.md", "never-synced.md")
	remote := mapset.NewSet("kept.md", "deleted-local.md", "remote-new.md")

	plan := PlanDeletions(prev, local, remote)
	assert.Equal(t, []string{"deleted-local.md"}, plan.DeleteRemote)
	assert.Equal(t, []string{"deleted-remote.md"}, plan.DeleteLocal)
	assert.Equal(t, []string{"gone.md"}, plan.Forget)
	assert.False(t, plan.Empty())
}

func TestPlanDeletions_NoHistoryNoDeletes(t *testing.T) {
	plan := PlanDeletions(SyncState{}, mapset.NewSet("a.md"), mapset.NewSet("b.md"))
	assert.True(t, plan.Empty())
}

func TestDeletionPropagator_ForgetsPathsGoneFromBothSides(t *testing.T) {
	history := NewHistoryTracker(SyncState{
		"gone.md": {Hash: "g", Revision: 2},
		"kept.md": {Hash: "k", Revision: 1},
	})
	d := &DeletionPropagator{history: history}

	deleted, errs := d.Apply(context.Background(), &DeletionPlan{Forget: []string{"gone.md"}})
	assert.Zero(t, deleted)
	assert.Empty(t, errs)

	_, ok := history.Get("gone.md")
	assert.False(t, ok)
	_, ok = history.Get("kept.md")
	assert.True(t, ok)
}
