package sync

import (
	"context"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"
)

// DeletionPlan lists deletions inferred from the previous SyncState.
type DeletionPlan struct {
	// DeleteRemote holds paths deleted in the vault.
	DeleteRemote []string
	// DeleteLocal holds paths deleted on the remote.
	DeleteLocal []string
	// Forget holds paths gone from both sides.
	Forget []string
}

func (p *DeletionPlan) Empty() bool {
	return len(p.DeleteRemote) == 0 && len(p.DeleteLocal) == 0 && len(p.Forget) == 0
}

// PlanDeletions compares the paths tracked in prev against the current local
// and remote path sets. Only tracked paths can produce a deletion.
func PlanDeletions(prev SyncState, local, remote mapset.Set[string]) *DeletionPlan {
	plan := &DeletionPlan{}
	for path := range prev {
		inLocal := local.Contains(path)
		inRemote := remote.Contains(path)
		switch {
		case !inLocal && inRemote:
			plan.DeleteRemote = append(plan.DeleteRemote, path)
		case inLocal && !inRemote:
			plan.DeleteLocal = append(plan.DeleteLocal, path)
		case !inLocal && !inRemote:
			plan.Forget = append(plan.Forget, path)
		}
	}
	slices.Sort(plan.DeleteRemote)
	slices.Sort(plan.DeleteLocal)
	slices.Sort(plan.Forget)
	return plan
}

// DeletionPropagator applies a DeletionPlan.
type DeletionPropagator struct {
	xfer     *transfer
	history  *HistoryTracker
	useTrash bool
}

// Apply performs every deletion of plan, continuing past failures, and drops
// the forgotten paths from the history. It returns the number of paths
// deleted and one message per failure.
func (d *DeletionPropagator) Apply(ctx context.Context, plan *DeletionPlan) (int, []string) {
	deleted := 0
	var errs []string

	for _, p := range plan.DeleteRemote {
		if err := d.xfer.deleteRemote(ctx, p); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		deleted++
	}

	for _, p := range plan.DeleteLocal {
		if err := d.xfer.deleteLocal(ctx, p, d.useTrash); err != nil {
			errs = append(errs, err.Error())
			continue
		}
		deleted++
	}

	for _, p := range plan.Forget {
		d.history.Delete(p)
	}

	return deleted, errs
}
