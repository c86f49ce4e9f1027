// Package reconcile merges a calendar's remote task set into the local store
// using last-writer-wins on ETags.
package reconcile

import "github.com/ldi/tasksync/pkg/models"

// Change pairs a local task with the remote version that replaces it.
type Change struct {
	Local  *models.Task
	Remote *models.Task
}

// Plan is the outcome of comparing local and remote tasks of one calendar.
// Every uid of either side lands in exactly one of Created, Updated,
// Unchanged or Deleted. Push is the subset of Unchanged that must be written
// to the server.
type Plan struct {
	Created   []*models.Task
	Updated   []Change
	Unchanged []*models.Task
	Deleted   []*models.Task
	Push      []*models.Task
}

// Partition compares the two sets by uid. A differing ETag means the server
// copy changed and it wins, even over unsynced local edits. Local tasks that
// were synced but are missing remotely were deleted on the server. Duplicate
// remote uids keep the first occurrence.
func Partition(local, remote []*models.Task) Plan {
	byUID := make(map[string]*models.Task, len(local))
	for _, t := range local {
		byUID[t.UID] = t
	}

	var p Plan
	seen := make(map[string]bool, len(remote))
	for _, r := range remote {
		if seen[r.UID] {
			continue
		}
		seen[r.UID] = true

		l, ok := byUID[r.UID]
		switch {
		case !ok:
			p.Created = append(p.Created, r)
		case l.ETag != r.ETag:
			p.Updated = append(p.Updated, Change{Local: l, Remote: r})
		default:
			p.keep(l)
		}
	}

	for _, l := range local {
		if seen[l.UID] {
			continue
		}
		if l.Synced && !l.LocalOnly {
			p.Deleted = append(p.Deleted, l)
			continue
		}
		p.keep(l)
	}

	return p
}

func (p *Plan) keep(t *models.Task) {
	p.Unchanged = append(p.Unchanged, t)
	if !t.Synced && !t.LocalOnly {
		p.Push = append(p.Push, t)
	}
}
