package ordering

import "github.com/ldi/tasksync/pkg/models"

// SortStep is the spacing between renumbered siblings.
const SortStep = 100

// Move places movedID at the drop position of targetID with the requested
// indent and returns the tasks whose order, parent or calendar changed. The
// indent is capped at one level deeper than the new predecessor. A move that
// would put a task below its own descendant, or that names an unknown or
// hidden task, changes nothing and reports false.
func (f *Forest) Move(movedID, targetID string, indent int) ([]*models.Task, bool) {
	m, ok := f.byID[movedID]
	if !ok {
		return nil, false
	}
	tgt, ok := f.byID[targetID]
	if !ok {
		return nil, false
	}
	if tgt != m && f.isAncestor(m, tgt) {
		return nil, false
	}

	list := f.flatten(m)
	from, to := position(list, movedID), position(list, targetID)
	if from < 0 || to < 0 {
		return nil, false
	}

	if indent > list[to].Depth && to != from {
		// Nest directly under the target as its first visible child.
		moved := list[from]
		list = remove(list, from)
		if from < to {
			to--
		}
		list = insert(list, to+1, moved)
	} else {
		moved := list[from]
		list = insert(remove(list, from), to, moved)
	}

	pos := position(list, movedID)
	depth := 0
	if pos > 0 {
		depth = clamp(indent, 0, list[pos-1].Depth+1)
	}

	newParent := noParent
	if depth > 0 {
		for i := pos - 1; i >= 0; i-- {
			if list[i].Depth == depth-1 {
				newParent = f.byID[list[i].Task.ID]
				break
			}
		}
	}

	positions := make(map[int]int, len(list))
	for i, item := range list {
		positions[f.byID[item.Task.ID]] = i
	}

	var siblings []int
	for _, c := range f.children[newParent] {
		if c != m {
			siblings = append(siblings, c)
		}
	}
	at := 0
	for i, s := range siblings {
		if p, ok := positions[s]; ok && p < pos {
			at = i + 1
		}
	}
	siblings = insertIndex(siblings, at, m)

	changed := map[int]bool{}
	movedTask := f.tasks[m]

	parentUID := ""
	if newParent != noParent {
		parentUID = f.tasks[newParent].UID
	}
	if movedTask.ParentUID != parentUID {
		movedTask.ParentUID = parentUID
		changed[m] = true
	}

	for i, s := range siblings {
		order := int64(i+1) * SortStep
		if f.tasks[s].SortOrder != order {
			f.tasks[s].SortOrder = order
			changed[s] = true
		}
	}

	if newParent != noParent {
		p := f.tasks[newParent]
		if p.CalendarID != movedTask.CalendarID || p.AccountID != movedTask.AccountID {
			subtree := append([]*models.Task{movedTask}, f.Descendants(movedID)...)
			for _, t := range subtree {
				t.CalendarID = p.CalendarID
				t.AccountID = p.AccountID
				t.LocalOnly = p.LocalOnly
				changed[f.byID[t.ID]] = true
			}
		}
	}

	f.link()

	var out []*models.Task
	for i, t := range f.tasks {
		if changed[i] {
			t.Synced = false
			out = append(out, t)
		}
	}
	return out, true
}

func position(list []Item, id string) int {
	for i, item := range list {
		if item.Task.ID == id {
			return i
		}
	}
	return -1
}

func remove(list []Item, i int) []Item {
	return append(list[:i:i], list[i+1:]...)
}

func insert(list []Item, i int, item Item) []Item {
	if i >= len(list) {
		return append(list, item)
	}
	list = append(list[:i+1], list[i:]...)
	list[i] = item
	return list
}

func insertIndex(a []int, i int, v int) []int {
	if i >= len(a) {
		return append(a, v)
	}
	a = append(a[:i+1], a[i:]...)
	a[i] = v
	return a
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
