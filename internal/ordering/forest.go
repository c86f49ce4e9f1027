// Package ordering keeps a calendar's tasks in a strict depth-first order and
// recomputes parentage and sort positions after drag and drop.
package ordering

import (
	"sort"

	"github.com/ldi/tasksync/pkg/models"
)

const noParent = -1

// Forest is an arena of tasks linked by ParentUID. Tasks whose parent is
// unknown become roots, and parent cycles are broken at the first task
// encountered so every task is reachable exactly once.
type Forest struct {
	tasks    []*models.Task
	byID     map[string]int
	byUID    map[string]int
	parent   []int
	children map[int][]int
}

// New builds a forest over tasks. The forest keeps and mutates the given pointers.
func New(tasks []*models.Task) *Forest {
	f := &Forest{
		tasks: tasks,
		byID:  make(map[string]int, len(tasks)),
		byUID: make(map[string]int, len(tasks)),
	}
	for i, t := range tasks {
		f.byID[t.ID] = i
		f.byUID[t.UID] = i
	}
	f.link()
	return f
}

func (f *Forest) link() {
	f.parent = make([]int, len(f.tasks))
	f.children = make(map[int][]int)

	for i, t := range f.tasks {
		f.parent[i] = noParent
		if p, ok := f.byUID[t.ParentUID]; ok && t.ParentUID != "" && p != i {
			f.parent[i] = p
		}
	}

	// Any task not reachable from a root sits on a cycle; detach it.
	reached := make([]bool, len(f.tasks))
	for {
		f.children = make(map[int][]int)
		for i, p := range f.parent {
			f.children[p] = append(f.children[p], i)
		}
		var mark func(int)
		mark = func(i int) {
			reached[i] = true
			for _, c := range f.children[i] {
				if !reached[c] {
					mark(c)
				}
			}
		}
		for _, r := range f.children[noParent] {
			if !reached[r] {
				mark(r)
			}
		}

		broken := false
		for i := range f.tasks {
			if !reached[i] {
				f.parent[i] = noParent
				broken = true
				break
			}
		}
		if !broken {
			break
		}
	}

	for p := range f.children {
		f.sortSiblings(f.children[p])
	}
}

func (f *Forest) sortSiblings(ids []int) {
	sort.SliceStable(ids, func(a, b int) bool {
		ta, tb := f.tasks[ids[a]], f.tasks[ids[b]]
		if ta.SortOrder != tb.SortOrder {
			return ta.SortOrder < tb.SortOrder
		}
		if !ta.CreatedAt.Equal(tb.CreatedAt) {
			return ta.CreatedAt.Before(tb.CreatedAt)
		}
		return ta.UID < tb.UID
	})
}

// Task returns the task with the given local id, or nil.
func (f *Forest) Task(id string) *models.Task {
	if i, ok := f.byID[id]; ok {
		return f.tasks[i]
	}
	return nil
}

// Parent returns the effective parent of a task, or nil for roots.
func (f *Forest) Parent(id string) *models.Task {
	i, ok := f.byID[id]
	if !ok || f.parent[i] == noParent {
		return nil
	}
	return f.tasks[f.parent[i]]
}

// Children returns the ordered children of a task. An empty id returns the roots.
func (f *Forest) Children(id string) []*models.Task {
	p := noParent
	if id != "" {
		i, ok := f.byID[id]
		if !ok {
			return nil
		}
		p = i
	}
	out := make([]*models.Task, 0, len(f.children[p]))
	for _, c := range f.children[p] {
		out = append(out, f.tasks[c])
	}
	return out
}

// Descendants returns every task below id in depth-first order.
func (f *Forest) Descendants(id string) []*models.Task {
	i, ok := f.byID[id]
	if !ok {
		return nil
	}
	var out []*models.Task
	var walk func(int)
	walk = func(n int) {
		for _, c := range f.children[n] {
			out = append(out, f.tasks[c])
			walk(c)
		}
	}
	walk(i)
	return out
}

// isAncestor reports whether a is a strict ancestor of n.
func (f *Forest) isAncestor(a, n int) bool {
	for p := f.parent[n]; p != noParent; p = f.parent[p] {
		if p == a {
			return true
		}
	}
	return false
}

// Item is one row of a flattened forest.
type Item struct {
	Task        *models.Task `json:"task"`
	Depth       int          `json:"depth"`
	Ancestors   []string     `json:"ancestors,omitempty"`
	HasChildren bool         `json:"has_children"`
}

// Flatten lists tasks depth-first in sibling order, skipping the children of
// collapsed tasks.
func (f *Forest) Flatten() []Item {
	return f.flatten(noParent)
}

// FlattenAll is Flatten without collapsing.
func (f *Forest) FlattenAll() []Item {
	var out []Item
	f.walk(noParent, 0, nil, false, noParent, &out)
	return out
}

// flatten lists visible tasks, leaving out the descendants of skip.
func (f *Forest) flatten(skip int) []Item {
	var out []Item
	f.walk(noParent, 0, nil, true, skip, &out)
	return out
}

func (f *Forest) walk(parent, depth int, ancestors []string, collapse bool, skip int, out *[]Item) {
	for _, c := range f.children[parent] {
		t := f.tasks[c]
		*out = append(*out, Item{
			Task:        t,
			Depth:       depth,
			Ancestors:   ancestors,
			HasChildren: len(f.children[c]) > 0,
		})
		if c == skip || (collapse && t.IsCollapsed) {
			continue
		}
		next := append(append([]string(nil), ancestors...), t.ID)
		f.walk(c, depth+1, next, collapse, skip, out)
	}
}
