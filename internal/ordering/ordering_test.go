package ordering

import (
	"strings"
	"testing"
	"time"

	"github.com/ldi/tasksync/pkg/models"
	"github.com/matryer/is"
)

func task(id, parent string, order int64) *models.Task {
	return &models.Task{
		ID:         id,
		UID:        "uid-" + id,
		Title:      id,
		ParentUID:  parentUID(parent),
		SortOrder:  order,
		Synced:     true,
		CalendarID: "cal-1",
		AccountID:  "acct-1",
	}
}

func parentUID(id string) string {
	if id == "" {
		return ""
	}
	return "uid-" + id
}

// outline renders the visible forest as "A B .C" where dots mark depth.
func outline(f *Forest) string {
	var parts []string
	for _, item := range f.Flatten() {
		parts = append(parts, strings.Repeat(".", item.Depth)+item.Task.ID)
	}
	return strings.Join(parts, " ")
}

func ids(tasks []*models.Task) string {
	var out []string
	for _, t := range tasks {
		out = append(out, t.ID)
	}
	return strings.Join(out, ",")
}

func TestFlatten(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("B", "", 200),
		task("A", "", 100),
		task("A2", "A", 200),
		task("A1", "A", 100),
		task("A1a", "A1", 100),
		task("orphan", "missing", 50),
	})
	is.Equal(outline(f), "orphan A .A1 ..A1a .A2 B")

	items := f.Flatten()
	is.Equal(items[3].Ancestors, []string{"A", "A1"})
	is.True(items[1].HasChildren)
	is.True(!items[3].HasChildren)

	f.Task("A1").IsCollapsed = true
	is.Equal(outline(f), "orphan A .A1 .A2 B")
	is.Equal(len(f.FlattenAll()), 6)
}

func TestFlattenTieBreak(t *testing.T) {
	is := is.New(t)

	now := time.Now()
	x, y, z := task("x", "", 100), task("y", "", 100), task("z", "", 100)
	x.CreatedAt = now.Add(time.Minute)
	y.CreatedAt = now
	z.CreatedAt = now
	f := New([]*models.Task{x, z, y})
	is.Equal(outline(f), "y z x")
}

func TestFlattenBreaksCycles(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "B", 100),
		task("B", "A", 200),
		task("C", "", 300),
		task("self", "self", 400),
	})
	items := f.FlattenAll()
	is.Equal(len(items), 4)
	seen := map[string]bool{}
	for _, item := range items {
		is.True(!seen[item.Task.ID])
		seen[item.Task.ID] = true
	}
}

func TestMoveNestUnderTarget(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 100),
		task("B", "", 200),
		task("C", "", 300),
	})

	changed, ok := f.Move("C", "B", 1)
	is.True(ok)
	is.Equal(f.Task("C").ParentUID, "uid-B")
	is.Equal(f.Task("C").SortOrder, int64(100))
	is.Equal(outline(f), "A B .C")
	is.Equal(ids(changed), "C")
	is.True(!f.Task("C").Synced)
	is.True(f.Task("A").Synced)
}

func TestMoveBecomesFirstChild(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 100),
		task("A1", "A", 100),
		task("A2", "A", 200),
		task("B", "", 200),
	})

	_, ok := f.Move("B", "A", 1)
	is.True(ok)
	is.Equal(outline(f), "A .B .A1 .A2")
	is.Equal(f.Task("B").SortOrder, int64(100))
	is.Equal(f.Task("A1").SortOrder, int64(200))
	is.Equal(f.Task("A2").SortOrder, int64(300))
}

func TestMoveDownAndUp(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 100),
		task("B", "", 200),
		task("C", "", 300),
		task("D", "", 400),
	})

	_, ok := f.Move("A", "C", 0)
	is.True(ok)
	is.Equal(outline(f), "B C A D")

	_, ok = f.Move("D", "B", 0)
	is.True(ok)
	is.Equal(outline(f), "D B C A")
	is.Equal(f.Task("D").SortOrder, int64(100))
	is.Equal(f.Task("A").SortOrder, int64(400))
}

func TestMoveCarriesSubtree(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 100),
		task("A1", "A", 100),
		task("B", "", 200),
	})

	_, ok := f.Move("A", "B", 0)
	is.True(ok)
	is.Equal(outline(f), "B A .A1")
	is.Equal(f.Task("A1").ParentUID, "uid-A")
}

func TestMoveOutdent(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 100),
		task("A1", "A", 100),
		task("A2", "A", 200),
		task("B", "", 200),
	})

	changed, ok := f.Move("A2", "A2", 0)
	is.True(ok)
	is.Equal(outline(f), "A .A1 A2 B")
	is.Equal(f.Task("A2").ParentUID, "")
	is.Equal(f.Task("A2").SortOrder, int64(200))
	is.Equal(f.Task("B").SortOrder, int64(300))
	is.Equal(ids(changed), "A2,B")
}

func TestMoveIndentCapped(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 100),
		task("B", "", 200),
		task("C", "", 300),
	})

	_, ok := f.Move("C", "C", 5)
	is.True(ok)
	is.Equal(outline(f), "A B .C")

	_, ok = f.Move("A", "A", 3)
	is.True(ok)
	is.Equal(f.Task("A").ParentUID, "")
}

func TestMoveRejectsCycle(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 100),
		task("A1", "A", 100),
		task("A1a", "A1", 100),
	})
	before := outline(f)

	changed, ok := f.Move("A", "A1a", 3)
	is.True(!ok)
	is.Equal(len(changed), 0)
	is.Equal(outline(f), before)
	is.Equal(f.Task("A").SortOrder, int64(100))
}

func TestMoveUnknownOrHidden(t *testing.T) {
	is := is.New(t)

	a := task("A", "", 100)
	a.IsCollapsed = true
	f := New([]*models.Task{a, task("A1", "A", 100), task("B", "", 200)})

	_, ok := f.Move("missing", "B", 0)
	is.True(!ok)
	_, ok = f.Move("A1", "B", 0)
	is.True(!ok)
}

func TestMoveSiblingStability(t *testing.T) {
	is := is.New(t)

	f := New([]*models.Task{
		task("A", "", 10),
		task("B", "", 20),
		task("C", "", 30),
		task("D", "", 40),
		task("E", "", 50),
	})

	_, ok := f.Move("E", "B", 0)
	is.True(ok)
	is.Equal(outline(f), "A E B C D")

	var last int64
	for _, item := range f.Flatten() {
		is.True(item.Task.SortOrder > last)
		last = item.Task.SortOrder
	}

	// Rebuilding from the persisted fields reproduces the same order.
	is.Equal(outline(New(f.tasks)), "A E B C D")
}

func TestMoveInheritsCalendar(t *testing.T) {
	is := is.New(t)

	other := task("P", "", 100)
	other.CalendarID = "cal-2"
	other.AccountID = "acct-2"
	f := New([]*models.Task{
		other,
		task("X", "", 200),
		task("X1", "X", 100),
	})

	changed, ok := f.Move("X", "P", 1)
	is.True(ok)
	is.Equal(f.Task("X").CalendarID, "cal-2")
	is.Equal(f.Task("X1").CalendarID, "cal-2")
	is.Equal(f.Task("X1").AccountID, "acct-2")
	is.Equal(ids(changed), "X,X1")
}
