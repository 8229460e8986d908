package task

import (
	"sort"
	"strings"
	"time"

	"github.com/trezcool/workdesk/core"
)

var (
	// StaffOrdering lists incomplete tasks first, soonest due first; tasks without due date come last.
	StaffOrdering = []core.DBOrdering{{Field: "is_complete", Ascending: true}, {Field: "due_date", Ascending: true}}

	// BoardOrdering is the admin board: newest first.
	BoardOrdering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
)

// Less returns the comparator matching the SQL ordering of orderings.
// Absent due dates sort as the greatest value, like NULLs in postgres.
func Less(orderings []core.DBOrdering) func(a, b Task) bool {
	return func(a, b Task) bool {
		for _, ord := range orderings {
			c := compare(a, b, ord.Field)
			if !ord.Ascending {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	}
}

// Sort sorts tasks by orderings, ties broken by ID.
func Sort(tasks []Task, orderings []core.DBOrdering) {
	less := Less(orderings)
	sort.SliceStable(tasks, func(i, j int) bool {
		if less(tasks[i], tasks[j]) {
			return true
		}
		if less(tasks[j], tasks[i]) {
			return false
		}
		return tasks[i].ID < tasks[j].ID
	})
}

func compare(a, b Task, field string) int {
	switch field {
	case "is_complete":
		return compareBool(a.IsComplete, b.IsComplete)
	case "due_date":
		return compareTimePtr(a.DueDate, b.DueDate)
	case "created_at":
		return compareTime(a.CreatedAt, b.CreatedAt)
	case "title":
		return strings.Compare(a.Title, b.Title)
	case "priority":
		return strings.Compare(a.Priority, b.Priority)
	case "type":
		return strings.Compare(a.Kind, b.Kind)
	case "assignee_id":
		return strings.Compare(a.AssigneeID, b.AssigneeID)
	case "id":
		return strings.Compare(a.ID, b.ID)
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

func compareTime(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

func compareTimePtr(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return compareTime(*a, *b)
}
