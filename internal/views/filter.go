package views

import (
	"sort"
	"strings"

	"taskflow/backend"
)

// Apply computes the view of tasks: status filter, then case-insensitive
// search over title and description, then sort. The input slice is not modified.
func Apply(tasks []backend.Task, opts Options) []backend.Task {
	filtered := FilterByStatus(tasks, opts.Status)
	filtered = FilterBySearch(filtered, opts.Search)
	return SortTasks(filtered, opts.Sort)
}

// FilterByStatus keeps tasks with the given status. StatusAll or empty keeps everything.
func FilterByStatus(tasks []backend.Task, status StatusFilter) []backend.Task {
	result := make([]backend.Task, 0, len(tasks))
	for _, t := range tasks {
		if status == "" || status == StatusAll || backend.TaskStatus(status) == t.Status {
			result = append(result, t)
		}
	}
	return result
}

// FilterBySearch keeps tasks whose title or description contains term,
// ignoring case. A blank term keeps everything.
func FilterBySearch(tasks []backend.Task, term string) []backend.Task {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return append([]backend.Task(nil), tasks...)
	}
	var result []backend.Task
	for _, t := range tasks {
		if strings.Contains(strings.ToLower(t.Title), term) ||
			strings.Contains(strings.ToLower(t.Description), term) {
			result = append(result, t)
		}
	}
	return result
}

// SortTasks returns a sorted copy. Ties fall back to id so the order does not
// depend on the input order.
func SortTasks(tasks []backend.Task, key SortKey) []backend.Task {
	result := append([]backend.Task(nil), tasks...)
	sort.SliceStable(result, func(i, j int) bool {
		return compareForSort(&result[i], &result[j], key) < 0
	})
	return result
}

// compareForSort returns -1 if a sorts before b, 1 if after, 0 if equal
func compareForSort(a, b *backend.Task, key SortKey) int {
	var cmp int
	switch key {
	case SortOldest:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	case SortTitle:
		cmp = strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	default:
		cmp = b.CreatedAt.Compare(a.CreatedAt)
	}
	if cmp != 0 {
		return cmp
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}

// CountByStatus tallies tasks per status.
func CountByStatus(tasks []backend.Task) map[backend.TaskStatus]int {
	counts := make(map[backend.TaskStatus]int, len(backend.AllStatuses))
	for _, t := range tasks {
		counts[t.Status]++
	}
	return counts
}
