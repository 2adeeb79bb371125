package views

import (
	"fmt"
	"strings"

	"taskflow/backend"
)

// DefaultDateFormat is the standard date format used throughout the views package
const DefaultDateFormat = "2006-01-02"

// StatusAll disables status filtering.
const StatusAll = "all"

// SortKey orders the derived view.
type SortKey string

const (
	SortNewest SortKey = "newest"
	SortOldest SortKey = "oldest"
	SortTitle  SortKey = "title"
)

// SortKeys lists the sort keys in cycling order.
var SortKeys = []SortKey{SortNewest, SortOldest, SortTitle}

// ParseSortKey validates a user-supplied sort key. Empty means newest.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortNewest:
		return SortNewest, nil
	case SortOldest:
		return SortOldest, nil
	case SortTitle:
		return SortTitle, nil
	}
	return "", fmt.Errorf("invalid sort %q: must be one of newest, oldest, title", s)
}

// Next returns the following sort key, wrapping around.
func (k SortKey) Next() SortKey {
	for i, s := range SortKeys {
		if s == k {
			return SortKeys[(i+1)%len(SortKeys)]
		}
	}
	return SortNewest
}

// StatusFilter is either StatusAll or a task status.
type StatusFilter string

// ParseStatusFilter accepts "all" or any spelling backend.ParseStatus accepts.
func ParseStatusFilter(s string) (StatusFilter, error) {
	if s == "" || strings.EqualFold(s, StatusAll) {
		return StatusAll, nil
	}
	st, err := backend.ParseStatus(s)
	if err != nil {
		return "", err
	}
	return StatusFilter(st), nil
}

// Next cycles all -> todo -> in-progress -> done -> all.
func (f StatusFilter) Next() StatusFilter {
	if f == StatusAll {
		return StatusFilter(backend.AllStatuses[0])
	}
	for i, st := range backend.AllStatuses {
		if StatusFilter(st) == f && i+1 < len(backend.AllStatuses) {
			return StatusFilter(backend.AllStatuses[i+1])
		}
	}
	return StatusAll
}

// Options are the inputs of the derived view besides the collection itself.
type Options struct {
	Status StatusFilter
	Search string
	Sort   SortKey
}

// DefaultOptions shows everything, newest first.
func DefaultOptions() Options {
	return Options{Status: StatusAll, Sort: SortNewest}
}
