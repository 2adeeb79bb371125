package cache

// Status describes where the task collection currently shown came from.
// It is recomputed on every load or mutation and never persisted.
type Status string

const (
	StatusIdle             Status = "idle"
	StatusFetching         Status = "fetching"
	StatusLoadedFromCache  Status = "loaded-from-cache"
	StatusLoadedFromRemote Status = "loaded-from-remote"
	StatusFallbackToCache  Status = "fallback-to-cache"
	StatusUpdated          Status = "updated"
	StatusError            Status = "error"
)

func (s Status) String() string {
	return string(s)
}

// Label is a short human description used in status bars.
func (s Status) Label() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching..."
	case StatusLoadedFromCache:
		return "from cache"
	case StatusLoadedFromRemote:
		return "from server"
	case StatusFallbackToCache:
		return "offline, cached"
	case StatusUpdated:
		return "updated"
	case StatusError:
		return "error"
	}
	return string(s)
}
