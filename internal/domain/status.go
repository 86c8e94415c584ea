package domain

// Status is the lifecycle state of a queued job.
type Status string

// Job status constants
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Category names a family of media work. The set is closed.
type Category string

const (
	CategoryBackgroundRemoval Category = "bg-removal"
	CategoryDedup             Category = "dedup"
	CategoryDownloadVideo     Category = "download-video"
	CategoryDownloadAudio     Category = "download-audio"
)

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryBackgroundRemoval,
		CategoryDedup,
		CategoryDownloadVideo,
		CategoryDownloadAudio,
	}
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// TakesUpload reports whether the payload of c is a stored input file
// rather than a source URL.
func (c Category) TakesUpload() bool {
	return c == CategoryBackgroundRemoval || c == CategoryDedup
}

// ResultsSystem is the system key under which a guild registers the results
// channel for c.
func (c Category) ResultsSystem() string {
	return string(c) + ":results"
}
