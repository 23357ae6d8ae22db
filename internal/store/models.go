package store

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an episode.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message set when episodes are released due to
// daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status will not change without operator action.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Episode is one feed entry persisted in SQLite. The ID is derived from the
// source, show, and publication time, so re-ingesting a feed never creates
// duplicates.
type Episode struct {
	ID               string
	Source           string
	Show             string
	Title            string
	FeedURL          string
	EnclosureURL     string
	PublishedAt      time.Time
	Status           Status
	ErrorMessage     string
	AudioChecksum    string
	Language         string
	DetectedLanguage string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	LastHeartbeat    *time.Time
}

// IsProcessing returns true when a worker currently holds the episode.
func (e Episode) IsProcessing() bool {
	return e.Status == StatusProcessing
}

// StepStatus is the outcome recorded for one attempt of one step.
type StepStatus string

const (
	StepRunning   StepStatus = "running"
	StepSucceeded StepStatus = "success"
	StepFailed    StepStatus = "failure"
	StepSkipped   StepStatus = "skipped"
)

// StepRecord is one row of an episode's append-only processing history.
// A step attempt appends a running record when it starts and a separate
// success, failure, or skipped record when it finishes.
type StepRecord struct {
	ID                int64
	EpisodeID         string
	StepName          string
	Attempt           int
	Status            StepStatus
	ErrorKind         string
	ErrorMessage      string
	ProducedArtifacts []string
	StartedAt         time.Time
	FinishedAt        *time.Time
}

// ArtifactState tracks publication of an artifact index row.
type ArtifactState string

const (
	// ArtifactStaged marks a file that is on disk but whose producing step
	// has not finished. Staged rows are invisible to readers.
	ArtifactStaged ArtifactState = "staged"
	// ArtifactPublished marks a file whose producing step recorded success.
	ArtifactPublished ArtifactState = "published"
)

// Artifact is one named output of a step for one episode. The (episode, name)
// pair is unique; re-running a step replaces the row.
type Artifact struct {
	ID        int64
	EpisodeID string
	Name      string
	Path      string
	Checksum  string
	SizeBytes int64
	State     ArtifactState
	StepName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HealthSummary describes aggregated episode counts per lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
}

// DatabaseHealth captures diagnostic information about the episode database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalEpisodes    int
	Error            string
}
