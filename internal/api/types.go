package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Episode describes one episode in a transport-friendly format.
type Episode struct {
	ID               string `json:"id"`
	Source           string `json:"source"`
	Show             string `json:"show"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	ErrorMessage     string `json:"errorMessage,omitempty"`
	FeedURL          string `json:"feedUrl,omitempty"`
	EnclosureURL     string `json:"enclosureUrl,omitempty"`
	PublishedAt      string `json:"publishedAt,omitempty"`
	Language         string `json:"language,omitempty"`
	DetectedLanguage string `json:"detectedLanguage,omitempty"`
	AudioChecksum    string `json:"audioChecksum,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	UpdatedAt        string `json:"updatedAt,omitempty"`
	LastHeartbeat    string `json:"lastHeartbeat,omitempty"`
}

// HistoryRecord is one attempt of one step from an episode's processing log.
type HistoryRecord struct {
	Step              string   `json:"step"`
	Attempt           int      `json:"attempt"`
	Status            string   `json:"status"`
	ErrorKind         string   `json:"errorKind,omitempty"`
	ErrorMessage      string   `json:"errorMessage,omitempty"`
	ProducedArtifacts []string `json:"producedArtifacts,omitempty"`
	StartedAt         string   `json:"startedAt,omitempty"`
	FinishedAt        string   `json:"finishedAt,omitempty"`
}

// Artifact describes one published or staged step output.
type Artifact struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Checksum  string `json:"checksum,omitempty"`
	SizeBytes int64  `json:"sizeBytes"`
	State     string `json:"state"`
	Step      string `json:"step"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastEpisode *Episode       `json:"lastEpisode,omitempty"`
	StepHealth  []StepHealth   `json:"stepHealth"`
}

// StepHealth mirrors readiness reporting for pipeline steps.
type StepHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	DatabasePath string         `json:"databasePath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// EpisodeListResponse wraps a collection of episodes for API responses.
type EpisodeListResponse struct {
	Episodes []Episode `json:"episodes"`
}

// EpisodeResponse wraps a single episode.
type EpisodeResponse struct {
	Episode Episode `json:"episode"`
}

// HistoryResponse wraps an episode's processing history.
type HistoryResponse struct {
	EpisodeID string          `json:"episodeId"`
	Records   []HistoryRecord `json:"records"`
}

// StatsResponse provides a normalized episode stats payload.
type StatsResponse struct {
	Counts map[string]int `json:"counts"`
}
