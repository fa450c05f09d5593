package kb

// JobStatus is the lifecycle state reported for an ingestion job.
type JobStatus string

const (
	JobStarting   JobStatus = "STARTING"
	JobInProgress JobStatus = "IN_PROGRESS"
	JobComplete   JobStatus = "COMPLETE"
	JobFailed     JobStatus = "FAILED"
	JobStopping   JobStatus = "STOPPING"
	JobStopped    JobStatus = "STOPPED"
)

// Terminal reports whether no further transitions are expected.
func (s JobStatus) Terminal() bool {
	return s == JobComplete || s == JobFailed || s == JobStopped
}

// IngestionJob extracts, chunks, embeds and indexes a data source.
type IngestionJob struct {
	ID              string        `json:"ingestionJobId"`
	KnowledgeBaseID string        `json:"knowledgeBaseId"`
	DataSourceID    string        `json:"dataSourceId"`
	Status          JobStatus     `json:"status"`
	FailureReasons  []string      `json:"failureReasons,omitempty"`
	Statistics      JobStatistics `json:"statistics"`
}

// JobStatistics mirrors the document counters reported by the service.
type JobStatistics struct {
	Scanned  int64 `json:"scanned"`
	Indexed  int64 `json:"indexed"`
	Modified int64 `json:"modified"`
	Deleted  int64 `json:"deleted"`
	Failed   int64 `json:"failed"`
}
