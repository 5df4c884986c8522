package model

const (
	DocumentStatusPending    = "pending"
	DocumentStatusInProgress = "in_progress"
	DocumentStatusCompleted  = "completed"
	DocumentStatusUnresolved = "unresolved"
	DocumentStatusFailed     = "failed"
)

// Document is one uploaded file and the remote resources it currently
// believes are valid. IndexRef and AssistantRef are snapshots of what the
// document was last attached to and run with; the IndexRecord owns the
// authoritative values.
type Document struct {
	ID           string `json:"id" db:"id"`
	UserID       string `json:"user_id" db:"user_id"`
	Filename     string `json:"filename" db:"filename"`
	StorageKey   string `json:"-" db:"storage_key"`
	MimeType     string `json:"mime_type" db:"mime_type"`
	Size         int64  `json:"size" db:"size"`
	Status       string `json:"status" db:"status"`
	Attempts     int    `json:"attempts" db:"attempts"`
	FileRef      string `json:"file_ref" db:"file_ref"`
	IndexRef     string `json:"index_ref" db:"index_ref"`
	AssistantRef string `json:"assistant_ref" db:"assistant_ref"`
	ThreadRef    string `json:"thread_ref" db:"thread_ref"`
	RunRef       string `json:"run_ref" db:"run_ref"`
	LastError    string `json:"last_error" db:"last_error"`
	Diagnosis    string `json:"diagnosis,omitempty" db:"diagnosis"`
	ResultID     string `json:"result_id" db:"result_id"`
	Ctime        int64  `json:"ctime" db:"ctime"`
	Mtime        int64  `json:"mtime" db:"mtime"`
}
