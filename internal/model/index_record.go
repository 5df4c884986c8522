package model

const (
	IndexStatusReady   = "ready"
	IndexStatusInvalid = "invalid"
)

// IndexRecord is the per-user owner of the shared index and assistant.
// AssistantRef is only meaningful while IndexRef is set.
type IndexRecord struct {
	ID             string `json:"id" db:"id"`
	UserID         string `json:"user_id" db:"user_id"`
	IndexRef       string `json:"index_ref" db:"index_ref"`
	AssistantRef   string `json:"assistant_ref" db:"assistant_ref"`
	AssistantModel string `json:"assistant_model" db:"assistant_model"`
	Status         string `json:"status" db:"status"`
	DocumentCount  int    `json:"document_count" db:"document_count"`
	Ctime          int64  `json:"ctime" db:"ctime"`
	Mtime          int64  `json:"mtime" db:"mtime"`
}
