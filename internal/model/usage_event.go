package model

const (
	UsageStatusOK    = "ok"
	UsageStatusError = "error"
)

type UsageEvent struct {
	ID           string `json:"id" db:"id"`
	UserID       string `json:"user_id" db:"user_id"`
	DocumentID   string `json:"document_id" db:"document_id"`
	Provider     string `json:"provider" db:"provider"`
	Model        string `json:"model" db:"model"`
	RequestKind  string `json:"request_kind" db:"request_kind"`
	RequestID    string `json:"request_id" db:"request_id"`
	LatencyMs    int64  `json:"latency_ms" db:"latency_ms"`
	InputTokens  int64  `json:"input_tokens" db:"input_tokens"`
	OutputTokens int64  `json:"output_tokens" db:"output_tokens"`
	Status       string `json:"status" db:"status"`
	ErrorMessage string `json:"error_message" db:"error_message"`
	Ctime        int64  `json:"ctime" db:"ctime"`
}

type UsageTotals struct {
	Events       int64 `json:"events" db:"events"`
	InputTokens  int64 `json:"input_tokens" db:"input_tokens"`
	OutputTokens int64 `json:"output_tokens" db:"output_tokens"`
}
