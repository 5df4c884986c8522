package model

type KnowledgeEntry struct {
	ID           string   `json:"id" db:"id"`
	UserID       string   `json:"user_id" db:"user_id"`
	DocumentID   string   `json:"document_id" db:"document_id"`
	Source       string   `json:"source" db:"source"`
	Title        string   `json:"title" db:"title"`
	Content      string   `json:"content" db:"content"`
	Summary      string   `json:"summary" db:"summary"`
	TagsJSON     string   `json:"-" db:"tags"`
	Tags         []string `json:"tags" db:"-"`
	IndexRef     string   `json:"index_ref" db:"index_ref"`
	AssistantRef string   `json:"assistant_ref" db:"assistant_ref"`
	ThreadRef    string   `json:"thread_ref" db:"thread_ref"`
	RunRef       string   `json:"run_ref" db:"run_ref"`
	Model        string   `json:"model" db:"model"`
	Ctime        int64    `json:"ctime" db:"ctime"`
	Mtime        int64    `json:"mtime" db:"mtime"`
}
