package model

type UserAPIKey struct {
	UserID   string `json:"user_id" db:"user_id"`
	Provider string `json:"provider" db:"provider"`
	KeyEnc   string `json:"-" db:"key_enc"`
	Ctime    int64  `json:"ctime" db:"ctime"`
	Mtime    int64  `json:"mtime" db:"mtime"`
}

type UserSettings struct {
	UserID           string `json:"user_id" db:"user_id"`
	ExtractionPrompt string `json:"extraction_prompt" db:"extraction_prompt"`
	Mtime            int64  `json:"mtime" db:"mtime"`
}
