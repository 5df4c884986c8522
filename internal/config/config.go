package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port          int              `json:"port"`
	JWTSecret     string           `json:"jwt_secret"`
	JWTTTLHours   int              `json:"jwt_ttl_hours"`
	SecretKey     string           `json:"secret_key"`
	CORSAllowlist []string         `json:"cors_allowlist"`
	LogConfig     logger.LogConfig `json:"log_config"`
	Database      DatabaseConfig   `json:"database"`
	FileStore     FileStoreConfig  `json:"file_store"`
	AI            AIConfig         `json:"ai"`
	Extraction    ExtractionConfig `json:"extraction"`
	Direct        DirectConfig     `json:"direct"`
	Upload        UploadConfig     `json:"upload"`
	Schedule      ScheduleConfig   `json:"schedule"`
}

type DatabaseConfig struct {
	Driver   string `json:"driver"`
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider         string      `json:"provider"`
	Data             interface{} `json:"data"`
	Model            string      `json:"model"`
	AssistantName    string      `json:"assistant_name"`
	Instructions     string      `json:"instructions"`
	Prompt           string      `json:"prompt"`
	RequestTimeoutMs int64       `json:"request_timeout_ms"`
}

// ProviderArgs returns the provider data with request_timeout_ms applied as
// timeout_ms unless the data sets its own.
func (c AIConfig) ProviderArgs() map[string]interface{} {
	out := map[string]interface{}{}
	if c.Data != nil {
		if raw, err := json.Marshal(c.Data); err == nil {
			_ = json.Unmarshal(raw, &out)
		}
		if out == nil {
			out = map[string]interface{}{}
		}
	}
	if _, ok := out["timeout_ms"]; !ok && c.RequestTimeoutMs > 0 {
		out["timeout_ms"] = c.RequestTimeoutMs
	}
	return out
}

type ExtractionConfig struct {
	AttachPollAttempts    int     `json:"attach_poll_attempts"`
	AttachPollIntervalMs  int64   `json:"attach_poll_interval_ms"`
	RunPollAttempts       int     `json:"run_poll_attempts"`
	RunPollInitialMs      int64   `json:"run_poll_initial_ms"`
	RunPollMaxMs          int64   `json:"run_poll_max_ms"`
	RunPollFactor         float64 `json:"run_poll_factor"`
	MessageAttempts       int     `json:"message_attempts"`
	MessageBackoffMs      int64   `json:"message_backoff_ms"`
	AutoRecreateThreshold int     `json:"auto_recreate_threshold"`
	MaxAnswerBytes        int     `json:"max_answer_bytes"`
}

type DirectEntry struct {
	Provider string      `json:"provider"`
	Model    string      `json:"model"`
	Data     interface{} `json:"data"`
}

type DirectConfig struct {
	Prompt  string        `json:"prompt"`
	Entries []DirectEntry `json:"entries"`
}

type UploadConfig struct {
	MaxBytes   int64    `json:"max_bytes"`
	AllowedExt []string `json:"allowed_ext"`
}

type ScheduleConfig struct {
	ResumeSpec         string `json:"resume_spec"`
	ResumeDelaySeconds int64  `json:"resume_delay_seconds"`
	ResumeConcurrency  int    `json:"resume_concurrency"`
	ResumeBatch        int    `json:"resume_batch"`
	UsageCleanupSpec   string `json:"usage_cleanup_spec"`
	UsageKeepDays      int    `json:"usage_keep_days"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) normalize() error {
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.SecretKey == "" {
		return fmt.Errorf("secret_key is required")
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "":
		cfg.Database.Driver = "postgres"
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite")
	}
	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required for sqlite")
	}
	if cfg.Database.Driver == "postgres" && cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.AI.Provider == "" {
		cfg.AI.Provider = "openai"
	}
	if cfg.AI.Model == "" {
		cfg.AI.Model = "gpt-4o-mini"
	}
	if cfg.AI.AssistantName == "" {
		cfg.AI.AssistantName = "catai-document-analyst"
	}
	if cfg.AI.Instructions == "" {
		cfg.AI.Instructions = defaultInstructions
	}
	if cfg.AI.Prompt == "" {
		cfg.AI.Prompt = defaultPrompt
	}
	if cfg.AI.RequestTimeoutMs <= 0 {
		cfg.AI.RequestTimeoutMs = 60000
	}
	if cfg.Direct.Prompt == "" {
		cfg.Direct.Prompt = cfg.AI.Prompt
	}
	if cfg.Upload.MaxBytes <= 0 {
		cfg.Upload.MaxBytes = 10 * 1024 * 1024
	}
	if len(cfg.Upload.AllowedExt) == 0 {
		cfg.Upload.AllowedExt = []string{".pdf", ".txt", ".md", ".csv", ".doc", ".docx"}
	}
	if cfg.Schedule.ResumeSpec == "" {
		cfg.Schedule.ResumeSpec = "* * * * *"
	}
	if cfg.Schedule.ResumeDelaySeconds <= 0 {
		cfg.Schedule.ResumeDelaySeconds = 120
	}
	if cfg.Schedule.ResumeConcurrency <= 0 {
		cfg.Schedule.ResumeConcurrency = 4
	}
	if cfg.Schedule.ResumeBatch <= 0 {
		cfg.Schedule.ResumeBatch = 20
	}
	if cfg.Schedule.UsageCleanupSpec == "" {
		cfg.Schedule.UsageCleanupSpec = "30 3 * * *"
	}
	if cfg.Schedule.UsageKeepDays <= 0 {
		cfg.Schedule.UsageKeepDays = 90
	}
	return nil
}

const defaultInstructions = "You are a financial document analyst. Answer only from the attached documents using the file search tool. " +
	"When the documents do not contain the requested information, say so explicitly."

const defaultPrompt = "Analyze the attached document and return a JSON object with the fields " +
	"\"summary\", \"strategies\", \"risk_management\", \"recommendations\" and \"key_figures\"."
