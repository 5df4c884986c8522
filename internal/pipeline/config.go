package pipeline

import (
	"time"

	"github.com/CerberoGS/CATAI-sub000/internal/config"
)

const (
	defaultAttachPollAttempts    = 10
	defaultAttachPollInterval    = time.Second
	defaultRunPollAttempts       = 30
	defaultRunPollInitial        = time.Second
	defaultRunPollMax            = 8 * time.Second
	defaultRunPollFactor         = 1.5
	defaultMessageAttempts       = 5
	defaultMessageBackoff        = 2 * time.Second
	defaultAutoRecreateThreshold = 3
	defaultMaxAnswerBytes        = 1 << 20
	defaultRunListLimit          = 5
	defaultMessageListLimit      = 20
	passRequestAllowance         = 2 * time.Minute
)

// Config holds the poll ceilings, backoff schedule and self-healing policy of
// the Driver. Zero values fall back to defaults.
type Config struct {
	AssistantName string
	Model         string
	Instructions  string
	Prompt        string

	AttachPollAttempts int
	AttachPollInterval time.Duration

	RunPollAttempts int
	RunPollInitial  time.Duration
	RunPollMax      time.Duration
	RunPollFactor   float64

	MessageAttempts int
	MessageBackoff  time.Duration

	AutoRecreateThreshold int
	MaxAnswerBytes        int
}

// ConfigFrom builds a Config from the ai and extraction sections of the
// application config.
func ConfigFrom(aiCfg config.AIConfig, ext config.ExtractionConfig) Config {
	return Config{
		AssistantName:         aiCfg.AssistantName,
		Model:                 aiCfg.Model,
		Instructions:          aiCfg.Instructions,
		Prompt:                aiCfg.Prompt,
		AttachPollAttempts:    ext.AttachPollAttempts,
		AttachPollInterval:    time.Duration(ext.AttachPollIntervalMs) * time.Millisecond,
		RunPollAttempts:       ext.RunPollAttempts,
		RunPollInitial:        time.Duration(ext.RunPollInitialMs) * time.Millisecond,
		RunPollMax:            time.Duration(ext.RunPollMaxMs) * time.Millisecond,
		RunPollFactor:         ext.RunPollFactor,
		MessageAttempts:       ext.MessageAttempts,
		MessageBackoff:        time.Duration(ext.MessageBackoffMs) * time.Millisecond,
		AutoRecreateThreshold: ext.AutoRecreateThreshold,
		MaxAnswerBytes:        ext.MaxAnswerBytes,
	}
}

func (c Config) withDefaults() Config {
	if c.AssistantName == "" {
		c.AssistantName = "catai-document-analyst"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.AttachPollAttempts <= 0 {
		c.AttachPollAttempts = defaultAttachPollAttempts
	}
	if c.AttachPollInterval <= 0 {
		c.AttachPollInterval = defaultAttachPollInterval
	}
	if c.RunPollAttempts <= 0 {
		c.RunPollAttempts = defaultRunPollAttempts
	}
	if c.RunPollInitial <= 0 {
		c.RunPollInitial = defaultRunPollInitial
	}
	if c.RunPollMax <= 0 {
		c.RunPollMax = defaultRunPollMax
	}
	if c.RunPollMax < c.RunPollInitial {
		c.RunPollMax = c.RunPollInitial
	}
	if c.RunPollFactor < 1 {
		c.RunPollFactor = defaultRunPollFactor
	}
	if c.MessageAttempts <= 0 {
		c.MessageAttempts = defaultMessageAttempts
	}
	if c.MessageBackoff <= 0 {
		c.MessageBackoff = defaultMessageBackoff
	}
	if c.AutoRecreateThreshold <= 0 {
		c.AutoRecreateThreshold = defaultAutoRecreateThreshold
	}
	if c.MaxAnswerBytes <= 0 {
		c.MaxAnswerBytes = defaultMaxAnswerBytes
	}
	return c
}

// nextDelay grows d by the configured factor up to the ceiling.
func (c Config) nextDelay(d time.Duration) time.Duration {
	next := time.Duration(float64(d) * c.RunPollFactor)
	if next > c.RunPollMax {
		return c.RunPollMax
	}
	return next
}

// passBudget bounds one EnsureExtraction pass: every poll and backoff at its
// ceiling plus an allowance for the remote calls themselves.
func (c Config) passBudget() time.Duration {
	budget := passRequestAllowance
	budget += time.Duration(c.AttachPollAttempts) * c.AttachPollInterval
	budget += time.Duration(c.RunPollAttempts) * c.RunPollMax
	for attempt := 1; attempt < c.MessageAttempts; attempt++ {
		budget += c.MessageBackoff * time.Duration(1<<(attempt-1))
	}
	return budget
}
