package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

func TestNewResultEntryFromJSONAnswer(t *testing.T) {
	doc := &model.Document{ID: "d1", UserID: "u1", Filename: "report.pdf"}
	answer := "```json\n{\"resumen\": \"Ventas crecen\", \"ticker\": \"ACME\", \"notes\": \"\", \"figures\": []}\n```"
	entry := NewResultEntry(doc, answer, 0)
	require.Equal(t, "report.pdf", entry.Title)
	require.Equal(t, "Ventas crecen", entry.Summary)
	require.Equal(t, []string{"extracted", "file", "ai", "resumen", "ticker"}, entry.Tags)
}

func TestNewResultEntryFromPlainAnswer(t *testing.T) {
	doc := &model.Document{ID: "d1", UserID: "u1", Filename: "notes.txt"}
	answer := strings.Repeat("é", 400)
	entry := NewResultEntry(doc, answer, 101)
	require.Len(t, entry.Content, 100)
	require.Equal(t, 50, len([]rune(entry.Content)))
	require.Equal(t, entry.Content, entry.Summary)
	require.Equal(t, baseTags, entry.Tags)

	long := strings.Repeat("a", 500)
	require.Len(t, NewResultEntry(doc, long, 0).Summary, summaryRunes)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		messages int
		steps    []ai.RunStep
		mime     string
		cause    string
		action   string
	}{
		{"empty", 0, nil, "application/pdf", CauseEmptyConversation, ActionRetry},
		{"scanned pdf", 1, []ai.RunStep{{Type: ai.StepToolCalls, ToolCalls: []string{"file_search"}}}, "application/pdf", CauseToolCallWithoutReply, ActionNeedsOCR},
		{"text doc", 1, []ai.RunStep{{Type: ai.StepToolCalls}}, "text/markdown", CauseToolCallWithoutReply, ActionRecreateAssistant},
		{"empty message", 2, []ai.RunStep{{Type: ai.StepToolCalls}, {Type: ai.StepMessageCreation}}, "application/pdf", CauseUnknown, ActionSimplifyInstructions},
		{"nothing", 1, nil, "application/pdf", CauseUnknown, ActionRetry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diag := &Diagnosis{MessageCount: tc.messages}
			classify(diag, tc.steps, tc.mime)
			require.Equal(t, tc.cause, diag.Cause)
			require.Equal(t, tc.action, diag.Action)
			require.NotEmpty(t, diag.Explanation)
		})
	}
}

func TestLatestAnswerFiltersByRun(t *testing.T) {
	msgs := []ai.Message{
		{Role: ai.RoleAssistant, RunID: "run_old", Text: "old", CreatedAt: 3},
		{Role: ai.RoleUser, Text: "prompt", CreatedAt: 1},
		{Role: ai.RoleAssistant, RunID: "run_new", Text: "  ", CreatedAt: 4},
		{Role: ai.RoleAssistant, RunID: "run_new", Text: "new", CreatedAt: 2},
	}
	require.Equal(t, "new", latestAnswer(msgs, "run_new"))
	require.Equal(t, "old", latestAnswer(msgs, "run_old"))
	require.Equal(t, "", latestAnswer(msgs, "run_other"))
}

func TestConfigDefaultsAndBackoff(t *testing.T) {
	cfg := Config{RunPollInitial: time.Second, RunPollMax: 3 * time.Second, RunPollFactor: 2}.withDefaults()
	require.Equal(t, defaultRunPollAttempts, cfg.RunPollAttempts)
	require.Equal(t, defaultAutoRecreateThreshold, cfg.AutoRecreateThreshold)
	require.Equal(t, 2*time.Second, cfg.nextDelay(time.Second))
	require.Equal(t, 3*time.Second, cfg.nextDelay(2*time.Second))

	cfg = Config{RunPollFactor: 0.5}.withDefaults()
	require.Equal(t, defaultRunPollFactor, cfg.RunPollFactor)
}
