package pipeline_test

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
)

type fakeRun struct {
	run    ai.RemoteRun
	script []ai.RunStatus
	polls  int
}

// fakeClient is an in-memory assistant service. Runs advance one scripted
// status per GetRun.
type fakeClient struct {
	mu  sync.Mutex
	seq int

	files       map[string]*ai.RemoteFile
	indexes     map[string]*ai.RemoteIndex
	attachments map[string]*ai.Attachment
	assistants  map[string]*ai.RemoteAssistant
	threads     map[string]bool
	runs        map[string]*fakeRun
	messages    map[string][]ai.Message
	steps       map[string][]ai.RunStep
	calls       map[string]int

	runScript      []ai.RunStatus
	answer         string
	answerSteps    []ai.RunStep
	dropMessages   bool
	attachFailWith string
	// attachStuck keeps attachments in progress forever.
	attachStuck bool
	// ghostIndexes makes created indexes vanish before they can be used.
	ghostIndexes bool
	// racingRun makes CreateRun lose to a run started by someone else.
	racingRun bool
	// failures are returned once by the named operation.
	failures map[string]error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		files:       map[string]*ai.RemoteFile{},
		indexes:     map[string]*ai.RemoteIndex{},
		attachments: map[string]*ai.Attachment{},
		assistants:  map[string]*ai.RemoteAssistant{},
		threads:     map[string]bool{},
		runs:        map[string]*fakeRun{},
		messages:    map[string][]ai.Message{},
		steps:       map[string][]ai.RunStep{},
		calls:       map[string]int{},
		failures:    map[string]error{},
		runScript:   []ai.RunStatus{ai.RunInProgress, ai.RunCompleted},
		answer:      "the answer",
	}
}

func (c *fakeClient) nextID(prefix string) string {
	c.seq++
	return fmt.Sprintf("%s_%d", prefix, c.seq)
}

func (c *fakeClient) count(op string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[op]
}

func (c *fakeClient) creations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, op := range []string{"upload_file", "create_index", "attach_file", "create_assistant", "create_thread", "create_run"} {
		total += c.calls[op]
	}
	return total
}

func notFound(op string) error {
	return &ai.Error{Op: op, Kind: ai.KindNotFound, StatusCode: 404, Message: "not found"}
}

func unavailable(op string) error {
	return &ai.Error{Op: op, Kind: ai.KindTransient, StatusCode: 503, Message: "service unavailable"}
}

func (c *fakeClient) failOnce(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures[op] = err
}

func (c *fakeClient) takeFailureLocked(op string) error {
	err, ok := c.failures[op]
	if !ok {
		return nil
	}
	delete(c.failures, op)
	return err
}

func (c *fakeClient) Name() string { return "fake" }

func (c *fakeClient) UploadFile(ctx context.Context, in ai.UploadInput) (*ai.RemoteFile, error) {
	data, err := io.ReadAll(in.Reader)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["upload_file"]++
	if err := c.takeFailureLocked("upload_file"); err != nil {
		return nil, err
	}
	f := &ai.RemoteFile{ID: c.nextID("file"), Filename: in.Filename, Purpose: "assistants", Status: "processed", Bytes: int64(len(data))}
	c.files[f.ID] = f
	return f, nil
}

func (c *fakeClient) GetFile(ctx context.Context, fileID string) (*ai.RemoteFile, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[fileID]
	if !ok {
		return nil, notFound("get_file")
	}
	cp := *f
	return &cp, nil
}

func (c *fakeClient) CreateIndex(ctx context.Context, name string) (*ai.RemoteIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["create_index"]++
	idx := &ai.RemoteIndex{ID: c.nextID("vs"), Name: name, Status: "completed"}
	if !c.ghostIndexes {
		c.indexes[idx.ID] = idx
	}
	return idx, nil
}

func (c *fakeClient) GetIndex(ctx context.Context, indexID string) (*ai.RemoteIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx, ok := c.indexes[indexID]
	if !ok {
		return nil, notFound("get_index")
	}
	cp := *idx
	return &cp, nil
}

func (c *fakeClient) AttachFile(ctx context.Context, indexID, fileID string) (*ai.Attachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["attach_file"]++
	if _, ok := c.indexes[indexID]; !ok {
		return nil, notFound("attach_file")
	}
	if _, ok := c.files[fileID]; !ok {
		return nil, notFound("attach_file")
	}
	att := &ai.Attachment{IndexID: indexID, FileID: fileID, Status: ai.AttachmentInProgress}
	c.attachments[indexID+"/"+fileID] = att
	cp := *att
	return &cp, nil
}

func (c *fakeClient) GetAttachment(ctx context.Context, indexID, fileID string) (*ai.Attachment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	att, ok := c.attachments[indexID+"/"+fileID]
	if !ok {
		return nil, notFound("get_attachment")
	}
	if att.Status == ai.AttachmentInProgress && !c.attachStuck {
		if c.attachFailWith != "" {
			att.Status = ai.AttachmentFailed
			att.LastError = c.attachFailWith
		} else {
			att.Status = ai.AttachmentCompleted
		}
	}
	cp := *att
	return &cp, nil
}

func (c *fakeClient) CreateAssistant(ctx context.Context, spec ai.AssistantSpec) (*ai.RemoteAssistant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["create_assistant"]++
	if err := c.takeFailureLocked("create_assistant"); err != nil {
		return nil, err
	}
	a := &ai.RemoteAssistant{ID: c.nextID("asst"), Model: spec.Model, IndexIDs: []string{spec.IndexID}}
	c.assistants[a.ID] = a
	return a, nil
}

func (c *fakeClient) GetAssistant(ctx context.Context, assistantID string) (*ai.RemoteAssistant, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.assistants[assistantID]
	if !ok {
		return nil, notFound("get_assistant")
	}
	cp := *a
	return &cp, nil
}

func (c *fakeClient) CreateThread(ctx context.Context, prompt string) (*ai.RemoteThread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["create_thread"]++
	if err := c.takeFailureLocked("create_thread"); err != nil {
		return nil, err
	}
	id := c.nextID("thread")
	c.threads[id] = true
	c.messages[id] = append(c.messages[id], ai.Message{ID: c.nextID("msg"), Role: ai.RoleUser, Text: prompt, CreatedAt: int64(c.seq)})
	return &ai.RemoteThread{ID: id}, nil
}

func (c *fakeClient) GetThread(ctx context.Context, threadID string) (*ai.RemoteThread, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.threads[threadID] {
		return nil, notFound("get_thread")
	}
	return &ai.RemoteThread{ID: threadID}, nil
}

func (c *fakeClient) AddMessage(ctx context.Context, threadID, text string) (*ai.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["add_message"]++
	if !c.threads[threadID] {
		return nil, notFound("add_message")
	}
	if r := c.activeRunLocked(threadID); r != nil {
		return nil, &ai.Error{Op: "add_message", Kind: ai.KindConflict, StatusCode: 400, Message: "Can't add messages while a run " + r.run.ID + " is active"}
	}
	msg := ai.Message{ID: c.nextID("msg"), Role: ai.RoleUser, Text: text, CreatedAt: int64(c.seq)}
	c.messages[threadID] = append(c.messages[threadID], msg)
	return &msg, nil
}

// userMessages returns the user texts posted to a thread, oldest first.
func (c *fakeClient) userMessages(threadID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.messages[threadID] {
		if m.Role == ai.RoleUser {
			out = append(out, m.Text)
		}
	}
	return out
}

func (c *fakeClient) activeRunLocked(threadID string) *fakeRun {
	for _, r := range c.runs {
		if r.run.ThreadID == threadID && r.run.Status.Active() {
			return r
		}
	}
	return nil
}

func (c *fakeClient) startRunLocked(threadID, assistantID string) *fakeRun {
	r := &fakeRun{
		run:    ai.RemoteRun{ID: c.nextID("run"), ThreadID: threadID, AssistantID: assistantID, Model: "gpt-test", Status: ai.RunQueued},
		script: append([]ai.RunStatus(nil), c.runScript...),
	}
	c.runs[r.run.ID] = r
	return r
}

func (c *fakeClient) CreateRun(ctx context.Context, threadID, assistantID, instructions string) (*ai.RemoteRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls["create_run"]++
	if !c.threads[threadID] {
		return nil, notFound("create_run")
	}
	if c.racingRun {
		c.racingRun = false
		c.startRunLocked(threadID, assistantID)
	}
	if r := c.activeRunLocked(threadID); r != nil {
		return nil, &ai.Error{Op: "create_run", Kind: ai.KindConflict, StatusCode: 400, Message: "Thread already has an active run " + r.run.ID}
	}
	r := c.startRunLocked(threadID, assistantID)
	cp := r.run
	return &cp, nil
}

func (c *fakeClient) runAssistant(runID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runs[runID].run.AssistantID
}

func (c *fakeClient) runCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.runs)
}

func (c *fakeClient) GetRun(ctx context.Context, threadID, runID string) (*ai.RemoteRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.runs[runID]
	if !ok || r.run.ThreadID != threadID {
		return nil, notFound("get_run")
	}
	if r.run.Status.Active() && r.polls < len(r.script) {
		c.setStatusLocked(r, r.script[r.polls])
		r.polls++
	}
	cp := r.run
	return &cp, nil
}

// setStatus forces a run into status, producing its answer on completion.
func (c *fakeClient) setStatus(runID string, status ai.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStatusLocked(c.runs[runID], status)
}

func (c *fakeClient) setStatusLocked(r *fakeRun, status ai.RunStatus) {
	r.run.Status = status
	if status != ai.RunCompleted {
		return
	}
	r.run.Usage = ai.TokenUsage{InputTokens: 100, OutputTokens: 20}
	c.steps[r.run.ID] = c.answerSteps
	if c.answer != "" {
		c.messages[r.run.ThreadID] = append(c.messages[r.run.ThreadID], ai.Message{
			ID: c.nextID("msg"), Role: ai.RoleAssistant, RunID: r.run.ID, Text: c.answer, CreatedAt: int64(c.seq),
		})
	}
}

func (c *fakeClient) ListRuns(ctx context.Context, threadID string, limit int) ([]ai.RemoteRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []ai.RemoteRun
	for _, r := range c.runs {
		if r.run.ThreadID == threadID {
			out = append(out, r.run)
		}
	}
	return out, nil
}

func (c *fakeClient) ListMessages(ctx context.Context, threadID string, limit int) ([]ai.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropMessages {
		return nil, nil
	}
	msgs := c.messages[threadID]
	out := make([]ai.Message, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (c *fakeClient) ListRunSteps(ctx context.Context, threadID, runID string) ([]ai.RunStep, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps[runID], nil
}

func (c *fakeClient) dropIndex(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.indexes, id)
}

func (c *fakeClient) dropFile(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.files, id)
}

func (c *fakeClient) dropThread(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.threads, id)
}

func (c *fakeClient) dropAssistant(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.assistants, id)
}
