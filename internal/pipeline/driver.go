package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
)

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type Deps struct {
	Documents DocumentStore
	Indexes   IndexStore
	Results   ResultStore
	Usage     UsageRecorder
	Source    Source
	Clients   ClientResolver
	NewID     func() string
}

type Option func(*Driver)

func WithSleeper(s Sleeper) Option {
	return func(d *Driver) {
		if s != nil {
			d.sleep = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// Driver runs the file, index, attach, assistant, thread, run and extract
// sequence for one document. Every call re-verifies what is persisted, so it
// is safe to invoke repeatedly from handlers and background jobs.
type Driver struct {
	cfg        Config
	deps       Deps
	sleep      Sleeper
	now        func() time.Time
	docFlight  singleflight.Group
	userFlight singleflight.Group
}

func NewDriver(cfg Config, deps Deps, opts ...Option) *Driver {
	d := &Driver{
		cfg:   cfg.withDefaults(),
		deps:  deps,
		sleep: sleepContext,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// view is the normalized set of shared refs for one invocation.
type view struct {
	IndexRef     string
	AssistantRef string
}

type pass struct {
	doc     *model.Document
	client  ai.IAssistantClient
	view    view
	prompt  string
	resumed bool
	logger  *zap.Logger
	// keepRun holds a finished run across an assistant change.
	keepRun bool
	// freshThread is set when the thread was created with the current prompt.
	freshThread bool
}

// EnsureExtraction drives docID to a completed, unresolved, pending or failed
// state. A non-nil error means nothing conclusive happened and the call can be
// repeated.
//
// Concurrent calls for the same document share one pass. The pass runs on a
// context detached from the first caller and bounded by the poll ceilings, so
// a caller that gives up only stops waiting.
func (d *Driver) EnsureExtraction(ctx context.Context, docID string, opts Options) (*Result, error) {
	ch := d.docFlight.DoChan(docID, func() (interface{}, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.passBudget())
		defer cancel()
		return d.ensure(passCtx, docID, opts)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		if out.Err != nil {
			return nil, out.Err
		}
		res := *(out.Val.(*Result))
		return &res, nil
	}
}

func (d *Driver) ensure(ctx context.Context, docID string, opts Options) (*Result, error) {
	doc, err := d.deps.Documents.GetDocument(ctx, docID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx).With(zap.String("document_id", doc.ID), zap.String("user_id", doc.UserID))
	if doc.Status == model.DocumentStatusCompleted && !opts.Force {
		if res, ok := d.cachedResult(ctx, doc); ok {
			return res, nil
		}
	}
	client, err := d.deps.Clients.ClientFor(ctx, doc.UserID)
	if err != nil {
		return nil, err
	}
	p := &pass{
		doc:    doc,
		client: client,
		prompt: d.threadPrompt(doc, opts.Prompt),
		logger: logger,
	}
	if err := d.reconcile(ctx, p); err != nil {
		return nil, err
	}
	if err := d.applyRecreatePolicy(ctx, p); err != nil {
		return nil, err
	}
	if res, err := d.provisionAll(ctx, p); res != nil || err != nil {
		return res, err
	}
	return d.execute(ctx, p)
}

func (d *Driver) cachedResult(ctx context.Context, doc *model.Document) (*Result, bool) {
	entry, err := d.deps.Results.GetByDocument(ctx, doc.UserID, doc.ID)
	if err != nil {
		if !errors.Is(err, appErr.ErrNotFound) {
			logutil.GetLogger(ctx).Warn("load cached result failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
		return nil, false
	}
	return &Result{
		DocumentID: doc.ID,
		Status:     StatusCompleted,
		Answer:     entry.Content,
		ResultID:   entry.ID,
		RunRef:     doc.RunRef,
	}, true
}

func (d *Driver) threadPrompt(doc *model.Document, override string) string {
	prompt := d.cfg.Prompt
	if override != "" {
		prompt = override
	}
	return fmt.Sprintf("%s\n\nDocument: %s", prompt, doc.Filename)
}

func (d *Driver) runInstructions(doc *model.Document) string {
	return fmt.Sprintf("Only use content from the file %q (file id %s) when answering.", doc.Filename, doc.FileRef)
}

// applyRecreatePolicy drops the user's assistant once a document has stayed
// unresolved for AutoRecreateThreshold consecutive attempts.
func (d *Driver) applyRecreatePolicy(ctx context.Context, p *pass) error {
	doc := p.doc
	if doc.Status != model.DocumentStatusUnresolved || doc.Attempts < d.cfg.AutoRecreateThreshold {
		return nil
	}
	if ref := p.view.AssistantRef; ref != "" {
		if err := d.deps.Indexes.InvalidateAssistant(ctx, doc.UserID, ref); err != nil {
			return fmt.Errorf("invalidate assistant: %w", err)
		}
		p.logger.Info("assistant invalidated after repeated unresolved attempts",
			zap.String("assistant_ref", ref), zap.Int("attempts", doc.Attempts))
	}
	p.view.AssistantRef = ""
	doc.AssistantRef = ""
	doc.RunRef = ""
	doc.Attempts = 0
	return d.save(ctx, p)
}

func (d *Driver) save(ctx context.Context, p *pass) error {
	p.doc.Mtime = d.now().Unix()
	if err := d.deps.Documents.UpdateDocument(ctx, p.doc); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// handleStepError turns a stage failure into either a failed Result or a
// retryable *Error.
func (d *Driver) handleStepError(ctx context.Context, p *pass, stage string, err error) (*Result, error) {
	if rej, ok := asRejection(stage, err); ok {
		p.logger.Warn("remote rejected request", zap.String("stage", rej.stage), zap.String("reason", rej.reason))
		return d.finishFailed(ctx, p, rej.reason)
	}
	var pErr *Error
	if !errors.As(err, &pErr) {
		var aiErr *ai.Error
		if !errors.As(err, &aiErr) && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", stage, err)
		}
		pErr = stageError(stage, err)
	}
	p.logger.Warn("extraction interrupted", zap.String("stage", pErr.Stage), zap.String("kind", string(pErr.Kind)), zap.Error(pErr.Err))
	p.doc.LastError = pErr.Error()
	if saveErr := d.save(ctx, p); saveErr != nil {
		p.logger.Error("persist last error failed", zap.Error(saveErr))
	}
	return nil, pErr
}

func (d *Driver) finishFailed(ctx context.Context, p *pass, reason string) (*Result, error) {
	p.doc.Status = model.DocumentStatusFailed
	p.doc.LastError = reason
	if err := d.save(ctx, p); err != nil {
		return nil, err
	}
	return &Result{
		DocumentID: p.doc.ID,
		Status:     StatusFailed,
		RunRef:     p.doc.RunRef,
		Reason:     reason,
		Resumed:    p.resumed,
	}, nil
}
