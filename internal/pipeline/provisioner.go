package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
	"github.com/CerberoGS/CATAI-sub000/internal/model"
)

type provisionStep struct {
	stage string
	fn    func(ctx context.Context, p *pass) error
}

// provisionAll verifies or creates every resource in dependency order. A ref
// that disappears between verification and use gets one more full pass.
func (d *Driver) provisionAll(ctx context.Context, p *pass) (*Result, error) {
	var (
		stage string
		err   error
	)
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			p.logger.Warn("stale remote reference, re-verifying", zap.String("stage", stage), zap.Error(err))
			if err = d.reconcile(ctx, p); err != nil {
				return nil, err
			}
		}
		stage, err = d.provision(ctx, p)
		if err == nil {
			return nil, nil
		}
		if !ai.IsNotFound(err) {
			break
		}
	}
	return d.handleStepError(ctx, p, stage, err)
}

func (d *Driver) provision(ctx context.Context, p *pass) (string, error) {
	steps := []provisionStep{
		{StageFile, d.ensureFile},
		{StageIndex, d.ensureIndex},
		{StageAttach, d.ensureAttachment},
		{StageAssistant, d.ensureAssistant},
		{StageThread, d.ensureThread},
	}
	for _, step := range steps {
		if err := step.fn(ctx, p); err != nil {
			return step.stage, err
		}
	}
	return "", nil
}

func fileUsable(f *ai.RemoteFile, doc *model.Document) bool {
	switch strings.ToLower(f.Status) {
	case "error", "deleted":
		return false
	}
	if f.Purpose != "" && f.Purpose != "assistants" {
		return false
	}
	if f.Bytes > 0 && doc.Size > 0 && f.Bytes != doc.Size {
		return false
	}
	return true
}

func (d *Driver) ensureFile(ctx context.Context, p *pass) error {
	doc := p.doc
	if doc.FileRef != "" {
		f, err := p.client.GetFile(ctx, doc.FileRef)
		if err != nil && !ai.IsNotFound(err) {
			return err
		}
		if err == nil && fileUsable(f, doc) {
			return nil
		}
		p.logger.Info("file reference invalid, re-uploading", zap.String("file_ref", doc.FileRef))
		doc.FileRef = ""
		doc.IndexRef = ""
		if err := d.save(ctx, p); err != nil {
			return err
		}
	}
	rc, err := d.deps.Source.Open(ctx, doc)
	if err != nil {
		return fmt.Errorf("open document source: %w", err)
	}
	defer rc.Close()
	start := d.now()
	f, err := p.client.UploadFile(ctx, ai.UploadInput{
		Filename:    doc.Filename,
		ContentType: doc.MimeType,
		Size:        doc.Size,
		Reader:      rc,
	})
	d.track(ctx, p, start, usageNote{kind: "upload_file", requestID: refOf(f), err: err})
	if err != nil {
		return err
	}
	doc.FileRef = f.ID
	p.logger.Info("file uploaded", zap.String("file_ref", f.ID))
	return d.save(ctx, p)
}

func refOf(v interface{}) string {
	switch r := v.(type) {
	case *ai.RemoteFile:
		if r != nil {
			return r.ID
		}
	case *ai.RemoteIndex:
		if r != nil {
			return r.ID
		}
	case *ai.Attachment:
		if r != nil {
			return r.FileID
		}
	case *ai.RemoteAssistant:
		if r != nil {
			return r.ID
		}
	case *ai.RemoteThread:
		if r != nil {
			return r.ID
		}
	case *ai.RemoteRun:
		if r != nil {
			return r.ID
		}
	}
	return ""
}

func (d *Driver) ensureIndex(ctx context.Context, p *pass) error {
	userID := p.doc.UserID
	if ref := p.view.IndexRef; ref != "" {
		idx, err := p.client.GetIndex(ctx, ref)
		if err != nil && !ai.IsNotFound(err) {
			return err
		}
		if err == nil && !strings.EqualFold(idx.Status, "expired") {
			return nil
		}
		p.logger.Warn("index reference invalid, recreating index and assistant", zap.String("index_ref", ref))
		if err := d.invalidateIndex(ctx, p, ref); err != nil {
			return err
		}
	}
	ref, created, err := d.createIndex(ctx, p)
	if err != nil {
		return err
	}
	if !created {
		if _, err := p.client.GetIndex(ctx, ref); err != nil {
			if ai.IsNotFound(err) {
				if invErr := d.deps.Indexes.InvalidateIndex(ctx, userID, ref); invErr != nil {
					return invErr
				}
			}
			return err
		}
	}
	p.view = view{IndexRef: ref}
	return nil
}

// invalidateIndex clears the index and everything bound to it.
func (d *Driver) invalidateIndex(ctx context.Context, p *pass, ref string) error {
	if err := d.deps.Indexes.InvalidateIndex(ctx, p.doc.UserID, ref); err != nil {
		return fmt.Errorf("invalidate index: %w", err)
	}
	p.view = view{}
	p.doc.IndexRef = ""
	p.doc.AssistantRef = ""
	p.doc.RunRef = ""
	return d.save(ctx, p)
}

type createdRef struct {
	ref     string
	created bool
}

// createIndex creates the user's index unless another caller already did.
// Losing the compare-and-set means the winner's index is adopted.
func (d *Driver) createIndex(ctx context.Context, p *pass) (string, bool, error) {
	userID := p.doc.UserID
	v, err, _ := d.userFlight.Do("index:"+userID, func() (interface{}, error) {
		rec, err := d.deps.Indexes.GetIndexRecord(ctx, userID)
		if err != nil {
			return nil, err
		}
		if rec.IndexRef != "" {
			return createdRef{ref: rec.IndexRef}, nil
		}
		start := d.now()
		idx, err := p.client.CreateIndex(ctx, "catai-"+userID)
		d.track(ctx, p, start, usageNote{kind: "create_index", requestID: refOf(idx), err: err})
		if err != nil {
			return nil, err
		}
		ok, err := d.deps.Indexes.ClaimIndexRef(ctx, userID, "", idx.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			p.logger.Info("index created", zap.String("index_ref", idx.ID))
			return createdRef{ref: idx.ID, created: true}, nil
		}
		rec, err = d.deps.Indexes.GetIndexRecord(ctx, userID)
		if err != nil {
			return nil, err
		}
		p.logger.Warn("lost index creation race, adopting winner",
			zap.String("orphan_index_ref", idx.ID), zap.String("index_ref", rec.IndexRef))
		if rec.IndexRef == "" {
			return nil, &Error{Kind: KindConcurrency, Stage: StageIndex, Err: fmt.Errorf("index record changed concurrently")}
		}
		return createdRef{ref: rec.IndexRef}, nil
	})
	if err != nil {
		return "", false, err
	}
	out := v.(createdRef)
	return out.ref, out.created, nil
}

func (d *Driver) ensureAttachment(ctx context.Context, p *pass) error {
	doc := p.doc
	indexRef := p.view.IndexRef
	att, err := p.client.GetAttachment(ctx, indexRef, doc.FileRef)
	if err != nil && !ai.IsNotFound(err) {
		return err
	}
	attached := false
	if err != nil {
		start := d.now()
		att, err = p.client.AttachFile(ctx, indexRef, doc.FileRef)
		d.track(ctx, p, start, usageNote{kind: "attach_file", requestID: refOf(att), err: err})
		if err != nil {
			return err
		}
		attached = true
	}
	if err := d.awaitAttachment(ctx, p, indexRef, att); err != nil {
		return err
	}
	if attached {
		if err := d.deps.Indexes.AddDocumentCount(ctx, doc.UserID, 1); err != nil {
			p.logger.Warn("update index document count failed", zap.Error(err))
		}
	}
	if doc.IndexRef == indexRef {
		return nil
	}
	doc.IndexRef = indexRef
	return d.save(ctx, p)
}

func (d *Driver) awaitAttachment(ctx context.Context, p *pass, indexRef string, att *ai.Attachment) error {
	for polls := 0; ; polls++ {
		switch att.Status {
		case ai.AttachmentCompleted:
			return nil
		case ai.AttachmentFailed, ai.AttachmentCancelled:
			reason := att.LastError
			if reason == "" {
				reason = "attachment " + string(att.Status)
			}
			return rejected(StageAttach, reason)
		}
		if polls >= d.cfg.AttachPollAttempts {
			return rejected(StageAttach, fmt.Sprintf("attachment still %s after %d polls", att.Status, polls))
		}
		if err := d.sleep(ctx, d.cfg.AttachPollInterval); err != nil {
			return err
		}
		next, err := p.client.GetAttachment(ctx, indexRef, p.doc.FileRef)
		if err != nil {
			return err
		}
		att = next
	}
}

func containsRef(refs []string, ref string) bool {
	for _, r := range refs {
		if r == ref {
			return true
		}
	}
	return false
}

func (d *Driver) ensureAssistant(ctx context.Context, p *pass) error {
	userID := p.doc.UserID
	if ref := p.view.AssistantRef; ref != "" {
		a, err := p.client.GetAssistant(ctx, ref)
		if err != nil && !ai.IsNotFound(err) {
			return err
		}
		if err == nil && containsRef(a.IndexIDs, p.view.IndexRef) {
			return d.bindAssistant(ctx, p, ref)
		}
		p.logger.Warn("assistant reference invalid, recreating", zap.String("assistant_ref", ref))
		if err := d.deps.Indexes.InvalidateAssistant(ctx, userID, ref); err != nil {
			return fmt.Errorf("invalidate assistant: %w", err)
		}
		p.view.AssistantRef = ""
		if err := d.unbindAssistant(ctx, p); err != nil {
			return err
		}
	}
	ref, created, err := d.createAssistant(ctx, p)
	if err != nil {
		return err
	}
	if !created {
		a, err := p.client.GetAssistant(ctx, ref)
		if err == nil && !containsRef(a.IndexIDs, p.view.IndexRef) {
			err = &ai.Error{Op: "get_assistant", Kind: ai.KindNotFound, Message: "assistant is not bound to the current index"}
		}
		if err != nil {
			if ai.IsNotFound(err) {
				if invErr := d.deps.Indexes.InvalidateAssistant(ctx, userID, ref); invErr != nil {
					return invErr
				}
			}
			return err
		}
	}
	p.view.AssistantRef = ref
	return d.bindAssistant(ctx, p, ref)
}

func (d *Driver) bindAssistant(ctx context.Context, p *pass, ref string) error {
	if p.doc.AssistantRef == ref {
		return nil
	}
	p.doc.AssistantRef = ref
	if !p.keepRun {
		p.doc.RunRef = ""
	}
	return d.save(ctx, p)
}

// unbindAssistant persists the document without its assistant before a
// replacement is created, so a failed create leaves no dead ref behind.
func (d *Driver) unbindAssistant(ctx context.Context, p *pass) error {
	if p.doc.AssistantRef == "" && (p.doc.RunRef == "" || p.keepRun) {
		return nil
	}
	p.doc.AssistantRef = ""
	if !p.keepRun {
		p.doc.RunRef = ""
	}
	return d.save(ctx, p)
}

func (d *Driver) createAssistant(ctx context.Context, p *pass) (string, bool, error) {
	userID := p.doc.UserID
	indexRef := p.view.IndexRef
	v, err, _ := d.userFlight.Do("assistant:"+userID+":"+indexRef, func() (interface{}, error) {
		rec, err := d.deps.Indexes.GetIndexRecord(ctx, userID)
		if err != nil {
			return nil, err
		}
		if rec.IndexRef != indexRef {
			return nil, &ai.Error{Op: "create_assistant", Kind: ai.KindNotFound, Message: "index replaced concurrently"}
		}
		if rec.AssistantRef != "" {
			return createdRef{ref: rec.AssistantRef}, nil
		}
		start := d.now()
		a, err := p.client.CreateAssistant(ctx, ai.AssistantSpec{
			Name:         d.cfg.AssistantName,
			Model:        d.cfg.Model,
			Instructions: d.cfg.Instructions,
			IndexID:      indexRef,
		})
		d.track(ctx, p, start, usageNote{kind: "create_assistant", requestID: refOf(a), model: d.cfg.Model, err: err})
		if err != nil {
			return nil, err
		}
		ok, err := d.deps.Indexes.ClaimAssistantRef(ctx, userID, indexRef, "", a.ID, d.cfg.Model)
		if err != nil {
			return nil, err
		}
		if ok {
			p.logger.Info("assistant created", zap.String("assistant_ref", a.ID), zap.String("index_ref", indexRef))
			return createdRef{ref: a.ID, created: true}, nil
		}
		rec, err = d.deps.Indexes.GetIndexRecord(ctx, userID)
		if err != nil {
			return nil, err
		}
		p.logger.Warn("lost assistant creation race, adopting winner",
			zap.String("orphan_assistant_ref", a.ID), zap.String("assistant_ref", rec.AssistantRef))
		if rec.AssistantRef == "" || rec.IndexRef != indexRef {
			return nil, &ai.Error{Op: "create_assistant", Kind: ai.KindNotFound, Message: "index replaced concurrently"}
		}
		return createdRef{ref: rec.AssistantRef}, nil
	})
	if err != nil {
		return "", false, err
	}
	out := v.(createdRef)
	return out.ref, out.created, nil
}

func (d *Driver) ensureThread(ctx context.Context, p *pass) error {
	doc := p.doc
	if doc.ThreadRef != "" {
		_, err := p.client.GetThread(ctx, doc.ThreadRef)
		if err == nil {
			return nil
		}
		if !ai.IsNotFound(err) {
			return err
		}
		p.logger.Info("thread reference invalid, recreating", zap.String("thread_ref", doc.ThreadRef))
		doc.ThreadRef = ""
		doc.RunRef = ""
		p.keepRun = false
		if err := d.save(ctx, p); err != nil {
			return err
		}
	}
	start := d.now()
	th, err := p.client.CreateThread(ctx, p.prompt)
	d.track(ctx, p, start, usageNote{kind: "create_thread", requestID: refOf(th), err: err})
	if err != nil {
		return err
	}
	doc.ThreadRef = th.ID
	doc.RunRef = ""
	p.freshThread = true
	return d.save(ctx, p)
}
