package pipeline

import (
	"errors"
	"fmt"

	"github.com/CerberoGS/CATAI-sub000/internal/ai"
)

type ErrorKind string

const (
	KindTransport      ErrorKind = "transport"
	KindRemoteNotFound ErrorKind = "remote_not_found"
	KindRemoteRejected ErrorKind = "remote_rejected"
	KindTimeout        ErrorKind = "timeout"
	KindUnresolved     ErrorKind = "unresolved"
	KindConcurrency    ErrorKind = "concurrency"
)

const (
	StageReconcile = "reconcile"
	StageFile      = "file"
	StageIndex     = "index"
	StageAttach    = "attach"
	StageAssistant = "assistant"
	StageThread    = "thread"
	StageRun       = "run"
	StageExtract   = "extract"
)

// Error is returned by EnsureExtraction when the caller should retry later.
// Rejections, timeouts and unresolved attempts are reported through Result
// instead.
type Error struct {
	Kind  ErrorKind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline %s at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func IsRetryable(err error) bool {
	var pErr *Error
	if !errors.As(err, &pErr) {
		return false
	}
	return pErr.Kind == KindTransport || pErr.Kind == KindRemoteNotFound || pErr.Kind == KindTimeout
}

func stageError(stage string, err error) *Error {
	kind := KindTransport
	switch ai.KindOf(err) {
	case ai.KindNotFound:
		kind = KindRemoteNotFound
	case ai.KindRejected:
		kind = KindRemoteRejected
	case ai.KindConflict:
		kind = KindConcurrency
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// rejection is a permanent failure that marks the document failed.
type rejection struct {
	stage  string
	reason string
}

func (r *rejection) Error() string {
	return fmt.Sprintf("%s rejected: %s", r.stage, r.reason)
}

func rejected(stage, reason string) error {
	return &rejection{stage: stage, reason: reason}
}

// asRejection converts a rejected remote error into a rejection.
func asRejection(stage string, err error) (*rejection, bool) {
	var rej *rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	if !ai.IsRejected(err) {
		return nil, false
	}
	reason := err.Error()
	var aiErr *ai.Error
	if errors.As(err, &aiErr) && aiErr.Message != "" {
		reason = aiErr.Message
	}
	return &rejection{stage: stage, reason: reason}, true
}
