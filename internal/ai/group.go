package ai

import (
	"context"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ReaderEntry struct {
	Name   string
	Model  string
	Reader IDocumentReader
}

type GroupReader struct {
	items []ReaderEntry
}

// NewGroupReader tries each reader in order until one succeeds.
func NewGroupReader(items []ReaderEntry) *GroupReader {
	if len(items) == 0 {
		return nil
	}
	return &GroupReader{items: items}
}

func (g *GroupReader) Read(ctx context.Context, in DocumentInput) (*ReadResult, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Reader == nil {
			continue
		}
		res, err := item.Reader.Read(ctx, item.Model, in)
		if err == nil {
			if res.Provider == "" {
				res.Provider = item.Name
			}
			if res.Model == "" {
				res.Model = item.Model
			}
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("document reader failed",
			zap.Int("index", i),
			zap.String("name", item.Name),
			zap.String("model", item.Model),
			zap.Error(err),
		)
	}
	if lastErr == nil {
		return nil, fmt.Errorf("document reader not configured")
	}
	return nil, lastErr
}
