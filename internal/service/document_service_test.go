package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CerberoGS/CATAI-sub000/internal/model"
	appErr "github.com/CerberoGS/CATAI-sub000/internal/pkg/errors"
)

const samplePDF = "%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n"

func TestDocumentUploadValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.documentService()
	ctx := context.Background()

	tests := []struct {
		name     string
		filename string
		body     string
		mime     string
		err      error
	}{
		{name: "pdf", filename: "report.pdf", body: samplePDF, mime: "application/pdf"},
		{name: "markdown", filename: "notes.md", body: "# Q3\n\nrevenue up", mime: "text/markdown"},
		{name: "text pretending to be pdf", filename: "fake.pdf", body: "plain words only", err: appErr.ErrFileType},
		{name: "extension not allowed", filename: "run.exe", body: "MZ", err: appErr.ErrFileType},
		{name: "empty", filename: "empty.txt", body: "", err: appErr.ErrInvalid},
		{name: "too large", filename: "big.txt", body: strings.Repeat("a", 2048), err: appErr.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := svc.Upload(ctx, "u1", tt.filename, bytes.NewReader([]byte(tt.body)), int64(len(tt.body)))
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.mime, doc.MimeType)
			require.Equal(t, model.DocumentStatusPending, doc.Status)
			require.True(t, strings.HasPrefix(doc.StorageKey, "u1_"))
		})
	}
}

func TestDocumentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	svc := env.documentService()
	ctx := context.Background()

	doc, err := svc.Upload(ctx, "u1", "../../etc/report.txt", bytes.NewReader([]byte("hello")), 5)
	require.NoError(t, err)
	require.Equal(t, "report.txt", doc.Filename)

	rc, err := svc.Open(ctx, doc)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	require.Equal(t, "hello", string(data))

	_, err = svc.Get(ctx, "u2", doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)

	list, err := svc.List(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.ErrorIs(t, svc.Delete(ctx, "u2", doc.ID), appErr.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, "u1", doc.ID))
	_, err = svc.Get(ctx, "u1", doc.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = svc.Open(ctx, doc)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}
