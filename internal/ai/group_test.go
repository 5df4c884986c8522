package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReader struct {
	name  string
	err   error
	text  string
	calls int
}

func (s *stubReader) Name() string { return s.name }

func (s *stubReader) Read(ctx context.Context, model string, in DocumentInput) (*ReadResult, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &ReadResult{Text: s.text, Model: model}, nil
}

func TestGroupReaderFallsThrough(t *testing.T) {
	first := &stubReader{name: "a", err: newError("read", KindTransient, 503, "down", nil)}
	second := &stubReader{name: "b", text: "hello"}
	group := NewGroupReader([]ReaderEntry{
		{Name: "a", Model: "m1", Reader: first},
		{Name: "b", Model: "m2", Reader: second},
	})
	res, err := group.Read(context.Background(), DocumentInput{Filename: "x.txt"})
	require.NoError(t, err)
	require.Equal(t, "hello", res.Text)
	require.Equal(t, "b", res.Provider)
	require.Equal(t, "m2", res.Model)
	require.Equal(t, 1, first.calls)
}

func TestGroupReaderReturnsLastError(t *testing.T) {
	group := NewGroupReader([]ReaderEntry{
		{Name: "a", Reader: &stubReader{err: ErrUnavailable}},
		{Name: "b", Reader: &stubReader{err: newError("read", KindRejected, 400, "bad", nil)}},
	})
	_, err := group.Read(context.Background(), DocumentInput{})
	require.True(t, IsRejected(err))
	require.Nil(t, NewGroupReader(nil))
}

func TestOpenRouterReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req openrouterRequest
		if assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) && assert.Len(t, req.Messages, 2) {
			assert.Contains(t, req.Messages[1].Content, "quarterly numbers")
		}
		_, _ = w.Write([]byte(`{"model":"m","choices":[{"message":{"content":" {\"summary\":\"ok\"} "}}],"usage":{"prompt_tokens":10,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	reader, err := NewReader("openrouter", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	res, err := reader.Read(context.Background(), "m", DocumentInput{
		Filename: "notes.txt",
		MimeType: "text/plain",
		Data:     []byte("quarterly numbers"),
		Prompt:   "summarize",
	})
	require.NoError(t, err)
	require.Equal(t, `{"summary":"ok"}`, res.Text)
	require.Equal(t, int64(10), res.Usage.InputTokens)

	_, err = reader.Read(context.Background(), "m", DocumentInput{MimeType: "application/pdf"})
	require.True(t, IsRejected(err))
}

func TestOpenRouterReaderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	reader, err := NewReader("openrouter", map[string]interface{}{"api_key": "k", "base_url": srv.URL})
	require.NoError(t, err)
	_, err = reader.Read(context.Background(), "m", DocumentInput{MimeType: "text/markdown"})
	require.Equal(t, KindTransient, KindOf(err))
}

func TestRegistry(t *testing.T) {
	_, err := NewAssistantClient("", nil)
	require.Error(t, err)
	_, err = NewAssistantClient("nope", map[string]interface{}{})
	require.Error(t, err)
	_, err = NewAssistantClient("openai", map[string]interface{}{"api_key": ""})
	require.ErrorIs(t, err, ErrUnavailable)
	client, err := NewAssistantClient("OpenAI", map[string]interface{}{"api_key": "sk-test"})
	require.NoError(t, err)
	require.Equal(t, "openai", client.Name())
}
