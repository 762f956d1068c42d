package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcampbell/loom/internal/llm"
)

// blockingClient parks every completion call until released, so tests can
// observe which requests have reached the LLM.
type blockingClient struct {
	started chan struct{}
	release chan struct{}
}

func (c *blockingClient) ChatCompletion(ctx context.Context, messages []llm.Message, tools []llm.ToolDef) (*llm.Response, error) {
	c.started <- struct{}{}
	<-c.release
	return &llm.Response{Message: llm.AssistantMessage("ok")}, nil
}

func (c *blockingClient) ChatCompletionStream(ctx context.Context, messages []llm.Message, tools []llm.ToolDef, handler llm.StreamHandler) (*llm.Response, error) {
	return c.ChatCompletion(ctx, messages, tools)
}

// One in-flight agent turn per session: a second message to the same session
// must not start its LLM round until the first finishes.
func TestSendMessageSerializedPerSession(t *testing.T) {
	srv := newTestServer(t)

	client := &blockingClient{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	seedSession(t, srv, "serial-session-1", client)

	post := func() int {
		req := httptest.NewRequest("POST", "/api/sessions/serial-session-1/messages",
			strings.NewReader(`{"content":"hi"}`))
		rec := httptest.NewRecorder()
		srv.router.ServeHTTP(rec, req)
		return rec.Code
	}

	codes := make(chan int, 2)
	go func() { codes <- post() }()

	select {
	case <-client.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first request never reached the LLM")
	}

	go func() { codes <- post() }()

	// The second request holds at the session lock
	select {
	case <-client.started:
		t.Fatal("second LLM round started while the first was in flight")
	case <-time.After(100 * time.Millisecond):
	}

	client.release <- struct{}{}

	select {
	case <-client.started:
	case <-time.After(2 * time.Second):
		t.Fatal("second request never reached the LLM")
	}
	client.release <- struct{}{}

	for i := 0; i < 2; i++ {
		if code := <-codes; code != http.StatusOK {
			t.Fatalf("request returned status %d, want %d", code, http.StatusOK)
		}
	}
}
