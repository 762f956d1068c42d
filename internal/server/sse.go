package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/tmaxmax/go-sse"
)

// sseEvent is the payload of one server-sent event. It mirrors wsOutgoing so
// EventSource clients see the same protocol as WebSocket clients.
type sseEvent struct {
	Content string `json:"content,omitempty"`
	Name    string `json:"name,omitempty"`
	Args    any    `json:"args,omitempty"`
}

// handleStream runs one agent turn and streams it as server-sent events.
// EventSource can only issue GET requests, so the user message rides in the
// "message" query parameter. Event types: text_delta, tool_call, tool_result,
// done, error.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	content := r.URL.Query().Get("message")
	if content == "" {
		writeError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	as, err := s.sessions.GetOrCreate(r.Context(), sess, s.cfg, s.store, s.registry, s.clients)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("initializing agent: %v", err))
		return
	}

	session, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, fmt.Sprintf("upgrading to SSE: %v", err), http.StatusInternalServerError)
		return
	}

	// One message at a time per session
	as.mu.Lock()
	defer as.mu.Unlock()

	// Serializes writes from agent callbacks
	var sendMu sync.Mutex
	send := func(eventType string, ev sseEvent) {
		sendMu.Lock()
		defer sendMu.Unlock()
		data, err := json.Marshal(ev)
		if err != nil {
			log.Printf("sse marshal error: %v", err)
			return
		}
		msg := sse.Message{Type: sse.Type(eventType)}
		msg.AppendData(string(data))
		if err := session.Send(&msg); err != nil {
			log.Printf("sse send error: %v", err)
			return
		}
		if err := session.Flush(); err != nil {
			log.Printf("sse flush error: %v", err)
		}
	}

	if sess.Title == "" {
		sess.Title = generateTitle(content)
		s.store.UpdateSession(context.Background(), sess)
	}

	// r.Context() is cancelled when the EventSource disconnects
	ctx, cancel := context.WithCancel(r.Context())
	as.Cancel = cancel
	defer func() {
		cancel()
		as.Cancel = nil
	}()

	as.Agent.OnTextDelta = func(delta string) {
		send("text_delta", sseEvent{Content: delta})
	}
	as.Agent.OnToolCall = func(name string, args map[string]any) {
		send("tool_call", sseEvent{Name: name, Args: args})
	}
	as.Agent.OnToolResult = func(name string, result string) {
		send("tool_result", sseEvent{Name: name, Content: result})
	}

	response, err := as.Agent.RunStreaming(ctx, content)

	// Save messages regardless of error
	if saveErr := s.store.SaveMessages(context.Background(), sess.ID, as.Agent.History()); saveErr != nil {
		log.Printf("failed to save messages for session %s: %v", sess.ID, saveErr)
	}

	if err != nil {
		if ctx.Err() != nil {
			send("error", sseEvent{Content: "interrupted"})
		} else {
			send("error", sseEvent{Content: err.Error()})
		}
		return
	}

	send("done", sseEvent{Content: response})
}
