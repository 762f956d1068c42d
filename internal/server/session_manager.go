package server

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/mcampbell/loom/internal/agent"
	"github.com/mcampbell/loom/internal/config"
	"github.com/mcampbell/loom/internal/llm"
	"github.com/mcampbell/loom/internal/storage"
	"github.com/mcampbell/loom/internal/tools"
)

// ActiveSession tracks an in-memory agent for a session.
type ActiveSession struct {
	Agent  *agent.Agent
	Cancel context.CancelFunc // cancels in-flight RunStreaming
	mu     sync.Mutex         // one message at a time per session
}

// SessionManager tracks which sessions have an active Agent in memory.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*ActiveSession
}

// NewSessionManager creates a new SessionManager.
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*ActiveSession),
	}
}

// Get returns an active session if it exists.
func (sm *SessionManager) Get(sessionID string) (*ActiveSession, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	as, ok := sm.sessions[sessionID]
	return as, ok
}

// GetOrCreate returns an existing active session or creates a new one,
// wiring the LLM client, tool registry, profile, and persisted history.
func (sm *SessionManager) GetOrCreate(
	ctx context.Context,
	sess *storage.Session,
	cfg *config.Config,
	store storage.Store,
	registry *tools.Registry,
	clients *llm.Cache,
) (*ActiveSession, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if as, ok := sm.sessions[sess.ID]; ok {
		return as, nil
	}

	// Load profile if specified
	var profile *agent.Profile
	var err error
	if sess.Profile != "" {
		profilePath := filepath.Join(cfg.Agent.ProfilesDir, sess.Profile+".yaml")
		profile, err = agent.LoadProfile(profilePath)
		if err != nil {
			return nil, fmt.Errorf("loading profile: %w", err)
		}
	}

	// Resolve model index: session, then profile, then config default
	modelID := sess.Model
	if modelID == "" && profile != nil {
		modelID = profile.Model
	}

	client, err := clients.ForModel(cfg, modelID)
	if err != nil {
		return nil, fmt.Errorf("building LLM client: %w", err)
	}

	maxIter := cfg.Agent.MaxIterations
	if profile != nil && profile.MaxIter > 0 {
		maxIter = profile.MaxIter
	}

	a := agent.New(client, registry, maxIter)
	a.SetMaxTokens(cfg.Agent.ContextMaxTokens)

	// Apply profile overrides
	if profile != nil {
		a.SetSystemPrompt(profile.SystemPrompt)
		a.FilterTools(profile.Tools)
	}

	// Load existing history if any
	messages, err := store.LoadMessages(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	if len(messages) > 0 {
		a.SetHistory(messages)
	}

	as := &ActiveSession{
		Agent: a,
	}
	sm.sessions[sess.ID] = as
	return as, nil
}

// Remove removes an active session and cancels any in-flight work.
func (sm *SessionManager) Remove(sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if as, ok := sm.sessions[sessionID]; ok {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, sessionID)
	}
}

// CloseAll cancels all active sessions.
func (sm *SessionManager) CloseAll() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, as := range sm.sessions {
		if as.Cancel != nil {
			as.Cancel()
		}
		delete(sm.sessions, id)
	}
}
