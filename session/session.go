// Package session holds per-connection conversational state and the
// registry that governs its lifecycle.
package session

import (
	"strings"
	"sync"
	"time"
)

// Handle is the connection owned by a session while it is active. The
// connection loop is the only writer; the session layer only ever closes.
type Handle interface {
	Close() error
}

// State of a session's lifecycle. Removed is terminal.
type State int

const (
	StateActive State = iota
	StatePaused
	StateRemoved
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Action is one executed entry in the session's ledger.
type Action struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	ExternalRef string    `json:"external_ref,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Session is the per-connection state: transcript, rolling word-context,
// executed-action ledger, and lifecycle metadata. All mutators are pure
// state changes; the session never touches the network itself.
type Session struct {
	mu sync.RWMutex

	id        string
	token     string
	handle    Handle
	createdAt time.Time

	lastActivity time.Time
	pausedAt     time.Time
	state        State

	transcript    []string
	currentBuffer string
	contextWords  []string
	contextCap    int

	actions      map[string]Action
	actionOrder  []string
	lastActionID string

	metadata map[string]string
}

func New(id string, handle Handle, contextCap int, metadata map[string]string) *Session {
	now := time.Now()
	return &Session{
		id:           id,
		handle:       handle,
		createdAt:    now,
		lastActivity: now,
		state:        StateActive,
		contextCap:   contextCap,
		actions:      make(map[string]Action),
		metadata:     metadata,
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = time.Now()
}

// Append records a transcription result. A final, non-blank text is
// pushed onto the history and the current buffer cleared; anything else
// replaces the current buffer, so only the latest partial is kept.
func (s *Session) Append(text string, isFinal bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if isFinal && strings.TrimSpace(text) != "" {
		s.transcript = append(s.transcript, strings.TrimSpace(text))
		s.currentBuffer = ""
	} else {
		s.currentBuffer = text
	}
}

// FullText is the finalized history plus the in-progress buffer.
func (s *Session) FullText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	joined := strings.Join(s.transcript, " ")
	if s.currentBuffer != "" {
		if joined == "" {
			return s.currentBuffer
		}
		return joined + " " + s.currentBuffer
	}
	return joined
}

func (s *Session) Transcript() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.transcript...)
}

func (s *Session) CurrentBuffer() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentBuffer
}

func (s *Session) SentenceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transcript)
}

func (s *Session) ClearTranscript() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = nil
	s.currentBuffer = ""
}

// ContextWords is the bounded trailing word window used to bias the
// recognizer.
func (s *Session) ContextWords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string{}, s.contextWords...)
}

// SetContextWords replaces the word-context, keeping only the newest
// contextCap words.
func (s *Session) SetContextWords(words []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.contextCap > 0 && len(words) > s.contextCap {
		words = words[len(words)-s.contextCap:]
	}
	s.contextWords = append([]string{}, words...)
}

// RecordExecutedAction appends to the ledger and moves the last-action
// pointer, which later commands use to resolve "that" and "it".
func (s *Session) RecordExecutedAction(id, actionType, description, externalRef string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.actions[id] = Action{
		ID:          id,
		Type:        actionType,
		Description: description,
		ExternalRef: externalRef,
		Timestamp:   time.Now(),
	}
	s.actionOrder = append(s.actionOrder, id)
	s.lastActionID = id
}

// LastAction returns the most recently recorded action, if any.
func (s *Session) LastAction() (Action, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actions[s.lastActionID]
	return a, ok
}

func (s *Session) Actions() []Action {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Action, 0, len(s.actionOrder))
	for _, id := range s.actionOrder {
		out = append(out, s.actions[id])
	}
	return out
}

// pause detaches the handle and stamps pausedAt. Callers go through
// Manager.Pause so the reverse index stays consistent.
func (s *Session) pause() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.handle
	s.handle = nil
	s.pausedAt = time.Now()
	s.state = StatePaused
	return h
}

// resume attaches a new handle and clears the pause stamp.
func (s *Session) resume(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handle = h
	s.pausedAt = time.Time{}
	s.lastActivity = time.Now()
	s.state = StateActive
}

func (s *Session) markRemoved() Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.handle
	s.handle = nil
	s.state = StateRemoved
	return h
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsPaused() bool {
	return s.State() == StatePaused
}

func (s *Session) pausedSince() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StatePaused {
		return time.Time{}, false
	}
	return s.pausedAt, true
}

func (s *Session) lastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActivity
}

// Snapshot is the wire/REST representation of a session.
type Snapshot struct {
	SessionID     string            `json:"session_id"`
	State         string            `json:"state"`
	CreatedAt     time.Time         `json:"created_at"`
	LastActivity  time.Time         `json:"last_activity"`
	PausedAt      *time.Time        `json:"paused_at,omitempty"`
	Transcript    []string          `json:"transcript"`
	CurrentBuffer string            `json:"current_buffer"`
	Actions       []Action          `json:"actions"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		SessionID:     s.id,
		State:         s.state.String(),
		CreatedAt:     s.createdAt,
		LastActivity:  s.lastActivity,
		Transcript:    append([]string{}, s.transcript...),
		CurrentBuffer: s.currentBuffer,
	}
	if len(s.metadata) > 0 {
		snap.Metadata = make(map[string]string, len(s.metadata))
		for k, v := range s.metadata {
			snap.Metadata[k] = v
		}
	}
	if s.state == StatePaused {
		pausedAt := s.pausedAt
		snap.PausedAt = &pausedAt
	}
	for _, id := range s.actionOrder {
		snap.Actions = append(snap.Actions, s.actions[id])
	}
	return snap
}
