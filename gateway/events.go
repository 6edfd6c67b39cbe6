package gateway

import (
	"time"

	"voxjam/etc"
	"voxjam/session"
)

const (
	EventSessionStarted    = "session_started"
	EventSessionResumed    = "session_resumed"
	EventTranscription     = "transcription"
	EventSentenceComplete  = "sentence_complete"
	EventTranscript        = "transcript"
	EventTranscriptCleared = "transcript_cleared"
	EventSessionInfo       = "session_info"
	EventSessionPaused     = "session_paused"
	EventError             = "error"
)

func now() string {
	return etc.Timestamp(time.Now())
}

// SessionStartedEvent opens every connection, as session_started or
// session_resumed. Transcript carries prior history only on resume.
type SessionStartedEvent struct {
	Type       string   `json:"type"`
	Timestamp  string   `json:"timestamp"`
	SessionID  string   `json:"session_id"`
	IsResumed  bool     `json:"is_resumed"`
	Transcript []string `json:"transcript,omitempty"`
}

func newSessionStartedEvent(s *session.Session, resumed bool) SessionStartedEvent {
	ev := SessionStartedEvent{
		Type:      EventSessionStarted,
		Timestamp: now(),
		SessionID: s.ID(),
		IsResumed: resumed,
	}
	if resumed {
		ev.Type = EventSessionResumed
		ev.Transcript = s.Transcript()
	}
	return ev
}

type TranscriptionEvent struct {
	Type           string `json:"type"`
	Timestamp      string `json:"timestamp"`
	Text           string `json:"text"`
	IsFinal        bool   `json:"is_final"`
	FullTranscript string `json:"full_transcript"`
}

type SentenceCompleteEvent struct {
	Type          string `json:"type"`
	Timestamp     string `json:"timestamp"`
	Sentence      string `json:"sentence"`
	SentenceCount int    `json:"sentence_count"`
}

type TranscriptEvent struct {
	Type       string   `json:"type"`
	Timestamp  string   `json:"timestamp"`
	Transcript []string `json:"transcript"`
	FullText   string   `json:"full_text"`
}

type TranscriptClearedEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type SessionInfoEvent struct {
	Type      string           `json:"type"`
	Timestamp string           `json:"timestamp"`
	Info      session.Snapshot `json:"info"`
}

// SessionPausedEvent acknowledges a graceful stop. PersistenceWindowMinutes
// tells the client how long the session id stays resumable.
type SessionPausedEvent struct {
	Type                     string `json:"type"`
	Timestamp                string `json:"timestamp"`
	SessionID                string `json:"session_id"`
	FinalTranscript          string `json:"final_transcript"`
	Resumable                bool   `json:"resumable"`
	PersistenceWindowMinutes int    `json:"persistence_window_minutes"`
}

type ErrorEvent struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

func newErrorEvent(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Timestamp: now(), Message: message}
}
