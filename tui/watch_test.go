package tui

import (
	"strings"
	"testing"
)

func TestApplyEventTranscriptFlow(t *testing.T) {
	m := initialModel(nil)

	m.applyEvent(serverEvent{
		Type:       "session_resumed",
		SessionID:  "abc",
		Transcript: []string{"earlier sentence."},
	})
	if m.sessionID != "abc" || len(m.finals) != 1 {
		t.Fatalf("resume state: id=%q finals=%v", m.sessionID, m.finals)
	}

	m.applyEvent(serverEvent{Type: "transcription", Text: "so the next", IsFinal: false})
	if m.partial != "so the next" {
		t.Errorf("partial = %q", m.partial)
	}

	m.applyEvent(serverEvent{Type: "transcription", Text: "hold on", IsFinal: false})
	if m.partial != "hold on" {
		t.Errorf("partial must be replaced, got %q", m.partial)
	}

	m.applyEvent(serverEvent{
		Type:    "transcription",
		Text:    "so the next release ships friday.",
		IsFinal: true,
	})
	if m.partial != "" {
		t.Error("partial not cleared on final")
	}
	if len(m.finals) != 2 || m.finals[1] != "so the next release ships friday." {
		t.Errorf("finals = %v", m.finals)
	}

	m.applyEvent(serverEvent{Type: "transcript_cleared"})
	if len(m.finals) != 0 || m.partial != "" {
		t.Error("clear left transcript state behind")
	}
}

func TestApplyEventLogEntries(t *testing.T) {
	m := initialModel(nil)

	m.applyEvent(serverEvent{Type: "transcription", Text: "partial text", IsFinal: false})
	m.applyEvent(serverEvent{Type: "transcription", Text: "done now.", IsFinal: true})
	m.applyEvent(serverEvent{Type: "error", Message: "engine offline"})

	if len(m.logEntries) != 3 {
		t.Fatalf("log entries = %v", m.logEntries)
	}
	if !strings.HasPrefix(m.logEntries[0], "TMP") {
		t.Errorf("partial log entry = %q", m.logEntries[0])
	}
	if !strings.HasPrefix(m.logEntries[1], "FIN") {
		t.Errorf("final log entry = %q", m.logEntries[1])
	}
	if !strings.HasPrefix(m.logEntries[2], "ERR") {
		t.Errorf("error log entry = %q", m.logEntries[2])
	}
}

func TestTranscriptViewOrdersFinalsBeforePartial(t *testing.T) {
	m := initialModel(nil)
	m.finals = []string{"first.", "second."}
	m.partial = "third in progre"

	view := m.transcriptView()
	lines := strings.Split(strings.TrimRight(view, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %v", lines)
	}
	if lines[0] != "first." || lines[1] != "second." {
		t.Errorf("finals out of order: %v", lines)
	}
	if !strings.Contains(lines[2], "third in progre") {
		t.Errorf("partial missing: %q", lines[2])
	}
}
