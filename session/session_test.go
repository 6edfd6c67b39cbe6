package session

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type fakeHandle struct {
	closed   bool
	closeErr error
}

func (h *fakeHandle) Close() error {
	h.closed = true
	return h.closeErr
}

func TestSessionAppend(t *testing.T) {
	s := New("s1", &fakeHandle{}, 100, nil)

	t.Run("blank final is dropped", func(t *testing.T) {
		s.Append("  ", true)
		if got := s.SentenceCount(); got != 0 {
			t.Errorf("sentence count = %d, want 0", got)
		}
	})

	t.Run("partial replaces, never concatenates", func(t *testing.T) {
		s.Append("hel", false)
		s.Append("hello th", false)
		if got := s.CurrentBuffer(); got != "hello th" {
			t.Errorf("current buffer = %q", got)
		}
	})

	t.Run("final pushes history and clears buffer", func(t *testing.T) {
		s.Append("hello there.", true)
		if got := s.SentenceCount(); got != 1 {
			t.Errorf("sentence count = %d, want 1", got)
		}
		if got := s.CurrentBuffer(); got != "" {
			t.Errorf("current buffer = %q, want empty", got)
		}
	})
}

func TestFullText(t *testing.T) {
	s := New("s1", &fakeHandle{}, 100, nil)
	s.Append("a", true)
	s.Append("b", true)
	s.Append("c", false)
	if got := s.FullText(); got != "a b c" {
		t.Errorf("FullText() = %q, want %q", got, "a b c")
	}

	empty := New("s2", &fakeHandle{}, 100, nil)
	if got := empty.FullText(); got != "" {
		t.Errorf("FullText() on empty session = %q", got)
	}
	empty.Append("only partial", false)
	if got := empty.FullText(); got != "only partial" {
		t.Errorf("FullText() with only a partial = %q", got)
	}
}

func TestContextWordCap(t *testing.T) {
	s := New("s1", &fakeHandle{}, 3, nil)
	s.SetContextWords([]string{"a", "b", "c", "d", "e"})
	got := s.ContextWords()
	if len(got) != 3 || got[0] != "c" || got[2] != "e" {
		t.Errorf("context = %v, want last 3 words", got)
	}
}

func TestActionLedger(t *testing.T) {
	s := New("s1", &fakeHandle{}, 100, nil)

	if _, ok := s.LastAction(); ok {
		t.Fatal("expected no last action on a fresh session")
	}

	s.RecordExecutedAction("a1", "github_action", "create issue", "https://github.test/1")
	s.RecordExecutedAction("a2", "task", "buy milk", "")

	last, ok := s.LastAction()
	if !ok || last.ID != "a2" {
		t.Errorf("last action = %+v, want a2", last)
	}
	actions := s.Actions()
	if len(actions) != 2 || actions[0].ID != "a1" {
		t.Errorf("ledger order wrong: %+v", actions)
	}
}

func TestSnapshotDoesNotAliasSessionState(t *testing.T) {
	s := New("s1", &fakeHandle{}, 100, map[string]string{"client": "cli"})
	s.Append("hello there.", true)

	snap := s.Snapshot()
	snap.Metadata["client"] = "tampered"
	snap.Transcript[0] = "tampered"

	again := s.Snapshot()
	if again.Metadata["client"] != "cli" {
		t.Error("snapshot metadata aliases the session map")
	}
	if again.Transcript[0] != "hello there." {
		t.Error("snapshot transcript aliases the session slice")
	}
}

func TestPauseResumeStateMachine(t *testing.T) {
	s := New("s1", &fakeHandle{}, 100, nil)
	if s.State() != StateActive {
		t.Fatalf("fresh session state = %v", s.State())
	}

	h := s.pause()
	if h == nil {
		t.Fatal("pause must hand back the detached handle")
	}
	if !s.IsPaused() {
		t.Error("expected paused state")
	}
	if _, paused := s.pausedSince(); !paused {
		t.Error("pausedSince must report the pause stamp")
	}

	s.resume(&fakeHandle{})
	if s.State() != StateActive {
		t.Error("resume must return to active")
	}
	if _, paused := s.pausedSince(); paused {
		t.Error("resume must clear the pause stamp")
	}
}

func newTestManager(cfg ManagerConfig) *Manager {
	if cfg.ActivityTimeout == 0 {
		cfg.ActivityTimeout = 30 * time.Minute
	}
	if cfg.PersistenceWindow == 0 {
		cfg.PersistenceWindow = 10 * time.Minute
	}
	if cfg.ReaperInterval == 0 {
		cfg.ReaperInterval = time.Minute
	}
	if cfg.ContextWordCap == 0 {
		cfg.ContextWordCap = 100
	}
	return NewManager(cfg, log.New(io.Discard))
}

func TestCreateOrResume(t *testing.T) {
	m := newTestManager(ManagerConfig{})

	t.Run("creates with generated id", func(t *testing.T) {
		s, resumed := m.CreateOrResume(&fakeHandle{}, "", nil)
		if resumed {
			t.Error("fresh session reported as resumed")
		}
		if s.ID() == "" {
			t.Error("expected generated id")
		}
	})

	t.Run("resumes a paused session with state intact", func(t *testing.T) {
		h1 := &fakeHandle{}
		s, _ := m.CreateOrResume(h1, "keep", nil)
		s.Append("first sentence.", true)
		m.Pause(s)

		h2 := &fakeHandle{}
		again, resumed := m.CreateOrResume(h2, "keep", nil)
		if !resumed {
			t.Fatal("expected resume")
		}
		if again != s {
			t.Error("resume must hand back the same session")
		}
		if again.FullText() != "first sentence." {
			t.Error("transcript lost across resume")
		}
	})

	t.Run("resuming an active session creates a new one", func(t *testing.T) {
		h1 := &fakeHandle{}
		s, _ := m.CreateOrResume(h1, "busy", nil)

		h2 := &fakeHandle{}
		other, resumed := m.CreateOrResume(h2, "busy", nil)
		if resumed {
			t.Fatal("active session must not be handed to a second owner")
		}
		if other == s || other.ID() == "busy" {
			t.Errorf("expected a fresh session, got id %q", other.ID())
		}
	})
}

func TestReverseIndex(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	h := &fakeHandle{}
	s, _ := m.CreateOrResume(h, "", nil)

	got, ok := m.GetByHandle(h)
	if !ok || got != s {
		t.Fatal("handle lookup failed")
	}

	m.Pause(s)
	if _, ok := m.GetByHandle(h); ok {
		t.Error("paused session still resolvable by old handle")
	}
}

func TestPauseAfterRemoveIsNoop(t *testing.T) {
	m := newTestManager(ManagerConfig{})
	s, _ := m.CreateOrResume(&fakeHandle{}, "", nil)
	m.Remove(s.ID())
	if h := m.Pause(s); h != nil {
		t.Error("pause of a removed session must be a no-op")
	}
	if s.State() != StateRemoved {
		t.Error("removed is terminal")
	}
}

func TestReaper(t *testing.T) {
	window := 10 * time.Minute

	t.Run("paused just inside the window survives", func(t *testing.T) {
		m := newTestManager(ManagerConfig{PersistenceWindow: window})
		s, _ := m.CreateOrResume(&fakeHandle{}, "", nil)
		m.Pause(s)

		m.ReapOnce(time.Now().Add(window - time.Second))
		if _, ok := m.Get(s.ID()); !ok {
			t.Error("session reaped before the persistence window elapsed")
		}
	})

	t.Run("paused past the window is removed", func(t *testing.T) {
		m := newTestManager(ManagerConfig{PersistenceWindow: window})
		s, _ := m.CreateOrResume(&fakeHandle{}, "", nil)
		m.Pause(s)

		m.ReapOnce(time.Now().Add(window + time.Second))
		if _, ok := m.Get(s.ID()); ok {
			t.Error("session survived past the persistence window")
		}
	})

	t.Run("idle active session is closed and removed", func(t *testing.T) {
		m := newTestManager(ManagerConfig{ActivityTimeout: time.Minute})
		h := &fakeHandle{}
		s, _ := m.CreateOrResume(h, "", nil)

		m.ReapOnce(time.Now().Add(2 * time.Minute))
		if _, ok := m.Get(s.ID()); ok {
			t.Error("idle session survived the activity timeout")
		}
		if !h.closed {
			t.Error("stale connection handle was not closed")
		}
	})

	t.Run("close failures do not stop the sweep", func(t *testing.T) {
		m := newTestManager(ManagerConfig{ActivityTimeout: time.Minute})
		bad := &fakeHandle{closeErr: errors.New("already gone")}
		good := &fakeHandle{}
		s1, _ := m.CreateOrResume(bad, "", nil)
		s2, _ := m.CreateOrResume(good, "", nil)

		m.ReapOnce(time.Now().Add(2 * time.Minute))
		if _, ok := m.Get(s1.ID()); ok {
			t.Error("session with failing handle survived")
		}
		if _, ok := m.Get(s2.ID()); ok {
			t.Error("sweep stopped after a close failure")
		}
	})

	t.Run("fresh sessions are untouched", func(t *testing.T) {
		m := newTestManager(ManagerConfig{})
		s, _ := m.CreateOrResume(&fakeHandle{}, "", nil)
		m.ReapOnce(time.Now())
		if _, ok := m.Get(s.ID()); !ok {
			t.Error("fresh session reaped")
		}
	})
}
