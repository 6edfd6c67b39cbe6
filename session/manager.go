package session

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"voxjam/etc"
)

type ManagerConfig struct {
	ActivityTimeout   time.Duration
	PersistenceWindow time.Duration
	ReaperInterval    time.Duration
	ContextWordCap    int
}

// Manager is the registry and lifecycle authority over all sessions. It
// is the one structure shared between connection goroutines and the
// reaper, so every mutation happens under its lock.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	byHandle map[Handle]string
	cfg      ManagerConfig
	logger   *log.Logger
}

func NewManager(cfg ManagerConfig, logger *log.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		byHandle: make(map[Handle]string),
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateOrResume resumes the named session when, and only when, it is
// paused; a missing id or an id naming an active session yields a fresh
// session, since a live session is owned by exactly one connection.
func (m *Manager) CreateOrResume(
	handle Handle,
	id string,
	metadata map[string]string,
) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if existing, ok := m.sessions[id]; ok && existing.IsPaused() {
			existing.resume(handle)
			m.byHandle[handle] = id
			m.logger.Info("session resumed", "session_id", id)
			return existing, true
		}
		if _, ok := m.sessions[id]; ok {
			// Dual ownership is forbidden; fall through to a new id.
			m.logger.Warn(
				"resume refused for active session",
				"session_id", id,
			)
			id = ""
		}
	}

	if id == "" {
		id = etc.NewFreshID()
	}

	sess := New(id, handle, m.cfg.ContextWordCap, metadata)
	m.sessions[id] = sess
	m.byHandle[handle] = id
	m.logger.Info("session created", "session_id", id)
	return sess, false
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// GetByHandle resolves a connection handle to its session in O(1).
func (m *Manager) GetByHandle(handle Handle) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byHandle[handle]
	if !ok {
		return nil, false
	}
	s, ok := m.sessions[id]
	return s, ok
}

// Pause detaches the session from its connection so a later connection
// can resume it. The handle is returned for the caller to close.
func (m *Manager) Pause(s *Session) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.sessions[s.ID()]; !ok || current != s {
		// Already removed (e.g. by the reaper); nothing to pause.
		return nil
	}

	h := s.pause()
	if h != nil {
		delete(m.byHandle, h)
	}
	m.logger.Info(
		"session paused",
		"session_id", s.ID(),
		"sentences", s.SentenceCount(),
	)
	return h
}

// Remove hard-deletes a session. Used for explicit termination and by
// the reaper, never for an ordinary disconnect.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	h, ok := m.removeLocked(id)
	m.mu.Unlock()

	if h != nil {
		if err := h.Close(); err != nil {
			m.logger.Debug("close on remove", "session_id", id, "error", err)
		}
	}
	return ok
}

func (m *Manager) removeLocked(id string) (Handle, bool) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	delete(m.sessions, id)
	h := s.markRemoved()
	if h != nil {
		delete(m.byHandle, h)
	}
	m.logger.Info("session removed", "session_id", id)
	return h, true
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) Snapshots() []Snapshot {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	out := make([]Snapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// PersistenceWindow is exposed so pause acknowledgments can tell clients
// how long they have to resume.
func (m *Manager) PersistenceWindow() time.Duration {
	return m.cfg.PersistenceWindow
}

// Start runs the reaper until ctx is cancelled. Cancelling it never
// touches live connections.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.ReaperInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ReapOnce(time.Now())
			}
		}
	}()
}

// ReapOnce evicts every session past its timeout: paused sessions past
// the persistence window and active ones past the activity timeout.
// Close failures are swallowed so one bad handle never stalls the sweep.
func (m *Manager) ReapOnce(now time.Time) {
	m.mu.Lock()
	type victim struct {
		id     string
		reason string
	}
	var victims []victim
	for id, s := range m.sessions {
		if pausedAt, paused := s.pausedSince(); paused {
			if now.Sub(pausedAt) > m.cfg.PersistenceWindow {
				victims = append(victims, victim{id, "persistence window elapsed"})
			}
		} else if now.Sub(s.lastActive()) > m.cfg.ActivityTimeout {
			victims = append(victims, victim{id, "activity timeout"})
		}
	}

	handles := make(map[string]Handle, len(victims))
	for _, v := range victims {
		if h, ok := m.removeLocked(v.id); ok && h != nil {
			handles[v.id] = h
		}
	}
	m.mu.Unlock()

	for _, v := range victims {
		m.logger.Info("reaped session", "session_id", v.id, "reason", v.reason)
		if h, ok := handles[v.id]; ok {
			if err := h.Close(); err != nil {
				m.logger.Debug(
					"close stale connection",
					"session_id", v.id,
					"error", err,
				)
			}
		}
	}
}
