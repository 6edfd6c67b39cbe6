// Package gateway owns the per-connection receive loop: it demultiplexes
// JSON control frames from binary audio frames on one duplex channel,
// drives the segmenter and recognizer, and emits progress events back
// over the same connection.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"voxjam/audio"
	"voxjam/session"
	"voxjam/stt"
)

// Conn is the slice of a websocket connection the loop needs. The
// *websocket.Conn from gorilla satisfies it directly.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

// Dispatcher hands finalized utterances to downstream action
// processing. Dispatch must never block; it reports false when the
// utterance was dropped because the queue is full.
type Dispatcher interface {
	Dispatch(sess *session.Session, sentence string) bool
}

type Config struct {
	SampleRate       int
	InitFrameTimeout time.Duration
	Segmenter        audio.SegmenterConfig
	Detector         audio.SpeechDetector
}

type Gateway struct {
	manager    *session.Manager
	recognizer *stt.Recognizer
	dispatcher Dispatcher
	cfg        Config
	logger     *log.Logger
}

func New(
	manager *session.Manager,
	recognizer *stt.Recognizer,
	dispatcher Dispatcher,
	cfg Config,
	logger *log.Logger,
) *Gateway {
	return &Gateway{
		manager:    manager,
		recognizer: recognizer,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// frame is one inbound websocket message, or the read error that ended
// the pump.
type frame struct {
	kind int
	data []byte
	err  error
}

func readPump(conn Conn, frames chan<- frame) {
	defer close(frames)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			frames <- frame{err: err}
			return
		}
		frames <- frame{kind: kind, data: data}
	}
}

// HandleConn runs the connection loop to completion. It always leaves
// the session paused, never removed, so the client can resume.
func (g *Gateway) HandleConn(ctx context.Context, conn Conn) {
	frames := make(chan frame, 16)
	go readPump(conn, frames)
	// Run the pump down after the loop exits; it ends once the closed
	// connection surfaces a read error.
	defer func() {
		go func() {
			for range frames {
			}
		}()
	}()

	init, pending, ok := g.awaitInit(frames)
	if !ok {
		// Reader died before any frame; nothing to pause.
		conn.Close()
		return
	}

	sess, resumed := g.manager.CreateOrResume(conn, init.SessionID, nil)
	if init.SessionToken != "" {
		sess.SetToken(init.SessionToken)
	}

	logger := g.logger.With("session_id", sess.ID())

	// A panic in the loop must not unwind into the HTTP layer: the client
	// gets an error event if the connection still works, and the session
	// is paused so it stays resumable.
	defer func() {
		if r := recover(); r != nil {
			logger.Error("connection loop panicked", "panic", r)
			if err := conn.WriteJSON(newErrorEvent(fmt.Sprintf("internal error: %v", r))); err != nil {
				logger.Debug("error event not delivered", "error", err)
			}
			g.shutdown(conn, sess, logger)
		}
	}()

	if err := conn.WriteJSON(newSessionStartedEvent(sess, resumed)); err != nil {
		logger.Warn("failed to send session greeting", "error", err)
		g.shutdown(conn, sess, logger)
		return
	}

	seg := audio.NewSegmenter(g.cfg.Segmenter, g.cfg.Detector, logger)

	for {
		var f frame
		if pending != nil {
			f, pending = *pending, nil
		} else {
			var open bool
			f, open = <-frames
			if !open {
				break
			}
		}
		if f.err != nil {
			logger.Debug("connection read ended", "error", f.err)
			break
		}

		switch f.kind {
		case websocket.BinaryMessage:
			if err := g.handleAudio(ctx, conn, sess, seg, f.data); err != nil {
				logger.Warn("audio handling failed", "error", err)
				g.shutdown(conn, sess, logger)
				return
			}
		case websocket.TextMessage:
			stop, err := g.handleControl(conn, sess, f.data, logger)
			if err != nil {
				logger.Warn("control handling failed", "error", err)
				g.shutdown(conn, sess, logger)
				return
			}
			if stop {
				g.shutdown(conn, sess, logger)
				return
			}
		}
	}

	g.shutdown(conn, sess, logger)
}

// awaitInit waits a bounded time for an optional init frame. A non-init
// first frame is handed back for normal processing; a timeout simply
// means a brand-new session.
func (g *Gateway) awaitInit(frames <-chan frame) (controlFrame, *frame, bool) {
	timeout := time.After(g.cfg.InitFrameTimeout)
	select {
	case f, open := <-frames:
		if !open || f.err != nil {
			return controlFrame{}, nil, false
		}
		if f.kind == websocket.TextMessage {
			var cf controlFrame
			if err := json.Unmarshal(f.data, &cf); err == nil && cf.Type == "init" {
				return cf, nil, true
			}
		}
		return controlFrame{}, &f, true
	case <-timeout:
		return controlFrame{}, nil, true
	}
}

// handleAudio feeds one binary frame through the segmenter and runs the
// recognizer on every window it yields, one at a time, so results reach
// the client in window order. Only write failures are returned; they
// mean the connection is gone.
func (g *Gateway) handleAudio(
	ctx context.Context,
	conn Conn,
	sess *session.Session,
	seg *audio.Segmenter,
	data []byte,
) error {
	sess.Touch()

	for _, window := range seg.AddChunk(data) {
		res := g.recognizer.TranscribeWindow(
			ctx,
			window,
			g.cfg.SampleRate,
			sess.ContextWords(),
		)
		if res.Text == "" {
			continue
		}

		sess.Append(res.Text, res.IsFinal)
		if res.IsFinal {
			sess.SetContextWords(res.Context)
		}

		ev := TranscriptionEvent{
			Type:           EventTranscription,
			Timestamp:      now(),
			Text:           res.Text,
			IsFinal:        res.IsFinal,
			FullTranscript: sess.FullText(),
		}
		if err := conn.WriteJSON(ev); err != nil {
			return fmt.Errorf("sending transcription: %w", err)
		}

		if !res.IsFinal {
			continue
		}

		done := SentenceCompleteEvent{
			Type:          EventSentenceComplete,
			Timestamp:     now(),
			Sentence:      res.Text,
			SentenceCount: sess.SentenceCount(),
		}
		if err := conn.WriteJSON(done); err != nil {
			return fmt.Errorf("sending sentence completion: %w", err)
		}

		if g.dispatcher != nil && !g.dispatcher.Dispatch(sess, res.Text) {
			g.logger.Warn(
				"action queue full, dropping utterance",
				"session_id", sess.ID(),
			)
		}
	}
	return nil
}

// handleControl interprets one control frame. Malformed JSON is a no-op
// for that frame; losing a frame beats losing the session.
func (g *Gateway) handleControl(
	conn Conn,
	sess *session.Session,
	data []byte,
	logger *log.Logger,
) (stop bool, err error) {
	var cf controlFrame
	if jsonErr := json.Unmarshal(data, &cf); jsonErr != nil {
		logger.Warn("malformed control frame", "error", jsonErr)
		return false, nil
	}

	sess.Touch()

	switch ParseCommand(cf.Command) {
	case CommandStopRecording:
		// The ack goes out before the loop exits, never after.
		ack := SessionPausedEvent{
			Type:                     EventSessionPaused,
			Timestamp:                now(),
			SessionID:                sess.ID(),
			FinalTranscript:          sess.FullText(),
			Resumable:                true,
			PersistenceWindowMinutes: int(g.manager.PersistenceWindow().Minutes()),
		}
		if err := conn.WriteJSON(ack); err != nil {
			return false, fmt.Errorf("sending pause ack: %w", err)
		}
		return true, nil

	case CommandGetTranscript:
		ev := TranscriptEvent{
			Type:       EventTranscript,
			Timestamp:  now(),
			Transcript: sess.Transcript(),
			FullText:   sess.FullText(),
		}
		if err := conn.WriteJSON(ev); err != nil {
			return false, fmt.Errorf("sending transcript: %w", err)
		}

	case CommandClearTranscript:
		sess.ClearTranscript()
		ev := TranscriptClearedEvent{
			Type:      EventTranscriptCleared,
			Timestamp: now(),
		}
		if err := conn.WriteJSON(ev); err != nil {
			return false, fmt.Errorf("sending clear ack: %w", err)
		}

	case CommandGetSessionInfo:
		ev := SessionInfoEvent{
			Type:      EventSessionInfo,
			Timestamp: now(),
			Info:      sess.Snapshot(),
		}
		if err := conn.WriteJSON(ev); err != nil {
			return false, fmt.Errorf("sending session info: %w", err)
		}

	case CommandUnknown:
		logger.Warn("unknown command ignored", "command", cf.Command)
	}

	return false, nil
}

// shutdown is the single exit path: pause, log the transcript, close
// the handle with the error swallowed.
func (g *Gateway) shutdown(conn Conn, sess *session.Session, logger *log.Logger) {
	logger.Info(
		"connection closing",
		"sentences", sess.SentenceCount(),
		"transcript", sess.FullText(),
	)

	if h := g.manager.Pause(sess); h != nil {
		h.Close()
	} else {
		conn.Close()
	}
}
