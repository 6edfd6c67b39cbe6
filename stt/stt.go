// Package stt wraps an opaque speech-to-text engine behind an async
// contract and decides when a transcribed segment is a finished utterance.
package stt

import (
	"context"
	"strings"

	"github.com/charmbracelet/log"
)

// Segment is one raw engine result for one audio window.
type Segment struct {
	Text string

	// Quality metrics, when the engine reports them. Zero means unknown.
	NoSpeechProb     float64
	CompressionRatio float64
}

// Engine is the opaque transcription model. prompt biases recognition
// toward the recent conversation.
type Engine interface {
	Transcribe(
		ctx context.Context,
		pcm []byte,
		sampleRate int,
		prompt string,
	) (Segment, error)
}

// Result is what the recognizer hands back to the connection loop.
type Result struct {
	Text    string
	IsFinal bool

	// Context carries the word-context forward. On engine failure it is
	// the input context untouched.
	Context []string
}

type RecognizerConfig struct {
	FinalityMinChars int
	FinalityMaxWords int

	// Quality gates; zero disables.
	NoSpeechThreshold   float64
	CompressionRatioMax float64
}

// Recognizer drives one Engine and applies the finality policy. It never
// returns an error: an engine failure is "no new information this cycle".
type Recognizer struct {
	engine Engine
	cfg    RecognizerConfig
	logger *log.Logger
}

func NewRecognizer(
	engine Engine,
	cfg RecognizerConfig,
	logger *log.Logger,
) *Recognizer {
	return &Recognizer{engine: engine, cfg: cfg, logger: logger}
}

// TranscribeWindow runs the engine on one audio window. contextWords is
// the bounded word history the caller maintains; the returned context is
// advanced past the new words only when the segment is final.
func (r *Recognizer) TranscribeWindow(
	ctx context.Context,
	pcm []byte,
	sampleRate int,
	contextWords []string,
) Result {
	seg, err := r.engine.Transcribe(
		ctx,
		pcm,
		sampleRate,
		strings.Join(contextWords, " "),
	)
	if err != nil {
		r.logger.Error("transcription failed", "error", err)
		return Result{Context: contextWords}
	}

	text := strings.TrimSpace(seg.Text)
	if text == "" || r.suppress(seg) {
		return Result{Context: contextWords}
	}

	if !r.IsSentenceComplete(text) {
		return Result{Text: text, Context: contextWords}
	}

	return Result{
		Text:    text,
		IsFinal: true,
		Context: append(append([]string{}, contextWords...), strings.Fields(text)...),
	}
}

// suppress drops segments the engine itself flags as likely silence or
// gibberish, so they never reach the transcript.
func (r *Recognizer) suppress(seg Segment) bool {
	if r.cfg.NoSpeechThreshold > 0 && seg.NoSpeechProb > r.cfg.NoSpeechThreshold {
		r.logger.Debug(
			"suppressing segment",
			"reason", "no_speech",
			"prob", seg.NoSpeechProb,
		)
		return true
	}
	if r.cfg.CompressionRatioMax > 0 && seg.CompressionRatio > r.cfg.CompressionRatioMax {
		r.logger.Debug(
			"suppressing segment",
			"reason", "compression_ratio",
			"ratio", seg.CompressionRatio,
		)
		return true
	}
	return false
}

var sentenceTerminators = []string{".", "!", "?", "。", "！", "？"}

// IsSentenceComplete decides utterance finality. Very short text is never
// final regardless of punctuation; overly long text is forced final so an
// utterance that never produces terminal punctuation still completes.
func (r *Recognizer) IsSentenceComplete(text string) bool {
	text = strings.TrimSpace(text)
	if len([]rune(text)) < r.cfg.FinalityMinChars {
		return false
	}
	for _, term := range sentenceTerminators {
		if strings.HasSuffix(text, term) {
			return true
		}
	}
	return len(strings.Fields(text)) > r.cfg.FinalityMaxWords
}
