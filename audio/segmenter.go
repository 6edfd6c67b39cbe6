// Package audio turns an unbounded stream of PCM byte chunks into
// fixed-duration windows, optionally gated by voice activity detection.
package audio

import (
	"encoding/binary"
	"math"

	"github.com/charmbracelet/log"
)

// SpeechDetector classifies one sub-frame of 16-bit mono PCM.
type SpeechDetector interface {
	IsSpeech(frame []byte, sampleRate int) (bool, error)
}

// EnergyDetector is the default detector: a sub-frame counts as speech
// when its RMS energy, normalized to [0,1], reaches the threshold.
type EnergyDetector struct {
	Threshold float64
}

func (d EnergyDetector) IsSpeech(frame []byte, _ int) (bool, error) {
	return rmsEnergy(frame) >= d.Threshold, nil
}

func rmsEnergy(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sample := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		v := float64(sample) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

type SegmenterConfig struct {
	SampleRate         int
	WindowDurationMs   int
	SubFrameDurationMs int

	VADEnabled           bool
	SpeechRatioThreshold float64
	SpeechRunOn          int
	SilenceRunOff        int
}

// Segmenter buffers inbound chunks and slices them into windows of
// exactly windowSize bytes. With VAD enabled, a window is forwarded when
// the hysteresis is on after classifying it, so trailing silence keeps
// flowing until the run-off is reached; the window that flips speech off
// is dropped along with everything after it.
type Segmenter struct {
	cfg      SegmenterConfig
	detector SpeechDetector
	logger   *log.Logger

	pending      []byte
	windowSize   int
	subFrameSize int

	speechFrames  int
	silenceFrames int
	speechActive  bool
}

func NewSegmenter(
	cfg SegmenterConfig,
	detector SpeechDetector,
	logger *log.Logger,
) *Segmenter {
	s := &Segmenter{
		cfg:          cfg,
		detector:     detector,
		logger:       logger,
		windowSize:   cfg.SampleRate * cfg.WindowDurationMs / 1000 * 2,
		subFrameSize: cfg.SampleRate * cfg.SubFrameDurationMs / 1000 * 2,
	}
	// A sub-frame shorter than one sample cannot be classified; gate on
	// the whole window instead.
	if s.subFrameSize <= 0 {
		s.subFrameSize = s.windowSize
	}
	return s
}

// AddChunk appends a chunk to the pending buffer and returns every full
// window that is ready to be forwarded, in order. The tail that does not
// fill a window stays buffered; it is never emitted short.
func (s *Segmenter) AddChunk(chunk []byte) [][]byte {
	if len(chunk) == 0 {
		return nil
	}

	s.pending = append(s.pending, chunk...)

	var windows [][]byte
	for len(s.pending) >= s.windowSize {
		window := make([]byte, s.windowSize)
		copy(window, s.pending[:s.windowSize])
		s.pending = s.pending[s.windowSize:]

		if !s.cfg.VADEnabled || s.detector == nil {
			windows = append(windows, window)
			continue
		}

		if s.gateWindow(window) {
			windows = append(windows, window)
		}
	}

	return windows
}

// gateWindow classifies the window's sub-frames, updates the hysteresis
// counters, and reports whether speech is active after the update.
func (s *Segmenter) gateWindow(window []byte) bool {
	var frames, speech int
	for off := 0; off+s.subFrameSize <= len(window); off += s.subFrameSize {
		frames++
		isSpeech, err := s.detector.IsSpeech(
			window[off:off+s.subFrameSize],
			s.cfg.SampleRate,
		)
		if err != nil {
			// Fail open: dropping audio is worse than forwarding noise.
			s.logger.Warn("speech detector failed", "error", err)
			isSpeech = true
		}
		if isSpeech {
			speech++
		}
	}

	var ratio float64
	if frames > 0 {
		ratio = float64(speech) / float64(frames)
	}

	if ratio > s.cfg.SpeechRatioThreshold {
		s.speechFrames++
		s.silenceFrames = 0
		if s.speechFrames >= s.cfg.SpeechRunOn {
			s.speechActive = true
		}
	} else {
		s.silenceFrames++
		s.speechFrames = 0
		if s.silenceFrames >= s.cfg.SilenceRunOff {
			s.speechActive = false
		}
	}

	return s.speechActive
}

func (s *Segmenter) IsSpeechActive() bool {
	return s.speechActive
}

// WindowSize is the emitted window length in bytes.
func (s *Segmenter) WindowSize() int {
	return s.windowSize
}

// PendingBytes reports how much audio is buffered short of a window.
func (s *Segmenter) PendingBytes() int {
	return len(s.pending)
}

// Reset drops buffered audio and returns the hysteresis to silence.
func (s *Segmenter) Reset() {
	s.pending = nil
	s.speechFrames = 0
	s.silenceFrames = 0
	s.speechActive = false
}
