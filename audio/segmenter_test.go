package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/charmbracelet/log"
)

func testConfig() SegmenterConfig {
	return SegmenterConfig{
		SampleRate:           16000,
		WindowDurationMs:     500,
		SubFrameDurationMs:   30,
		VADEnabled:           false,
		SpeechRatioThreshold: 0.3,
		SpeechRunOn:          2,
		SilenceRunOff:        30,
	}
}

func newTestSegmenter(cfg SegmenterConfig, d SpeechDetector) *Segmenter {
	return NewSegmenter(cfg, d, log.New(io.Discard))
}

// generatePCM creates 16-bit mono PCM with roughly the given RMS energy.
func generatePCM(targetEnergy float64, numSamples int) []byte {
	amplitude := targetEnergy * 32768
	if amplitude > 32767 {
		amplitude = 32767
	}

	pcm := make([]byte, numSamples*2)
	sample := int16(amplitude)
	for i := 0; i < numSamples; i++ {
		if i%2 == 0 {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(sample))
		} else {
			binary.LittleEndian.PutUint16(pcm[i*2:], uint16(-sample))
		}
	}
	return pcm
}

func generateSilence(numSamples int) []byte {
	return make([]byte, numSamples*2)
}

// scriptedDetector returns canned classifications, then repeats the last.
type scriptedDetector struct {
	answers []bool
	errs    []error
	calls   int
}

func (d *scriptedDetector) IsSpeech(_ []byte, _ int) (bool, error) {
	i := d.calls
	d.calls++
	if i >= len(d.answers) {
		i = len(d.answers) - 1
	}
	var err error
	if i < len(d.errs) {
		err = d.errs[i]
	}
	return d.answers[i], err
}

// constantDetector classifies every sub-frame the same way.
type constantDetector struct {
	speech bool
}

func (d constantDetector) IsSpeech(_ []byte, _ int) (bool, error) {
	return d.speech, nil
}

func TestAddChunkWindowArithmetic(t *testing.T) {
	s := newTestSegmenter(testConfig(), nil)
	windowSize := s.WindowSize()
	if windowSize != 16000 {
		t.Fatalf("expected window size 16000, got %d", windowSize)
	}

	t.Run("exact multiples emit exactly total/window windows", func(t *testing.T) {
		s := newTestSegmenter(testConfig(), nil)
		input := generatePCM(0.1, windowSize*3/2)

		var got [][]byte
		// Feed in unaligned chunks whose total is 3 windows.
		for i := 0; i < len(input); i += 7000 {
			end := i + 7000
			if end > len(input) {
				end = len(input)
			}
			got = append(got, s.AddChunk(input[i:end])...)
		}

		if len(got) != 3 {
			t.Fatalf("expected 3 windows, got %d", len(got))
		}
		var rejoined []byte
		for _, w := range got {
			if len(w) != windowSize {
				t.Errorf("window length %d, want %d", len(w), windowSize)
			}
			rejoined = append(rejoined, w...)
		}
		if !bytes.Equal(rejoined, input) {
			t.Error("windows out of order or corrupted")
		}
		if s.PendingBytes() != 0 {
			t.Errorf("expected empty pending buffer, got %d bytes", s.PendingBytes())
		}
	})

	t.Run("partial window is retained, never emitted short", func(t *testing.T) {
		s := newTestSegmenter(testConfig(), nil)
		if got := s.AddChunk(make([]byte, windowSize-2)); got != nil {
			t.Fatalf("expected no window, got %d", len(got))
		}
		if s.PendingBytes() != windowSize-2 {
			t.Errorf("pending = %d, want %d", s.PendingBytes(), windowSize-2)
		}
	})

	t.Run("oversized chunk emits multiple windows in order", func(t *testing.T) {
		s := newTestSegmenter(testConfig(), nil)
		got := s.AddChunk(make([]byte, windowSize*2+10))
		if len(got) != 2 {
			t.Fatalf("expected 2 windows, got %d", len(got))
		}
		if s.PendingBytes() != 10 {
			t.Errorf("pending = %d, want 10", s.PendingBytes())
		}
	})

	t.Run("empty chunk is a no-op", func(t *testing.T) {
		s := newTestSegmenter(testConfig(), nil)
		if got := s.AddChunk(nil); got != nil {
			t.Fatalf("expected nil, got %v", got)
		}
		if s.PendingBytes() != 0 {
			t.Error("pending buffer grew on empty chunk")
		}
	})
}

func TestVADHysteresis(t *testing.T) {
	cfg := testConfig()
	cfg.VADEnabled = true

	window := func() []byte {
		return generatePCM(0.1, cfg.SampleRate*cfg.WindowDurationMs/1000)
	}

	t.Run("single speech window below run length never flips active", func(t *testing.T) {
		s := newTestSegmenter(cfg, constantDetector{speech: true})
		s.AddChunk(window())
		if s.IsSpeechActive() {
			t.Error("one speech window must not activate with SpeechRunOn=2")
		}
	})

	t.Run("exact run length flips active on", func(t *testing.T) {
		s := newTestSegmenter(cfg, constantDetector{speech: true})
		s.AddChunk(window())
		s.AddChunk(window())
		if !s.IsSpeechActive() {
			t.Error("two consecutive speech windows must activate")
		}
	})

	t.Run("silence windows before activation are dropped", func(t *testing.T) {
		s := newTestSegmenter(cfg, constantDetector{speech: false})
		if got := s.AddChunk(window()); len(got) != 0 {
			t.Errorf("expected silence window to be dropped, got %d", len(got))
		}
	})

	t.Run("trailing silence after speech is still forwarded", func(t *testing.T) {
		d := &scriptedDetector{answers: []bool{true}}
		s := newTestSegmenter(cfg, d)
		s.AddChunk(window())
		s.AddChunk(window())
		if !s.IsSpeechActive() {
			t.Fatal("expected speech active")
		}

		// All-silence windows keep flowing while active.
		d.answers = []bool{false}
		d.calls = 0
		if got := s.AddChunk(window()); len(got) != 1 {
			t.Errorf("trailing silence window dropped while active")
		}
	})

	t.Run("silence run length flips active off", func(t *testing.T) {
		s := newTestSegmenter(cfg, constantDetector{speech: true})
		s.AddChunk(window())
		s.AddChunk(window())

		silent := newSilentFrom(s)
		for i := 0; i < cfg.SilenceRunOff; i++ {
			silent.AddChunk(window())
		}
		if silent.IsSpeechActive() {
			t.Error("expected active off after full silence run")
		}
		if got := silent.AddChunk(window()); len(got) != 0 {
			t.Error("windows still forwarded after hysteresis turned off")
		}
	})

	t.Run("the window that flips speech off is dropped with it", func(t *testing.T) {
		s := newTestSegmenter(cfg, constantDetector{speech: true})
		s.AddChunk(window())
		s.AddChunk(window())

		silent := newSilentFrom(s)
		for i := 0; i < cfg.SilenceRunOff-1; i++ {
			if got := silent.AddChunk(window()); len(got) != 1 {
				t.Fatalf("silence window %d dropped while still active", i)
			}
		}
		if got := silent.AddChunk(window()); len(got) != 0 {
			t.Error("deactivating window was forwarded")
		}
		if silent.IsSpeechActive() {
			t.Error("expected active off at the full silence run")
		}
	})

	t.Run("zero sub-frame duration gates on the whole window", func(t *testing.T) {
		cfg := cfg
		cfg.SubFrameDurationMs = 0
		s := newTestSegmenter(cfg, constantDetector{speech: true})
		s.AddChunk(window())
		got := s.AddChunk(window())
		if !s.IsSpeechActive() {
			t.Fatal("expected speech active after the run length")
		}
		if len(got) != 1 {
			t.Errorf("activating window not forwarded, got %d", len(got))
		}
	})

	t.Run("detector errors fail open as speech", func(t *testing.T) {
		d := &scriptedDetector{
			answers: []bool{false},
			errs:    []error{errors.New("detector unavailable")},
		}
		s := newTestSegmenter(cfg, d)
		s.AddChunk(window())
		s.AddChunk(window())
		if !s.IsSpeechActive() {
			t.Error("errored sub-frames must count as speech")
		}
	})
}

// newSilentFrom swaps the detector for all-silence while keeping state.
func newSilentFrom(s *Segmenter) *Segmenter {
	out := newTestSegmenter(s.cfg, constantDetector{speech: false})
	out.speechActive = s.speechActive
	out.speechFrames = s.speechFrames
	out.silenceFrames = s.silenceFrames
	return out
}

func TestRMSEnergy(t *testing.T) {
	if got := rmsEnergy(generateSilence(480)); got != 0 {
		t.Errorf("silence energy = %f, want 0", got)
	}
	got := rmsEnergy(generatePCM(0.5, 480))
	if got < 0.4 || got > 0.6 {
		t.Errorf("energy = %f, want ~0.5", got)
	}
	if got := rmsEnergy(nil); got != 0 {
		t.Errorf("empty input energy = %f, want 0", got)
	}
}

func TestReset(t *testing.T) {
	cfg := testConfig()
	cfg.VADEnabled = true
	s := newTestSegmenter(cfg, constantDetector{speech: true})
	s.AddChunk(generatePCM(0.1, 10000))
	s.Reset()
	if s.PendingBytes() != 0 || s.IsSpeechActive() {
		t.Error("reset must clear pending audio and hysteresis")
	}
}
