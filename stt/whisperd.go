package stt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
)

// WhisperdEngine talks to a whisper.cpp-style server over HTTP. The model
// runs out of process; each window becomes one /inference request with a
// WAV body and the word-context as the biasing prompt.
type WhisperdEngine struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

func NewWhisperdEngine(baseURL string, logger *log.Logger) *WhisperdEngine {
	return &WhisperdEngine{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

type whisperdResponse struct {
	Text             string  `json:"text"`
	NoSpeechProb     float64 `json:"no_speech_prob"`
	CompressionRatio float64 `json:"compression_ratio"`
}

func (e *WhisperdEngine) Transcribe(
	ctx context.Context,
	pcm []byte,
	sampleRate int,
	prompt string,
) (Segment, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "window.wav")
	if err != nil {
		return Segment{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(WAVBytes(pcm, sampleRate)); err != nil {
		return Segment{}, fmt.Errorf("write wav body: %w", err)
	}
	if prompt != "" {
		if err := form.WriteField("prompt", prompt); err != nil {
			return Segment{}, fmt.Errorf("write prompt field: %w", err)
		}
	}
	if err := form.WriteField("response_format", "json"); err != nil {
		return Segment{}, fmt.Errorf("write format field: %w", err)
	}
	if err := form.Close(); err != nil {
		return Segment{}, fmt.Errorf("close form: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/inference",
		&body,
	)
	if err != nil {
		return Segment{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return Segment{}, fmt.Errorf("whisperd request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Segment{}, fmt.Errorf(
			"whisperd returned %d: %s",
			resp.StatusCode,
			msg,
		)
	}

	var parsed whisperdResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Segment{}, fmt.Errorf("decode whisperd response: %w", err)
	}

	return Segment{
		Text:             parsed.Text,
		NoSpeechProb:     parsed.NoSpeechProb,
		CompressionRatio: parsed.CompressionRatio,
	}, nil
}

// WAVBytes wraps raw 16-bit mono PCM in a minimal RIFF header.
func WAVBytes(pcm []byte, sampleRate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	byteRate := sampleRate * channels * bitsPerSample / 8

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bitsPerSample/8))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
