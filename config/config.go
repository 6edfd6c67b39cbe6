package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config carries every tunable the pipeline needs. It is built once at
// startup and passed into constructors; nothing reads viper after that.
type Config struct {
	HTTPPort int

	// Audio windowing
	SampleRate         int
	SubFrameDurationMs int
	WindowDurationMs   int

	// Voice activity detection
	VADEnabled           bool
	EnergyThreshold      float64
	SpeechRatioThreshold float64
	SpeechRunOn          int
	SilenceRunOff        int

	// Utterance finality policy
	FinalityMinChars int
	FinalityMaxWords int
	ContextWordCap   int

	// Transcription quality gating. Zero disables a gate.
	NoSpeechThreshold   float64
	CompressionRatioMax float64

	// Session lifecycle
	InitFrameTimeout  time.Duration
	ActivityTimeout   time.Duration
	PersistenceWindow time.Duration
	ReaperInterval    time.Duration

	// Downstream action pipeline
	DispatchQueueSize   int
	MinActionConfidence float64
	GeminiAPIKey        string
	GeminiModel         string
	GitHubToken         string
	GitHubOwner         string
	GitHubRepo          string

	// Collaborator endpoints
	WhisperURL  string
	PostgresURL string
}

func SetDefaults() {
	viper.SetDefault("http_port", 8000)
	viper.SetDefault("sample_rate", 16000)
	viper.SetDefault("sub_frame_duration_ms", 30)
	viper.SetDefault("window_duration_ms", 3500)
	viper.SetDefault("vad_enabled", true)
	viper.SetDefault("energy_threshold", 0.02)
	viper.SetDefault("speech_ratio_threshold", 0.3)
	viper.SetDefault("speech_run_on", 2)
	viper.SetDefault("silence_run_off", 30)
	viper.SetDefault("finality_min_chars", 20)
	viper.SetDefault("finality_max_words", 25)
	viper.SetDefault("context_word_cap", 100)
	viper.SetDefault("no_speech_threshold", 0.6)
	viper.SetDefault("compression_ratio_max", 2.4)
	viper.SetDefault("init_frame_timeout", "5s")
	viper.SetDefault("activity_timeout", "30m")
	viper.SetDefault("persistence_window", "10m")
	viper.SetDefault("reaper_interval", "1m")
	viper.SetDefault("dispatch_queue_size", 64)
	viper.SetDefault("min_action_confidence", 0.5)
	viper.SetDefault("gemini_model", "gemini-1.5-flash")
	viper.SetDefault("whisper_url", "http://localhost:8178")
}

func FromViper() Config {
	return Config{
		HTTPPort:             viper.GetInt("http_port"),
		SampleRate:           viper.GetInt("sample_rate"),
		SubFrameDurationMs:   viper.GetInt("sub_frame_duration_ms"),
		WindowDurationMs:     viper.GetInt("window_duration_ms"),
		VADEnabled:           viper.GetBool("vad_enabled"),
		EnergyThreshold:      viper.GetFloat64("energy_threshold"),
		SpeechRatioThreshold: viper.GetFloat64("speech_ratio_threshold"),
		SpeechRunOn:          viper.GetInt("speech_run_on"),
		SilenceRunOff:        viper.GetInt("silence_run_off"),
		FinalityMinChars:     viper.GetInt("finality_min_chars"),
		FinalityMaxWords:     viper.GetInt("finality_max_words"),
		ContextWordCap:       viper.GetInt("context_word_cap"),
		NoSpeechThreshold:    viper.GetFloat64("no_speech_threshold"),
		CompressionRatioMax:  viper.GetFloat64("compression_ratio_max"),
		InitFrameTimeout:     viper.GetDuration("init_frame_timeout"),
		ActivityTimeout:      viper.GetDuration("activity_timeout"),
		PersistenceWindow:    viper.GetDuration("persistence_window"),
		ReaperInterval:       viper.GetDuration("reaper_interval"),
		DispatchQueueSize:    viper.GetInt("dispatch_queue_size"),
		MinActionConfidence:  viper.GetFloat64("min_action_confidence"),
		GeminiAPIKey:         viper.GetString("gemini_api_key"),
		GeminiModel:          viper.GetString("gemini_model"),
		GitHubToken:          viper.GetString("github_token"),
		GitHubOwner:          viper.GetString("github_owner"),
		GitHubRepo:           viper.GetString("github_repo"),
		WhisperURL:           viper.GetString("whisper_url"),
		PostgresURL:          viper.GetString("postgres_url"),
	}
}
