package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/google/generative-ai-go/genai"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/api/option"

	"voxjam/actions"
	"voxjam/audio"
	"voxjam/config"
	"voxjam/gateway"
	"voxjam/session"
	"voxjam/store"
	"voxjam/stt"
	"voxjam/tui"
	"voxjam/www"
)

var logger *log.Logger

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(extractCmd)
	sessionsCmd.AddCommand(sessionsLsCmd)
	sessionsCmd.AddCommand(sessionsRmCmd)

	rootCmd.PersistentFlags().Int("http-port", 8000, "HTTP server port")
	rootCmd.PersistentFlags().String("gemini-api-key", "", "Gemini API key")
	rootCmd.PersistentFlags().String("github-token", "", "GitHub token")
	rootCmd.PersistentFlags().
		String("whisper-url", "http://localhost:8178", "whisperd base URL")
	rootCmd.PersistentFlags().String("postgres-url", "", "Postgres URL")

	viper.BindPFlag("http_port", rootCmd.PersistentFlags().Lookup("http-port"))
	viper.BindPFlag(
		"gemini_api_key",
		rootCmd.PersistentFlags().Lookup("gemini-api-key"),
	)
	viper.BindPFlag(
		"github_token",
		rootCmd.PersistentFlags().Lookup("github-token"),
	)
	viper.BindPFlag(
		"whisper_url",
		rootCmd.PersistentFlags().Lookup("whisper-url"),
	)
	viper.BindPFlag(
		"postgres_url",
		rootCmd.PersistentFlags().Lookup("postgres-url"),
	)

	watchCmd.Flags().
		String("url", "ws://localhost:8000/api/v1/ws/audio", "websocket endpoint")
	watchCmd.Flags().String("session", "", "paused session id to resume")

	sessionsCmd.PersistentFlags().
		String("server", "http://localhost:8000", "voxjam server base URL")
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AutomaticEnv()
	config.SetDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %s\n", err)
		}
	}

	logger = log.New(os.Stderr)
}

var rootCmd = &cobra.Command{
	Use:   "voxjam",
	Short: "Voice-driven assistant backend",
	Long:  `Voxjam streams audio over a websocket, transcribes it incrementally, and turns finalized utterances into executed actions.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the audio-to-action server",
	Run:   runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail a live transcript in the terminal",
	Run:   runWatch,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and manage sessions on a running server",
}

var sessionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List sessions in a table",
	Run:   runSessionsLs,
}

var sessionsRmCmd = &cobra.Command{
	Use:   "rm <sessionID>",
	Short: "Permanently remove a session",
	Args:  cobra.ExactArgs(1),
	Run:   runSessionsRm,
}

var extractCmd = &cobra.Command{
	Use:   "extract <text>",
	Short: "Extract actionable items from a piece of text",
	Args:  cobra.MinimumNArgs(1),
	Run:   runExtract,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := config.FromViper()
	mainLogger := logger.WithPrefix("main")

	ctx, cancel := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	manager := session.NewManager(session.ManagerConfig{
		ActivityTimeout:   cfg.ActivityTimeout,
		PersistenceWindow: cfg.PersistenceWindow,
		ReaperInterval:    cfg.ReaperInterval,
		ContextWordCap:    cfg.ContextWordCap,
	}, logger.WithPrefix("sess"))
	manager.Start(ctx)

	engine := stt.NewWhisperdEngine(cfg.WhisperURL, logger.WithPrefix("hear"))
	recognizer := stt.NewRecognizer(engine, stt.RecognizerConfig{
		FinalityMinChars:    cfg.FinalityMinChars,
		FinalityMaxWords:    cfg.FinalityMaxWords,
		NoSpeechThreshold:   cfg.NoSpeechThreshold,
		CompressionRatioMax: cfg.CompressionRatioMax,
	}, logger.WithPrefix("hear"))

	var archive *store.Store
	if cfg.PostgresURL != "" {
		var err error
		archive, err = store.Open(ctx, cfg.PostgresURL, logger.WithPrefix("data"))
		if err != nil {
			mainLogger.Fatal("open action archive", "error", err.Error())
		}
		defer archive.Close()
	} else {
		mainLogger.Warn("POSTGRES_URL not set, actions will not be archived")
	}

	var dispatcher gateway.Dispatcher
	if cfg.GeminiAPIKey != "" {
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			mainLogger.Fatal("create gemini client", "error", err.Error())
		}
		defer client.Close()

		actLogger := logger.WithPrefix("act")
		github := actions.NewGitHubClient(actions.GitHubConfig{
			Token: cfg.GitHubToken,
			Owner: cfg.GitHubOwner,
			Repo:  cfg.GitHubRepo,
		})

		var actionStore actions.Store
		if archive != nil {
			actionStore = archive
		}
		pipeline := actions.NewPipeline(
			actions.NewGeminiExtractor(client, cfg.GeminiModel, actLogger),
			actions.NewExecutor(github, actLogger),
			actionStore,
			actions.PipelineConfig{
				QueueSize:     cfg.DispatchQueueSize,
				MinConfidence: cfg.MinActionConfidence,
			},
			actLogger,
		)
		pipeline.Start(ctx)
		dispatcher = pipeline
	} else {
		mainLogger.Warn("GEMINI_API_KEY not set, action extraction disabled")
	}

	gw := gateway.New(manager, recognizer, dispatcher, gateway.Config{
		SampleRate:       cfg.SampleRate,
		InitFrameTimeout: cfg.InitFrameTimeout,
		Segmenter: audio.SegmenterConfig{
			SampleRate:           cfg.SampleRate,
			WindowDurationMs:     cfg.WindowDurationMs,
			SubFrameDurationMs:   cfg.SubFrameDurationMs,
			VADEnabled:           cfg.VADEnabled,
			SpeechRatioThreshold: cfg.SpeechRatioThreshold,
			SpeechRunOn:          cfg.SpeechRunOn,
			SilenceRunOff:        cfg.SilenceRunOff,
		},
		Detector: &audio.EnergyDetector{Threshold: cfg.EnergyThreshold},
	}, logger.WithPrefix("talk"))

	srv := www.New(manager, archive, gw.Handler(), logger.WithPrefix("http"))
	go func() {
		if err := srv.Serve(cfg.HTTPPort); err != nil {
			mainLogger.Fatal("start HTTP server", "error", err.Error())
		}
	}()

	<-ctx.Done()
	mainLogger.Info("shutting down")
}

func runWatch(cmd *cobra.Command, args []string) {
	url, _ := cmd.Flags().GetString("url")
	sessionID, _ := cmd.Flags().GetString("session")

	if err := tui.Watch(url, sessionID); err != nil {
		logger.Fatal("watch", "error", err.Error())
	}
}

func runSessionsLs(cmd *cobra.Command, args []string) {
	server, _ := cmd.Flags().GetString("server")

	resp, err := http.Get(server + "/api/v1/sessions")
	if err != nil {
		logger.Fatal("fetch sessions", "error", err.Error())
	}
	defer resp.Body.Close()

	var body struct {
		Sessions []session.Snapshot `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		logger.Fatal("decode sessions", "error", err.Error())
	}

	if len(body.Sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "State", "Created", "Last Activity", "Sentences", "Actions"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)

	for _, s := range body.Sessions {
		table.Append([]string{
			s.SessionID,
			s.State,
			s.CreatedAt.Format("2006-01-02 15:04:05"),
			s.LastActivity.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", len(s.Transcript)),
			fmt.Sprintf("%d", len(s.Actions)),
		})
	}

	table.Render()
}

func runSessionsRm(cmd *cobra.Command, args []string) {
	server, _ := cmd.Flags().GetString("server")
	id := args[0]

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Permanently remove session %s?", id)).
				Description("The transcript and ledger are gone for good; this is not a pause.").
				Value(&confirmed),
		),
	)
	if err := form.Run(); err != nil {
		logger.Fatal("confirm", "error", err.Error())
	}
	if !confirmed {
		fmt.Println("Aborted.")
		return
	}

	req, err := http.NewRequest(
		http.MethodDelete,
		server+"/api/v1/sessions/"+id,
		nil,
	)
	if err != nil {
		logger.Fatal("build request", "error", err.Error())
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		logger.Fatal("remove session", "error", err.Error())
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		fmt.Printf("Removed session %s.\n", id)
	case http.StatusNotFound:
		logger.Fatal("no such session", "session_id", id)
	default:
		logger.Fatal("remove session", "status", resp.Status)
	}
}

func runExtract(cmd *cobra.Command, args []string) {
	cfg := config.FromViper()
	if cfg.GeminiAPIKey == "" {
		logger.Fatal("missing GEMINI_API_KEY or --gemini-api-key=")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		logger.Fatal("create gemini client", "error", err.Error())
	}
	defer client.Close()

	extractor := actions.NewGeminiExtractor(
		client,
		cfg.GeminiModel,
		logger.WithPrefix("act"),
	)
	acts, err := extractor.ExtractActions(ctx, strings.Join(args, " "))
	if err != nil {
		logger.Fatal("extract actions", "error", err.Error())
	}

	if len(acts) == 0 {
		fmt.Println("No actionable items found.")
		return
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Type", "Description", "Confidence"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, a := range acts {
		table.Append([]string{
			a.Type,
			a.Description,
			fmt.Sprintf("%.2f", a.Confidence),
		})
	}
	table.Render()
}
