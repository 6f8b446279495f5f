package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/omrscore/internal/handler"
	appI18n "github.com/pavelanni/omrscore/internal/i18n"
	"github.com/pavelanni/omrscore/internal/model"
	"github.com/pavelanni/omrscore/internal/omr"
	"github.com/pavelanni/omrscore/internal/recognizer"
	"github.com/pavelanni/omrscore/internal/recognizer/prompts"
	"github.com/pavelanni/omrscore/internal/store"
)

//go:generate templ generate

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "omrscore",
		Short: "Score OMR answer sheets against an answer key",
	}

	serve := serveCmd()
	root.AddCommand(serve, scoreCmd(), keyCmd(), exportCmd(), hashKeyCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `omrscore --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addRecognizerFlags(f *pflag.FlagSet) {
	f.String("provider", string(recognizer.ProviderGemini), "Recognition backend (gemini, openai)")
	f.String("api-key", "", "API key for the recognition backend (gemini falls back to GOOGLE_API_KEY / GEMINI_API_KEY)")
	f.String("llm-url", "", "OpenAI-compatible API base URL (openai provider only)")
	f.String("model", "", "Vision model name (provider default when empty)")
	f.String("prompt-variant", string(prompts.PromptStrict), "Detection prompt variant (strict, standard)")
	f.Int("attempts", 3, "Recognition attempts per image (gemini provider)")
	f.Duration("detect-timeout", 2*time.Minute, "Time budget for recognizing one request (0 = none)")
	f.IntP("num-questions", "n", 100, "Number of questions on the sheet (1-300)")
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP scoring server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "", "SQLite database path for run history (empty disables history)")
	f.StringP("lang", "l", "en", "Default language for messages (en, ru)")
	f.Int64("max-upload-mb", 16, "Maximum request body size in megabytes")
	f.String("api-key-hash", "", "bcrypt hash of the API key required in X-API-Key (empty disables auth)")
	f.StringSlice("cors-origins", nil, "Origins allowed to call the API from a browser (repeatable, empty disables CORS)")
	addRecognizerFlags(f)
	addLogFlags(f)
	return cmd
}

func scoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one sheet image and print the result as JSON",
		RunE:  runScore,
	}
	f := cmd.Flags()
	f.String("sheet", "", "Student sheet image (required)")
	f.String("key-image", "", "Answer key sheet image")
	f.String("key", "", "Answer key text")
	f.String("key-file", "", "File containing the answer key text")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addRecognizerFlags(f)
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("sheet")
	cmd.MarkFlagsMutuallyExclusive("key-image", "key", "key-file")

	return cmd
}

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Parse answer key text and print the canonical answers",
		RunE:  runKey,
	}
	f := cmd.Flags()
	f.String("text", "", "Answer key text")
	f.String("file", "", "File containing the answer key text (- for stdin)")
	f.IntP("num-questions", "n", 100, "Number of questions (1-300)")
	addLogFlags(f)

	cmd.MarkFlagsMutuallyExclusive("text", "file")
	cmd.MarkFlagsOneRequired("text", "file")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export run history as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "omrscore.db", "SQLite database path")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(f)
	return cmd
}

func hashKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hash-key",
		Short: "Print a bcrypt hash of an API key for --api-key-hash",
		RunE:  runHashKey,
	}
	f := cmd.Flags()
	f.String("key", "", "API key to hash (required)")
	f.Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	addLogFlags(f)

	_ = cmd.MarkFlagRequired("key")

	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("OMRSCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("omrscore")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/omrscore")
	v.AddConfigPath("/etc/omrscore")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// newDetector builds the recognition backend from the recognizer flags.
func newDetector(v *viper.Viper) (recognizer.Detector, error) {
	provider := recognizer.Provider(strings.ToLower(strings.TrimSpace(v.GetString("provider"))))
	apiKey := v.GetString("api-key")
	if apiKey == "" && provider != recognizer.ProviderOpenAI {
		apiKey = cmp.Or(os.Getenv("GOOGLE_API_KEY"), os.Getenv("GEMINI_API_KEY"))
	}
	if apiKey == "" {
		slog.Warn("no API key configured, recognition requests will fail", "provider", provider)
	}

	variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
	if !prompts.IsValidVariant(variant) {
		slog.Warn("invalid prompt-variant, using strict", "variant", variant)
		variant = string(prompts.PromptStrict)
	}

	return recognizer.New(recognizer.Config{
		Provider:      provider,
		APIKey:        apiKey,
		BaseURL:       v.GetString("llm-url"),
		Model:         v.GetString("model"),
		PromptVariant: prompts.PromptVariant(variant),
		Attempts:      v.GetInt("attempts"),
	})
}

func numQuestions(v *viper.Viper) (int, error) {
	n := v.GetInt("num-questions")
	if !omr.ValidQuestionCount(n) {
		return 0, fmt.Errorf("num-questions must be between %d and %d, got %d", omr.MinQuestions, omr.MaxQuestions, n)
	}
	return n, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	n, err := numQuestions(v)
	if err != nil {
		return err
	}

	// History is opt-in.
	var db *store.Store
	if path := v.GetString("db"); path != "" {
		db, err = store.New(path)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		count, err := db.RunCount()
		if err != nil {
			return fmt.Errorf("count runs: %w", err)
		}
		slog.Info("run history enabled", "db", path, "runs", count)
	}

	// Initialize i18n.
	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	detector, err := newDetector(v)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}
	if p, ok := detector.(recognizer.Pinger); ok {
		if err := p.Ping(context.Background()); err != nil {
			return fmt.Errorf("recognizer health check: %w", err)
		}
		slog.Info("recognizer endpoint OK", "provider", detector.Name(), "url", v.GetString("llm-url"))
	}

	cfg := model.ServiceConfig{
		DefaultQuestions: n,
		MaxUploadBytes:   v.GetInt64("max-upload-mb") << 20,
		DetectTimeout:    v.GetDuration("detect-timeout"),
		APIKeyHash:       v.GetString("api-key-hash"),
	}
	h := handler.New(db, detector, cfg)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	if origins := v.GetStringSlice("cors-origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept-Language", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"provider", detector.Name(),
		"model", v.GetString("model"),
		"lang", lang,
		"num_questions", n,
		"history", db != nil,
		"auth", cfg.APIKeyHash != "",
	)
	return http.ListenAndServe(addr, r)
}

func readImageFile(path string) (recognizer.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return recognizer.Image{}, fmt.Errorf("read %s: %w", path, err)
	}
	name := filepath.Base(path)
	if !handler.AllowedFile(name) {
		return recognizer.Image{}, fmt.Errorf("%s: unsupported image type", path)
	}
	return recognizer.Image{Name: name, Data: data}, nil
}

func runScore(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	n, err := numQuestions(v)
	if err != nil {
		return err
	}
	sheet, err := readImageFile(v.GetString("sheet"))
	if err != nil {
		return err
	}

	keyText := v.GetString("key")
	if path := v.GetString("key-file"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		keyText = string(data)
	}

	detector, err := newDetector(v)
	if err != nil {
		return fmt.Errorf("create detector: %w", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if d := v.GetDuration("detect-timeout"); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	student, err := recognizer.Recognize(ctx, detector, sheet, n)
	if err != nil {
		return err
	}

	var key omr.Sheet
	if path := v.GetString("key-image"); path != "" {
		img, err := readImageFile(path)
		if err != nil {
			return err
		}
		if key, err = recognizer.Recognize(ctx, detector, img, n); err != nil {
			return err
		}
	} else if strings.TrimSpace(keyText) != "" {
		key = omr.ParseKey(keyText, n)
		slog.Info("parsed answer key", "format", omr.FormatOf(keyText, n))
	}

	resp := model.ScoreResponse{
		Status:         model.StatusSuccess,
		Mode:           model.ModeDetectionOnly,
		StudentAnswers: student,
		NumQuestions:   n,
	}
	if key != nil {
		sum, breakdown := omr.Score(student, key, n)
		resp.Mode = model.ModeScored
		resp.Summary = &sum
		resp.Breakdown = breakdown
		resp.CorrectAnswers = key
		resp.NumQuestions = 0
	}
	return writeOutput(v.GetString("output"), resp)
}

type keyOutput struct {
	Format       omr.KeyFormat `json:"format"`
	NumQuestions int           `json:"num_questions"`
	Answers      omr.Sheet     `json:"answers"`
}

func runKey(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	n, err := numQuestions(v)
	if err != nil {
		return err
	}

	text := v.GetString("text")
	switch path := v.GetString("file"); path {
	case "":
	case "-":
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read key file: %w", err)
		}
		text = string(data)
	}

	return writeOutput("-", keyOutput{
		Format:       omr.FormatOf(text, n),
		NumQuestions: n,
		Answers:      omr.ParseKey(text, n),
	})
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	path := v.GetString("db")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("database %s does not exist", path)
	}
	db, err := store.New(path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	runs, err := db.ExportRuns()
	if err != nil {
		return fmt.Errorf("export runs: %w", err)
	}
	if runs == nil {
		runs = []model.Run{}
	}

	export := model.RunExport{
		ExportedAt: time.Now().UTC(),
		Count:      len(runs),
		Runs:       runs,
	}
	slog.Info("exporting runs", "count", export.Count)
	return writeOutput(v.GetString("output"), export)
}

func runHashKey(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	hash, err := bcrypt.GenerateFromPassword([]byte(v.GetString("key")), v.GetInt("cost"))
	if err != nil {
		return fmt.Errorf("hash key: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(hash))
	return err
}

// writeOutput writes v as indented JSON to outPath, or stdout for "-".
func writeOutput(outPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}
