package main

import (
	"context"
	"embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"turnaround-studio/internal/archive"
	"turnaround-studio/internal/config"
	"turnaround-studio/internal/datauri"
	"turnaround-studio/internal/gemini"
	"turnaround-studio/internal/history"
	"turnaround-studio/internal/httpclient"
	"turnaround-studio/internal/retry"
	"turnaround-studio/internal/turnaround"
	"turnaround-studio/internal/viewpoint"
)

//go:embed static/*
var staticFS embed.FS

type server struct {
	gen      turnaround.Generator
	recorder history.Recorder
	logger   *slog.Logger
	timeout  time.Duration
}

type apiError struct {
	Error  string `json:"error"`
	Status string `json:"status"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	gem := gemini.New(gemini.Options{
		APIKey:            cfg.GeminiAPIKey,
		BaseURL:           cfg.GeminiBaseURL,
		APIVersion:        cfg.GeminiAPIVersion,
		HTTPClient:        httpClient,
		Logger:            logger,
		Retry:             retry.Policy{MaxRetries: uint64(cfg.RetryMaxAttempts), BaseDelay: cfg.RetryBaseDelay},
		RequestsPerMinute: cfg.RequestsPerMinute,
		PromptCacheTTL:    cfg.PromptCacheTTL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := newRecorder(ctx, cfg, logger)
	defer recorder.Close()

	s := &server{
		gen:      gem,
		recorder: recorder,
		logger:   logger,
		timeout:  cfg.RequestTimeout,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/catalog", s.handleCatalog)
	mux.HandleFunc("/api/analyze", s.handleAnalyze)
	mux.HandleFunc("/api/render", s.handleRender)
	mux.HandleFunc("/api/archive", s.handleArchive)

	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("/", http.FileServer(http.FS(staticSub)))

	srv := &http.Server{
		Addr:              cfg.WebAddr,
		Handler:           withLogging(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       90 * time.Second,
	}

	scheduler := cron.New()
	scheduler.AddFunc("0 3 * * *", func() {
		purgeCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if removed, err := recorder.Purge(purgeCtx, cfg.HistoryRetention); err != nil {
			logger.Warn("history purge failed", "err", err)
		} else if removed > 0 {
			logger.Info("purged old run records", "removed", removed)
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("web started", "addr", cfg.WebAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	logger.Info("shut down cleanly")
}

func (s *server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	type styleEntry struct {
		Key  string `json:"key"`
		Name string `json:"name"`
	}
	styles := make([]styleEntry, 0)
	for _, preset := range viewpoint.Styles() {
		styles = append(styles, styleEntry{Key: preset.Key, Name: preset.Name})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"styles":        styles,
		"aspect_ratios": viewpoint.AspectRatios(),
		"viewpoints":    viewpoint.Canonical,
	})
}

// handleAnalyze derives the three missing-viewpoint prompts from an
// uploaded photo.
func (s *server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	const maxUploadBytes = 25 << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing image"})
		return
	}
	defer file.Close()

	imgBytes, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "failed to read image"})
		return
	}

	mimeType := sniffMime(header.Header.Get("Content-Type"), imgBytes)
	img := gemini.ImageInput{
		DataBase64: base64.StdEncoding.EncodeToString(imgBytes),
		MimeType:   mimeType,
	}
	framing := viewpoint.NormalizeFraming(r.FormValue("framing"))
	mode := viewpoint.NormalizeMode(r.FormValue("mode"))

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	started := time.Now()
	prompts, err := s.gen.DerivePrompts(ctx, img, framing, mode)
	s.record(r.Context(), history.Run{
		Source:   "web",
		Mode:     string(mode),
		Framing:  string(framing),
		Status:   runStatus(err),
		Views:    0,
		Duration: time.Since(started),
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"prompts": prompts,
		"image":   datauri.Format(mimeType, img.DataBase64),
	})
}

type renderRequest struct {
	Image       string `json:"image"` // data URI of the original photo
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	AspectRatio string `json:"aspect_ratio"`
	Mode        string `json:"mode"`
}

// handleRender renders one viewpoint. The SPA calls this three times,
// strictly sequentially, appending each result as it arrives.
func (s *server) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	var req renderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 50<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "missing prompt"})
		return
	}

	mimeType, base64Data, err := datauri.Split(req.Image)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid image data URI"})
		return
	}

	img := gemini.ImageInput{DataBase64: base64Data, MimeType: mimeType}
	style := viewpoint.NormalizeStyle(req.Style)
	aspect := viewpoint.NormalizeAspectRatio(req.AspectRatio)
	mode := viewpoint.NormalizeMode(req.Mode)

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	started := time.Now()
	uri, err := s.gen.RenderView(ctx, img, req.Prompt, style, aspect, mode)
	views := 0
	if err == nil {
		views = 1
	}
	s.record(r.Context(), history.Run{
		Source:      "web",
		Mode:        string(mode),
		Style:       style,
		AspectRatio: aspect,
		Status:      runStatus(err),
		Views:       views,
		Duration:    time.Since(started),
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"image":  uri,
		"prompt": req.Prompt,
	})
}

type archiveRequest struct {
	Original string `json:"original"` // data URI
	Views    []struct {
		Image  string `json:"image"`
		Prompt string `json:"prompt"`
	} `json:"views"`
}

// handleArchive packages the original photo plus generated views as a ZIP.
func (s *server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiError{Error: "method not allowed"})
		return
	}

	var req archiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 200<<20)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body"})
		return
	}
	if req.Original == "" || len(req.Views) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "original and views are required"})
		return
	}

	items := make([]archive.Item, 0, 1+len(req.Views))
	items = append(items, archive.Item{Name: "original", DataURI: req.Original})
	for i, v := range req.Views {
		items = append(items, archive.Item{
			Name:    "view-" + strconv.Itoa(i+1),
			DataURI: v.Image,
			Prompt:  v.Prompt,
		})
	}

	blob, err := archive.BuildZIP(items)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "could not build archive"})
		return
	}

	w.Header().Set("content-type", "application/zip")
	w.Header().Set("content-disposition", `attachment; filename="turnaround.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

func (s *server) writeFailure(w http.ResponseWriter, err error) {
	status := turnaround.Classify(err)

	code := http.StatusBadGateway
	switch status {
	case turnaround.StatusOverloaded:
		code = http.StatusServiceUnavailable
	case turnaround.StatusQuota:
		code = http.StatusTooManyRequests
	case turnaround.StatusBadKey:
		code = http.StatusInternalServerError
	case turnaround.StatusMalformed:
		code = http.StatusBadGateway
	}

	s.logger.Error("generation failed", "status", status, "err", err)
	writeJSON(w, code, apiError{Error: turnaround.Message(err), Status: string(status)})
}

func (s *server) record(ctx context.Context, run history.Run) {
	if err := s.recorder.Record(ctx, run); err != nil {
		s.logger.Warn("run audit record failed", "err", err)
	}
}

func runStatus(err error) string {
	if err == nil {
		return "complete"
	}
	return string(turnaround.Classify(err))
}

func sniffMime(header string, data []byte) string {
	mimeType := strings.TrimSpace(header)
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if strings.Contains(mimeType, ";") {
		mimeType = strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newRecorder(ctx context.Context, cfg config.Config, logger *slog.Logger) history.Recorder {
	if cfg.DatabaseURL == "" {
		return history.Noop{}
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rec, err := history.OpenPostgres(openCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("run audit log disabled", "err", err)
		return history.Noop{}
	}
	logger.Info("run audit log enabled")
	return rec
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

func withLogging(next http.Handler, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info("http", "method", r.Method, "path", r.URL.Path, "dur_ms", time.Since(start).Milliseconds())
	})
}
