package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/claims-vision/internal/imageprep"
	"github.com/sells-group/claims-vision/internal/llm"
	"github.com/sells-group/claims-vision/internal/model"
	"github.com/sells-group/claims-vision/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP assessment server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(env),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter builds the HTTP API: photo assessment plus run inspection.
func newRouter(env *pipelineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/assess", func(w http.ResponseWriter, req *http.Request) {
		handleAssess(env, w, req)
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		if env.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "run store not configured")
			return
		}
		runs, err := env.Store.ListRuns(req.Context(), store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			Source: req.URL.Query().Get("source"),
		})
		if err != nil {
			zap.L().Error("list runs failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		if env.Store == nil {
			writeError(w, http.StatusServiceUnavailable, "run store not configured")
			return
		}
		run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		if err != nil {
			zap.L().Error("get run failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	return r
}

// handleAssess accepts a multipart photo upload and runs the full
// assessment synchronously, returning the report.
func handleAssess(env *pipelineEnv, w http.ResponseWriter, req *http.Request) {
	if err := req.ParseMultipartForm(int64(cfg.Server.MaxUploadMB) << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := req.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo field is required")
		return
	}
	defer file.Close()

	source := req.FormValue("source")
	if source == "" {
		source = header.Filename
	}

	data, err := imageprep.Encode(file, imageOptions())
	if err != nil {
		var inputErr *imageprep.InputError
		if errors.As(err, &inputErr) {
			writeError(w, http.StatusBadRequest, inputErr.Error())
			return
		}
		zap.L().Error("photo preprocessing failed", zap.String("source", source), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "photo preprocessing failed")
		return
	}

	report, err := env.Pipeline.Run(req.Context(), source, llm.Image{
		MediaType: imageprep.MediaType,
		Data:      data,
	})
	if err != nil {
		zap.L().Error("assessment failed", zap.String("source", source), zap.Error(err))
		if llm.IsInvocationError(err) {
			writeError(w, http.StatusBadGateway, "model invocation failed")
			return
		}
		writeError(w, http.StatusInternalServerError, "assessment failed")
		return
	}

	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
