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
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/beanraft/district-cli/internal/model"
	"github.com/beanraft/district-cli/internal/pipeline"
	"github.com/beanraft/district-cli/internal/store"
)

var servePort int

// reportRunner is the slice of the pipeline the HTTP surface needs.
type reportRunner interface {
	GenerateReport(ctx context.Context, query string, hint model.PrecisionHint, opts ...pipeline.RunOption) (*model.Report, *model.Disambiguation, error)
	Progress() *pipeline.Broker
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the report API server",
	Long:  "Serves report generation over HTTP: POST /api/reports starts a run, GET /api/reports/{runID} returns its state, and GET /api/reports/{runID}/events streams progress as server-sent events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

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
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(ctx, env.Store, env.Pipeline),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// newRouter wires the API routes. baseCtx bounds background report runs so
// shutdown cancels them; per-request contexts end when the response does.
func newRouter(baseCtx context.Context, st store.Store, runner reportRunner) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/reports", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Query string `json:"query"`
			Hint  string `json:"hint"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if body.Query == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
			return
		}
		hint, err := parseHint(body.Hint)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}

		// Create the run record up front so the caller can subscribe to
		// events before the first one fires.
		run, err := st.CreateRun(req.Context(), body.Query, hint)
		if err != nil {
			zap.L().Error("create run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "create run failed"})
			return
		}

		go func() {
			_, dis, err := runner.GenerateReport(baseCtx, body.Query, hint, pipeline.WithRunID(run.ID))
			switch {
			case err != nil:
				zap.L().Warn("report run failed",
					zap.String("run_id", run.ID),
					zap.String("query", body.Query),
					zap.Error(err),
				)
			case dis != nil:
				zap.L().Info("report run ambiguous",
					zap.String("run_id", run.ID),
					zap.Int("candidates", len(dis.Candidates)),
				)
			}
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"runId":  run.ID,
			"status": string(model.RunQueued),
		})
	})

	r.Get("/api/reports/{runID}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "runID"))
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			zap.L().Error("get run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get run failed"})
			return
		}
		writeJSON(w, http.StatusOK, runResponse(run))
	})

	r.Get("/api/reports/{runID}/events", func(w http.ResponseWriter, req *http.Request) {
		runID := chi.URLParam(req, "runID")
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
			return
		}

		// Subscribe before the terminal-state check so no event can slip
		// between the two.
		events, cancel := runner.Progress().Subscribe(runID)
		defer cancel()

		run, err := st.GetRun(req.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			zap.L().Error("get run failed", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get run failed"})
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		if run.Status.Terminal() {
			writeSSE(w, "done", map[string]string{"status": string(run.Status)})
			flusher.Flush()
			return
		}

		for {
			select {
			case <-req.Context().Done():
				return
			case ev, ok := <-events:
				if !ok {
					writeSSE(w, "done", map[string]string{"status": "finished"})
					flusher.Flush()
					return
				}
				writeSSE(w, "progress", ev)
				flusher.Flush()
			}
		}
	})

	return r
}

// runResponse is the wire shape of one run.
func runResponse(run *model.Run) map[string]any {
	resp := map[string]any{
		"runId":     run.ID,
		"query":     run.Query,
		"status":    string(run.Status),
		"createdAt": run.CreatedAt,
		"updatedAt": run.UpdatedAt,
	}
	if run.Report != nil {
		resp["report"] = run.Report
	}
	if run.Error != "" {
		resp["error"] = run.Error
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeSSE(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
