package main

import (
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

	"github.com/udaysk3/smart-research-assistant/internal/model"
	"github.com/udaysk3/smart-research-assistant/internal/research"
	"github.com/udaysk3/smart-research-assistant/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the research API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		env.Refresher.Start()
		defer env.Refresher.Stop()

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
			_ = srv.Shutdown(cmd.Context())
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(env *appEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		states := make(map[string]string)
		for name, state := range env.Breakers.States() {
			states[name] = state.String()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"breakers": states,
		})
	})

	r.Post("/research", handleResearch(env))
	r.Get("/reports", handleListReports(env))
	r.Get("/reports/{id}", handleGetReport(env))
	r.Get("/credits", handleCredits(env))
	r.Post("/credits/add", handleAddCredits(env))

	return r
}

func handleResearch(env *appEnv) http.HandlerFunc {
	type request struct {
		UserID           string `json:"user_id"`
		Question         string `json:"question"`
		IncludeWebSearch *bool  `json:"include_web_search,omitempty"`
		IncludeLiveData  *bool  `json:"include_live_data,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.UserID == "" || req.Question == "" {
			writeError(w, http.StatusBadRequest, "user_id and question are required")
			return
		}

		opts := research.DefaultOptions()
		if req.IncludeWebSearch != nil {
			opts.IncludeWebSearch = *req.IncludeWebSearch
		}
		if req.IncludeLiveData != nil {
			opts.IncludeLiveData = *req.IncludeLiveData
		}

		report, err := env.Orchestrator.SubmitResearch(r.Context(), req.UserID, req.Question, opts)
		if err != nil {
			writeResearchError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

// writeResearchError maps the pipeline failure taxonomy to HTTP statuses.
func writeResearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "insufficient credits")
	case errors.Is(err, model.ErrNoUsableEvidence):
		writeError(w, http.StatusUnprocessableEntity, "no usable evidence for this question")
	case errors.Is(err, model.ErrSynthesisFailure):
		writeError(w, http.StatusBadGateway, "synthesis failed, credits were not charged")
	default:
		zap.L().Error("research request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func handleGetReport(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := env.Store.GetReport(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		if err != nil {
			zap.L().Error("get report failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func handleListReports(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.ReportFilter{
			UserID: r.URL.Query().Get("user_id"),
			Limit:  50,
		}
		reports, err := env.Store.ListReports(r.Context(), filter)
		if err != nil {
			zap.L().Error("list reports failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		if reports == nil {
			reports = []model.ResearchReport{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
	}
}

func handleCredits(env *appEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			writeError(w, http.StatusBadRequest, "user_id is required")
			return
		}
		stats, err := env.Ledger.UsageStats(r.Context(), userID)
		if err != nil {
			zap.L().Error("usage stats failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func handleAddCredits(env *appEnv) http.HandlerFunc {
	type request struct {
		UserID string `json:"user_id"`
		Amount int    `json:"amount"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.UserID == "" || req.Amount <= 0 {
			writeError(w, http.StatusBadRequest, "user_id and a positive amount are required")
			return
		}
		if err := env.Ledger.Purchase(r.Context(), req.UserID, req.Amount); err != nil {
			zap.L().Error("purchase failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		balance, err := env.Ledger.Balance(r.Context(), req.UserID)
		if err != nil {
			zap.L().Error("balance lookup failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":           req.UserID,
			"available_credits": balance,
		})
	}
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
