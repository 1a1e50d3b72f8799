// Package server exposes the planner over a JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/piwi3910/ReelCut/internal/engine"
	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/planner"
	"github.com/piwi3910/ReelCut/internal/store"
)

// Planner is the workflow the API drives. *planner.Service implements it.
type Planner interface {
	Pending(ctx context.Context, f store.Filter) ([]model.PendingRequirement, error)
	Suggest(ctx context.Context, f store.Filter) (model.Result, error)
	Suggestion(id string) (model.Suggestion, error)
	Adjust(ctx context.Context, id string, expectedVersion int, op engine.Operation) (model.Suggestion, error)
	Commit(ctx context.Context, id string) (store.PlanRef, error)
}

var _ Planner = (*planner.Service)(nil)

// Server holds the handlers.
type Server struct {
	planner Planner
	log     *slog.Logger
}

// New returns a Server. A nil logger discards output.
func New(p Planner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{planner: p, log: logger}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/requirements", s.handleRequirements)
	r.Route("/suggestions", func(r chi.Router) {
		r.Post("/", s.handleSuggest)
		r.Get("/{id}", s.handleGetSuggestion)
		r.Post("/{id}/cuts", s.handleAddCut)
		r.Delete("/{id}/cuts/{cutID}", s.handleRemoveCut)
		r.Post("/{id}/commit", s.handleCommit)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrVersionConflict),
		errors.Is(err, model.ErrJumboFull),
		errors.Is(err, model.ErrSetFull),
		errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, planner.ErrCommitted):
		return http.StatusConflict
	case errors.Is(err, model.ErrInvalidInput),
		errors.Is(err, model.ErrRequirementTooWide):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", r.URL.Path, "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Status: "error", Message: msg})
}

func badRequest(w http.ResponseWriter, format string, args ...any) {
	writeJSON(w, http.StatusBadRequest, errorBody{Status: "error", Message: fmt.Sprintf(format, args...)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseFilter reads order and spec filters from the query string. Orders
// may repeat or be comma separated; a spec filter needs gsm, bf and shade.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	var f store.Filter
	for _, v := range q["order"] {
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				f.OrderIDs = append(f.OrderIDs, id)
			}
		}
	}

	gsmStr, bfStr, shade := q.Get("gsm"), q.Get("bf"), q.Get("shade")
	if gsmStr == "" && bfStr == "" && shade == "" {
		return f, nil
	}
	gsm, err := strconv.Atoi(gsmStr)
	if err != nil {
		return f, fmt.Errorf("invalid gsm %q", gsmStr)
	}
	bf, err := strconv.ParseFloat(bfStr, 64)
	if err != nil {
		return f, fmt.Errorf("invalid bf %q", bfStr)
	}
	spec := model.NewPaperSpec(gsm, bf, shade)
	if err := spec.Validate(); err != nil {
		return f, err
	}
	f.Spec = &spec
	return f, nil
}

func (s *Server) handleRequirements(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		badRequest(w, "%v", err)
		return
	}
	reqs, err := s.planner.Pending(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if reqs == nil {
		reqs = []model.PendingRequirement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": engine.StatusSuccess, "requirements": reqs})
}

type suggestRequest struct {
	OrderIDs []string         `json:"order_ids"`
	Spec     *model.PaperSpec `json:"spec"`
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var body suggestRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return
	}
	f := store.Filter{OrderIDs: body.OrderIDs}
	if body.Spec != nil {
		spec := body.Spec.Normalize()
		if err := spec.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
		f.Spec = &spec
	}

	result, err := s.planner.Suggest(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.SpecView(result))
}

func (s *Server) handleGetSuggestion(w http.ResponseWriter, r *http.Request) {
	sug, err := s.planner.Suggestion(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result := planner.ResultFor(sug)
	switch view := r.URL.Query().Get("view"); view {
	case "", "spec":
		writeJSON(w, http.StatusOK, model.SpecView(result))
	case "order":
		writeJSON(w, http.StatusOK, model.OrderView(result))
	default:
		badRequest(w, "unknown view %q", view)
	}
}

type addCutRequest struct {
	Version     int              `json:"version"`
	JumboID     string           `json:"jumbo_id"`
	SetID       string           `json:"set_id"`
	Width       float64          `json:"width"`
	Spec        *model.PaperSpec `json:"spec"`
	OrderID     string           `json:"order_id"`
	Description string           `json:"description"`
}

func (s *Server) handleAddCut(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body addCutRequest
	if err := decode(r, &body); err != nil {
		badRequest(w, "invalid request body: %v", err)
		return
	}

	req := engine.AddCutRequest{
		JumboID:     body.JumboID,
		SetID:       body.SetID,
		Width:       body.Width,
		OrderID:     body.OrderID,
		Description: body.Description,
	}
	if body.Spec != nil {
		req.Spec = *body.Spec
	} else {
		// The cut takes the suggestion's spec unless one is given.
		sug, err := s.planner.Suggestion(id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		req.Spec = sug.Spec
	}

	out, err := s.planner.Adjust(r.Context(), id, body.Version, engine.AddCutOp{AddCutRequest: req})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewSpecSuggestionView(out))
}

func (s *Server) handleRemoveCut(w http.ResponseWriter, r *http.Request) {
	version := 0
	if v := r.URL.Query().Get("version"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			badRequest(w, "invalid version %q", v)
			return
		}
		version = n
	}

	out, err := s.planner.Adjust(r.Context(), chi.URLParam(r, "id"), version, engine.RemoveCutOp{CutID: chi.URLParam(r, "cutID")})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewSpecSuggestionView(out))
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	ref, err := s.planner.Commit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": engine.StatusSuccess, "plan": ref})
}

// ListenAndServe serves the API on addr until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
