// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api exposes the sync layer to the view over local HTTP. Every
// response is JSON derived from the cache, the live view and the signed-in
// identity; nothing is rendered here.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fieldcrm/leadsync/internal/bucket"
	"github.com/fieldcrm/leadsync/internal/cache"
	"github.com/fieldcrm/leadsync/internal/journal"
	"github.com/fieldcrm/leadsync/internal/models"
	"github.com/fieldcrm/leadsync/internal/mutation"
	"github.com/fieldcrm/leadsync/internal/prefetch"
	"github.com/fieldcrm/leadsync/internal/projection"
	"github.com/fieldcrm/leadsync/internal/remote"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// History page sizes.
const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// IdentityFunc returns the signed-in identity, or false when there is none.
type IdentityFunc func(ctx context.Context) (models.Identity, bool)

// History lists journaled mutation attempts. Implemented by journal.Store.
type History interface {
	ListByLead(ctx context.Context, leadID string, limit int) ([]journal.Entry, error)
}

// Handler serves the board and mutation endpoints.
type Handler struct {
	orch     *prefetch.Orchestrator
	pipeline *mutation.Pipeline
	store    *cache.Store
	history  History
	identity IdentityFunc
	now      func() time.Time
}

// HandlerConfig holds the dependencies for a Handler.
type HandlerConfig struct {
	Orchestrator *prefetch.Orchestrator
	Pipeline     *mutation.Pipeline
	Store        *cache.Store
	History      History // optional; nil when the journal is disabled
	Identity     IdentityFunc
	Now          func() time.Time
}

// NewHandler creates the API handler.
func NewHandler(cfg HandlerConfig) *Handler {
	now := cfg.Now
	if now == nil {
		now = cfg.Store.Now
	}
	return &Handler{
		orch:     cfg.Orchestrator,
		pipeline: cfg.Pipeline,
		store:    cfg.Store,
		history:  cfg.History,
		identity: cfg.Identity,
		now:      now,
	}
}

// Routes returns the mux with every endpoint registered.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /board", h.withIdentity(h.serveBoard))
	mux.HandleFunc("GET /employees/assignable", h.withIdentity(h.serveAssignable))
	mux.HandleFunc("POST /leads", h.withIdentity(h.serveCreate))
	mux.HandleFunc("POST /leads/{id}/move", h.withIdentity(h.serveMove))
	mux.HandleFunc("POST /leads/{id}/done", h.withIdentity(h.serveDone))
	mux.HandleFunc("GET /leads/{id}/history", h.withIdentity(h.serveHistory))
	mux.HandleFunc("POST /prefetch", h.servePrefetch)
	mux.HandleFunc("POST /signout", h.serveSignOut)
	return mux
}

type identityHandler func(w http.ResponseWriter, r *http.Request, id models.Identity)

// withIdentity rejects requests without a signed-in identity.
func (h *Handler) withIdentity(next identityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.identity(r.Context())
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "no signed-in identity"})
			return
		}
		next(w, r, id)
	}
}

// boardResponse is the projected, bucketed board.
type boardResponse struct {
	CapturedAt   *time.Time        `json:"capturedAt"`
	Columns      bucket.Board      `json:"columns"`
	Counts       map[string]int    `json:"counts"`
	StatusLabels map[string]string `json:"statusLabels"`
	Sources      []models.Option   `json:"sources"`
}

func (h *Handler) serveBoard(w http.ResponseWriter, r *http.Request, id models.Identity) {
	resp := boardResponse{Sources: []models.Option{}, StatusLabels: map[string]string{}}

	if env := h.orch.Load(r.Context()); env != nil {
		h.pipeline.View().Replace(env.Leads)
		captured := env.CapturedAt
		resp.CapturedAt = &captured
		resp.StatusLabels = models.LabelIndex(env.Statuses)
		resp.Sources = env.Sources
	}

	leads := projection.ProjectLeads(h.pipeline.View().Leads(), id)
	resp.Columns = bucket.Partition(leads, h.now())
	resp.Counts = make(map[string]int, len(bucket.All))
	for _, k := range bucket.All {
		resp.Counts[string(k)] = len(resp.Columns.Column(k))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) serveAssignable(w http.ResponseWriter, r *http.Request, id models.Identity) {
	editing, _ := strconv.ParseBool(r.URL.Query().Get("editing"))

	var employees []models.Employee
	if env := h.orch.Load(r.Context()); env != nil {
		employees = env.Employees
	}

	writeJSON(w, http.StatusOK, projection.ProjectEmployeesForAssignment(employees, id, editing))
}

type moveRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (h *Handler) serveMove(w http.ResponseWriter, r *http.Request, id models.Identity) {
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}
	from, err := bucket.ParseBucket(req.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("from: %v", err)})
		return
	}
	to, err := bucket.ParseBucket(req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("to: %v", err)})
		return
	}

	leadID := r.PathValue("id")
	if !h.canEdit(r.Context(), leadID, id) {
		writeError(w, fmt.Errorf("lead %s: %w", leadID, mutation.ErrLeadNotFound))
		return
	}

	lead, err := h.pipeline.Move(r.Context(), leadID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) serveDone(w http.ResponseWriter, r *http.Request, id models.Identity) {
	leadID := r.PathValue("id")
	if !h.canEdit(r.Context(), leadID, id) {
		writeError(w, fmt.Errorf("lead %s: %w", leadID, mutation.ErrLeadNotFound))
		return
	}

	lead, err := h.pipeline.MarkDone(r.Context(), leadID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) serveHistory(w http.ResponseWriter, r *http.Request, id models.Identity) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "mutation journal is not configured"})
		return
	}

	// Restricted users only see the history of leads they can resolve.
	leadID := r.PathValue("id")
	if !id.IsAdmin() {
		if _, err := h.pipeline.Lookup(r.Context(), leadID); err != nil {
			writeError(w, err)
			return
		}
	}
	if !h.canEdit(r.Context(), leadID, id) {
		writeError(w, fmt.Errorf("lead %s: %w", leadID, mutation.ErrLeadNotFound))
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := h.history.ListByLead(r.Context(), leadID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) serveCreate(w http.ResponseWriter, r *http.Request, id models.Identity) {
	var lead models.Lead
	if err := decodeBody(r, &lead); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	// Restricted users may only create leads for themselves.
	if !id.IsAdmin() {
		self := strings.TrimSpace(id.ID)
		switch projection.AssigneeID(lead) {
		case "":
			lead.AssignedTo = models.NewRef(self)
		case self:
		default:
			writeJSON(w, http.StatusForbidden, errorBody{Error: "restricted users can only assign leads to themselves"})
			return
		}
	}

	created, err := h.pipeline.Create(r.Context(), lead)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// prefetchResponse summarises the envelope a prefetch returned.
type prefetchResponse struct {
	CapturedAt time.Time `json:"capturedAt"`
	Statuses   int       `json:"statuses"`
	Sources    int       `json:"sources"`
	Employees  int       `json:"employees"`
	Leads      int       `json:"leads"`
}

func (h *Handler) servePrefetch(w http.ResponseWriter, r *http.Request) {
	env := h.orch.Prefetch(r.Context())
	if env == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.pipeline.View().Replace(env.Leads)
	writeJSON(w, http.StatusOK, prefetchResponse{
		CapturedAt: env.CapturedAt,
		Statuses:   len(env.Statuses),
		Sources:    len(env.Sources),
		Employees:  len(env.Employees),
		Leads:      len(env.Leads),
	})
}

func (h *Handler) serveSignOut(w http.ResponseWriter, r *http.Request) {
	h.store.Clear(r.Context())
	h.pipeline.View().Replace(nil)
	w.WriteHeader(http.StatusNoContent)
}

// canEdit hides leads a restricted identity cannot see. The lead is
// resolved the way the pipeline resolves it, view first and then cache;
// unknown leads are left to the pipeline to report.
func (h *Handler) canEdit(ctx context.Context, leadID string, id models.Identity) bool {
	if id.IsAdmin() {
		return true
	}
	lead, err := h.pipeline.Lookup(ctx, leadID)
	if err != nil {
		return true
	}
	return len(projection.ProjectLeads([]models.Lead{lead}, id)) == 1
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps pipeline and backend errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()

	switch {
	case errors.Is(err, mutation.ErrDoneLocked), errors.Is(err, mutation.ErrStaleBucket):
		status = http.StatusConflict
	case errors.Is(err, mutation.ErrLeadNotFound):
		status = http.StatusNotFound
	case remote.IsTimeout(err):
		status = http.StatusGatewayTimeout
	default:
		if rf, ok := remote.AsRequestFailed(err); ok {
			status = http.StatusBadGateway
			if rf.Message != "" {
				msg = rf.Message
			}
		}
	}

	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, errorBody{Error: msg})
}

func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

// Serve starts the API server on the given port. It binds the port
// immediately and signals readiness via the returned channel. The server
// closes when ctx is cancelled.
func Serve(ctx context.Context, port int, handler http.Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind api port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("api server shutdown error", "error", err)
		}
	}()

	go func() {
		slog.Info("api server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
		}
	}()

	return ready, nil
}
