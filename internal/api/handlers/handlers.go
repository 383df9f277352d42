// Package handlers implements the HTTP handlers for the agent core
// diagnostics API. Handlers read through the engines, never through
// private engine state.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/totalaud/agentcore/internal/api/middleware"
	"github.com/totalaud/agentcore/internal/bus"
	"github.com/totalaud/agentcore/internal/evolution"
	"github.com/totalaud/agentcore/internal/loops"
	"github.com/totalaud/agentcore/internal/store"
	"github.com/totalaud/agentcore/pkg/models"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Store     store.Store
	Loops     *loops.Engine
	Evolution *evolution.Engine
	Bus       *bus.Bus
}

// New creates a Handlers instance with all dependencies.
func New(s store.Store, le *loops.Engine, ee *evolution.Engine, b *bus.Bus) *Handlers {
	return &Handlers{Store: s, Loops: le, Evolution: ee, Bus: b}
}

// ── Loop Handlers ───────────────────────────────────────────

func (h *Handlers) ListLoops(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	loopList, err := h.Loops.ListLoops(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if loopList == nil {
		loopList = []models.AgentLoop{}
	}
	respondJSON(w, http.StatusOK, loopList)
}

func (h *Handlers) CreateLoop(w http.ResponseWriter, r *http.Request) {
	var req models.AgentLoop
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		req.UserID = middleware.GetUserID(r.Context())
	}
	if err := h.Loops.CreateLoop(r.Context(), &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handlers) SetLoopStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.LoopStatus `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	id := chi.URLParam(r, "loopID")
	if err := h.Loops.SetLoopStatus(r.Context(), id, req.Status); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
}

func (h *Handlers) DeleteLoop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loopID")
	if err := h.Loops.DeleteLoop(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ListLoopEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loopID")
	events, err := h.Store.ListLoopEvents(r.Context(), id, queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []models.LoopEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

func (h *Handlers) LoopMetrics(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	metrics, err := h.Loops.Metrics(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, metrics)
}

// ── Suggestion Handlers ─────────────────────────────────────

func (h *Handlers) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	status := models.SuggestionStatus(r.URL.Query().Get("status"))
	suggestions, err := h.Loops.ListSuggestions(r.Context(), userID, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if suggestions == nil {
		suggestions = []models.LoopSuggestion{}
	}
	respondJSON(w, http.StatusOK, suggestions)
}

func (h *Handlers) AcceptSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "suggestionID")
	loop, err := h.Loops.AcceptSuggestion(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, loop)
}

func (h *Handlers) DeclineSuggestion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "suggestionID")
	if err := h.Loops.DeclineSuggestion(r.Context(), id); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Event Handlers ──────────────────────────────────────────

func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	eventType := models.EventType(r.URL.Query().Get("type"))
	events := h.Bus.History(eventType, queryLimit(r, 50))
	if events == nil {
		events = []models.LiveEvent{}
	}
	respondJSON(w, http.StatusOK, events)
}

// ── Profile Handlers ────────────────────────────────────────

func (h *Handlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	persona := models.Persona(chi.URLParam(r, "persona"))
	if !persona.Valid() {
		respondError(w, http.StatusBadRequest, "unknown persona")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user id required")
		return
	}
	profile, err := h.Evolution.Profile(r.Context(), userID, persona, r.URL.Query().Get("campaign_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *Handlers) ResetProfile(w http.ResponseWriter, r *http.Request) {
	persona := models.Persona(chi.URLParam(r, "persona"))
	if !persona.Valid() {
		respondError(w, http.StatusBadRequest, "unknown persona")
		return
	}
	userID := middleware.GetUserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user id required")
		return
	}
	profile, err := h.Evolution.ResetProfile(r.Context(), userID, persona, r.URL.Query().Get("campaign_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

func (h *Handlers) ListEvolutionRecords(w http.ResponseWriter, r *http.Request) {
	persona := models.Persona(chi.URLParam(r, "persona"))
	if !persona.Valid() {
		respondError(w, http.StatusBadRequest, "unknown persona")
		return
	}
	userID := middleware.GetUserID(r.Context())
	records, err := h.Evolution.Records(r.Context(), userID, persona, queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.EvolutionRecord{}
	}
	respondJSON(w, http.StatusOK, records)
}

// ── Fusion & Memory Handlers ────────────────────────────────

func (h *Handlers) ListSessionMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	messages, err := h.Store.ListFusionMessages(r.Context(), sessionID, queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if messages == nil {
		messages = []models.FusionMessage{}
	}
	respondJSON(w, http.StatusOK, messages)
}

func (h *Handlers) ListMemories(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	memories, err := h.Store.ListMemories(r.Context(), userID, queryLimit(r, 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if memories == nil {
		memories = []models.Memory{}
	}
	respondJSON(w, http.StatusOK, memories)
}

// ── Helpers ─────────────────────────────────────────────────

func queryLimit(r *http.Request, fallback int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func respondStoreError(w http.ResponseWriter, err error) {
	var notFound *store.ErrNotFound
	var conflict *store.ErrConflict
	switch {
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &conflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
