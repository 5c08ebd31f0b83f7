package api

import (
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
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/simple-publish/pkg/simplepublish"
)

// Handler handles HTTP requests for the publishing queue.
type Handler struct {
	service   simplepublish.Service
	tokenAuth *jwtauth.JWTAuth
}

// Option configures a Handler.
type Option func(*Handler)

// WithJWTSecret protects all routes with HS256 bearer token auth. An empty
// secret leaves the routes open.
func WithJWTSecret(secret []byte) Option {
	return func(h *Handler) {
		if len(secret) > 0 {
			h.tokenAuth = jwtauth.New("HS256", secret, nil)
		}
	}
}

// NewHandler creates a new queue handler.
func NewHandler(service simplepublish.Service, opts ...Option) *Handler {
	h := &Handler{service: service}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for the publishing queue.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.tokenAuth != nil {
		r.Use(jwtauth.Verifier(h.tokenAuth))
		r.Use(jwtauth.Authenticator)
	}

	r.Post("/items", h.SubmitItem)
	r.Get("/items", h.ListItems)
	r.Get("/items/{itemID}", h.GetItem)
	r.Patch("/items/{itemID}/content", h.UpdateItemContent)
	r.Delete("/items/{itemID}", h.RemoveItem)

	r.Post("/items/{itemID}/test", h.TestItem)
	r.Post("/items/{itemID}/publish", h.PublishItem)

	r.Post("/tick", h.Tick)
	r.Post("/publish-ready", h.PublishReady)

	r.Get("/status", h.GetStatus)
	r.Post("/targets/{target}/breaker/reset", h.ResetBreaker)
	r.Get("/optimal-time", h.OptimalTime)

	return r
}

// SubmitItemRequest is the request body for submitting an item
type SubmitItemRequest struct {
	Payload       simplepublish.Payload `json:"payload"`
	Targets       []string              `json:"targets"`
	Priority      string                `json:"priority,omitempty"`
	ScheduledFor  *time.Time            `json:"scheduled_for,omitempty"`
	AtOptimalTime bool                  `json:"at_optimal_time,omitempty"`
	MaxRetries    *int                  `json:"max_retries,omitempty"`
}

// UpdateItemContentRequest is the request body for replacing an item's payload
type UpdateItemContentRequest struct {
	Payload simplepublish.Payload `json:"payload"`
}

// PublishReadyRequest is the request body for a batch publishing pass
type PublishReadyRequest struct {
	Concurrency      int `json:"concurrency,omitempty"`
	InterWaveDelayMS int `json:"inter_wave_delay_ms,omitempty"`
}

// ItemListResponse is the response body for listing items
type ItemListResponse struct {
	Items []*simplepublish.Item `json:"items"`
	Count int                   `json:"count"`
}

// OptimalTimeResponse is the response body for the optimal time lookup
type OptimalTimeResponse struct {
	Time time.Time `json:"time"`
}

// ErrorResponse is the error envelope for all endpoints
type ErrorResponse struct {
	Error string `json:"error"`
}

// SubmitItem adds a new item to the queue
func (h *Handler) SubmitItem(w http.ResponseWriter, r *http.Request) {
	var req SubmitItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}

	submit := simplepublish.SubmitRequest{
		Payload:       req.Payload,
		Targets:       req.Targets,
		Priority:      simplepublish.Priority(req.Priority),
		AtOptimalTime: req.AtOptimalTime,
		MaxRetries:    req.MaxRetries,
	}
	if req.ScheduledFor != nil {
		submit.ScheduledFor = *req.ScheduledFor
	}

	item, err := h.service.Submit(r.Context(), submit)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Item submitted", "item_id", item.ID, "targets", item.Targets)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, item)
}

// ListItems lists queue items with optional status/target filters
func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	filter := simplepublish.ItemFilter{
		Target: r.URL.Query().Get("target"),
	}

	for _, raw := range r.URL.Query()["status"] {
		status := simplepublish.ItemStatus(raw)
		if !status.IsValid() {
			badRequest(w, r, fmt.Sprintf("invalid status %q", raw))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			badRequest(w, r, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	items, err := h.service.ListItems(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []*simplepublish.Item{}
	}

	render.JSON(w, r, ItemListResponse{Items: items, Count: len(items)})
}

// GetItem retrieves an item by ID
func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	item, err := h.service.Item(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, item)
}

// UpdateItemContent replaces an item's payload and resets its test results
func (h *Handler) UpdateItemContent(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	var req UpdateItemContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid JSON body")
		return
	}

	item, err := h.service.UpdateContent(r.Context(), id, req.Payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Item content updated", "item_id", item.ID)
	render.JSON(w, r, item)
}

// RemoveItem deletes an item from the queue
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Item removed", "item_id", id)
	render.NoContent(w, r)
}

// TestItem re-runs compatibility tests for an item
func (h *Handler) TestItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	results, err := h.service.TestReadiness(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, results)
}

// PublishItem publishes a single item immediately
func (h *Handler) PublishItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}

	result, err := h.service.PublishNow(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Item publish requested", "item_id", id, "succeeded", result.Succeeded, "failed", result.Failed)
	render.JSON(w, r, result)
}

// Tick runs one scheduler pass
func (h *Handler) Tick(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Tick(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, result)
}

// PublishReady publishes all ready items in waves
func (h *Handler) PublishReady(w http.ResponseWriter, r *http.Request) {
	var req PublishReadyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(w, r, "invalid JSON body")
		return
	}

	opts := simplepublish.BatchOptions{
		Concurrency:    req.Concurrency,
		InterWaveDelay: time.Duration(req.InterWaveDelayMS) * time.Millisecond,
	}

	result, err := h.service.PublishAllReady(r.Context(), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Batch publish completed", "total", result.Total, "succeeded", result.Succeeded, "failed", result.Failed)
	render.JSON(w, r, result)
}

// GetStatus reports queue depths and breaker states
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Status(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, report)
}

// ResetBreaker closes a target's circuit breaker
func (h *Handler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	target := chi.URLParam(r, "target")

	if err := h.service.ResetBreaker(r.Context(), target); err != nil {
		if errors.Is(err, simplepublish.ErrUnknownTarget) {
			render.Status(r, http.StatusNotFound)
			render.JSON(w, r, ErrorResponse{Error: err.Error()})
			return
		}
		writeError(w, r, err)
		return
	}

	slog.Info("Breaker reset", "target", target)
	render.NoContent(w, r)
}

// OptimalTime returns the next high-engagement publish time for targets
func (h *Handler) OptimalTime(w http.ResponseWriter, r *http.Request) {
	var targets []string
	if raw := r.URL.Query().Get("targets"); raw != "" {
		targets = strings.Split(raw, ",")
	}

	when, err := h.service.NextOptimalTime(r.Context(), targets)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, OptimalTimeResponse{Time: when})
}

// itemID parses the itemID URL parameter, writing a 400 response when it is
// not a UUID.
func itemID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	idStr := chi.URLParam(r, "itemID")
	id, err := uuid.Parse(idStr)
	if err != nil {
		slog.Error("Invalid item ID", "item_id", idStr, "error", err)
		badRequest(w, r, "invalid item ID")
		return uuid.Nil, false
	}
	return id, true
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	render.Status(r, http.StatusBadRequest)
	render.JSON(w, r, ErrorResponse{Error: msg})
}

// writeError maps service errors onto HTTP statuses with a JSON envelope.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, simplepublish.ErrItemNotFound):
		status = http.StatusNotFound
	case errors.Is(err, simplepublish.ErrInvalidItem),
		errors.Is(err, simplepublish.ErrUnknownTarget):
		status = http.StatusBadRequest
	case errors.Is(err, simplepublish.ErrNotCompatible):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, simplepublish.ErrInvalidTransition),
		errors.Is(err, simplepublish.ErrTransitionConflict),
		errors.Is(err, simplepublish.ErrItemBeingPublished),
		errors.Is(err, simplepublish.ErrRetryExhausted):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", r.URL.Path, "error", err)
	}

	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Error: err.Error()})
}
