package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/publisher"
	"github.com/goliatone/go-hooks/streams"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

type PublisherService interface {
	ListWebHooks(ctx context.Context) ([]publisher.WebHook, error)
	GetWebHook(ctx context.Context, id uuid.UUID) (publisher.WebHook, error)
	AddWebHook(ctx context.Context, in publisher.WebHookInput) (publisher.WebHook, error)
	UpdateWebHook(ctx context.Context, id uuid.UUID, in publisher.WebHookInput) (publisher.WebHook, error)
	DeleteWebHook(ctx context.Context, id uuid.UUID) error
	OutPage(ctx context.Context, id uuid.UUID, start int64) (publisher.Page[publisher.OutMessage], error)
	DeliveriesPage(ctx context.Context, id uuid.UUID, start int64) (publisher.Page[publisher.Delivery], error)
}

// WebHookView is the HTTP shape of a webhook. The secret never leaves the
// process; HasSecret reports whether one is set.
type WebHookView struct {
	ID        uuid.UUID        `json:"id"`
	TargetURL string           `json:"targetUrl"`
	Enabled   bool             `json:"enabled"`
	Filter    publisher.Filter `json:"filter"`
	HasSecret bool             `json:"hasSecret"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func NewWebHookView(hook publisher.WebHook) WebHookView {
	return WebHookView{
		ID:        hook.ID,
		TargetURL: hook.TargetURL,
		Enabled:   hook.Enabled,
		Filter:    hook.Filter,
		HasSecret: hook.HasSecret(),
		CreatedAt: hook.CreatedAt,
		UpdatedAt: hook.UpdatedAt,
	}
}

// WebHookRequest is the body of create and update calls. On update a null or
// missing field keeps the stored value.
type WebHookRequest struct {
	TargetURL string            `json:"targetUrl"`
	Enabled   *bool             `json:"enabled"`
	Filter    *publisher.Filter `json:"filter"`
	Secret    *string           `json:"secret"`
}

func (r WebHookRequest) input() publisher.WebHookInput {
	in := publisher.WebHookInput{
		TargetURL: r.TargetURL,
		Enabled:   true,
		Filter:    publisher.Everything(),
		Secret:    r.Secret,
	}
	if r.Enabled != nil {
		in.Enabled = *r.Enabled
	}
	if r.Filter != nil && r.Filter.Kind != "" {
		in.Filter = *r.Filter
	}
	return in
}

func (r WebHookRequest) updateInput(current publisher.WebHook) publisher.WebHookInput {
	in := publisher.WebHookInput{
		TargetURL: r.TargetURL,
		Enabled:   current.Enabled,
		Filter:    current.Filter,
		Secret:    r.Secret,
	}
	if strings.TrimSpace(in.TargetURL) == "" {
		in.TargetURL = current.TargetURL
	}
	if r.Enabled != nil {
		in.Enabled = *r.Enabled
	}
	if r.Filter != nil && r.Filter.Kind != "" {
		in.Filter = *r.Filter
	}
	return in
}

type publisherHandlers struct {
	service  PublisherService
	opts     Options
	observer core.Observer
}

// NewPublisherRouter serves the webhook registry and its stream pages.
func NewPublisherRouter(service PublisherService, opts Options) *httprouter.Router {
	h := &publisherHandlers{
		service:  service,
		opts:     opts,
		observer: core.NewObserver("hooks.httpapi.publisher", opts.LoggerProvider, opts.Logger, opts.Metrics),
	}
	router := httprouter.New()
	router.GET("/hooks", h.list)
	router.POST("/hooks", h.create)
	router.GET("/hooks/:id", h.get)
	router.POST("/hooks/:id", h.update)
	router.DELETE("/hooks/:id", h.delete)
	router.GET("/hooks/:id/out", h.outPage)
	router.GET("/hooks/:id/deliveries", h.deliveriesPage)
	return router
}

func (h *publisherHandlers) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	hooks, err := h.service.ListWebHooks(r.Context())
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	views := make([]WebHookView, 0, len(hooks))
	for _, hook := range hooks {
		views = append(views, NewWebHookView(hook))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *publisherHandlers) create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req WebHookRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	hook, err := h.service.AddWebHook(r.Context(), req.input())
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	w.Header().Set("Location", h.opts.location("hooks", hook.ID.String()))
	writeJSON(w, http.StatusCreated, NewWebHookView(hook))
}

func (h *publisherHandlers) get(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	hook, err := h.service.GetWebHook(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewWebHookView(hook))
}

func (h *publisherHandlers) update(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	var req WebHookRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	current, err := h.service.GetWebHook(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	hook, err := h.service.UpdateWebHook(r.Context(), id, req.updateInput(current))
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewWebHookView(hook))
}

func (h *publisherHandlers) delete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	if err := h.service.DeleteWebHook(r.Context(), id); err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *publisherHandlers) outPage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	start, err := startParam(r, streams.VersionStart)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	page, err := h.service.OutPage(r.Context(), id, start)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *publisherHandlers) deliveriesPage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	start, err := startParam(r, streams.VersionEnd)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	page, err := h.service.DeliveriesPage(r.Context(), id, start)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
