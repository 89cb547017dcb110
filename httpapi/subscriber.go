package httpapi

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/inbound"
	"github.com/goliatone/go-hooks/streams"
	"github.com/goliatone/go-hooks/subscriber"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

type SubscriberService interface {
	List(ctx context.Context) ([]subscriber.Subscription, error)
	Get(ctx context.Context, id uuid.UUID) (subscriber.Subscription, error)
	Add(ctx context.Context, name string) (subscriber.Subscription, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Receive(ctx context.Context, id uuid.UUID, header http.Header, body []byte) (inbound.Result, error)
	InboxPage(ctx context.Context, id uuid.UUID, start int64) (subscriber.InboxPage, error)
}

type SubscriptionView struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	URI       string    `json:"uri"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreatedSubscriptionView is returned once, on create, and carries the secret
// the publisher must sign with.
type CreatedSubscriptionView struct {
	SubscriptionView
	Secret string `json:"secret"`
}

func NewSubscriptionView(sub subscriber.Subscription) SubscriptionView {
	return SubscriptionView{
		ID:        sub.ID,
		Name:      sub.Name,
		URI:       sub.RelativeURI(),
		CreatedAt: sub.CreatedAt,
	}
}

type SubscriptionRequest struct {
	Name string `json:"name"`
}

type ReceiveView struct {
	Status    inbound.Status `json:"status"`
	Reason    string         `json:"reason,omitempty"`
	MessageID *uuid.UUID     `json:"messageId,omitempty"`
}

type subscriberHandlers struct {
	service  SubscriberService
	opts     Options
	observer core.Observer
}

// NewSubscriberRouter serves subscription management, the inbox and the
// receive endpoint.
func NewSubscriberRouter(service SubscriberService, opts Options) *httprouter.Router {
	h := &subscriberHandlers{
		service:  service,
		opts:     opts,
		observer: core.NewObserver("hooks.httpapi.subscriber", opts.LoggerProvider, opts.Logger, opts.Metrics),
	}
	router := httprouter.New()
	router.GET("/hooks", h.list)
	router.POST("/hooks", h.create)
	router.GET("/hooks/:id", h.get)
	router.POST("/hooks/:id", h.receive)
	router.DELETE("/hooks/:id", h.delete)
	router.GET("/hooks/:id/inbox", h.inboxPage)
	return router
}

func (h *subscriberHandlers) list(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	subs, err := h.service.List(r.Context())
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	views := make([]SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, NewSubscriptionView(sub))
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *subscriberHandlers) create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req SubscriptionRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	sub, err := h.service.Add(r.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	w.Header().Set("Location", h.opts.location(sub.RelativeURI()))
	writeJSON(w, http.StatusCreated, CreatedSubscriptionView{
		SubscriptionView: NewSubscriptionView(sub),
		Secret:           sub.Secret,
	})
}

func (h *subscriberHandlers) get(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	writeJSON(w, http.StatusOK, NewSubscriptionView(sub))
}

func (h *subscriberHandlers) delete(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *subscriberHandlers) receive(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	id, err := pathID(params)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(r.Context(), h.observer, w, core.BadInputError("request body too large", nil))
		return
	}
	result, err := h.service.Receive(r.Context(), id, r.Header, body)
	status := result.StatusCode
	if status == 0 {
		if err != nil {
			writeError(r.Context(), h.observer, w, err)
			return
		}
		status = http.StatusOK
	}
	view := ReceiveView{Status: result.Status, Reason: result.Reason}
	if result.MessageID != uuid.Nil {
		messageID := result.MessageID
		view.MessageID = &messageID
	}
	writeJSON(w, status, view)
}

func (h *subscriberHandlers) inboxPage(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
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
	page, err := h.service.InboxPage(r.Context(), id, start)
	if err != nil {
		writeError(r.Context(), h.observer, w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
