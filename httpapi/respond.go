package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

const maxBodyBytes = 1 << 20

type errorView struct {
	Code     int    `json:"code"`
	TextCode string `json:"textCode"`
	Message  string `json:"message"`
}

type errorBody struct {
	Error errorView `json:"error"`
}

// Options configures a router.
type Options struct {
	// BasePath prefixes Location headers, e.g. "/publisher" when the router
	// is mounted behind http.StripPrefix("/publisher", ...).
	BasePath       string
	Logger         core.Logger
	LoggerProvider core.LoggerProvider
	Metrics        core.MetricsRecorder
}

func (o Options) location(parts ...string) string {
	base := strings.TrimRight(strings.TrimSpace(o.BasePath), "/")
	return base + "/" + strings.Join(parts, "/")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, observer core.Observer, w http.ResponseWriter, err error) {
	mapped := core.MapError(err)
	status := mapped.Code
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		observer.Log(ctx, "error", "http request failed", map[string]any{"error": err.Error()})
	}
	writeJSON(w, status, errorBody{Error: errorView{
		Code:     status,
		TextCode: mapped.TextCode,
		Message:  mapped.Message,
	}})
}

func pathID(params httprouter.Params) (uuid.UUID, error) {
	raw := strings.TrimSpace(params.ByName("id"))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, core.BadInputError("invalid id", map[string]any{"id": raw})
	}
	return id, nil
}

// startParam reads ?start=, returning fallback when the parameter is absent.
func startParam(r *http.Request, fallback int64) (int64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("start"))
	if raw == "" {
		return fallback, nil
	}
	start, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, core.BadInputError("invalid start parameter", map[string]any{"start": raw})
	}
	return start, nil
}

func decodeBody(r *http.Request, w http.ResponseWriter, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil {
		return core.BadInputError("invalid request body", map[string]any{"error": err.Error()})
	}
	return nil
}
