package core

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewError_AssignsStatusAndTextCode(t *testing.T) {
	err := NotFoundError("webhook not found", map[string]any{"webhook_id": "wh_1"})
	if err.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", err.Code)
	}
	if err.TextCode != ErrorNotFound {
		t.Fatalf("expected not found text code, got %q", err.TextCode)
	}
	if err.Metadata["webhook_id"] != "wh_1" {
		t.Fatalf("expected metadata to be attached, got %#v", err.Metadata)
	}

	limit := LimitReachedError("webhook limit reached", nil)
	if limit.Code != http.StatusForbidden || limit.TextCode != ErrorLimitReached {
		t.Fatalf("expected 403 limit error, got %d %q", limit.Code, limit.TextCode)
	}

	custom := NewError("boom", goerrors.CategoryExternal, "", nil)
	if custom.Code != http.StatusBadGateway || custom.TextCode != ErrorDeliveryFailed {
		t.Fatalf("expected category defaults, got %d %q", custom.Code, custom.TextCode)
	}
}

func TestStoreError_WrapsSource(t *testing.T) {
	source := stderrors.New("disk full")
	err := StoreError(source, "append failed", nil)
	if err.TextCode != ErrorStoreFailure {
		t.Fatalf("expected store failure code, got %q", err.TextCode)
	}
	if err.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", err.Code)
	}
	if !stderrors.Is(err, source) {
		t.Fatalf("expected wrapped source to be reachable")
	}
}

func TestMapError_ClassifiesPlainErrors(t *testing.T) {
	cases := []struct {
		err      error
		status   int
		textCode string
	}{
		{stderrors.New("subscription not found"), http.StatusNotFound, ErrorNotFound},
		{stderrors.New("publisher: webhook limit reached"), http.StatusForbidden, ErrorLimitReached},
		{stderrors.New("streams: wrong expected version 2"), http.StatusConflict, ErrorConflict},
		{stderrors.New("target url is required"), http.StatusBadRequest, ErrorBadInput},
		{stderrors.New("something odd"), http.StatusInternalServerError, ErrorInternal},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped.Code != tc.status {
			t.Fatalf("%q: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%q: expected text code %q, got %q", tc.err, tc.textCode, mapped.TextCode)
		}
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestMapError_KeepsRichErrors(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", BadInputError("bad filter", nil))
	mapped := MapError(wrapped)
	if mapped.TextCode != ErrorBadInput || mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected bad input envelope, got %d %q", mapped.Code, mapped.TextCode)
	}
	if !IsBadInput(wrapped) {
		t.Fatalf("expected IsBadInput through wrapping")
	}
	if IsNotFound(wrapped) || IsLimitReached(wrapped) {
		t.Fatalf("expected only bad input classification")
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(goerrors.CategoryConflict); got != http.StatusConflict {
		t.Fatalf("expected 409, got %d", got)
	}
	if got := HTTPStatus(goerrors.CategoryRateLimit); got != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", got)
	}
	if got := HTTPStatus(goerrors.CategoryInternal); got != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", got)
	}
}
