package command

import (
	"context"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/goliatone/go-hooks/publisher"
)

func TestAddWebHookMessage_ValidateReturnsRichError(t *testing.T) {
	err := (AddWebHookMessage{Input: publisher.WebHookInput{TargetURL: "not a url"}}).Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 code, got %d", rich.Code)
	}
	if rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected %q text code, got %q", core.ErrorBadInput, rich.TextCode)
	}
}

func TestQueueEventMessage_ValidateRequiresEventName(t *testing.T) {
	err := (QueueEventMessage{EventName: "  "}).Validate()
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich.TextCode != core.ErrorBadInput {
		t.Fatalf("expected bad input validation error, got %v", err)
	}
	if err := (QueueEventMessage{EventName: "foo"}).Validate(); err != nil {
		t.Fatalf("expected valid message, got %v", err)
	}
}

func TestAddWebHookCommand_NilServiceReturnsRichError(t *testing.T) {
	var cmd *AddWebHookCommand
	err := cmd.Execute(context.Background(), AddWebHookMessage{})
	if err == nil {
		t.Fatalf("expected command dependency error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryInternal {
		t.Fatalf("expected internal category, got %q", rich.Category)
	}
}
