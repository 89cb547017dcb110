package publisher

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

func webHookNotFound(id uuid.UUID) error {
	return core.NotFoundError(
		fmt.Sprintf("publisher: webhook %s not found", id),
		map[string]any{"webhook_id": id.String()},
	)
}

func publisherBadInput(message string, metadata map[string]any) error {
	return core.BadInputError(message, metadata)
}

func publisherInternal(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryInternal, core.ErrorInternal, metadata)
}

func storeFailure(err error, message string, streamID string) error {
	return core.StoreError(err, message, map[string]any{"stream_id": streamID})
}
