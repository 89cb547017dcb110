package inbound

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
)

func inboundError(
	message string,
	category goerrors.Category,
	textCode string,
	metadata map[string]any,
) error {
	return core.NewError(message, category, textCode, metadata)
}

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	textCode string,
	metadata map[string]any,
) error {
	return core.WrapError(source, category, message, textCode, metadata)
}

func inboundBadInput(message string, metadata map[string]any) error {
	return inboundError(message, goerrors.CategoryBadInput, core.ErrorBadInput, metadata)
}

func inboundInternal(message string, metadata map[string]any) error {
	return inboundError(message, goerrors.CategoryInternal, core.ErrorInternal, metadata)
}
