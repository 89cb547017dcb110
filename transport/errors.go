package transport

import (
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-hooks/core"
)

func transportError(message string, category goerrors.Category, metadata map[string]any) error {
	return core.NewError(message, category, transportTextCode(category), metadata)
}

func transportWrapError(source error, category goerrors.Category, message string, metadata map[string]any) error {
	return core.WrapError(source, category, message, transportTextCode(category), metadata)
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ErrorBadInput
	case goerrors.CategoryExternal:
		return core.ErrorDeliveryFailed
	default:
		return core.ErrorInternal
	}
}
