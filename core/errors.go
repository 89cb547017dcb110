package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput       = "HOOKS_BAD_INPUT"
	ErrorNotFound       = "HOOKS_NOT_FOUND"
	ErrorLimitReached   = "HOOKS_LIMIT_REACHED"
	ErrorConflict       = "HOOKS_CONFLICT"
	ErrorStoreFailure   = "HOOKS_STORE_FAILURE"
	ErrorDeliveryFailed = "HOOKS_DELIVERY_FAILED"
	ErrorInternal       = "HOOKS_INTERNAL_ERROR"
)

// NewError builds a categorized error carrying the HTTP status and text code
// that belong to the category unless textCode overrides it.
func NewError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(HTTPStatus(category)).
		WithTextCode(resolveTextCode(category, textCode))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func WrapError(source error, category goerrors.Category, message string, textCode string, metadata map[string]any) *goerrors.Error {
	if source == nil {
		return NewError(message, category, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(HTTPStatus(category)).
		WithTextCode(resolveTextCode(category, textCode))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func NotFoundError(message string, metadata map[string]any) *goerrors.Error {
	return NewError(message, goerrors.CategoryNotFound, ErrorNotFound, metadata)
}

func BadInputError(message string, metadata map[string]any) *goerrors.Error {
	return NewError(message, goerrors.CategoryBadInput, ErrorBadInput, metadata)
}

// LimitReachedError reports a registry at capacity. It surfaces as 403.
func LimitReachedError(message string, metadata map[string]any) *goerrors.Error {
	return NewError(message, goerrors.CategoryAuthz, ErrorLimitReached, metadata)
}

func StoreError(source error, message string, metadata map[string]any) *goerrors.Error {
	return WrapError(source, goerrors.CategoryInternal, message, ErrorStoreFailure, metadata)
}

// MapError converts any error into a go-errors envelope with a status and
// text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return NewError(err.Error(), goerrors.CategoryNotFound, ErrorNotFound, nil)
	case strings.Contains(msg, "limit reached"):
		return NewError(err.Error(), goerrors.CategoryAuthz, ErrorLimitReached, nil)
	case strings.Contains(msg, "wrong expected version"):
		return NewError(err.Error(), goerrors.CategoryConflict, ErrorConflict, nil)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return NewError(err.Error(), goerrors.CategoryBadInput, ErrorBadInput, nil)
	}

	return ensureEnvelope(goerrors.MapToError(err, goerrors.DefaultErrorMappers()))
}

func IsNotFound(err error) bool {
	return hasTextCode(err, ErrorNotFound, goerrors.CategoryNotFound)
}

func IsLimitReached(err error) bool {
	return hasTextCode(err, ErrorLimitReached)
}

func IsBadInput(err error) bool {
	return hasTextCode(err, ErrorBadInput, goerrors.CategoryBadInput)
}

func hasTextCode(err error, textCode string, categories ...goerrors.Category) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	if richErr.TextCode == textCode {
		return true
	}
	for _, category := range categories {
		if richErr.Category == category {
			return true
		}
	}
	return false
}

func ensureEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = HTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func resolveTextCode(category goerrors.Category, textCode string) string {
	if trimmed := strings.TrimSpace(textCode); trimmed != "" {
		return trimmed
	}
	return defaultTextCode(category)
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorNotFound
	case goerrors.CategoryAuthz:
		return ErrorLimitReached
	case goerrors.CategoryConflict:
		return ErrorConflict
	case goerrors.CategoryExternal:
		return ErrorDeliveryFailed
	default:
		return ErrorInternal
	}
}

func HTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
