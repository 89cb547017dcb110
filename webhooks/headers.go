package webhooks

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-hooks/core"
	"github.com/google/uuid"
)

const ContentTypeJSON = "application/json"

// Headers names the protocol headers for one vendor prefix.
type Headers struct {
	EventName string
	MessageID string
	Sequence  string
	Signature string
}

func NewHeaders(vendor string) Headers {
	vendor = strings.TrimSpace(vendor)
	if vendor == "" {
		vendor = core.DefaultVendor
	}
	prefix := "X-" + vendor + "-WebHook-"
	return Headers{
		EventName: prefix + "EventName",
		MessageID: prefix + "MessageId",
		Sequence:  prefix + "Sequence",
		Signature: prefix + "Signature",
	}
}

// Envelope is the protocol view of a single delivery.
type Envelope struct {
	EventName string
	MessageID uuid.UUID
	Sequence  int64
	Signature string
}

// Apply writes the envelope onto header. An empty signature is omitted.
func (h Headers) Apply(header http.Header, env Envelope) {
	if header == nil {
		return
	}
	header.Set(h.EventName, env.EventName)
	header.Set(h.MessageID, env.MessageID.String())
	header.Set(h.Sequence, strconv.FormatInt(env.Sequence, 10))
	if env.Signature != "" {
		header.Set(h.Signature, env.Signature)
	} else {
		header.Del(h.Signature)
	}
}

// Parse extracts the envelope. requireSignature controls whether a missing
// signature header is rejected.
func (h Headers) Parse(header http.Header, requireSignature bool) (Envelope, error) {
	var env Envelope
	eventName := strings.TrimSpace(header.Get(h.EventName))
	if eventName == "" {
		return env, missingHeader(h.EventName)
	}
	rawID := strings.TrimSpace(header.Get(h.MessageID))
	if rawID == "" {
		return env, missingHeader(h.MessageID)
	}
	messageID, err := uuid.Parse(rawID)
	if err != nil {
		return env, core.BadInputError(
			fmt.Sprintf("webhooks: invalid %s header", h.MessageID),
			map[string]any{"header": h.MessageID},
		)
	}
	rawSequence := strings.TrimSpace(header.Get(h.Sequence))
	if rawSequence == "" {
		return env, missingHeader(h.Sequence)
	}
	sequence, err := strconv.ParseInt(rawSequence, 10, 64)
	if err != nil {
		return env, core.BadInputError(
			fmt.Sprintf("webhooks: invalid %s header", h.Sequence),
			map[string]any{"header": h.Sequence},
		)
	}
	signature := strings.TrimSpace(header.Get(h.Signature))
	if requireSignature && signature == "" {
		return env, missingHeader(h.Signature)
	}
	return Envelope{
		EventName: eventName,
		MessageID: messageID,
		Sequence:  sequence,
		Signature: signature,
	}, nil
}

func missingHeader(name string) error {
	return core.BadInputError(
		fmt.Sprintf("webhooks: %s header is required", name),
		map[string]any{"header": name},
	)
}
