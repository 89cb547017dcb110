package sqlstore

import (
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

func streamHandlers() repository.ModelHandlers[*streamRecord] {
	return repository.ModelHandlers[*streamRecord]{
		NewRecord: func() *streamRecord {
			return &streamRecord{}
		},
		GetID: func(record *streamRecord) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return parseUUID(record.ID)
		},
		SetID: func(record *streamRecord, id uuid.UUID) {
			if record == nil {
				return
			}
			record.ID = id.String()
		},
		GetIdentifier: func() string {
			return "stream_id"
		},
		GetIdentifierValue: func(record *streamRecord) string {
			if record == nil {
				return ""
			}
			return strings.TrimSpace(record.StreamID)
		},
	}
}

func parseUUID(value string) uuid.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil
	}
	return parsed
}
