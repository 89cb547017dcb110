package publisher

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-hooks/streams"
	"github.com/google/uuid"
)

// DeliveryRecord is the metadata stored with every message in a deliveries
// stream. The message data is a copy of the delivered payload.
type DeliveryRecord struct {
	EventID         uuid.UUID `json:"eventId"`
	AttemptCount    int       `json:"attemptCount"`
	DeliverySuccess bool      `json:"deliverySuccess"`
	Sequence        int64     `json:"sequence"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
}

// Delivery is a deliveries stream entry with its decoded record.
type Delivery struct {
	DeliveryRecord
	ID          uuid.UUID       `json:"id"`
	EventName   string          `json:"eventName"`
	Version     int64           `json:"version"`
	AttemptedAt time.Time       `json:"attemptedAt"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

func statusCodeMessage(statusCode int) string {
	return fmt.Sprintf("Subscriber returned status code %d", statusCode)
}

func decodeDelivery(msg streams.Message) (Delivery, error) {
	var record DeliveryRecord
	if len(msg.Metadata) > 0 {
		if err := json.Unmarshal(msg.Metadata, &record); err != nil {
			return Delivery{}, err
		}
	}
	return Delivery{
		DeliveryRecord: record,
		ID:             msg.ID,
		EventName:      msg.Type,
		Version:        msg.Version,
		AttemptedAt:    msg.CreatedAt,
		Payload:        rawJSON(msg.Data),
	}, nil
}

func rawJSON(data []byte) json.RawMessage {
	if len(data) == 0 || !json.Valid(data) {
		return nil
	}
	return append(json.RawMessage(nil), data...)
}
