// Package publisher owns the webhook registry and the delivery engine.
//
// Events queued with QueueEvent are appended to the out stream of every
// selected webhook. DeliverNow drains those streams in order, one message
// per webhook per pass, records every attempt in the webhook's deliveries
// stream and backs off exponentially between failed attempts. A webhook
// whose oldest message keeps failing past MaxDeliveryAttemptDuration is
// disabled.
package publisher
