// Package inbound verifies webhook deliveries and appends them to the inbox
// stream of the target subscription.
//
// Inbox appends use the delivery's message id, so a redelivered message is
// absorbed by the stream store instead of producing a second entry.
package inbound
