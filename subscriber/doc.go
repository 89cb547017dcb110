// Package subscriber manages inbound subscriptions. Each subscription gets a
// generated secret and an inbox stream that Receive appends verified
// deliveries to.
package subscriber
