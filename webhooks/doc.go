// Package webhooks holds the wire protocol shared by publishers and
// subscribers: the X-{Vendor}-WebHook-* header set, the payload signature
// and the retry backoff policy.
//
// Every delivery carries the event name, message id and sequence headers.
// The signature header is Base64(HMAC-SHA1(secret, body)) and is present
// only when the registration has a secret.
package webhooks
